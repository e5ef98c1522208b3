/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-rollinglimit/log/logtest"
)

type mockUnit struct {
	name     string
	startErr error
	stopErr  error
	stopLog  *stopLog

	running              atomic.Bool
	startCalled          atomic.Int32
	stopGracefullyCalled atomic.Int32
	stopForciblyCalled   atomic.Int32
}

type stopLog struct {
	mu    sync.Mutex
	names []string
}

func (l *stopLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func (u *mockUnit) Start(fatalErr chan<- error) {
	u.startCalled.Inc()
	if u.startErr != nil {
		fatalErr <- u.startErr
		return
	}
	u.running.Store(true)
}

func (u *mockUnit) Stop(gracefully bool) error {
	if gracefully {
		u.stopGracefullyCalled.Inc()
	} else {
		u.stopForciblyCalled.Inc()
	}
	if u.stopLog != nil {
		u.stopLog.add(u.name)
	}
	u.running.Store(false)
	return u.stopErr
}

type mockMetrics struct {
	registered   atomic.Int32
	unregistered atomic.Int32
}

func (m *mockMetrics) MustRegisterMetrics() { m.registered.Inc() }
func (m *mockMetrics) UnregisterMetrics()   { m.unregistered.Inc() }

func TestService_StopBySignal(t *testing.T) {
	stopped := &stopLog{}
	first := &mockUnit{name: "first", stopLog: stopped}
	second := &mockUnit{name: "second", stopLog: stopped}
	metrics := &mockMetrics{}
	svc := NewWithOpts(logtest.NewRecorder(), Opts{ShutdownSignals: []os.Signal{os.Interrupt}, Metrics: []MetricsRegisterer{metrics}},
		first, second)

	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background()) }()
	require.Eventually(t, func() bool { return first.running.Load() && second.running.Load() }, 3*time.Second, 10*time.Millisecond)
	require.EqualValues(t, 1, metrics.registered.Load())

	svc.Signals <- os.Interrupt

	require.NoError(t, <-done)
	require.EqualValues(t, 1, first.stopGracefullyCalled.Load())
	require.EqualValues(t, 1, second.stopGracefullyCalled.Load())
	require.Equal(t, []string{"second", "first"}, stopped.names)
	require.EqualValues(t, 1, metrics.unregistered.Load())
}

func TestService_StopByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	unit := &mockUnit{name: "srv", stopErr: errors.New("close listener")}
	logRecorder := logtest.NewRecorder()
	svc := New(logRecorder, unit)

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	require.Eventually(t, unit.running.Load, 3*time.Second, 10*time.Millisecond)

	cancel()

	err := <-done
	require.EqualError(t, err, "stop service gracefully: close listener")
	require.EqualValues(t, 1, unit.stopGracefullyCalled.Load())
	_, found := logRecorder.FindEntry("context is canceled, service will be stopped")
	require.True(t, found)
}

func TestService_FatalError(t *testing.T) {
	failing := &mockUnit{name: "srv", startErr: errors.New("address already in use")}
	logRecorder := logtest.NewRecorder()
	svc := New(logRecorder, failing)

	err := svc.Run(context.Background())
	require.EqualError(t, err, "fatal error: address already in use")
	require.EqualValues(t, 1, failing.stopForciblyCalled.Load())
	require.EqualValues(t, 0, failing.stopGracefullyCalled.Load())
	_, found := logRecorder.FindEntry("service fatal error")
	require.True(t, found)
}
