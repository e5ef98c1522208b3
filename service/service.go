/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package service runs a set of units until a fatal error or a shutdown signal, then stops them gracefully.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/acronis/go-rollinglimit/log"
)

// DefaultShutdownSignals are the signals that stop a Service created by New.
var DefaultShutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// Opts represents an options for Service.
type Opts struct {
	ShutdownSignals []os.Signal
	// Metrics are registered before the units start and unregistered after they stop.
	Metrics []MetricsRegisterer
}

// Service starts units and stops them in reverse order on shutdown.
type Service struct {
	Units   []Unit
	Signals chan os.Signal
	Logger  log.FieldLogger
	Opts    Opts
}

// New creates a new Service that is stopped by SIGINT or SIGTERM.
func New(logger log.FieldLogger, units ...Unit) *Service {
	return NewWithOpts(logger, Opts{ShutdownSignals: DefaultShutdownSignals}, units...)
}

// NewWithOpts is a more configurable version of New.
func NewWithOpts(logger log.FieldLogger, opts Opts, units ...Unit) *Service {
	return &Service{Units: units, Signals: make(chan os.Signal, 1), Logger: logger, Opts: opts}
}

// Run starts all units and blocks until ctx is done, a unit fails or a shutdown signal is received.
func (s *Service) Run(ctx context.Context) error {
	for _, m := range s.Opts.Metrics {
		m.MustRegisterMetrics()
		defer m.UnregisterMetrics()
	}
	for _, u := range s.Units {
		if m, ok := u.(MetricsRegisterer); ok {
			m.MustRegisterMetrics()
			defer m.UnregisterMetrics()
		}
	}

	fatalErr := make(chan error, len(s.Units))
	for _, u := range s.Units {
		go u.Start(fatalErr)
	}

	signal.Notify(s.Signals, s.Opts.ShutdownSignals...)
	defer signal.Stop(s.Signals)

	select {
	case <-ctx.Done():
		s.Logger.Info("context is canceled, service will be stopped")
	case sig := <-s.Signals:
		s.Logger.Info("service got signal", log.String("signal", sig.String()))
	case err := <-fatalErr:
		s.Logger.Error("service fatal error", log.Error(err))
		return errors.Join(fmt.Errorf("fatal error: %w", err), s.stop(false))
	}
	if err := s.stop(true); err != nil {
		return fmt.Errorf("stop service gracefully: %w", err)
	}
	return nil
}

func (s *Service) stop(gracefully bool) error {
	var errs []error
	for i := len(s.Units) - 1; i >= 0; i-- {
		if err := s.Units[i].Stop(gracefully); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
