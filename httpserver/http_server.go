/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package httpserver provides an HTTP server unit with graceful shutdown, health-check and metrics endpoints.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/acronis/go-rollinglimit/log"
	"github.com/acronis/go-rollinglimit/service"
)

// HTTPServer represents a wrapper around http.Server that implements service.Unit.
type HTTPServer struct {
	HTTPServer      *http.Server
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listener   net.Listener
	port       atomic.Int32
	listenOnce sync.Once
	listenErr  error
	started    atomic.Bool
	done       chan struct{}
}

var _ service.Unit = (*HTTPServer)(nil)

// New creates a new HTTPServer serving the passed handler.
// If listener is nil, the server listens on the configured TCP address.
func New(cfg *Config, logger log.FieldLogger, handler http.Handler, listener net.Listener) *HTTPServer {
	return &HTTPServer{
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			WriteTimeout:      time.Duration(cfg.Timeouts.Write),
			ReadTimeout:       time.Duration(cfg.Timeouts.Read),
			ReadHeaderTimeout: time.Duration(cfg.Timeouts.ReadHeader),
			IdleTimeout:       time.Duration(cfg.Timeouts.Idle),
			Handler:           handler,
		},
		Logger:          logger,
		ShutdownTimeout: time.Duration(cfg.Timeouts.Shutdown),
		listener:        listener,
		done:            make(chan struct{}),
	}
}

// Listen opens the TCP listener if it has not been passed or opened yet.
// It may be called before Start to learn the port chosen for ":0".
func (s *HTTPServer) Listen() error {
	s.listenOnce.Do(func() {
		if s.listener == nil {
			if s.listener, s.listenErr = net.Listen("tcp", s.HTTPServer.Addr); s.listenErr != nil {
				return
			}
		}
		if _, portStr, err := net.SplitHostPort(s.listener.Addr().String()); err == nil {
			if port, err := strconv.ParseInt(portStr, 10, 32); err == nil {
				s.port.Store(int32(port))
			}
		}
	})
	return s.listenErr
}

// Start starts the HTTP server in a blocking way.
func (s *HTTPServer) Start(fatalError chan<- error) {
	s.started.Store(true)
	defer close(s.done)

	logger := s.Logger.With(
		log.String("address", s.HTTPServer.Addr),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)
	logger.Info("starting application HTTP server...")

	if err := s.Listen(); err != nil {
		logger.Error("application HTTP server error", log.Error(err))
		fatalError <- err
		return
	}

	if err := s.HTTPServer.Serve(s.listener); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("application HTTP server closed")
			return
		}
		logger.Error("application HTTP server error", log.Error(err))
		fatalError <- err
	}
}

// Stop stops the HTTP server (gracefully or not) and waits until Start returns.
func (s *HTTPServer) Stop(gracefully bool) error {
	if !gracefully {
		s.Logger.Info("closing application HTTP server...")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("application HTTP server closing error", log.Error(err))
			return err
		}
		s.waitDone()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()

	s.Logger.Info("shutting down application HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("application HTTP server shutting down error", log.Error(err))
		return err
	}
	s.Logger.Info("application HTTP server shut down")
	s.waitDone()
	return nil
}

func (s *HTTPServer) waitDone() {
	if !s.started.Load() {
		return
	}
	<-s.done
}

// GetPort returns the TCP port the server listens on, 0 if it does not listen yet.
func (s *HTTPServer) GetPort() int {
	return int(s.port.Load())
}
