/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package profserver provides an HTTP server unit that exposes pprof endpoints under /debug.
package profserver

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/acronis/go-rollinglimit/config"
	"github.com/acronis/go-rollinglimit/httpserver"
	"github.com/acronis/go-rollinglimit/log"
	"github.com/acronis/go-rollinglimit/middleware"
)

// New creates a new HTTP server (pprof) for profiling.
// Profiles are collected for tens of seconds, so the server has no write timeout.
func New(cfg *Config, logger log.FieldLogger) *httpserver.HTTPServer {
	logger = logger.With(log.String("server", "profiling"))

	router := chi.NewRouter()
	router.Use(middleware.RequestID(), middleware.Logging(logger))
	router.Mount("/debug", chimw.Profiler())

	srvCfg := httpserver.NewDefaultConfig()
	srvCfg.Address = cfg.Address
	srvCfg.Timeouts.Write = 0
	srvCfg.Timeouts.ReadHeader = config.TimeDuration(5 * time.Second)
	srvCfg.Timeouts.Shutdown = config.TimeDuration(time.Second)
	return httpserver.New(srvCfg, logger, router, nil)
}
