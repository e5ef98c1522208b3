/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Command rollinglimit-server exposes the rolling-window rate limiter over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/acronis/go-rollinglimit/config"
	"github.com/acronis/go-rollinglimit/httpserver"
	"github.com/acronis/go-rollinglimit/internal/api"
	"github.com/acronis/go-rollinglimit/log"
	"github.com/acronis/go-rollinglimit/profserver"
	"github.com/acronis/go-rollinglimit/restapi"
	"github.com/acronis/go-rollinglimit/rollinglimit"
	"github.com/acronis/go-rollinglimit/service"
)

const (
	envVarsPrefix    = "ROLLINGLIMIT"
	errDomain        = "RollingLimit"
	metricsNamespace = "rollinglimit"
)

func main() {
	cfgPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	if err := run(context.Background(), *cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfg := NewAppConfig()
	if err := cfg.Load(config.NewDefaultLoader(envVarsPrefix), cfgPath); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, closeLogger := log.NewLogger(cfg.Log)
	defer closeLogger()

	client := redis.NewUniversalClient(cfg.Redis.universalOptions())
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("close redis client", log.Error(err))
		}
	}()

	srv, metrics, err := newServer(cfg, client, logger)
	if err != nil {
		return err
	}
	units := []service.Unit{srv}
	if cfg.ProfServer.Enabled {
		units = append(units, profserver.New(cfg.ProfServer, logger))
	}
	return service.NewWithOpts(logger, service.Opts{
		ShutdownSignals: service.DefaultShutdownSignals,
		Metrics:         metrics,
	}, units...).Run(ctx)
}

func newServer(
	cfg *AppConfig, client redis.UniversalClient, logger log.FieldLogger,
) (*httpserver.HTTPServer, []service.MetricsRegisterer, error) {
	limiterMetrics := rollinglimit.NewPrometheusMetricsWithOpts(rollinglimit.PrometheusMetricsOpts{Namespace: metricsNamespace})
	limiter, err := rollinglimit.New(cfg.Limiter, client, rollinglimit.WithLogger(logger), rollinglimit.WithMetrics(limiterMetrics))
	if err != nil {
		return nil, nil, fmt.Errorf("create limiter: %w", err)
	}

	router := httpserver.NewRouter(logger, httpserver.RouterOpts{
		ErrorDomain: errDomain,
		HealthCheck: httpserver.PingHealthCheck(logger, map[string]func(ctx context.Context) error{"redis": limiter.Ping}),
		APIRoutes:   map[httpserver.APIVersion]httpserver.APIRoute{1: api.Routes(limiter, errDomain)},
	})

	metrics := []service.MetricsRegisterer{
		metricsRegisterer{register: limiterMetrics.MustRegister, unregister: limiterMetrics.Unregister},
		metricsRegisterer{
			register:   func() { restapi.MustInitAndRegisterMetrics(metricsNamespace) },
			unregister: restapi.UnregisterMetrics,
		},
	}
	return httpserver.New(cfg.Server, logger, router, nil), metrics, nil
}

type metricsRegisterer struct {
	register   func()
	unregister func()
}

func (m metricsRegisterer) MustRegisterMetrics() { m.register() }
func (m metricsRegisterer) UnregisterMetrics()   { m.unregister() }
