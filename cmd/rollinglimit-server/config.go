/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/acronis/go-rollinglimit/config"
	"github.com/acronis/go-rollinglimit/httpserver"
	"github.com/acronis/go-rollinglimit/log"
	"github.com/acronis/go-rollinglimit/profserver"
	"github.com/acronis/go-rollinglimit/rollinglimit"
)

const (
	cfgKeyRedisAddrs       = "addrs"
	cfgKeyRedisPassword    = "password"
	cfgKeyRedisDB          = "db"
	cfgKeyRedisDialTimeout = "dialTimeout"
)

const (
	defaultRedisAddrs       = "localhost:6379"
	defaultRedisDialTimeout = 5 * time.Second
)

// RedisConfig represents connection parameters of the Redis deployment that holds windows and locks.
type RedisConfig struct {
	// Addrs is a comma-separated list of addresses. More than one address means a cluster.
	Addrs       []string            `mapstructure:"addrs" yaml:"addrs" json:"addrs"`
	Password    string              `mapstructure:"password" yaml:"password" json:"password"`
	DB          int                 `mapstructure:"db" yaml:"db" json:"db"`
	DialTimeout config.TimeDuration `mapstructure:"dialTimeout" yaml:"dialTimeout" json:"dialTimeout"`
}

var _ config.Config = (*RedisConfig)(nil)
var _ config.KeyPrefixProvider = (*RedisConfig)(nil)

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *RedisConfig) KeyPrefix() string {
	return "redis"
}

// SetProviderDefaults sets default configuration values for Redis connection in config.DataProvider.
func (c *RedisConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyRedisAddrs, defaultRedisAddrs)
	dp.SetDefault(cfgKeyRedisDialTimeout, defaultRedisDialTimeout)
}

// Set sets Redis connection configuration values from config.DataProvider.
func (c *RedisConfig) Set(dp config.DataProvider) error {
	addrs, err := dp.GetString(cfgKeyRedisAddrs)
	if err != nil {
		return err
	}
	c.Addrs = c.Addrs[:0]
	for _, addr := range strings.Split(addrs, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			c.Addrs = append(c.Addrs, addr)
		}
	}
	if len(c.Addrs) == 0 {
		return dp.WrapKeyErr(cfgKeyRedisAddrs, fmt.Errorf("cannot be empty"))
	}

	if c.Password, err = dp.GetString(cfgKeyRedisPassword); err != nil {
		return err
	}
	if c.DB, err = dp.GetInt(cfgKeyRedisDB); err != nil {
		return err
	}
	if c.DB < 0 {
		return dp.WrapKeyErr(cfgKeyRedisDB, fmt.Errorf("cannot be negative"))
	}

	var dur time.Duration
	if dur, err = dp.GetDuration(cfgKeyRedisDialTimeout); err != nil {
		return err
	}
	c.DialTimeout = config.TimeDuration(dur)
	return nil
}

func (c *RedisConfig) universalOptions() *redis.UniversalOptions {
	return &redis.UniversalOptions{
		Addrs:       c.Addrs,
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: time.Duration(c.DialTimeout),
	}
}

// AppConfig is the whole configuration of the server.
type AppConfig struct {
	Log        *log.Config
	Redis      *RedisConfig
	Limiter    *rollinglimit.Config
	Server     *httpserver.Config
	ProfServer *profserver.Config
}

// NewAppConfig creates an AppConfig with default key prefixes (log, redis, limiter, server, profServer).
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Log:        log.NewConfig(""),
		Redis:      &RedisConfig{},
		Limiter:    rollinglimit.NewConfig(),
		Server:     httpserver.NewConfig(),
		ProfServer: profserver.NewConfig(""),
	}
}

// Load loads all sections from the YAML file (if path is not empty) and environment variables.
func (c *AppConfig) Load(loader *config.Loader, path string) error {
	if path == "" {
		return loader.Load(c.Log, c.Redis, c.Limiter, c.Server, c.ProfServer)
	}
	return loader.LoadFromFile(path, config.DataTypeYAML, c.Log, c.Redis, c.Limiter, c.Server, c.ProfServer)
}
