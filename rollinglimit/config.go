/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package rollinglimit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/acronis/go-rollinglimit/config"
	"github.com/acronis/go-rollinglimit/distlock"
	"github.com/acronis/go-rollinglimit/retry"
)

const cfgDefaultKeyPrefix = "limiter"

const (
	cfgKeyIdentifier           = "identifier"
	cfgKeyWindow               = "window"
	cfgKeyMaxCalls             = "maxCalls"
	cfgKeyMinSpacing           = "minSpacing"
	cfgKeyStoreKeyPrefix       = "keyPrefix"
	cfgKeyLockLease            = "lock.lease"
	cfgKeyLockRetryInterval    = "lock.retryInterval"
	cfgKeyLockMaxRetryInterval = "lock.maxRetryInterval"
	cfgKeyLockMaxAttempts      = "lock.maxAttempts"
	cfgKeyLockBackoff          = "lock.backoff"
)

// Default values.
const (
	DefaultMinSpacing           = time.Second
	DefaultLockLease            = distlock.DefaultLease
	DefaultLockRetryInterval    = distlock.DefaultRetryInterval
	DefaultLockMaxRetryInterval = 2 * time.Second
	DefaultLockMaxAttempts      = distlock.DefaultMaxAttempts
)

// BackoffType defines how the delay between lock acquisition attempts changes.
type BackoffType string

// Backoff types.
const (
	BackoffConstant    BackoffType = "constant"
	BackoffExponential BackoffType = "exponential"
)

var availableBackoffTypes = []string{string(BackoffConstant), string(BackoffExponential)}

// Config represents a set of configuration parameters for Limiter.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly (call Validate after that).
type Config struct {
	// Identifier names the limiter. Limiters with the same identifier share windows.
	Identifier string `mapstructure:"identifier" yaml:"identifier" json:"identifier"`

	// Window is the duration of the rolling window.
	Window config.TimeDuration `mapstructure:"window" yaml:"window" json:"window"`

	// MaxCalls is the maximum number of calls within the window.
	MaxCalls int `mapstructure:"maxCalls" yaml:"maxCalls" json:"maxCalls"`

	// MinSpacing is the minimum time between two admitted calls. Zero disables the check.
	MinSpacing config.TimeDuration `mapstructure:"minSpacing" yaml:"minSpacing" json:"minSpacing"`

	// StoreKeyPrefix is prepended to all Redis keys of the limiter.
	StoreKeyPrefix string `mapstructure:"keyPrefix" yaml:"keyPrefix" json:"keyPrefix"`

	Lock LockConfig `mapstructure:"lock" yaml:"lock" json:"lock"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// LockConfig represents a set of configuration parameters for the window lock.
type LockConfig struct {
	// Lease is the lock TTL. A decision cycle is expected to complete well within it.
	Lease config.TimeDuration `mapstructure:"lease" yaml:"lease" json:"lease"`

	// RetryInterval is the delay between acquisition attempts (initial delay for exponential backoff).
	RetryInterval config.TimeDuration `mapstructure:"retryInterval" yaml:"retryInterval" json:"retryInterval"`

	// MaxRetryInterval caps the delay for exponential backoff.
	MaxRetryInterval config.TimeDuration `mapstructure:"maxRetryInterval" yaml:"maxRetryInterval" json:"maxRetryInterval"`

	// MaxAttempts is the total number of acquisition attempts including the first one.
	MaxAttempts int `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`

	Backoff BackoffType `mapstructure:"backoff" yaml:"backoff" json:"backoff"`
}

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with the given limits and default values for the rest.
func NewDefaultConfig(identifier string, window time.Duration, maxCalls int, options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.Identifier = identifier
	cfg.Window = config.TimeDuration(window)
	cfg.MaxCalls = maxCalls
	cfg.MinSpacing = config.TimeDuration(DefaultMinSpacing)
	cfg.Lock = LockConfig{
		Lease:            config.TimeDuration(DefaultLockLease),
		RetryInterval:    config.TimeDuration(DefaultLockRetryInterval),
		MaxRetryInterval: config.TimeDuration(DefaultLockMaxRetryInterval),
		MaxAttempts:      DefaultLockMaxAttempts,
		Backoff:          BackoffConstant,
	}
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for Limiter in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMinSpacing, DefaultMinSpacing)
	dp.SetDefault(cfgKeyLockLease, DefaultLockLease)
	dp.SetDefault(cfgKeyLockRetryInterval, DefaultLockRetryInterval)
	dp.SetDefault(cfgKeyLockMaxRetryInterval, DefaultLockMaxRetryInterval)
	dp.SetDefault(cfgKeyLockMaxAttempts, DefaultLockMaxAttempts)
	dp.SetDefault(cfgKeyLockBackoff, string(BackoffConstant))
}

// Set sets Limiter configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Identifier, err = dp.GetString(cfgKeyIdentifier); err != nil {
		return err
	}
	if c.Window, err = getTimeDuration(dp, cfgKeyWindow); err != nil {
		return err
	}
	if c.MaxCalls, err = dp.GetInt(cfgKeyMaxCalls); err != nil {
		return err
	}
	if c.MinSpacing, err = getTimeDuration(dp, cfgKeyMinSpacing); err != nil {
		return err
	}
	if c.StoreKeyPrefix, err = dp.GetString(cfgKeyStoreKeyPrefix); err != nil {
		return err
	}

	if c.Lock.Lease, err = getTimeDuration(dp, cfgKeyLockLease); err != nil {
		return err
	}
	if c.Lock.RetryInterval, err = getTimeDuration(dp, cfgKeyLockRetryInterval); err != nil {
		return err
	}
	if c.Lock.MaxRetryInterval, err = getTimeDuration(dp, cfgKeyLockMaxRetryInterval); err != nil {
		return err
	}
	if c.Lock.MaxAttempts, err = dp.GetInt(cfgKeyLockMaxAttempts); err != nil {
		return err
	}
	var backoffStr string
	if backoffStr, err = dp.GetStringFromSet(cfgKeyLockBackoff, availableBackoffTypes, true); err != nil {
		return err
	}
	c.Lock.Backoff = BackoffType(strings.ToLower(backoffStr))

	return c.validate(dp.WrapKeyErr)
}

// Validate checks that the configuration values are acceptable for New.
func (c *Config) Validate() error {
	return c.validate(func(key string, err error) error {
		return config.WrapKeyErr(c.KeyPrefix()+"."+key, err)
	})
}

func (c *Config) validate(wrapKeyErr func(key string, err error) error) error {
	if c.Identifier == "" {
		return wrapKeyErr(cfgKeyIdentifier, errors.New("cannot be empty"))
	}
	if c.Window <= 0 {
		return wrapKeyErr(cfgKeyWindow, errors.New("must be positive"))
	}
	if c.MaxCalls <= 0 {
		return wrapKeyErr(cfgKeyMaxCalls, errors.New("must be positive"))
	}
	if c.MinSpacing < 0 {
		return wrapKeyErr(cfgKeyMinSpacing, errors.New("cannot be negative"))
	}
	if c.Lock.Lease <= 0 {
		return wrapKeyErr(cfgKeyLockLease, errors.New("must be positive"))
	}
	if c.Lock.RetryInterval <= 0 {
		return wrapKeyErr(cfgKeyLockRetryInterval, errors.New("must be positive"))
	}
	if c.Lock.MaxAttempts <= 0 {
		return wrapKeyErr(cfgKeyLockMaxAttempts, errors.New("must be positive"))
	}
	switch c.Lock.Backoff {
	case BackoffConstant, "":
	case BackoffExponential:
		if c.Lock.MaxRetryInterval < c.Lock.RetryInterval {
			return wrapKeyErr(cfgKeyLockMaxRetryInterval,
				fmt.Errorf("should be >= %s (%s)", cfgKeyLockRetryInterval, time.Duration(c.Lock.RetryInterval)))
		}
	default:
		return wrapKeyErr(cfgKeyLockBackoff,
			fmt.Errorf("unknown value %q, should be one of %v", c.Lock.Backoff, availableBackoffTypes))
	}
	return nil
}

func (c *LockConfig) retryPolicy() retry.Policy {
	if c.Backoff == BackoffExponential {
		return retry.NewExponentialBackoffPolicy(
			time.Duration(c.RetryInterval), time.Duration(c.MaxRetryInterval), c.MaxAttempts)
	}
	return retry.NewConstantBackoffPolicy(time.Duration(c.RetryInterval), c.MaxAttempts)
}

func getTimeDuration(dp config.DataProvider, key string) (config.TimeDuration, error) {
	dur, err := dp.GetDuration(key)
	if err != nil {
		return 0, err
	}
	return config.TimeDuration(dur), nil
}
