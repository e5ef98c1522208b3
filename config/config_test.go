/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type testRedisConfig struct {
	Addr        string
	DialTimeout time.Duration
	MaxBuf      ByteSize
}

func (c *testRedisConfig) KeyPrefix() string {
	return "redis"
}

func (c *testRedisConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("addr", "localhost:6379")
	dp.SetDefault("dialTimeout", "5s")
}

func (c *testRedisConfig) Set(dp DataProvider) error {
	var err error
	if c.Addr, err = dp.GetString("addr"); err != nil {
		return err
	}
	if c.DialTimeout, err = dp.GetDuration("dialTimeout"); err != nil {
		return err
	}
	if c.MaxBuf, err = dp.GetByteSize("maxBuf"); err != nil {
		return err
	}
	return nil
}

type testModeConfig struct {
	Mode string
}

func (c *testModeConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("mode", "strict")
}

func (c *testModeConfig) Set(dp DataProvider) error {
	var err error
	c.Mode, err = dp.GetStringFromSet("mode", []string{"strict", "lenient"}, true)
	return err
}

func TestLoader_LoadFromReader(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		redisCfg, modeCfg := &testRedisConfig{}, &testModeConfig{}
		err := NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(`{}`), DataTypeJSON, redisCfg, modeCfg)
		require.NoError(t, err)
		require.Equal(t, "localhost:6379", redisCfg.Addr)
		require.Equal(t, 5*time.Second, redisCfg.DialTimeout)
		require.Equal(t, ByteSize(0), redisCfg.MaxBuf)
		require.Equal(t, "strict", modeCfg.Mode)
	})

	t.Run("values with key prefix", func(t *testing.T) {
		cfgData := `
mode: LENIENT
redis:
  addr: redis:6380
  dialTimeout: 250ms
  maxBuf: 1Mi
`
		redisCfg, modeCfg := &testRedisConfig{}, &testModeConfig{}
		err := NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(cfgData), DataTypeYAML, redisCfg, modeCfg)
		require.NoError(t, err)
		require.Equal(t, "redis:6380", redisCfg.Addr)
		require.Equal(t, 250*time.Millisecond, redisCfg.DialTimeout)
		require.Equal(t, ByteSize(1024*1024), redisCfg.MaxBuf)
		require.Equal(t, "LENIENT", modeCfg.Mode)
	})

	t.Run("unknown value in set", func(t *testing.T) {
		err := NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(`mode: chaotic`), DataTypeYAML, &testModeConfig{})
		require.EqualError(t, err, `mode: unknown value "chaotic", should be one of [strict lenient]`)
	})

	t.Run("invalid duration", func(t *testing.T) {
		err := NewLoader(NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(`{"redis":{"dialTimeout":"soon"}}`), DataTypeJSON, &testRedisConfig{})
		require.Error(t, err)
		require.Contains(t, err.Error(), "redis.dialTimeout: ")
	})
}

func TestLoader_LoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redis:\n  addr: file-redis:6379\n"), 0o600))

	redisCfg := &testRedisConfig{}
	require.NoError(t, NewLoader(NewViperAdapter()).LoadFromFile(path, DataTypeYAML, redisCfg))
	require.Equal(t, "file-redis:6379", redisCfg.Addr)
}

func TestLoader_EnvVars(t *testing.T) {
	t.Setenv("RLTEST_REDIS_ADDR", "env-redis:6379")
	t.Setenv("RLTEST_MODE", "lenient")

	redisCfg, modeCfg := &testRedisConfig{}, &testModeConfig{}
	require.NoError(t, NewDefaultLoader("rltest").Load(redisCfg, modeCfg))
	require.Equal(t, "env-redis:6379", redisCfg.Addr)
	require.Equal(t, "lenient", modeCfg.Mode)
}

func TestTimeDuration(t *testing.T) {
	type holder struct {
		Timeout TimeDuration `json:"timeout" yaml:"timeout"`
	}

	var h holder
	require.NoError(t, json.Unmarshal([]byte(`{"timeout":"1m30s"}`), &h))
	require.Equal(t, TimeDuration(90*time.Second), h.Timeout)

	require.NoError(t, json.Unmarshal([]byte(`{"timeout":1000}`), &h))
	require.Equal(t, TimeDuration(1000), h.Timeout)

	require.NoError(t, yaml.Unmarshal([]byte(`timeout: 200ms`), &h))
	require.Equal(t, TimeDuration(200*time.Millisecond), h.Timeout)

	require.Error(t, json.Unmarshal([]byte(`{"timeout":-5}`), &h))
	require.Error(t, yaml.Unmarshal([]byte(`timeout: later`), &h))

	out, err := json.Marshal(holder{Timeout: TimeDuration(2 * time.Second)})
	require.NoError(t, err)
	require.JSONEq(t, `{"timeout":"2s"}`, string(out))
}

func TestByteSize(t *testing.T) {
	var bs ByteSize
	require.NoError(t, bs.UnmarshalJSON([]byte(`"250M"`)))
	require.Equal(t, ByteSize(250*1024*1024), bs)

	require.NoError(t, yaml.Unmarshal([]byte(`2Gi`), &bs))
	require.Equal(t, ByteSize(2*1024*1024*1024), bs)

	require.NoError(t, bs.UnmarshalText([]byte(`42`)))
	require.Equal(t, ByteSize(42), bs)

	require.Error(t, bs.UnmarshalJSON([]byte(`"lots"`)))
	require.Equal(t, "1M", ByteSize(1024*1024).String())
}
