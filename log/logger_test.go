/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewLogger_FileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "limiter.log")
	cfg := NewDefaultConfig()
	cfg.Level = LevelInfo
	cfg.Output = OutputFile
	cfg.File.Path = logPath

	logger, closeFn := NewLogger(cfg)
	logger.Debug("filtered out")
	logger.Info("admission denied", String("caller_id", "user-1"), Int("code", 1))
	logger.With(String("window_key", "k")).Error("lock release failed", Error(errors.New("boom")))
	logger.Warnf("lock exhausted after %d attempts", 100)
	closeFn()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "admission denied", first["msg"])
	require.Equal(t, "user-1", first["caller_id"])
	require.EqualValues(t, 1, first["code"])
	require.EqualValues(t, os.Getpid(), first["pid"])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.Equal(t, "k", second["window_key"])
	require.Equal(t, "boom", second["error"])

	require.Contains(t, lines[2], "lock exhausted after 100 attempts")
}

func TestLogfAdapter_WithLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "limiter.log")
	cfg := NewDefaultConfig()
	cfg.Level = LevelDebug
	cfg.Output = OutputFile
	cfg.File.Path = logPath

	logger, closeFn := NewLogger(cfg)
	logger = logger.WithLevel(LevelWarn)
	logger.Info("skipped")
	logger.Warn("kept")
	closeFn()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.NotContains(t, string(data), "skipped")
	require.Contains(t, string(data), "kept")
}

func TestDurationIn(t *testing.T) {
	f := DurationIn(1500*time.Millisecond, time.Millisecond)
	require.Equal(t, Int64("duration", 1500), f)
}

func TestDisabledLogger(t *testing.T) {
	logger := NewDisabledLogger()
	logger.Error("nothing happens")
	logger.With(String("k", "v")).Infof("still %s", "nothing")
}
