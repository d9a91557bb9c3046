package wklog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLogger(t *testing.T) {
	opts := NewOptions()
	opts.Level = zap.DebugLevel
	opts.LineNum = true
	Configure(opts)

	Info("this is info")
	Debug("this is debug")
	Error("this is error", zap.String("key", "value"))
}

func TestLoggerWritesFiles(t *testing.T) {
	dir := t.TempDir()
	opts := NewOptions()
	opts.Replica = "r1@n1"
	opts.LogDir = dir
	opts.NoStdout = true
	Configure(opts)
	defer Configure(NewOptions())

	log := NewWKLog("node")
	log.Info("replica started", zap.Uint64("view", 3))
	log.Debug("not written at info level")
	log.Warn("slow peer")
	_ = Sync()

	data, err := os.ReadFile(filepath.Join(dir, "info.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "【node】replica started")
	assert.Contains(t, string(data), `"replica":"r1@n1"`)
	assert.NotContains(t, string(data), "not written")

	data, err = os.ReadFile(filepath.Join(dir, "warn.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "slow peer")
}
