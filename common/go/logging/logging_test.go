package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

func TestConfigFromYAML(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte("level: debug\n"), &cfg))
	require.Equal(t, zapcore.DebugLevel, cfg.Level)
	require.Equal(t, []string{"stderr"}, cfg.Output)
}

func TestInitWritesToConfiguredOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")

	cfg := Config{
		Level:  zapcore.WarnLevel,
		Output: []string{path},
	}
	log, level, err := Init(&cfg)
	require.NoError(t, err)
	require.Equal(t, zapcore.WarnLevel, level.Level())

	log.Info("filtered out")
	log.Warnw("kept", "table", "send_pkt")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "filtered out")
	require.Contains(t, string(data), "kept")
	require.Contains(t, string(data), "send_pkt")
}
