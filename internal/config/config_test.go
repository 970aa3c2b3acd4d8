package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "bluebear.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_EmptyPathIsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	p := writeFile(t, `
tick_rate_hz: 5
max_ticks: 100
log_level: DEBUG
display:
  fps: 30
index:
  enabled: true
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.TickRateHz)
	assert.Equal(t, 60, cfg.FrameRateHz)
	assert.EqualValues(t, 100, cfg.MaxTicks)
	assert.Equal(t, 1280, cfg.Display.ViewportX)
	assert.Equal(t, 30, cfg.FrameRate())
	assert.Equal(t, logrus.DebugLevel, cfg.Level())
	assert.Equal(t, filepath.Join("data", "index", "lots.sqlite"), cfg.Index.Path)
	assert.Equal(t, filepath.Join("data", "snapshots"), cfg.SnapshotDir())
}

func TestFrameRate_VSync(t *testing.T) {
	cfg := Defaults()
	cfg.Display.FPS = 15
	assert.Equal(t, 15, cfg.FrameRate())
	cfg.Display.VSync = true
	assert.Equal(t, cfg.FrameRateHz, cfg.FrameRate())
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"tick rate": "tick_rate_hz: 0\n",
		"viewport":  "display:\n  viewport_x: -1\n",
		"log level": "log_level: chatty\n",
		"data dir":  "data_dir: \"\"\ncommand_log:\n  enabled: true\n",
		"yaml":      "tick_rate_hz: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
