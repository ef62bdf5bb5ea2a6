package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-rangegate/pkg/fusion"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func noEnv(string) (string, bool) { return "", false }

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, fusion.Range{MinCM: 50, MaxCM: 200}, cfg.Range())
	assert.Equal(t, 33*time.Millisecond, cfg.Fusion.TickInterval.D())
	assert.Equal(t, 2*time.Second, cfg.Pipeline().JoinTimeout)
	assert.Equal(t, 10*time.Millisecond, cfg.Ranger().ReadTimeout)
	assert.Equal(t, 115200, cfg.Ranger().Options.BaudRate)
	assert.Equal(t, 640, cfg.Camera.Width)
	assert.Equal(t, 480, cfg.Camera.Height)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Serial.Port, cfg.Serial.Port)
}

func TestLoad_OverlaysFile(t *testing.T) {
	path := writeFile(t, "rangegate.yaml", `
log:
  level: debug
serial:
  port: /dev/ttyAMA0
  validate_checksum: true
  read_timeout: 20ms
camera:
  device: /dev/video2
fusion:
  min_cm: 30
  max_cm: 120
  tick_interval: 50ms
detector:
  classes: [person, dog]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format, "unset keys keep defaults")
	assert.Equal(t, "/dev/ttyAMA0", cfg.Ranger().Path)
	assert.True(t, cfg.Ranger().ValidateChecks)
	assert.Equal(t, 20*time.Millisecond, cfg.Ranger().ReadTimeout)
	assert.Equal(t, "/dev/video2", cfg.Camera.Device)
	assert.Equal(t, 640, cfg.Camera.Width)
	assert.Equal(t, fusion.Range{MinCM: 30, MaxCM: 120}, cfg.Range())
	assert.Equal(t, 50*time.Millisecond, cfg.Fusion.TickInterval.D())
	assert.Equal(t, []string{"person", "dog"}, cfg.Detector.Classes)
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeFile(t, "bad.yaml", "fusion:\n  tick_interval: soon\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "serial: [\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"RANGEGATE_SERIAL_PORT":   "/dev/ttyS3",
		"RANGEGATE_BAUD_RATE":     "9600",
		"RANGEGATE_CAMERA_DEVICE": "1",
		"RANGEGATE_MODEL_PATH":    "/opt/models/best.onnx",
		"RANGEGATE_LISTEN":        "127.0.0.1:9000",
		"RANGEGATE_LOG_LEVEL":     "warn",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))

	assert.Equal(t, "/dev/ttyS3", cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, "1", cfg.Camera.Device)
	assert.Equal(t, "/opt/models/best.onnx", cfg.Detector.ModelPath)
	assert.Equal(t, "127.0.0.1:9000", cfg.Web.Listen)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestApplyEnv_BadBaud(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		if k == "RANGEGATE_BAUD_RATE" {
			return "fast", true
		}
		return "", false
	})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestApplyEnv_NothingSet(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(noEnv))
	assert.Equal(t, Default(), cfg)
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "RANGEGATE_TEST_DOTENV=from-file\n")
	t.Setenv("RANGEGATE_TEST_DOTENV", "")
	os.Unsetenv("RANGEGATE_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("RANGEGATE_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"reversed range", func(c *Config) { c.Fusion.MinCM, c.Fusion.MaxCM = 100, 50 }, "fusion.range"},
		{"negative min", func(c *Config) { c.Fusion.MinCM = -1 }, "fusion.min_cm"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"empty port", func(c *Config) { c.Serial.Port = "" }, "serial.port"},
		{"parity", func(c *Config) { c.Serial.Parity = "X" }, "parity"},
		{"camera width", func(c *Config) { c.Camera.Width = 10 }, "camera.width"},
		{"confidence", func(c *Config) { c.Detector.Confidence = 2 }, "detector.confidence"},
		{"input size", func(c *Config) { c.Detector.InputSize = 100 }, "detector.input_size"},
		{"tick", func(c *Config) { c.Fusion.TickInterval = 0 }, "fusion.tick_interval"},
		{"jpeg", func(c *Config) { c.Web.JPEGQuality = 0 }, "web.jpeg_quality"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidate_AggregatesProblems(t *testing.T) {
	cfg := Default()
	cfg.Serial.Port = ""
	cfg.Web.Listen = ""

	var p Problems
	require.True(t, errors.As(cfg.Validate(), &p))
	assert.Len(t, p, 2)
}
