// Package config loads rangegate settings from a YAML file, a .env file and
// RANGEGATE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-rangegate/pkg/camera"
	"github.com/teslashibe/go-rangegate/pkg/fusion"
	"github.com/teslashibe/go-rangegate/pkg/pipeline"
	"github.com/teslashibe/go-rangegate/pkg/rangefinder"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "RANGEGATE_"

// ErrInvalid is matched by every error Validate returns.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the complete rangegate configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Serial   SerialConfig   `yaml:"serial"`
	Camera   camera.Config  `yaml:"camera"`
	Detector DetectorConfig `yaml:"detector"`
	Fusion   FusionConfig   `yaml:"fusion"`
	Web      WebConfig      `yaml:"web"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// SerialConfig describes the ranger's serial link.
type SerialConfig struct {
	Port             string   `yaml:"port"`
	BaudRate         int      `yaml:"baud_rate"`
	DataBits         int      `yaml:"data_bits"`
	StopBits         int      `yaml:"stop_bits"`
	Parity           string   `yaml:"parity"`
	ReadTimeout      Duration `yaml:"read_timeout"`
	PollInterval     Duration `yaml:"poll_interval"`
	ValidateChecksum bool     `yaml:"validate_checksum"`
}

// DetectorConfig describes the object detection model.
type DetectorConfig struct {
	ModelPath  string   `yaml:"model_path"`
	Confidence float32  `yaml:"confidence"`
	NMS        float32  `yaml:"nms"`
	InputSize  int      `yaml:"input_size"`
	Classes    []string `yaml:"classes"`
}

// FusionConfig holds the detection window and loop timing.
type FusionConfig struct {
	MinCM         int      `yaml:"min_cm"`
	MaxCM         int      `yaml:"max_cm"`
	TickInterval  Duration `yaml:"tick_interval"`
	FlashInterval Duration `yaml:"flash_interval"`
	JoinTimeout   Duration `yaml:"join_timeout"`
}

// WebConfig configures the dashboard.
type WebConfig struct {
	Listen      string `yaml:"listen"`
	JPEGQuality int    `yaml:"jpeg_quality"`
}

// Duration is a time.Duration written as a Go duration string ("33ms").
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	ser := rangefinder.DefaultConfig()
	pip := pipeline.DefaultConfig()
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Serial: SerialConfig{
			Port:         ser.Path,
			BaudRate:     ser.Options.BaudRate,
			DataBits:     ser.Options.DataBits,
			StopBits:     ser.Options.StopBits,
			Parity:       ser.Options.Parity,
			ReadTimeout:  Duration(ser.ReadTimeout),
			PollInterval: Duration(pip.PollInterval),
		},
		Camera: camera.DefaultConfig(),
		Detector: DetectorConfig{
			ModelPath:  "models/yolov8n.onnx",
			Confidence: 0.5,
			NMS:        0.45,
			InputSize:  640,
		},
		Fusion: FusionConfig{
			MinCM:         fusion.DefaultRange.MinCM,
			MaxCM:         fusion.DefaultRange.MaxCM,
			TickInterval:  Duration(fusion.DefaultTickInterval),
			FlashInterval: Duration(500 * time.Millisecond),
			JoinTimeout:   Duration(pip.JoinTimeout),
		},
		Web: WebConfig{
			Listen:      "127.0.0.1:8080",
			JPEGQuality: 80,
		},
	}
}

// Load reads the YAML file at path on top of the defaults. An empty path or
// a missing file yields the defaults. Environment overrides are applied
// afterwards; call Validate once command-line flags are applied too.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from RANGEGATE_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}

	str("SERIAL_PORT", &c.Serial.Port)
	str("CAMERA_DEVICE", &c.Camera.Device)
	str("MODEL_PATH", &c.Detector.ModelPath)
	str("LISTEN", &c.Web.Listen)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup(EnvPrefix + "BAUD_RATE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sBAUD_RATE must be a number", ErrInvalid, EnvPrefix)
		}
		c.Serial.BaudRate = n
	}
	return nil
}

// Problems lists every validation failure found in a Config.
type Problems []string

func (p Problems) Error() string {
	return "config: " + strings.Join(p, "; ")
}

// Is reports whether target is ErrInvalid.
func (p Problems) Is(target error) bool {
	return target == ErrInvalid
}

// Validate checks every section and returns all problems at once.
func (c *Config) Validate() error {
	var p Problems

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		p = append(p, fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}

	if c.Serial.Port == "" {
		p = append(p, "serial.port must not be empty")
	}
	if _, err := c.PortOptions().Normalize(); err != nil {
		p = append(p, "serial: "+err.Error())
	}
	if c.Serial.ReadTimeout < 0 {
		p = append(p, "serial.read_timeout must not be negative")
	}
	if c.Serial.PollInterval < 0 {
		p = append(p, "serial.poll_interval must not be negative")
	}

	for _, e := range c.Camera.Validate() {
		p = append(p, "camera."+e)
	}

	if c.Detector.ModelPath == "" {
		p = append(p, "detector.model_path must not be empty")
	}
	if c.Detector.Confidence <= 0 || c.Detector.Confidence > 1 {
		p = append(p, "detector.confidence must be in (0, 1]")
	}
	if c.Detector.NMS <= 0 || c.Detector.NMS > 1 {
		p = append(p, "detector.nms must be in (0, 1]")
	}
	if c.Detector.InputSize < 32 || c.Detector.InputSize%32 != 0 {
		p = append(p, "detector.input_size must be a positive multiple of 32")
	}

	if err := c.Range().Validate(); err != nil {
		var ve *fusion.ValidationError
		if errors.As(err, &ve) {
			p = append(p, fmt.Sprintf("fusion.%s %s", ve.Field, ve.Reason))
		} else {
			p = append(p, err.Error())
		}
	}
	if c.Fusion.TickInterval <= 0 {
		p = append(p, "fusion.tick_interval must be positive")
	}
	if c.Fusion.FlashInterval <= 0 {
		p = append(p, "fusion.flash_interval must be positive")
	}
	if c.Fusion.JoinTimeout <= 0 {
		p = append(p, "fusion.join_timeout must be positive")
	}

	if c.Web.Listen == "" {
		p = append(p, "web.listen must not be empty")
	}
	if c.Web.JPEGQuality < 1 || c.Web.JPEGQuality > 100 {
		p = append(p, "web.jpeg_quality must be between 1 and 100")
	}

	if len(p) > 0 {
		return p
	}
	return nil
}

// PortOptions returns the serial line settings.
func (c *Config) PortOptions() rangefinder.PortOptions {
	return rangefinder.PortOptions{
		BaudRate: c.Serial.BaudRate,
		DataBits: c.Serial.DataBits,
		StopBits: c.Serial.StopBits,
		Parity:   c.Serial.Parity,
	}
}

// Ranger returns the rangefinder driver settings.
func (c *Config) Ranger() rangefinder.Config {
	return rangefinder.Config{
		Path:           c.Serial.Port,
		Options:        c.PortOptions(),
		ReadTimeout:    c.Serial.ReadTimeout.D(),
		ValidateChecks: c.Serial.ValidateChecksum,
	}
}

// Range returns the initial detection window.
func (c *Config) Range() fusion.Range {
	return fusion.Range{MinCM: c.Fusion.MinCM, MaxCM: c.Fusion.MaxCM}
}

// Pipeline returns the loop timing.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		PollInterval: c.Serial.PollInterval.D(),
		JoinTimeout:  c.Fusion.JoinTimeout.D(),
	}
}
