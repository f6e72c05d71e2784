package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a configuration file.
const MaxConfigFileBytes = 1 << 20

// Camera types understood by the capture service.
const (
	CameraV4L2 = "v4l2"
	CameraMock = "mock"
)

// ServerConfig holds the HTTP side.
type ServerConfig struct {
	Port          int    `yaml:"port"`
	OutputPath    string `yaml:"output_path"`     // high quality captures are written here
	ReadTimeoutMs int    `yaml:"read_timeout_ms"` // request header read timeout
}

// CameraConfig describes the sensor.
// Type selects a concrete implementation ("v4l2" or "mock").
type CameraConfig struct {
	Type          string `yaml:"type"`
	Device        string `yaml:"device"`          // V4L2 node, e.g. /dev/video0
	ReadTimeoutMs int    `yaml:"read_timeout_ms"` // max wait for one frame
	IndicatorPin  int    `yaml:"indicator_pin"`   // BCM pin of the "camera busy" LED. 0 = none.
}

// ProfileConfig is one capture mode. Zero fields take the mode's default.
type ProfileConfig struct {
	Width    int `yaml:"width"`
	Height   int `yaml:"height"`
	WarmupMs int `yaml:"warmup_ms"`
	Quality  int `yaml:"quality"` // JPEG quality 0-100, 0 = mode default
}

// CaptureConfig holds both capture modes and the camera lock policy.
type CaptureConfig struct {
	HighQuality   ProfileConfig `yaml:"high_quality"`
	QuickPreview  ProfileConfig `yaml:"quick_preview"`
	GateTimeoutMs int           `yaml:"gate_timeout_ms"` // 0 = wait until the client gives up
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Camera   CameraConfig   `yaml:"camera"`
	Capture  CaptureConfig  `yaml:"capture"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// Default returns the configuration used when a file leaves everything unset.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// ValidateConfigPath accepts only .yaml files directly inside a "configs" directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if slices.Contains(strings.Split(filepath.ToSlash(path), "/"), "..") {
		return fmt.Errorf("config path %q must not contain '..'", path)
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file %q must be in a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file, fills in defaults and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file larger than %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.OutputPath == "" {
		c.Server.OutputPath = "/tmp/preview.jpg"
	}
	if c.Server.ReadTimeoutMs <= 0 {
		c.Server.ReadTimeoutMs = 10000
	}

	if c.Camera.Type == "" {
		c.Camera.Type = CameraV4L2
	}
	if c.Camera.Device == "" {
		c.Camera.Device = "/dev/video0"
	}
	if c.Camera.ReadTimeoutMs <= 0 {
		c.Camera.ReadTimeoutMs = 5000
	}

	fillProfile(&c.Capture.HighQuality, ProfileConfig{Width: 2480, Height: 3508, WarmupMs: 1000, Quality: 85})
	fillProfile(&c.Capture.QuickPreview, ProfileConfig{Width: 620, Height: 877, WarmupMs: 100, Quality: 60})
}

func fillProfile(p *ProfileConfig, def ProfileConfig) {
	if p.Width == 0 {
		p.Width = def.Width
	}
	if p.Height == 0 {
		p.Height = def.Height
	}
	if p.WarmupMs == 0 {
		p.WarmupMs = def.WarmupMs
	}
	if p.Quality == 0 {
		p.Quality = def.Quality
	}
}

// Validate checks a configuration that already has its defaults applied.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Camera.Type {
	case CameraV4L2, CameraMock:
	default:
		return fmt.Errorf("unknown camera.type %q (want %q or %q)", c.Camera.Type, CameraV4L2, CameraMock)
	}
	if c.Camera.IndicatorPin < 0 {
		return fmt.Errorf("camera.indicator_pin must be >= 0, got %d", c.Camera.IndicatorPin)
	}
	if err := c.Capture.HighQuality.validate("capture.high_quality"); err != nil {
		return err
	}
	if err := c.Capture.QuickPreview.validate("capture.quick_preview"); err != nil {
		return err
	}
	if c.Capture.HighQuality.WarmupMs <= c.Capture.QuickPreview.WarmupMs {
		return fmt.Errorf("capture.high_quality.warmup_ms (%d) must be greater than capture.quick_preview.warmup_ms (%d)",
			c.Capture.HighQuality.WarmupMs, c.Capture.QuickPreview.WarmupMs)
	}
	if c.Capture.GateTimeoutMs < 0 {
		return fmt.Errorf("capture.gate_timeout_ms must be >= 0, got %d", c.Capture.GateTimeoutMs)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

func (p ProfileConfig) validate(name string) error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("%s size must be positive, got %dx%d", name, p.Width, p.Height)
	}
	if p.Quality < 0 || p.Quality > 100 {
		return fmt.Errorf("%s.quality must be between 0 and 100, got %d", name, p.Quality)
	}
	if p.WarmupMs < 0 {
		return fmt.Errorf("%s.warmup_ms must be >= 0, got %d", name, p.WarmupMs)
	}
	return nil
}

// Warmup returns the sensor settle time of the profile.
func (p ProfileConfig) Warmup() time.Duration {
	return time.Duration(p.WarmupMs) * time.Millisecond
}

// Addr returns the listen address for a port, ":5000" style.
func Addr(port int) string {
	return fmt.Sprintf(":%d", port)
}

// ReadTimeout returns the HTTP request header timeout.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Server.ReadTimeoutMs) * time.Millisecond
}

// FrameTimeout returns how long the camera may take to deliver one frame.
func (c *Config) FrameTimeout() time.Duration {
	return time.Duration(c.Camera.ReadTimeoutMs) * time.Millisecond
}

// GateTimeout returns the maximum wait for the camera. 0 means no limit.
func (c *Config) GateTimeout() time.Duration {
	return time.Duration(c.Capture.GateTimeoutMs) * time.Millisecond
}
