// Package config loads node settings from defaults, a YAML file and the
// environment, in that order.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mbocsi/radiofleet/fleet"
	"github.com/mbocsi/radiofleet/radio"
)

// EnvConfigFile names a YAML file to load when no --config flag is given.
const EnvConfigFile = "RADIOFLEET_CONFIG"

type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Radio   RadioConfig   `yaml:"radio"`
	Timing  TimingConfig  `yaml:"timing"`
	Storage StorageConfig `yaml:"storage"`
	HTTP    HTTPConfig    `yaml:"http"`
	MCP     MCPConfig     `yaml:"mcp"`
	Log     LogConfig     `yaml:"log"`
}

type DeviceConfig struct {
	// Display marks a device that can become commander.
	Display bool `yaml:"display"`
}

type RadioConfig struct {
	Kind        string `yaml:"kind"` // memory, udp or lora
	Group       int    `yaml:"group"`
	Port        int    `yaml:"port"`
	Interface   string `yaml:"interface"`
	MaxDatagram int    `yaml:"max_datagram"`

	DutyCyclePerSec float64 `yaml:"duty_cycle_per_sec"`
	DutyCycleBurst  int     `yaml:"duty_cycle_burst"`

	// Band picks the ISM preset (eu868 or us915); a non-zero FrequencyHz
	// overrides its centre frequency.
	Band        string `yaml:"band"`
	FrequencyHz uint32 `yaml:"frequency_hz"`
	TxPowerDBm  uint8  `yaml:"tx_power_dbm"`
}

// TimingConfig mirrors fleet.Timing with YAML durations ("100ms").
type TimingConfig struct {
	MessageLatency     time.Duration `yaml:"message_latency"`
	BootstrapAttempts  int           `yaml:"bootstrap_attempts"`
	PollRounds         int           `yaml:"poll_rounds"`
	PollWindow         time.Duration `yaml:"poll_window"`
	ReplyDelay         time.Duration `yaml:"reply_delay"`
	MessagePause       time.Duration `yaml:"message_pause"`
	RefreshInterval    time.Duration `yaml:"refresh_interval"`
	EventPollingPeriod time.Duration `yaml:"event_polling_period"`
	InboxSize          int           `yaml:"inbox_size"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite or memory
	Path   string `yaml:"path"`
}

type HTTPConfig struct {
	// Addr is empty when the web surface is off.
	Addr string `yaml:"addr"`
}

type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json or text
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load builds the configuration. path may be empty, in which case
// RADIOFLEET_CONFIG is consulted; with neither, defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func Default() *Config {
	t := fleet.DefaultTiming()
	return &Config{
		Radio: RadioConfig{
			Kind:            "udp",
			Group:           1,
			Port:            47474,
			MaxDatagram:     radio.DefaultMaxDatagram,
			DutyCyclePerSec: 10,
			DutyCycleBurst:  5,
			Band:            "eu868",
			TxPowerDBm:      14,
		},
		Timing: TimingConfig{
			MessageLatency:     t.MessageLatency,
			BootstrapAttempts:  t.BootstrapAttempts,
			PollRounds:         t.PollRounds,
			PollWindow:         t.PollWindow,
			ReplyDelay:         t.ReplyDelay,
			MessagePause:       t.MessagePause,
			RefreshInterval:    t.RefreshInterval,
			EventPollingPeriod: t.EventPollingPeriod,
			InboxSize:          t.InboxSize,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "radiofleet.db",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("RADIOFLEET_DISPLAY"); v != "" {
		display, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RADIOFLEET_DISPLAY: %w", err)
		}
		cfg.Device.Display = display
	}
	if v := os.Getenv("RADIOFLEET_TRANSPORT"); v != "" {
		cfg.Radio.Kind = v
	}
	if v := os.Getenv("RADIOFLEET_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("RADIOFLEET_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Radio.Kind {
	case "memory", "udp", "lora":
	default:
		return fmt.Errorf("unknown radio kind %q (want memory, udp or lora)", c.Radio.Kind)
	}
	if c.Radio.Kind == "udp" {
		if c.Radio.Group < 0 || c.Radio.Group > 255 {
			return fmt.Errorf("radio group %d out of range 0-255", c.Radio.Group)
		}
		if c.Radio.Port <= 0 || c.Radio.Port > 65535 {
			return fmt.Errorf("invalid radio port %d", c.Radio.Port)
		}
	}
	if c.Radio.MaxDatagram <= 0 {
		return fmt.Errorf("max_datagram must be positive")
	}
	if c.Radio.DutyCyclePerSec < 0 || c.Radio.DutyCycleBurst < 0 {
		return fmt.Errorf("duty cycle settings must not be negative")
	}
	if c.Radio.Kind == "lora" {
		sx, err := c.Radio.SX1276()
		if err != nil {
			return err
		}
		if err := sx.Validate(); err != nil {
			return err
		}
	}

	t := c.Timing
	if t.BootstrapAttempts < 1 || t.PollRounds < 1 {
		return fmt.Errorf("bootstrap_attempts and poll_rounds must be at least 1")
	}
	// these pace retry and poll loops; zero would spin
	for name, d := range map[string]time.Duration{
		"message_latency":  t.MessageLatency,
		"poll_window":      t.PollWindow,
		"refresh_interval": t.RefreshInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	for name, d := range map[string]time.Duration{
		"reply_delay":          t.ReplyDelay,
		"message_pause":        t.MessagePause,
		"event_polling_period": t.EventPollingPeriod,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	switch c.Storage.Driver {
	case "memory", "":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for sqlite")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// SX1276 resolves the chip settings for a lora radio from the band preset
// and the explicit overrides.
func (r RadioConfig) SX1276() (radio.SX1276Config, error) {
	sx, err := radio.BandConfig(r.Band)
	if err != nil {
		return sx, err
	}
	if r.FrequencyHz != 0 {
		sx.Frequency = r.FrequencyHz
	}
	sx.Power = r.TxPowerDBm
	return sx, nil
}

// ToFleet converts the YAML form to protocol timing.
func (t TimingConfig) ToFleet() fleet.Timing {
	return fleet.Timing{
		MessageLatency:     t.MessageLatency,
		BootstrapAttempts:  t.BootstrapAttempts,
		PollRounds:         t.PollRounds,
		PollWindow:         t.PollWindow,
		ReplyDelay:         t.ReplyDelay,
		MessagePause:       t.MessagePause,
		RefreshInterval:    t.RefreshInterval,
		EventPollingPeriod: t.EventPollingPeriod,
		InboxSize:          t.InboxSize,
	}
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
