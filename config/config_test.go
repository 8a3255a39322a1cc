package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mbocsi/radiofleet/fleet"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "udp", cfg.Radio.Kind)
	require.Equal(t, 32, cfg.Radio.MaxDatagram)
	require.False(t, cfg.Device.Display)
	require.Equal(t, fleet.DefaultTiming(), cfg.Timing.ToFleet())
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	path := writeConfig(t, `
device:
  display: true
radio:
  kind: memory
timing:
  message_latency: 250ms
  poll_rounds: 2
storage:
  driver: memory
http:
  addr: ":8080"
log:
  level: debug
  format: text
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.True(t, cfg.Device.Display)
	require.Equal(t, "memory", cfg.Radio.Kind)
	require.Equal(t, ":8080", cfg.HTTP.Addr)
	require.Equal(t, "text", cfg.Log.Format)

	timing := cfg.Timing.ToFleet()
	require.Equal(t, 250*time.Millisecond, timing.MessageLatency)
	require.Equal(t, 2, timing.PollRounds)
	// untouched keys keep their defaults
	require.Equal(t, fleet.DefaultTiming().PollWindow, timing.PollWindow)
	require.Equal(t, 47474, cfg.Radio.Port)
}

func TestLoadUsesEnvConfigFile(t *testing.T) {
	path := writeConfig(t, "radio:\n  kind: lora\n")
	t.Setenv(EnvConfigFile, path)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "lora", cfg.Radio.Kind)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	path := writeConfig(t, "radio:\n  kind: udp\nhttp:\n  addr: \":1\"\n")
	t.Setenv("RADIOFLEET_DISPLAY", "true")
	t.Setenv("RADIOFLEET_TRANSPORT", "memory")
	t.Setenv("RADIOFLEET_LOG_LEVEL", "warn")
	t.Setenv("RADIOFLEET_HTTP_ADDR", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.Device.Display)
	require.Equal(t, "memory", cfg.Radio.Kind)
	require.Equal(t, "warn", cfg.Log.Level)
	require.Equal(t, ":9090", cfg.HTTP.Addr)
}

func TestBadDisplayEnv(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv("RADIOFLEET_DISPLAY", "sometimes")
	_, err := Load("")
	require.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"radio kind":     func(c *Config) { c.Radio.Kind = "carrier-pigeon" },
		"udp group":      func(c *Config) { c.Radio.Group = 300 },
		"udp port":       func(c *Config) { c.Radio.Port = 0 },
		"max datagram":   func(c *Config) { c.Radio.MaxDatagram = 0 },
		"duty cycle":     func(c *Config) { c.Radio.DutyCyclePerSec = -1 },
		"lora power":     func(c *Config) { c.Radio.Kind = "lora"; c.Radio.TxPowerDBm = 30 },
		"lora band":      func(c *Config) { c.Radio.Kind = "lora"; c.Radio.Band = "as923" },
		"poll rounds":    func(c *Config) { c.Timing.PollRounds = 0 },
		"negative delay": func(c *Config) { c.Timing.ReplyDelay = -time.Second },
		"zero latency":   func(c *Config) { c.Timing.MessageLatency = 0 },
		"zero window":    func(c *Config) { c.Timing.PollWindow = 0 },
		"zero refresh":   func(c *Config) { c.Timing.RefreshInterval = 0 },
		"storage driver": func(c *Config) { c.Storage.Driver = "postgres" },
		"sqlite path":    func(c *Config) { c.Storage.Path = "" },
		"log level":      func(c *Config) { c.Log.Level = "chatty" },
		"log format":     func(c *Config) { c.Log.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestZeroLatencyFileRejected(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	path := writeConfig(t, "timing:\n  message_latency: 0s\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "message_latency")
}

func TestRadioBandPreset(t *testing.T) {
	r := Default().Radio
	sx, err := r.SX1276()
	require.NoError(t, err)
	require.Equal(t, uint32(868000000), sx.Frequency)

	r.Band = "us915"
	sx, err = r.SX1276()
	require.NoError(t, err)
	require.Equal(t, uint32(915000000), sx.Frequency)
	require.Equal(t, uint8(14), sx.Power)

	r.FrequencyHz = 903900000
	sx, err = r.SX1276()
	require.NoError(t, err)
	require.Equal(t, uint32(903900000), sx.Frequency)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	require.Equal(t, slog.LevelInfo, lvl)
}
