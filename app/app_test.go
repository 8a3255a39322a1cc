package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mbocsi/radiofleet/config"
	"github.com/mbocsi/radiofleet/fleet"
	"github.com/mbocsi/radiofleet/radio"
	"github.com/mbocsi/radiofleet/services"
	"github.com/mbocsi/radiofleet/store"
)

func testConfig(display bool) *config.Config {
	cfg := config.Default()
	cfg.Device.Display = display
	cfg.Radio.Kind = "memory"
	cfg.Radio.DutyCyclePerSec = 0
	cfg.Storage.Driver = "memory"
	cfg.Timing.MessageLatency = 10 * time.Millisecond
	cfg.Timing.PollWindow = 20 * time.Millisecond
	cfg.Timing.ReplyDelay = time.Millisecond
	cfg.Timing.MessagePause = time.Millisecond
	cfg.Timing.EventPollingPeriod = 5 * time.Millisecond
	return cfg
}

func startApp(t *testing.T, ctx context.Context, opts Options) (*App, <-chan error) {
	t.Helper()
	a, err := New(ctx, opts)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(func() { a.Close() })
	return a, done
}

func TestCommanderAndTargetOnSharedChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := radio.NewChannel(radio.DefaultMaxDatagram)

	ready := make(chan struct{})
	commander, cmdDone := startApp(t, ctx, Options{
		Config: testConfig(true),
		Name:   "commander",
		Medium: Medium{Channel: ch},
		OnReady: func(ctx context.Context, a *App) error {
			close(ready)
			return nil
		},
	})
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("commander never settled")
	}
	require.Equal(t, fleet.RoleCommander, commander.Node.Role())

	target, _ := startApp(t, ctx, Options{
		Config: testConfig(false),
		Name:   "target",
		Medium: Medium{Channel: ch},
	})
	require.Eventually(t, func() bool { return target.Node.ID() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, fleet.RoleTarget, target.Node.Role())

	ids, err := commander.Services.Target.RefreshTargets(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{1}, ids)

	err = commander.Services.Job.RequestJob(ctx, services.JobRequest{
		Sensors: []services.SensorJob{
			{Sensor: "Temp.", Mode: "periodic", Measurements: 2, PeriodMs: 10},
		},
		StreamBack: true,
	})
	require.NoError(t, err)

	// the target keeps its own copy and the commander persists the relay
	require.Eventually(t, func() bool {
		n, _ := target.Log.RowCount(ctx)
		return n == 2
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		n, _ := commander.Log.RowCount(ctx)
		return n == 2
	}, 2*time.Second, 5*time.Millisecond)

	local, err := target.Log.Query(ctx, store.Filter{})
	require.NoError(t, err)
	require.Equal(t, store.LocalSession, local[0].Session)
	require.Equal(t, 1, local[0].DeviceID)

	relayed, err := commander.Log.Query(ctx, store.Filter{})
	require.NoError(t, err)
	require.Equal(t, "Temp.", relayed[0].Sensor)
	require.Equal(t, commander.Node.Status().Session, relayed[0].Session)

	cancel()
	select {
	case err := <-cmdDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("commander did not stop")
	}
}

func TestNewTransportKinds(t *testing.T) {
	cfg := config.Default().Radio

	cfg.Kind = "lora"
	_, err := NewTransport(cfg, "lora", Medium{})
	require.True(t, errors.Is(err, ErrNoHardware))

	tr, err := NewTransport(cfg, "lora", Medium{Hardware: radio.NewEther().Attach()})
	require.NoError(t, err)
	meta := tr.Meta()
	require.Equal(t, "lora", meta.Protocol)
	require.Contains(t, meta.Description, "duty-cycled")

	cfg.Band = "us915"
	tr, err = NewTransport(cfg, "lora", Medium{Hardware: radio.NewEther().Attach()})
	require.NoError(t, err)
	require.Equal(t, "915.0MHz", tr.Meta().Address)

	cfg.Band = "as923"
	_, err = NewTransport(cfg, "lora", Medium{Hardware: radio.NewEther().Attach()})
	require.Error(t, err)
	cfg.Band = ""

	cfg.Kind = "memory"
	cfg.DutyCyclePerSec = 0
	tr, err = NewTransport(cfg, "mem", Medium{})
	require.NoError(t, err)
	require.IsType(t, &radio.MemoryTransport{}, tr)

	cfg.Kind = "udp"
	cfg.Port = 0
	_, err = NewTransport(cfg, "udp", Medium{})
	require.Error(t, err)

	cfg.Kind = "smoke-signal"
	_, err = NewTransport(cfg, "x", Medium{})
	require.Error(t, err)
}

func TestNewFailsOnBadStorage(t *testing.T) {
	cfg := testConfig(false)
	cfg.Storage.Driver = "postgres"
	_, err := New(context.Background(), Options{Config: cfg})
	require.Error(t, err)
}

func TestSetupLoggerWritesFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	path := filepath.Join(t.TempDir(), "fleet.log")
	closer, err := SetupLogger(config.LogConfig{
		Level:      "debug",
		Format:     "json",
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
	}, true)
	require.NoError(t, err)
	t.Cleanup(func() { closer.Close() })

	slog.Info("hello from the logger test")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "hello from the logger test")

	_, err = SetupLogger(config.LogConfig{Level: "loud"}, false)
	require.Error(t, err)
}

func TestTargetsJoinOverLoRaEther(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ether := radio.NewEther()

	loraConfig := func(display bool) *config.Config {
		cfg := testConfig(display)
		cfg.Radio.Kind = "lora"
		return cfg
	}

	commander, _ := startApp(t, ctx, Options{
		Config: loraConfig(true),
		Name:   "commander",
		Medium: Medium{Hardware: ether.Attach(), Address: []byte{1}},
	})
	require.Eventually(t, func() bool { return commander.Node.Role() == fleet.RoleCommander }, 2*time.Second, 5*time.Millisecond)

	// BecomeTarget is a broadcast, so targets join one at a time or they
	// would latch the same id.
	prev := 0
	for i := 2; i <= 4; i++ {
		target, _ := startApp(t, ctx, Options{
			Config: loraConfig(false),
			Name:   "target",
			Medium: Medium{Hardware: ether.Attach(), Address: []byte{byte(i)}},
		})
		require.Eventually(t, func() bool { return target.Node.ID() > 0 }, 2*time.Second, 5*time.Millisecond)
		require.Greater(t, target.Node.ID(), prev)
		prev = target.Node.ID()
	}
	require.GreaterOrEqual(t, commander.Node.Status().Connected, 3)
}
