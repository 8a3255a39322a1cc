// fleetsim runs a whole fleet in one process: a commander with a display
// and a number of headless targets sharing a simulated radio. Once the
// targets have joined, the commander polls the registry and sends a job.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/mbocsi/radiofleet/app"
	"github.com/mbocsi/radiofleet/config"
	"github.com/mbocsi/radiofleet/fleet"
	"github.com/mbocsi/radiofleet/radio"
	"github.com/mbocsi/radiofleet/services"
)

var version = "dev"

type simOptions struct {
	targets      int
	loss         float64
	sensors      []string
	measurements int
	periodMs     int64
	stream       bool
	joinTimeout  time.Duration
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		transport  string
		httpAddr   string
		logLevel   string
		sim        simOptions
	)

	flagSet := pflag.NewFlagSet("fleetsim", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to YAML config (default: $RADIOFLEET_CONFIG)")
	flagSet.StringVar(&transport, "transport", "memory", "simulated radio: memory or lora")
	flagSet.StringVar(&httpAddr, "http", ":8080", "commander web UI address, empty to disable")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	flagSet.IntVar(&sim.targets, "targets", 3, "number of headless targets")
	flagSet.Float64Var(&sim.loss, "loss", 0, "probability that a receiver misses a datagram")
	flagSet.StringSliceVar(&sim.sensors, "sensors", []string{"Temp.", "Light"}, "sensors in the job, in order")
	flagSet.IntVar(&sim.measurements, "measurements", 5, "readings per sensor")
	flagSet.Int64Var(&sim.periodMs, "period-ms", 1000, "sampling period")
	flagSet.BoolVar(&sim.stream, "stream", true, "targets relay rows back to the commander")
	flagSet.DurationVar(&sim.joinTimeout, "join-timeout", 10*time.Second, "how long to wait for every target to join")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if sim.targets < 0 {
		return fmt.Errorf("--targets must not be negative")
	}
	if sim.loss < 0 || sim.loss > 1 {
		return fmt.Errorf("--loss must be between 0 and 1")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.Radio.Kind = transport
	cfg.HTTP.Addr = httpAddr
	cfg.MCP.Enabled = false
	if flagSet.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	closer, err := app.SetupLogger(cfg.Log, false)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	medium, err := newMedium(cfg, sim.loss)
	if err != nil {
		return err
	}

	commanderCfg := *cfg
	commanderCfg.Device.Display = true
	commander, err := app.New(ctx, app.Options{
		Config:  &commanderCfg,
		Name:    "commander",
		Medium:  medium(0),
		Version: version,
		OnReady: func(ctx context.Context, a *app.App) error {
			return sendJob(ctx, a, sim)
		},
	})
	if err != nil {
		return err
	}
	defer commander.Close()

	nodes := []*app.App{commander}
	for i := 1; i <= sim.targets; i++ {
		targetCfg := *cfg
		targetCfg.Device.Display = false
		targetCfg.HTTP.Addr = ""
		targetCfg.Storage = config.StorageConfig{Driver: "memory"}

		target, err := app.New(ctx, app.Options{
			Config: &targetCfg,
			Name:   fmt.Sprintf("target-%d", i),
			Medium: medium(i),
		})
		if err != nil {
			return err
		}
		defer target.Close()
		nodes = append(nodes, target)
	}

	slog.Info("Starting simulated fleet", "radio", cfg.Radio.Kind, "targets", sim.targets, "loss", sim.loss)

	g, gctx := errgroup.WithContext(ctx)
	for _, n := range nodes {
		g.Go(func() error { return n.Run(gctx) })
	}
	return g.Wait()
}

// newMedium returns a factory giving node i its attachment to one shared
// simulated radio.
func newMedium(cfg *config.Config, loss float64) (func(i int) app.Medium, error) {
	switch cfg.Radio.Kind {
	case "memory":
		ch := radio.NewChannel(cfg.Radio.MaxDatagram)
		ch.SetLoss(loss)
		return func(int) app.Medium { return app.Medium{Channel: ch} }, nil
	case "lora":
		ether := radio.NewEther()
		ether.SetLoss(loss)
		return func(i int) app.Medium {
			return app.Medium{Hardware: ether.Attach(), Address: []byte{byte(i + 1)}}
		}, nil
	}
	return nil, fmt.Errorf("fleetsim simulates memory or lora radios, not %q", cfg.Radio.Kind)
}

// sendJob waits for the registry to fill, then sends the configured job.
func sendJob(ctx context.Context, a *app.App, sim simOptions) error {
	if a.Node.Role() != fleet.RoleCommander {
		slog.Warn("Simulated commander lost the bootstrap race, not sending a job")
		return nil
	}

	deadline := time.Now().Add(sim.joinTimeout)
	var ids []int
	for {
		var err error
		ids, err = a.Services.Target.RefreshTargets(ctx)
		if err != nil {
			return err
		}
		if len(ids) >= sim.targets || time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(a.Config.Timing.RefreshInterval):
		}
	}
	slog.Info("Target registry polled", "targets", ids, "expected", sim.targets)

	req := services.JobRequest{StreamBack: sim.stream}
	for _, name := range sim.sensors {
		req.Sensors = append(req.Sensors, services.SensorJob{
			Sensor:       name,
			Mode:         "periodic",
			Measurements: sim.measurements,
			PeriodMs:     sim.periodMs,
		})
	}
	if err := a.Services.Job.RequestJob(ctx, req); err != nil {
		return fmt.Errorf("failed to send job: %w", err)
	}
	slog.Info("Job sent", "sensors", sim.sensors, "stream_back", sim.stream)
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `fleetsim runs a commander and N targets in one process.

The nodes share a simulated radio (an in-memory channel or a LoRa ether)
that drops datagrams with probability --loss. The commander serves the
web UI on --http and sends one job once every target has joined.

Usage:
  fleetsim [flags]

Flags:
%s`, flagSet.FlagUsages())
}
