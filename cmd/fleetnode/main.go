// fleetnode runs a single fleet device. With a display it may become the
// commander and serve the web and MCP surfaces; without one it joins as a
// target and records whatever job it is sent.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/mbocsi/radiofleet/app"
	"github.com/mbocsi/radiofleet/config"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		display    bool
		transport  string
		httpAddr   string
		mcpEnabled bool
		logLevel   string
		name       string
	)

	flagSet := pflag.NewFlagSet("fleetnode", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to YAML config (default: $RADIOFLEET_CONFIG)")
	flagSet.BoolVar(&display, "display", false, "device has a display and may become commander")
	flagSet.StringVar(&transport, "transport", "", "radio kind: memory, udp or lora")
	flagSet.StringVar(&httpAddr, "http", "", "serve the web UI and JSON API on this address")
	flagSet.BoolVar(&mcpEnabled, "mcp", false, "serve MCP tools on stdin/stdout")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	flagSet.StringVar(&name, "name", "", "name shown in transport metadata (default: hostname)")
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
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("display") {
		cfg.Device.Display = display
	}
	if flagSet.Changed("transport") {
		cfg.Radio.Kind = transport
	}
	if flagSet.Changed("http") {
		cfg.HTTP.Addr = httpAddr
	}
	if flagSet.Changed("mcp") {
		cfg.MCP.Enabled = mcpEnabled
	}
	if flagSet.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	closer, err := app.SetupLogger(cfg.Log, cfg.MCP.Enabled)
	if err != nil {
		return err
	}
	defer closer.Close()

	if name == "" {
		name, _ = os.Hostname()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// No SX1276 driver is linked into this binary; lora runs under fleetsim.
	node, err := app.New(ctx, app.Options{
		Config:  cfg,
		Name:    name,
		Version: version,
	})
	if err != nil {
		return err
	}
	defer node.Close()

	slog.Info("Starting fleet node",
		"name", name,
		"radio", cfg.Radio.Kind,
		"display", cfg.Device.Display,
		"http", cfg.HTTP.Addr,
		"mcp", cfg.MCP.Enabled,
	)
	return node.Run(ctx)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `fleetnode runs one device of a radio sensor fleet.

A device with --display asks the radio group for a commander and takes
the role itself if nobody answers. A device without one joins as a
target and waits for a job.

Usage:
  fleetnode [flags]

Flags:
%s`, flagSet.FlagUsages())
}
