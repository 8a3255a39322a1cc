// Package app assembles one fleet node from its configuration: radio,
// protocol node, recording scheduler, row log and the optional web and MCP
// surfaces.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mbocsi/radiofleet/config"
	"github.com/mbocsi/radiofleet/fleet"
	"github.com/mbocsi/radiofleet/mcp"
	"github.com/mbocsi/radiofleet/radio"
	"github.com/mbocsi/radiofleet/scheduler"
	"github.com/mbocsi/radiofleet/sensors"
	"github.com/mbocsi/radiofleet/services"
	"github.com/mbocsi/radiofleet/store"
	"github.com/mbocsi/radiofleet/web"
)

type Options struct {
	Config  *config.Config
	Name    string
	Medium  Medium
	Sensors *sensors.Registry // defaults to sensors.Default()
	Version string

	// OnReady runs once the node's role is settled.
	OnReady func(ctx context.Context, a *App) error
}

type App struct {
	Config    *config.Config
	Name      string
	Node      *fleet.Node
	Transport radio.Transport
	Log       store.Log
	Scheduler *scheduler.Scheduler
	Services  *services.ServiceContainer

	web     *web.Server
	mcp     *mcp.Server
	onReady func(ctx context.Context, a *App) error
}

// New builds the node. ctx bounds every job the node will record.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.Name == "" {
		opts.Name = "fleet-node"
	}
	reg := opts.Sensors
	if reg == nil {
		reg = sensors.Default()
	}

	transport, err := NewTransport(cfg.Radio, opts.Name, opts.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to create radio: %w", err)
	}

	rowLog, err := store.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open row log: %w", err)
	}

	a := &App{
		Config:    cfg,
		Name:      opts.Name,
		Transport: transport,
		Log:       rowLog,
		onReady:   opts.OnReady,
	}

	a.Scheduler = scheduler.New(ctx, store.Record(rowLog, func() int { return a.Node.ID() }))
	a.Node = fleet.NewNode(transport, fleet.Options{
		Display:   cfg.Device.Display,
		Timing:    cfg.Timing.ToFleet(),
		Sensors:   reg,
		Scheduler: a.Scheduler,
		Log:       rowLog,
	})
	a.Services = services.NewServiceContainer(a.Node, transport, reg, rowLog)

	if cfg.HTTP.Addr != "" {
		a.web = web.NewServer(ctx, a.Services, a.Node.Rows())
	}
	if cfg.MCP.Enabled {
		a.mcp = mcp.NewServer(a.Services, opts.Version)
	}
	return a, nil
}

// Run starts the radio, settles the node's role and serves until ctx is
// done or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.Transport.Start(); err != nil {
			return fmt.Errorf("radio: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down radio", "node", a.Name)
		if err := a.Transport.Shutdown(); err != nil {
			slog.Error("There was an error when shutting down the radio", "error", err.Error())
		}
		return nil
	})
	g.Go(func() error {
		return a.Node.Run(gctx)
	})
	g.Go(func() error {
		role, err := a.Node.Bootstrap(gctx)
		if err != nil {
			if gctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("bootstrap: %w", err)
		}
		slog.Info("Role settled", "node", a.Name, "role", role.String(), "id", a.Node.ID())
		if a.onReady != nil {
			return a.onReady(gctx, a)
		}
		return nil
	})

	if a.web != nil {
		g.Go(func() error {
			return a.web.ListenAndServe(gctx, a.Config.HTTP.Addr)
		})
	}
	if a.mcp != nil {
		g.Go(func() error {
			return a.mcp.Run(gctx)
		})
	}

	return g.Wait()
}

// Close releases the row log. Call it after Run returns.
func (a *App) Close() error {
	return a.Log.Close()
}
