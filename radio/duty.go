package radio

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"
)

// DutyCycle paces Broadcast on an inner transport to at most perSec
// datagrams per second with the given burst. Regulated bands (LoRa) need it.
// Shutdown releases any Broadcast still waiting for its slot.
type DutyCycle struct {
	Transport
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
}

func NewDutyCycle(inner Transport, perSec float64, burst int) *DutyCycle {
	if burst < 1 {
		burst = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DutyCycle{
		Transport: inner,
		limiter:   rate.NewLimiter(rate.Limit(perSec), burst),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Broadcast rejects oversize datagrams before spending a slot.
func (d *DutyCycle) Broadcast(datagram string) error {
	if err := checkLength(datagram, d.Transport.Meta().MaxDatagram); err != nil {
		return err
	}
	if err := d.limiter.Wait(d.ctx); err != nil {
		if d.ctx.Err() != nil {
			return fmt.Errorf("%w: duty cycle wait cancelled", ErrNotRunning)
		}
		slog.Warn("Duty cycle wait failed", "error", err)
		return err
	}
	return d.Transport.Broadcast(datagram)
}

func (d *DutyCycle) Shutdown() error {
	d.cancel()
	return d.Transport.Shutdown()
}

func (d *DutyCycle) Meta() Metadata {
	m := d.Transport.Meta()
	m.Description += " (duty-cycled)"
	return m
}
