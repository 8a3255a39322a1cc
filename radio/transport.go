// Package radio provides the shared broadcast channel devices talk over.
//
// A Transport is unreliable by contract: Broadcast may silently lose a
// datagram, there is no ordering guarantee and nothing is acknowledged. The
// only hard rule is the datagram length limit.
package radio

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// DefaultMaxDatagram is the conservative payload limit assumed for every
// transport unless configured otherwise.
const DefaultMaxDatagram = 32

var (
	ErrDatagramTooLong = errors.New("datagram exceeds transport limit")
	ErrNotRunning      = errors.New("transport not running")
)

type Transport interface {
	// Start runs the receive loop and blocks until Shutdown. Called after
	// Shutdown it returns nil without starting.
	Start() error
	Broadcast(datagram string) error
	OnMessage(func(datagram string))
	Shutdown() error
	Meta() Metadata
}

type Metadata struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Protocol    string `json:"protocol"` // "memory", "udp", "lora"
	Address     string `json:"address,omitempty"`
	Description string `json:"description,omitempty"`
	MaxDatagram int    `json:"max_datagram"`
	Connected   bool   `json:"connected"`

	Sent     uint64 `json:"sent"`
	Received uint64 `json:"received"`
	Dropped  uint64 `json:"dropped"`
}

// counters is embedded by every transport.
type counters struct {
	sent     atomic.Uint64
	received atomic.Uint64
	dropped  atomic.Uint64
}

func (c *counters) fill(m *Metadata) {
	m.Sent = c.sent.Load()
	m.Received = c.received.Load()
	m.Dropped = c.dropped.Load()
}

func checkLength(datagram string, max int) error {
	if max > 0 && len(datagram) > max {
		return fmt.Errorf("%w: %d > %d bytes: %q", ErrDatagramTooLong, len(datagram), max, datagram)
	}
	return nil
}

// AwaitRunning blocks until t reports itself connected.
func AwaitRunning(ctx context.Context, t Transport) error {
	tick := time.NewTicker(2 * time.Millisecond)
	defer tick.Stop()
	for !t.Meta().Connected {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}
