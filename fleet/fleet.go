// Package fleet implements the commander/target protocol: role bootstrap,
// id allocation, job distribution and reassembly, the target registry poll
// and the row relay back to the commander.
//
// Every Node owns one dispatch goroutine fed by the transport callback; all
// protocol handlers run there, one message at a time.
package fleet

import (
	"context"
	"errors"
	"time"

	"github.com/mbocsi/radiofleet/proto"
)

var (
	ErrNotCommander = errors.New("node is not the commander")
	ErrJobShape     = errors.New("invalid job")
)

type Role int

const (
	RoleUnconfigured Role = iota
	RoleCommander
	RoleTarget
)

func (r Role) String() string {
	switch r {
	case RoleCommander:
		return "commander"
	case RoleTarget:
		return "target"
	default:
		return "unconfigured"
	}
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Timing holds every wait the protocol performs.
type Timing struct {
	MessageLatency     time.Duration
	BootstrapAttempts  int
	PollRounds         int
	PollWindow         time.Duration
	ReplyDelay         time.Duration // per target id
	MessagePause       time.Duration
	RefreshInterval    time.Duration
	EventPollingPeriod time.Duration
	InboxSize          int
}

func DefaultTiming() Timing {
	return Timing{
		MessageLatency:     100 * time.Millisecond,
		BootstrapAttempts:  3,
		PollRounds:         5,
		PollWindow:         200 * time.Millisecond,
		ReplyDelay:         50 * time.Millisecond,
		MessagePause:       100 * time.Millisecond,
		RefreshInterval:    200 * time.Millisecond,
		EventPollingPeriod: 100 * time.Millisecond,
		InboxSize:          64,
	}
}

// Sensor is a named, configurable sensor instance.
type Sensor interface {
	Name() string
	Configure(cfg proto.RecordingConfig)
}

// SensorRegistry materializes sensors by name. Each call returns a fresh
// instance.
type SensorRegistry interface {
	GetByName(name string) (Sensor, bool)
}

// RowRelay receives every row a job logs.
type RowRelay interface {
	RowLogged(row proto.Row)
}

// FinishNotifier is implemented by relays that need to know a job is done.
type FinishNotifier interface {
	FinishLogging()
}

// RecordingScheduler runs a reassembled job. relay may be nil.
type RecordingScheduler interface {
	Start(sensors []Sensor, relay RowRelay)
}

// LogEntry is a relayed row as persisted by the commander.
type LogEntry struct {
	Session    string    `json:"session"`
	ReceivedAt time.Time `json:"received_at"`
	proto.RelayRow
}

type PersistentLog interface {
	Append(ctx context.Context, entry LogEntry) error
	RowCount(ctx context.Context) (int, error)
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
