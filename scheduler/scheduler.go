// Package scheduler runs recording jobs on a target: it samples each
// configured sensor, records the rows and relays them when asked to.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbocsi/radiofleet/fleet"
	"github.com/mbocsi/radiofleet/proto"
)

// DefaultEventPeriod is used for event sensors configured without a period.
const DefaultEventPeriod = 100 * time.Millisecond

// Readable is a sensor the scheduler can sample.
type Readable interface {
	fleet.Sensor
	Config() proto.RecordingConfig
	Read() (float64, bool)
}

type radioNamed interface {
	RadioName() string
}

// RecordFunc stores a row locally. It may be nil.
type RecordFunc func(ctx context.Context, row proto.Row) error

type Scheduler struct {
	base   context.Context
	record RecordFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	rows   int
}

func New(ctx context.Context, record RecordFunc) *Scheduler {
	return &Scheduler{base: ctx, record: record}
}

// Start runs a job, replacing any job still running. It returns at once.
func (s *Scheduler) Start(sensors []fleet.Sensor, relay fleet.RowRelay) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(s.base)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		s.run(ctx, sensors, relay)
	}()
}

// Running reports whether a job is in progress.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Wait blocks until the current job ends.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Rows is the number of rows logged across all jobs.
func (s *Scheduler) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

func (s *Scheduler) run(ctx context.Context, sensors []fleet.Sensor, relay fleet.RowRelay) {
	start := time.Now()
	var (
		emitMu sync.Mutex
		last   proto.Row
		logged bool
	)
	emit := func(row proto.Row) {
		emitMu.Lock()
		defer emitMu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if s.record != nil {
			if err := s.record(ctx, row); err != nil {
				slog.Error("Failed to record row", "sensor", row.Sensor, "error", err)
			}
		}
		s.mu.Lock()
		s.rows++
		s.mu.Unlock()
		last, logged = row, true
		if relay != nil {
			relay.RowLogged(row)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sensor := range sensors {
		r, ok := sensor.(Readable)
		if !ok {
			slog.Warn("Sensor cannot be sampled, skipping", "sensor", sensor.Name())
			continue
		}
		g.Go(func() error {
			return sample(gctx, r, start, emit)
		})
	}
	if err := g.Wait(); err != nil {
		slog.Info("Recording job cancelled", "error", err)
		return
	}
	slog.Info("Recording job finished", "sensors", len(sensors), "elapsed", time.Since(start))

	if relay == nil || !logged {
		return
	}
	if f, ok := relay.(fleet.FinishNotifier); ok {
		f.FinishLogging()
	}
	relay.RowLogged(last)
}

// sample takes cfg.Measurements readings. Periodic sensors log every
// reading; event sensors log only readings that satisfy the inequality.
func sample(ctx context.Context, sensor Readable, start time.Time, emit func(proto.Row)) error {
	cfg := sensor.Config()
	name := sensor.Name()
	if rn, ok := sensor.(radioNamed); ok && rn.RadioName() != "" {
		name = rn.RadioName()
	}
	if err := cfg.Validate(); err != nil {
		slog.Warn("Sensor has no usable config, skipping", "sensor", sensor.Name(), "error", err)
		return nil
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultEventPeriod
	}

	ticker := time.NewTicker(cfg.Period)
	defer ticker.Stop()

	for count := 0; count < cfg.Measurements; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		v, ok := sensor.Read()
		if !ok {
			continue
		}
		event := cfg.Mode == proto.ModeEvent
		if event && !cfg.Inequality.Holds(v, cfg.Threshold) {
			continue
		}
		emit(proto.Row{
			Sensor:      name,
			TimestampMs: time.Since(start).Milliseconds(),
			Reading:     v,
			Event:       event,
		})
		count++
	}
	return nil
}
