package fleet

import (
	"context"
	"log/slog"
	"time"

	"github.com/mbocsi/radiofleet/proto"
)

func (n *Node) handleTarget(ctx context.Context, msg proto.Message) {
	switch m := msg.(type) {
	case proto.BecomeTarget:
		n.mu.Lock()
		latched := n.id == proto.UnassignedID
		if latched {
			n.id = m.ID
		}
		n.mu.Unlock()
		if latched {
			slog.Info("Assigned target id", "id", m.ID)
		}

	case proto.StartLogging:
		n.mu.Lock()
		n.expected = m.Count
		n.streamBack = m.StreamBack
		n.received = 0
		n.pending = nil
		id := n.id
		n.mu.Unlock()

		slog.Debug("Job header received", "count", m.Count, "stream_back", m.StreamBack)
		if id == proto.UnassignedID {
			n.sendBestEffort(proto.JoinRequest{})
		}

	case proto.GetID:
		// Only answer the commander's bare request, never another target's reply.
		if m.HasID {
			return
		}
		id := n.ID()
		if id == proto.UnassignedID {
			return
		}
		if err := sleep(ctx, time.Duration(id)*n.timing.ReplyDelay); err != nil {
			return
		}
		n.sendBestEffort(proto.GetID{ID: id, HasID: true})

	case proto.DataStream:
		n.reassemble(m)

	default:
		slog.Debug("Target ignoring message", "tag", msg.Tag().String())
	}
}

// reassemble adds one job fragment. A fragment that cannot be turned into a
// configured sensor counts as lost.
func (n *Node) reassemble(m proto.DataStream) {
	n.mu.Lock()
	waiting := n.received < n.expected
	n.mu.Unlock()
	if !waiting {
		return
	}

	frag, err := m.Job()
	if err != nil {
		slog.Debug("Ignoring data stream that is not a job fragment", "error", err)
		return
	}
	if n.opts.Sensors == nil {
		slog.Warn("No sensor registry, dropping job fragment", "sensor", frag.Sensor)
		return
	}
	sensor, ok := n.opts.Sensors.GetByName(frag.Sensor)
	if !ok {
		slog.Warn("Unknown sensor in job, fragment dropped", "sensor", frag.Sensor)
		return
	}
	cfg := frag.Config
	if cfg.Mode == proto.ModeEvent {
		cfg.Period = n.timing.EventPollingPeriod
	}
	sensor.Configure(cfg)

	n.mu.Lock()
	if n.received >= n.expected {
		n.mu.Unlock()
		return
	}
	n.pending = append(n.pending, sensor)
	n.received++
	if n.received < n.expected {
		n.mu.Unlock()
		return
	}
	job := n.pending
	streamBack := n.streamBack
	n.expected, n.received = 0, 0
	n.pending = nil
	n.finished, n.finishSent = false, false
	n.jobs++
	n.mu.Unlock()

	n.handoff(job, streamBack)
}

func (n *Node) handoff(job []Sensor, streamBack bool) {
	names := make([]string, len(job))
	for i, s := range job {
		names[i] = s.Name()
	}
	slog.Info("Job assembled", "sensors", names, "stream_back", streamBack)

	if n.opts.Scheduler == nil {
		slog.Warn("No recording scheduler, job not started")
		return
	}
	var relay RowRelay
	if streamBack {
		relay = n
	}
	n.opts.Scheduler.Start(job, relay)
}

// RowLogged relays one logged row to the commander. Once FinishLogging has
// been called it sends DataStreamFinish exactly once and nothing after.
func (n *Node) RowLogged(row proto.Row) {
	n.mu.Lock()
	if n.finished {
		if n.finishSent {
			n.mu.Unlock()
			return
		}
		n.finishSent = true
		n.mu.Unlock()
		n.sendBestEffort(proto.DataStreamFinish{})
		slog.Info("Job finished, told commander")
		return
	}
	id := n.id
	n.mu.Unlock()

	n.sendBestEffort(proto.NewRelay(id, row))
}

// FinishLogging marks the current job as done.
func (n *Node) FinishLogging() {
	n.mu.Lock()
	n.finished = true
	n.mu.Unlock()
}
