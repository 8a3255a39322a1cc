package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbocsi/radiofleet/proto"
)

func (n *Node) handleCommander(ctx context.Context, msg proto.Message) {
	switch m := msg.(type) {
	case proto.JoinRequest:
		n.mu.Lock()
		id := n.nextID
		n.nextID++
		n.connected++
		n.mu.Unlock()

		n.sendBestEffort(proto.BecomeTarget{ID: id})
		slog.Info("Issued target id", "id", id)

	case proto.GetID:
		if !m.HasID {
			return
		}
		n.mu.Lock()
		if n.working != nil {
			n.working[m.ID] = struct{}{}
		}
		n.mu.Unlock()

	case proto.DataStream:
		n.ingest(ctx, m)

	case proto.DataStreamFinish:
		n.mu.Lock()
		n.streamingDone = true
		n.mu.Unlock()
		slog.Info("Target finished streaming")

	default:
		slog.Debug("Commander ignoring message", "tag", msg.Tag().String())
	}
}

func (n *Node) ingest(ctx context.Context, m proto.DataStream) {
	relay, err := m.Relay()
	if err != nil {
		slog.Debug("Dropping data stream that is not a relayed row", "error", err)
		return
	}
	if n.opts.Sensors != nil {
		if s, ok := n.opts.Sensors.GetByName(relay.Sensor); ok {
			relay.Sensor = s.Name()
		}
	}

	n.mu.Lock()
	n.liveView = true
	n.streamingDone = false
	entry := LogEntry{Session: n.session, ReceivedAt: time.Now(), RelayRow: relay}
	n.mu.Unlock()

	if n.opts.Log != nil {
		if err := n.opts.Log.Append(ctx, entry); err != nil {
			slog.Error("Failed to persist relayed row", "device", relay.DeviceID, "sensor", relay.Sensor, "error", err)
		}
	}
	n.opts.Rows.Publish(entry)
}

// RequestJob sends a job to every target: one StartLogging header then one
// DataStream per sensor, pausing after each message. Nothing is
// acknowledged; a lost message leaves targets waiting.
func (n *Node) RequestJob(ctx context.Context, sensors []string, configs []proto.RecordingConfig, streamBack bool) error {
	if n.Role() != RoleCommander {
		return ErrNotCommander
	}
	if len(sensors) == 0 {
		return fmt.Errorf("%w: no sensors", ErrJobShape)
	}
	if len(sensors) != len(configs) {
		return fmt.Errorf("%w: %d sensors but %d configs", ErrJobShape, len(sensors), len(configs))
	}

	header, err := proto.Marshal(proto.StartLogging{Count: len(sensors), StreamBack: streamBack})
	if err != nil {
		return err
	}
	wires := []string{header}
	for i, name := range sensors {
		if name == "" {
			return fmt.Errorf("%w: sensor %d has no name", ErrJobShape, i)
		}
		if err := configs[i].Validate(); err != nil {
			return fmt.Errorf("%w: sensor %q: %w", ErrJobShape, name, err)
		}
		wire, err := proto.Marshal(proto.NewJobFragment(name, configs[i]))
		if err != nil {
			return fmt.Errorf("%w: sensor %q: %w", ErrJobShape, name, err)
		}
		wires = append(wires, wire)
	}

	n.mu.Lock()
	n.streamingDone = false
	n.mu.Unlock()

	slog.Info("Distributing job", "sensors", sensors, "stream_back", streamBack)
	for _, wire := range wires {
		if err := n.transport.Broadcast(wire); err != nil {
			return fmt.Errorf("send %q: %w", wire, err)
		}
		if err := sleep(ctx, n.timing.MessagePause); err != nil {
			return err
		}
	}
	return nil
}
