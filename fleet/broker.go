package fleet

import (
	"log/slog"
	"sync"
)

// AllSensors subscribes to rows from every sensor.
const AllSensors = "*"

// RowSubscriber receives ingested rows, e.g. a websocket client.
type RowSubscriber interface {
	ID() string
	Send(entry LogEntry) error
}

// RowBroker fans ingested rows out to subscribers keyed by sensor name.
type RowBroker struct {
	mu   sync.RWMutex
	subs map[string]map[RowSubscriber]struct{}
}

func NewRowBroker() *RowBroker {
	return &RowBroker{subs: make(map[string]map[RowSubscriber]struct{})}
}

func (b *RowBroker) Subscribe(sensor string, sub RowSubscriber) {
	slog.Debug("Subscribing to rows", "sensor", sensor, "subscriber", sub.ID())
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[sensor] == nil {
		b.subs[sensor] = make(map[RowSubscriber]struct{})
	}
	b.subs[sensor][sub] = struct{}{}
}

func (b *RowBroker) Publish(entry LogEntry) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sent := 0
	for _, topic := range []string{entry.Sensor, AllSensors} {
		for sub := range b.subs[topic] {
			if err := sub.Send(entry); err != nil {
				slog.Warn("Failed to publish row to subscriber", "subscriber", sub.ID(), "error", err)
				continue
			}
			sent++
		}
	}
	slog.Debug("Row published", "device", entry.DeviceID, "sensor", entry.Sensor, "subscribers", sent)
}

func (b *RowBroker) Unsubscribe(sensor string, sub RowSubscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subs[sensor]
	if !ok {
		return
	}
	if _, exists := subs[sub]; !exists {
		slog.Warn("Subscriber not found for sensor", "sensor", sensor, "subscriber", sub.ID())
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.subs, sensor)
	}
}

// UnsubscribeAll removes sub from every sensor.
func (b *RowBroker) UnsubscribeAll(sub RowSubscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sensor, subs := range b.subs {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.subs, sensor)
		}
	}
}

// Subscribers returns the number of subscribers of sensor.
func (b *RowBroker) Subscribers(sensor string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sensor])
}
