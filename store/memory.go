package store

import (
	"context"
	"sync"

	"github.com/mbocsi/radiofleet/fleet"
)

type MemoryLog struct {
	mu      sync.RWMutex
	entries []fleet.LogEntry
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(_ context.Context, e fleet.LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

func (l *MemoryLog) RowCount(context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

func (l *MemoryLog) Query(_ context.Context, f Filter) ([]fleet.LogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []fleet.LogEntry
	for _, e := range l.entries {
		if f.match(e) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

func (l *MemoryLog) Close() error { return nil }
