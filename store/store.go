// Package store persists the rows a commander ingests.
package store

import (
	"context"
	"fmt"

	"github.com/mbocsi/radiofleet/fleet"
)

// Filter narrows a Query. Zero values match everything.
type Filter struct {
	Session  string
	DeviceID *int
	Sensor   string
	Limit    int // most recent N, 0 for all
}

func (f Filter) match(e fleet.LogEntry) bool {
	if f.Session != "" && e.Session != f.Session {
		return false
	}
	if f.DeviceID != nil && e.DeviceID != *f.DeviceID {
		return false
	}
	if f.Sensor != "" && e.Sensor != f.Sensor {
		return false
	}
	return true
}

// Log is a PersistentLog that can be read back.
type Log interface {
	fleet.PersistentLog
	Query(ctx context.Context, f Filter) ([]fleet.LogEntry, error)
	Close() error
}

// Open returns a log for driver "sqlite" or "memory".
func Open(driver, path string) (Log, error) {
	switch driver {
	case "sqlite":
		return OpenSQLite(path)
	case "memory", "":
		return NewMemoryLog(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
