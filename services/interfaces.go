package services

import (
	"context"

	"github.com/mbocsi/radiofleet/fleet"
)

// TargetService handles the commander's view of the fleet
type TargetService interface {
	// Status returns a snapshot of the local node
	Status() fleet.Status

	// Registry
	ListTargets() ([]int, error)
	RefreshTargets(ctx context.Context) ([]int, error)

	// WatchTargets polls the registry while the returned action is held
	WatchTargets(onRefresh func(ids []int)) *fleet.HoldAction
}

// SensorService handles sensor discovery
type SensorService interface {
	ListSensors() ([]SensorInfo, error)
	GetSensor(name string) (*SensorInfo, error)
}

// JobService distributes sensor jobs
type JobService interface {
	RequestJob(ctx context.Context, req JobRequest) error
}

// RowService reads the persisted row log
type RowService interface {
	ListRows(ctx context.Context, q RowQuery) (*RowPage, error)
}

// TransportService handles transport information
type TransportService interface {
	GetTransport() (*TransportInfo, error)
}

// ServiceContainer holds all service implementations
type ServiceContainer struct {
	Target    TargetService
	Sensor    SensorService
	Job       JobService
	Row       RowService
	Transport TransportService
}
