package services

import (
	"context"

	"github.com/mbocsi/radiofleet/fleet"
	"github.com/mbocsi/radiofleet/proto"
	"github.com/mbocsi/radiofleet/sensors"
)

// JobServiceImpl implements JobService
type JobServiceImpl struct {
	node     *fleet.Node
	registry *sensors.Registry
}

// NewJobService creates a new job service
func NewJobService(node *fleet.Node, registry *sensors.Registry) JobService {
	return &JobServiceImpl{
		node:     node,
		registry: registry,
	}
}

// RequestJob validates the request against the sensor registry and
// broadcasts it. Sensors go out under their radio names.
func (js *JobServiceImpl) RequestJob(ctx context.Context, req JobRequest) error {
	if len(req.Sensors) == 0 {
		return invalidInput("Job needs at least one sensor")
	}

	names := make([]string, 0, len(req.Sensors))
	configs := make([]proto.RecordingConfig, 0, len(req.Sensors))
	for _, job := range req.Sensors {
		radioName, ok := js.registry.RadioName(job.Sensor)
		if !ok {
			return ServiceError{
				Code:    ErrCodeNotFound,
				Message: "Sensor not found: " + job.Sensor,
			}
		}
		cfg, err := recordingConfig(job)
		if err != nil {
			return err
		}
		names = append(names, radioName)
		configs = append(configs, cfg)
	}

	if err := js.node.RequestJob(ctx, names, configs, req.StreamBack); err != nil {
		return serviceError("Failed to distribute job", err)
	}
	return nil
}
