package services

import (
	"github.com/mbocsi/radiofleet/sensors"
)

// SensorServiceImpl implements SensorService
type SensorServiceImpl struct {
	registry *sensors.Registry
}

// NewSensorService creates a new sensor service
func NewSensorService(registry *sensors.Registry) SensorService {
	return &SensorServiceImpl{
		registry: registry,
	}
}

// ListSensors returns every sensor the registry knows
func (ss *SensorServiceImpl) ListSensors() ([]SensorInfo, error) {
	names := ss.registry.Names()
	result := make([]SensorInfo, 0, len(names))

	for _, name := range names {
		s, ok := ss.registry.Lookup(name)
		if !ok {
			continue
		}
		result = append(result, convertSpec(s.Spec()))
	}

	return result, nil
}

// GetSensor returns one sensor by name, radio name or alias
func (ss *SensorServiceImpl) GetSensor(name string) (*SensorInfo, error) {
	s, ok := ss.registry.Lookup(name)
	if !ok {
		return nil, ServiceError{
			Code:    ErrCodeNotFound,
			Message: "Sensor not found: " + name,
		}
	}

	info := convertSpec(s.Spec())
	return &info, nil
}
