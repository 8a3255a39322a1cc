package services

import (
	"github.com/mbocsi/radiofleet/fleet"
	"github.com/mbocsi/radiofleet/radio"
	"github.com/mbocsi/radiofleet/sensors"
	"github.com/mbocsi/radiofleet/store"
)

// NewServiceContainer wires every service to one node.
func NewServiceContainer(node *fleet.Node, transport radio.Transport, reg *sensors.Registry, log store.Log) *ServiceContainer {
	return &ServiceContainer{
		Target:    NewTargetService(node),
		Sensor:    NewSensorService(reg),
		Job:       NewJobService(node, reg),
		Row:       NewRowService(log),
		Transport: NewTransportService(transport),
	}
}
