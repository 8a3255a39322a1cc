package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mbocsi/radiofleet/fleet"
	"github.com/mbocsi/radiofleet/proto"
	"github.com/mbocsi/radiofleet/radio"
	"github.com/mbocsi/radiofleet/sensors"
)

// serviceError maps domain errors onto service error codes
func serviceError(message string, err error) error {
	var se ServiceError
	if errors.As(err, &se) {
		return se
	}

	code := ErrCodeInternal
	switch {
	case errors.Is(err, fleet.ErrNotCommander):
		code = ErrCodeConflict
	case errors.Is(err, fleet.ErrJobShape),
		errors.Is(err, proto.ErrDelimiterInField),
		errors.Is(err, proto.ErrMalformed),
		errors.Is(err, radio.ErrDatagramTooLong):
		code = ErrCodeInvalidInput
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		code = ErrCodeTimeout
	}
	return ServiceError{Code: code, Message: message, Cause: err}
}

func invalidInput(message string) error {
	return ServiceError{Code: ErrCodeInvalidInput, Message: message}
}

// convertSpec converts a sensors.Spec to SensorInfo
func convertSpec(spec sensors.Spec) SensorInfo {
	return SensorInfo{
		Name:      spec.Name,
		RadioName: spec.RadioName,
		Aliases:   spec.Aliases,
		Min:       spec.Min,
		Max:       spec.Max,
		Jacdac:    spec.Jacdac,
	}
}

// convertTransportMeta converts transport metadata to TransportInfo
func convertTransportMeta(meta radio.Metadata) TransportInfo {
	status := "disconnected"
	if meta.Connected {
		status = "connected"
	}

	return TransportInfo{
		ID:          meta.ID,
		Name:        meta.Name,
		Type:        meta.Protocol,
		Status:      status,
		Address:     meta.Address,
		MaxDatagram: meta.MaxDatagram,
		Sent:        meta.Sent,
		Received:    meta.Received,
		Dropped:     meta.Dropped,
	}
}

// recordingConfig converts a SensorJob to its wire config
func recordingConfig(job SensorJob) (proto.RecordingConfig, error) {
	var cfg proto.RecordingConfig
	switch strings.ToLower(job.Mode) {
	case "periodic", "p", "":
		cfg = proto.Periodic(job.Measurements, time.Duration(job.PeriodMs)*time.Millisecond)
	case "event", "e":
		cfg = proto.Event(job.Measurements, proto.Inequality(job.Inequality), job.Threshold)
	default:
		return cfg, invalidInput("Invalid recording mode: " + job.Mode)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, ServiceError{
			Code:    ErrCodeInvalidInput,
			Message: "Invalid recording config for " + job.Sensor,
			Cause:   err,
		}
	}
	return cfg, nil
}
