package services

import (
	"github.com/mbocsi/radiofleet/fleet"
)

// SensorInfo represents a sensor the registry can configure
type SensorInfo struct {
	Name      string   `json:"name"`
	RadioName string   `json:"radio_name"`
	Aliases   []string `json:"aliases,omitempty"`
	Min       float64  `json:"min"`
	Max       float64  `json:"max"`
	Jacdac    bool     `json:"jacdac"`
}

// TransportInfo represents the radio transport's state
type TransportInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Address     string `json:"address,omitempty"`
	MaxDatagram int    `json:"max_datagram"`
	Sent        uint64 `json:"sent"`
	Received    uint64 `json:"received"`
	Dropped     uint64 `json:"dropped"`
}

// SensorJob is one sensor's part of a job request.
//
// Mode is "periodic" or "event". Periodic jobs need PeriodMs; event jobs
// need Inequality and Threshold.
type SensorJob struct {
	Sensor       string  `json:"sensor"`
	Mode         string  `json:"mode"`
	Measurements int     `json:"measurements"`
	PeriodMs     int64   `json:"period_ms,omitempty"`
	Inequality   string  `json:"inequality,omitempty"`
	Threshold    float64 `json:"threshold,omitempty"`
}

// JobRequest represents a job to broadcast to every target
type JobRequest struct {
	Sensors    []SensorJob `json:"sensors"`
	StreamBack bool        `json:"stream_back"`
}

// RowQuery filters persisted rows
type RowQuery struct {
	Session  string `json:"session,omitempty"`
	DeviceID *int   `json:"device_id,omitempty"`
	Sensor   string `json:"sensor,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// RowPage is a slice of persisted rows plus the log's total size
type RowPage struct {
	Rows  []fleet.LogEntry `json:"rows"`
	Total int              `json:"total"`
}

// ServiceError represents structured service layer errors
type ServiceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e ServiceError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e ServiceError) Unwrap() error { return e.Cause }

// Common error codes
const (
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeTimeout      = "TIMEOUT"
	ErrCodeInternal     = "INTERNAL_ERROR"
	ErrCodeConflict     = "CONFLICT"
)
