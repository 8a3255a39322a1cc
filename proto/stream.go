package proto

import (
	"fmt"
	"strconv"
)

// JobFragment is one sensor of a job, as sent commander to target.
type JobFragment struct {
	Sensor string
	Config RecordingConfig
}

// Row is one logged measurement.
type Row struct {
	Sensor      string  `json:"sensor"`
	TimestampMs int64   `json:"timestamp_ms"`
	Reading     float64 `json:"reading"`
	Event       bool    `json:"event"`
}

// Fields returns [sensorName, timestampMs, reading, eventFlag].
func (r Row) Fields() []string {
	return []string{
		r.Sensor,
		strconv.FormatInt(r.TimestampMs, 10),
		strconv.FormatFloat(r.Reading, 'f', -1, 64),
		boolField(r.Event),
	}
}

// RelayRow is a row relayed target to commander, keyed by the source device.
type RelayRow struct {
	DeviceID int `json:"device_id"`
	Row
}

// NewJobFragment builds the commander-side DataStream for one sensor.
func NewJobFragment(sensor string, cfg RecordingConfig) DataStream {
	return DataStream{Values: append([]string{sensor}, cfg.Fields()...)}
}

// NewRelay builds the target-side DataStream for a logged row.
func NewRelay(deviceID int, row Row) DataStream {
	return DataStream{Values: append([]string{strconv.Itoa(deviceID)}, row.Fields()...)}
}

// Job interprets the payload as a job fragment.
func (m DataStream) Job() (JobFragment, error) {
	if len(m.Values) < 2 || m.Values[0] == "" {
		return JobFragment{}, fmt.Errorf("%w: job fragment needs sensor and config", ErrMalformed)
	}
	cfg, err := ParseRecordingConfig(m.Values[1:])
	if err != nil {
		return JobFragment{}, err
	}
	return JobFragment{Sensor: m.Values[0], Config: cfg}, nil
}

// Relay interprets the payload as a relayed row.
func (m DataStream) Relay() (RelayRow, error) {
	if len(m.Values) < 5 {
		return RelayRow{}, fmt.Errorf("%w: relay row needs 5 fields, got %d", ErrMalformed, len(m.Values))
	}
	id, err := strconv.Atoi(m.Values[0])
	if err != nil {
		return RelayRow{}, fmt.Errorf("%w: bad device id %q", ErrMalformed, m.Values[0])
	}
	ts, err := strconv.ParseInt(m.Values[2], 10, 64)
	if err != nil {
		return RelayRow{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformed, m.Values[2])
	}
	reading, err := strconv.ParseFloat(m.Values[3], 64)
	if err != nil {
		return RelayRow{}, fmt.Errorf("%w: bad reading %q", ErrMalformed, m.Values[3])
	}
	return RelayRow{
		DeviceID: id,
		Row: Row{
			Sensor:      m.Values[1],
			TimestampMs: ts,
			Reading:     reading,
			Event:       m.Values[4] == "1",
		},
	}, nil
}
