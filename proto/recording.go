package proto

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Mode selects how a sensor is sampled.
type Mode string

const (
	ModePeriodic Mode = "P" // sample every Period
	ModeEvent    Mode = "E" // poll and log only when the inequality holds
)

// Inequality compares a reading against a threshold in event mode.
type Inequality string

const (
	Less         Inequality = "<"
	Greater      Inequality = ">"
	Equal        Inequality = "="
	LessEqual    Inequality = "<="
	GreaterEqual Inequality = ">="
	NotEqual     Inequality = "!="
)

var validInequalities = map[Inequality]bool{
	Less: true, Greater: true, Equal: true,
	LessEqual: true, GreaterEqual: true, NotEqual: true,
}

// Holds reports whether reading satisfies the inequality against threshold.
func (q Inequality) Holds(reading, threshold float64) bool {
	switch q {
	case Less:
		return reading < threshold
	case Greater:
		return reading > threshold
	case Equal:
		return reading == threshold
	case LessEqual:
		return reading <= threshold
	case GreaterEqual:
		return reading >= threshold
	case NotEqual:
		return reading != threshold
	}
	return false
}

// RecordingConfig describes how one sensor records during a job.
//
// Wire grammar:
//
//	P,<measurementCount>,<periodMs>
//	E,<measurementCount>,<inequality>,<threshold>
//
// Event configs carry no period on the wire; the receiver fills in its
// platform polling interval.
type RecordingConfig struct {
	Mode         Mode
	Measurements int
	Period       time.Duration
	Inequality   Inequality
	Threshold    float64
}

// Periodic returns a periodic config.
func Periodic(measurements int, period time.Duration) RecordingConfig {
	return RecordingConfig{Mode: ModePeriodic, Measurements: measurements, Period: period}
}

// Event returns an event-triggered config. Period is left for the receiver.
func Event(measurements int, q Inequality, threshold float64) RecordingConfig {
	return RecordingConfig{Mode: ModeEvent, Measurements: measurements, Inequality: q, Threshold: threshold}
}

// Fields serializes the config into wire fields.
func (c RecordingConfig) Fields() []string {
	switch c.Mode {
	case ModeEvent:
		return []string{
			string(ModeEvent),
			strconv.Itoa(c.Measurements),
			string(c.Inequality),
			strconv.FormatFloat(c.Threshold, 'f', -1, 64),
		}
	default:
		return []string{
			string(ModePeriodic),
			strconv.Itoa(c.Measurements),
			strconv.FormatInt(c.Period.Milliseconds(), 10),
		}
	}
}

func (c RecordingConfig) Validate() error {
	if c.Measurements <= 0 {
		return errors.New("measurement count must be positive")
	}
	switch c.Mode {
	case ModePeriodic:
		if c.Period <= 0 {
			return errors.New("periodic config needs a positive period")
		}
	case ModeEvent:
		if !validInequalities[c.Inequality] {
			return fmt.Errorf("invalid inequality %q", c.Inequality)
		}
	default:
		return fmt.Errorf("invalid recording mode %q", c.Mode)
	}
	return nil
}

// ParseRecordingConfig parses the wire grammar. Event configs come back with a
// zero Period.
func ParseRecordingConfig(fields []string) (RecordingConfig, error) {
	if len(fields) < 3 {
		return RecordingConfig{}, fmt.Errorf("%w: recording config needs at least 3 fields, got %d", ErrMalformed, len(fields))
	}
	count, err := strconv.Atoi(fields[1])
	if err != nil {
		return RecordingConfig{}, fmt.Errorf("%w: bad measurement count %q", ErrMalformed, fields[1])
	}

	var cfg RecordingConfig
	switch Mode(fields[0]) {
	case ModePeriodic:
		ms, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return RecordingConfig{}, fmt.Errorf("%w: bad period %q", ErrMalformed, fields[2])
		}
		cfg = Periodic(count, time.Duration(ms)*time.Millisecond)

	case ModeEvent:
		if len(fields) < 4 {
			return RecordingConfig{}, fmt.Errorf("%w: event config needs inequality and threshold", ErrMalformed)
		}
		threshold, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return RecordingConfig{}, fmt.Errorf("%w: bad threshold %q", ErrMalformed, fields[3])
		}
		cfg = Event(count, Inequality(fields[2]), threshold)

	default:
		return RecordingConfig{}, fmt.Errorf("%w: unknown config type %q", ErrMalformed, fields[0])
	}

	if err := cfg.Validate(); err != nil {
		return RecordingConfig{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return cfg, nil
}
