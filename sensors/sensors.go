// Package sensors is a registry of simulated on-board and Jacdac sensors.
package sensors

import (
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mbocsi/radiofleet/fleet"
	"github.com/mbocsi/radiofleet/proto"
)

// Spec describes one kind of sensor. RadioName is the short form that fits
// in a job fragment; Aliases are accepted on lookup.
type Spec struct {
	Name      string
	RadioName string
	Aliases   []string
	Min       float64
	Max       float64
	Jacdac    bool
}

var Builtin = []Spec{
	{Name: "Accel. X", RadioName: "AX", Aliases: []string{"Accelerometer X"}, Min: -1023, Max: 1023},
	{Name: "Accel. Y", RadioName: "AY", Aliases: []string{"Accelerometer Y"}, Min: -1023, Max: 1023},
	{Name: "Accel. Z", RadioName: "AZ", Aliases: []string{"Accelerometer Z"}, Min: -1023, Max: 1023},
	{Name: "Pitch", RadioName: "Pi", Min: -180, Max: 180},
	{Name: "Roll", RadioName: "R", Min: -180, Max: 180},
	{Name: "A. Pin 0", RadioName: "AP0", Aliases: []string{"Analog Pin 0"}, Min: 0, Max: 1023},
	{Name: "A. Pin 1", RadioName: "AP1", Aliases: []string{"Analog Pin 1"}, Min: 0, Max: 1023},
	{Name: "A. Pin 2", RadioName: "AP2", Aliases: []string{"Analog Pin 2"}, Min: 0, Max: 1023},
	{Name: "Light", RadioName: "L", Min: 0, Max: 255},
	{Name: "Temp.", RadioName: "T", Aliases: []string{"Temperature", "Temp"}, Min: -40, Max: 100},
	{Name: "Magnet", RadioName: "M", Min: -5000, Max: 5000},
	{Name: "Logo Pressed", RadioName: "LP", Aliases: []string{"Logo Press"}, Min: 0, Max: 1},
	{Name: "Microphone", RadioName: "Mic", Min: 30, Max: 255},
	{Name: "Compass", RadioName: "C", Min: 0, Max: 360},
	{Name: "Jac Flex", RadioName: "JF", Aliases: []string{"Jacdac Flex"}, Min: 0, Max: 100, Jacdac: true},
	{Name: "Jac Temp", RadioName: "JT", Aliases: []string{"Jacdac Temperature"}, Min: 0, Max: 100, Jacdac: true},
	{Name: "Jac Light", RadioName: "JL", Aliases: []string{"Jacdac Light"}, Min: 0, Max: 100, Jacdac: true},
	{Name: "Jac Moist", RadioName: "JM", Aliases: []string{"Jacdac Moisture"}, Min: 0, Max: 100, Jacdac: true},
	{Name: "Jac Dist", RadioName: "JD", Aliases: []string{"Jacdac Distance"}, Min: 0, Max: 100, Jacdac: true},
}

// Sensor is a configured instance produced by a Registry.
type Sensor struct {
	spec  Spec
	phase float64
	start time.Time

	mu  sync.Mutex
	cfg proto.RecordingConfig
}

func (s *Sensor) Name() string      { return s.spec.Name }
func (s *Sensor) RadioName() string { return s.spec.RadioName }
func (s *Sensor) Spec() Spec        { return s.spec }

func (s *Sensor) Configure(cfg proto.RecordingConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

func (s *Sensor) Config() proto.RecordingConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Read samples a slow sine wave across the sensor's range, rounded to two
// decimals.
func (s *Sensor) Read() (float64, bool) {
	t := time.Since(s.start).Seconds()
	mid := (s.spec.Max + s.spec.Min) / 2
	amp := (s.spec.Max - s.spec.Min) / 2
	v := mid + amp*math.Sin(t/3+s.phase)
	return math.Round(v*100) / 100, true
}

type Registry struct {
	specs []Spec
	index map[string]int
}

func NewRegistry(specs ...Spec) *Registry {
	r := &Registry{specs: specs, index: make(map[string]int)}
	for i, spec := range specs {
		for _, key := range append([]string{spec.Name, spec.RadioName}, spec.Aliases...) {
			if key != "" {
				r.index[strings.ToLower(key)] = i
			}
		}
	}
	return r
}

// Default returns a registry of every built-in sensor.
func Default() *Registry {
	return NewRegistry(Builtin...)
}

// Lookup returns a fresh sensor for a name, radio name or alias, ignoring
// case.
func (r *Registry) Lookup(name string) (*Sensor, bool) {
	i, ok := r.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, false
	}
	return &Sensor{
		spec:  r.specs[i],
		phase: rand.Float64() * 2 * math.Pi,
		start: time.Now(),
	}, true
}

func (r *Registry) GetByName(name string) (fleet.Sensor, bool) {
	s, ok := r.Lookup(name)
	if !ok {
		return nil, false
	}
	return s, true
}

// RadioName maps any accepted name to its short form.
func (r *Registry) RadioName(name string) (string, bool) {
	i, ok := r.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", false
	}
	return r.specs[i].RadioName, true
}

// Names returns the canonical names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, len(r.specs))
	for i, s := range r.specs {
		out[i] = s.Name
	}
	sort.Strings(out)
	return out
}
