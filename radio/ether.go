package radio

import (
	"errors"
	"math/rand/v2"
	"sync"
)

var errPortClosed = errors.New("ether port not initialized")

// Ether is a simulated LoRa medium. Each attached port behaves like an
// SX1276 behind a HardwareInterface: frames reach every other initialized
// port tuned to the same frequency, never the sender.
type Ether struct {
	mu    sync.RWMutex
	ports map[*EtherPort]struct{}
	loss  float64
	rng   *rand.Rand
	rngMu sync.Mutex
}

func NewEther() *Ether {
	return &Ether{
		ports: make(map[*EtherPort]struct{}),
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// SetLoss sets the probability that a port misses a frame.
func (e *Ether) SetLoss(p float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loss = p
}

// Attach returns a new port on the medium.
func (e *Ether) Attach() *EtherPort {
	p := &EtherPort{ether: e}
	e.mu.Lock()
	e.ports[p] = struct{}{}
	e.mu.Unlock()
	return p
}

func (e *Ether) lose() bool {
	e.mu.RLock()
	loss := e.loss
	e.mu.RUnlock()
	if loss <= 0 {
		return false
	}
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Float64() < loss
}

func (e *Ether) transmit(from *EtherPort, frame []byte) {
	e.mu.RLock()
	targets := make([]*EtherPort, 0, len(e.ports))
	for p := range e.ports {
		if p != from {
			targets = append(targets, p)
		}
	}
	e.mu.RUnlock()

	freq, power := from.tuning()
	for _, p := range targets {
		if e.lose() {
			continue
		}
		p.hear(frame, freq, power)
	}
}

// EtherPort implements HardwareInterface.
type EtherPort struct {
	ether *Ether

	mu          sync.Mutex
	initialized bool
	frequency   uint32
	power       uint8
	callback    func(frame []byte, rssi int, snr float64)
}

func (p *EtherPort) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initialized = true
	return nil
}

func (p *EtherPort) Transmit(frame []byte) error {
	p.mu.Lock()
	ok := p.initialized
	p.mu.Unlock()
	if !ok {
		return errPortClosed
	}
	p.ether.transmit(p, append([]byte(nil), frame...))
	return nil
}

func (p *EtherPort) SetReceiveCallback(callback func(frame []byte, rssi int, snr float64)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callback = callback
}

func (p *EtherPort) Close() error {
	p.mu.Lock()
	p.initialized = false
	p.mu.Unlock()

	p.ether.mu.Lock()
	delete(p.ether.ports, p)
	p.ether.mu.Unlock()
	return nil
}

func (p *EtherPort) SetFrequency(freq uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frequency = freq
	return nil
}

func (p *EtherPort) SetPower(power uint8) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.power = power
	return nil
}

func (p *EtherPort) tuning() (uint32, uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frequency, p.power
}

// hear delivers a frame if the port is up and on the sender's frequency.
// Signal quality is derived from the sender's power.
func (p *EtherPort) hear(frame []byte, freq uint32, power uint8) {
	p.mu.Lock()
	cb := p.callback
	ok := p.initialized && p.frequency == freq
	p.mu.Unlock()
	if !ok || cb == nil {
		return
	}
	cb(frame, int(power)-120, float64(power)/2)
}
