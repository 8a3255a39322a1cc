package radio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// SX1276 FIFO size; one byte of every frame is spent on the address length.
const sx1276MaxFrame = 255

var errRadioStopped = errors.New("radio stopped")

// HardwareInterface is the seam to the SPI/GPIO driver of the chip.
type HardwareInterface interface {
	Initialize() error
	Transmit(frame []byte) error
	SetReceiveCallback(callback func(frame []byte, rssi int, snr float64))
	Close() error
	SetFrequency(freq uint32) error
	SetPower(power uint8) error
}

type SX1276Config struct {
	SPIDevice string
	SPISpeed  uint32

	// GPIO numbers, not header pin numbers.
	ResetGPIO int
	IRQPin    int
	CS0Pin    int

	Frequency       uint32 // Hz
	Power           uint8  // dBm, 2-20
	SyncByte        uint8
	Bandwidth       uint32 // Hz
	SpreadingFactor uint8  // 6-12
	CodingRate      uint8  // 5-8
	QueueSize       int
}

func DefaultSX1276Config() SX1276Config {
	return SX1276Config{
		SPIDevice:       "/dev/spidev0.0",
		SPISpeed:        1000000,
		ResetGPIO:       4,
		IRQPin:          17,
		CS0Pin:          8,
		Frequency:       868000000,
		Power:           14,
		SyncByte:        0x12,
		Bandwidth:       125000,
		SpreadingFactor: 7,
		CodingRate:      5,
		QueueSize:       64,
	}
}

// bandFrequencies are the ISM band centres a node may be configured for.
var bandFrequencies = map[string]uint32{
	"eu868": 868000000,
	"us915": 915000000,
}

// BandConfig is DefaultSX1276Config tuned to a named ISM band. An empty
// band means eu868.
func BandConfig(band string) (SX1276Config, error) {
	c := DefaultSX1276Config()
	if band == "" {
		return c, nil
	}
	freq, ok := bandFrequencies[band]
	if !ok {
		return c, fmt.Errorf("sx1276: unknown band %q (want eu868 or us915)", band)
	}
	c.Frequency = freq
	return c, nil
}

func (c SX1276Config) Validate() error {
	if c.Power < 2 || c.Power > 20 {
		return fmt.Errorf("sx1276: tx power %d dBm out of range 2-20", c.Power)
	}
	if c.SpreadingFactor < 6 || c.SpreadingFactor > 12 {
		return fmt.Errorf("sx1276: spreading factor %d out of range 6-12", c.SpreadingFactor)
	}
	if c.CodingRate < 5 || c.CodingRate > 8 {
		return fmt.Errorf("sx1276: coding rate 4/%d out of range", c.CodingRate)
	}
	return nil
}

// SX1276Radio frames packets as [addrLen][addr][payload] and queues what it
// hears for a single reader.
type SX1276Radio struct {
	config SX1276Config
	hw     HardwareInterface

	mu      sync.RWMutex
	running bool
	queue   chan LoRaMessage
}

func NewSX1276Radio(config SX1276Config, hw HardwareInterface) (*SX1276Radio, error) {
	if hw == nil {
		return nil, errors.New("sx1276: nil hardware interface")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	return &SX1276Radio{config: config, hw: hw}, nil
}

func (r *SX1276Radio) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("radio already running")
	}
	if err := r.hw.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize hardware interface: %w", err)
	}
	if err := r.hw.SetFrequency(r.config.Frequency); err != nil {
		r.hw.Close()
		return fmt.Errorf("failed to set frequency: %w", err)
	}
	if err := r.hw.SetPower(r.config.Power); err != nil {
		r.hw.Close()
		return fmt.Errorf("failed to set power: %w", err)
	}

	r.queue = make(chan LoRaMessage, r.config.QueueSize)
	r.hw.SetReceiveCallback(r.onFrame)
	r.running = true

	slog.Info("SX1276 radio started",
		"frequency", r.config.Frequency,
		"power", r.config.Power,
		"sf", r.config.SpreadingFactor,
		"spi_device", r.config.SPIDevice)
	return nil
}

func (r *SX1276Radio) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	r.running = false
	close(r.queue)
	err := r.hw.Close()
	slog.Info("SX1276 radio stopped")
	return err
}

func (r *SX1276Radio) Send(address []byte, data []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.running {
		return ErrNotRunning
	}
	if 1+len(address)+len(data) > sx1276MaxFrame {
		return fmt.Errorf("%w: frame of %d bytes exceeds FIFO", ErrDatagramTooLong, 1+len(address)+len(data))
	}

	frame := make([]byte, 0, 1+len(address)+len(data))
	frame = append(frame, byte(len(address)))
	frame = append(frame, address...)
	frame = append(frame, data...)

	if err := r.hw.Transmit(frame); err != nil {
		return fmt.Errorf("hardware transmit failed: %w", err)
	}
	slog.Debug("SX1276 frame transmitted", "address", fmt.Sprintf("%x", address), "size", len(frame))
	return nil
}

// Receive blocks until a frame arrives or the radio is stopped.
func (r *SX1276Radio) Receive() (LoRaMessage, error) {
	r.mu.RLock()
	q := r.queue
	r.mu.RUnlock()
	if q == nil {
		return LoRaMessage{}, errRadioStopped
	}
	msg, ok := <-q
	if !ok {
		return LoRaMessage{}, errRadioStopped
	}
	return msg, nil
}

func (r *SX1276Radio) onFrame(frame []byte, rssi int, snr float64) {
	if len(frame) < 2 {
		slog.Warn("SX1276 frame too short", "size", len(frame))
		return
	}
	addrLen := int(frame[0])
	if len(frame) < 1+addrLen {
		slog.Warn("SX1276 frame with invalid address length", "declared", addrLen, "size", len(frame))
		return
	}

	msg := LoRaMessage{
		DeviceAddress: append([]byte(nil), frame[1:1+addrLen]...),
		Data:          append([]byte(nil), frame[1+addrLen:]...),
		RSSI:          rssi,
		SNR:           snr,
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.running {
		return
	}
	select {
	case r.queue <- msg:
	default:
		slog.Warn("SX1276 receive queue full, dropping frame", "rssi", rssi)
	}
}
