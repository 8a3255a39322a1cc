package radio

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// BroadcastAddress is stamped on frames when no node address is configured.
var BroadcastAddress = []byte{0xFF}

type LoRaConfig struct {
	Frequency       uint32 // Hz
	Bandwidth       uint32 // Hz
	SpreadingFactor uint8
	CodingRate      uint8
	TxPower         uint8 // dBm

	// Address is stamped on every outgoing frame. Frames carrying our own
	// non-broadcast address are ignored.
	Address     []byte
	MaxDatagram int
}

// LoRaMessage is a received frame with its radio metadata.
type LoRaMessage struct {
	DeviceAddress []byte
	Data          []byte
	RSSI          int
	SNR           float64
}

type LoRaRadio interface {
	Start() error
	Stop() error
	Send(address []byte, data []byte) error
	Receive() (LoRaMessage, error)
}

// PeerSignal is the last observed link quality of a sender.
type PeerSignal struct {
	RSSI     int
	SNR      float64
	LastSeen time.Time
}

type LoRaTransport struct {
	counters

	config LoRaConfig
	radio  LoRaRadio

	onMessage func(string)

	name        string
	description string

	peers map[string]PeerSignal
	pmu   sync.RWMutex

	// mu orders Start against Shutdown; stopped outlives a Shutdown that
	// ran before Start.
	mu      sync.Mutex
	stopped bool
	running atomic.Bool
}

func NewLoRaTransport(config LoRaConfig, radio LoRaRadio) *LoRaTransport {
	if config.MaxDatagram <= 0 {
		config.MaxDatagram = DefaultMaxDatagram
	}
	if len(config.Address) == 0 {
		config.Address = BroadcastAddress
	}
	return &LoRaTransport{
		config: config,
		radio:  radio,
		peers:  make(map[string]PeerSignal),
	}
}

func (t *LoRaTransport) Start() error {
	slog.Info("Starting LoRa transport", "frequency", t.config.Frequency, "address", fmt.Sprintf("%x", t.config.Address))

	if t.onMessage == nil {
		return fmt.Errorf("OnMessage function is not defined")
	}
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	if err := t.radio.Start(); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("failed to start LoRa radio: %w", err)
	}
	t.running.Store(true)
	t.mu.Unlock()

	for t.running.Load() {
		msg, err := t.radio.Receive()
		if err != nil {
			if errors.Is(err, errRadioStopped) {
				return nil
			}
			continue
		}
		t.handleFrame(msg)
	}
	return nil
}

func (t *LoRaTransport) handleFrame(msg LoRaMessage) {
	if !bytes.Equal(t.config.Address, BroadcastAddress) && bytes.Equal(msg.DeviceAddress, t.config.Address) {
		return
	}

	addr := fmt.Sprintf("%x", msg.DeviceAddress)
	t.pmu.Lock()
	t.peers[addr] = PeerSignal{RSSI: msg.RSSI, SNR: msg.SNR, LastSeen: time.Now()}
	t.pmu.Unlock()

	t.received.Add(1)
	slog.Debug("LoRa datagram received", "from", addr, "rssi", msg.RSSI, "snr", msg.SNR, "size", len(msg.Data))
	t.onMessage(string(msg.Data))
}

func (t *LoRaTransport) Broadcast(datagram string) error {
	if err := checkLength(datagram, t.config.MaxDatagram); err != nil {
		return err
	}
	if !t.running.Load() {
		return ErrNotRunning
	}
	if err := t.radio.Send(t.config.Address, []byte(datagram)); err != nil {
		return err
	}
	t.sent.Add(1)
	return nil
}

func (t *LoRaTransport) OnMessage(fn func(string)) {
	t.onMessage = fn
}

func (t *LoRaTransport) Shutdown() error {
	slog.Info("Shutting down LoRa transport")
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if !t.running.Swap(false) {
		return nil
	}
	return t.radio.Stop()
}

// Peers returns a copy of the per-sender signal table.
func (t *LoRaTransport) Peers() map[string]PeerSignal {
	t.pmu.RLock()
	defer t.pmu.RUnlock()
	out := make(map[string]PeerSignal, len(t.peers))
	for k, v := range t.peers {
		out[k] = v
	}
	return out
}

func (t *LoRaTransport) Meta() Metadata {
	m := Metadata{
		ID:          fmt.Sprintf("lora-%d", t.config.Frequency),
		Name:        t.name,
		Description: t.description,
		Protocol:    "lora",
		Address:     fmt.Sprintf("%.1fMHz", float64(t.config.Frequency)/1000000),
		MaxDatagram: t.config.MaxDatagram,
		Connected:   t.running.Load(),
	}
	t.fill(&m)
	return m
}

func (t *LoRaTransport) SetName(name string) {
	t.name = name
}

func (t *LoRaTransport) SetDescription(description string) {
	t.description = description
}
