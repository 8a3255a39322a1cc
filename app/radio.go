package app

import (
	"errors"
	"fmt"

	"github.com/mbocsi/radiofleet/config"
	"github.com/mbocsi/radiofleet/radio"
)

// ErrNoHardware is returned for a lora node with no HardwareInterface.
var ErrNoHardware = errors.New("lora radio needs a hardware interface")

// Medium is what a node's radio attaches to. Only the field matching the
// configured kind is used.
type Medium struct {
	Channel  *radio.Channel          // memory
	Hardware radio.HardwareInterface // lora
	Address  []byte                  // lora node address, broadcast if empty
}

// NewTransport builds the radio named by cfg.Kind. A memory node without a
// shared channel gets a private one and will be alone on it.
func NewTransport(cfg config.RadioConfig, name string, m Medium) (radio.Transport, error) {
	var t radio.Transport

	switch cfg.Kind {
	case "memory":
		ch := m.Channel
		if ch == nil {
			ch = radio.NewChannel(cfg.MaxDatagram)
		}
		t = ch.Join(name)

	case "udp":
		udp, err := radio.NewUDPTransport(radio.UDPConfig{
			Group:       cfg.Group,
			Port:        cfg.Port,
			Interface:   cfg.Interface,
			MaxDatagram: cfg.MaxDatagram,
		})
		if err != nil {
			return nil, err
		}
		t = udp

	case "lora":
		if m.Hardware == nil {
			return nil, ErrNoHardware
		}
		sxCfg, err := cfg.SX1276()
		if err != nil {
			return nil, err
		}
		sx, err := radio.NewSX1276Radio(sxCfg, m.Hardware)
		if err != nil {
			return nil, err
		}
		lora := radio.NewLoRaTransport(radio.LoRaConfig{
			Frequency:       sxCfg.Frequency,
			Bandwidth:       sxCfg.Bandwidth,
			SpreadingFactor: sxCfg.SpreadingFactor,
			CodingRate:      sxCfg.CodingRate,
			TxPower:         sxCfg.Power,
			Address:         m.Address,
			MaxDatagram:     cfg.MaxDatagram,
		}, sx)
		lora.SetName(name)
		t = lora

	default:
		return nil, fmt.Errorf("unknown radio kind %q", cfg.Kind)
	}

	if cfg.DutyCyclePerSec > 0 {
		t = radio.NewDutyCycle(t, cfg.DutyCyclePerSec, cfg.DutyCycleBurst)
	}
	return t, nil
}
