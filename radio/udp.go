package radio

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/net/ipv4"
)

type UDPConfig struct {
	Group       int // last octet of 239.0.0.x
	Port        int
	Interface   string
	MaxDatagram int
}

// GroupAddr maps a radio group number to its multicast address.
func GroupAddr(group, port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(239, 0, 0, byte(group)), Port: port}
}

// UDPTransport stands in for the radio group on a LAN: every node joins the
// same multicast group and hears every other node's datagrams.
type UDPTransport struct {
	counters

	config UDPConfig
	group  *net.UDPAddr

	onMessage func(string)

	mu      sync.Mutex
	recv    *net.UDPConn
	send    *net.UDPConn
	local   map[string]bool
	srcPort int
	stopped bool // set by Shutdown, Start refuses to run afterwards

	running atomic.Bool
}

func NewUDPTransport(config UDPConfig) (*UDPTransport, error) {
	if config.Group < 0 || config.Group > 255 {
		return nil, fmt.Errorf("udp: group %d out of range 0-255", config.Group)
	}
	if config.Port <= 0 || config.Port > 65535 {
		return nil, fmt.Errorf("udp: invalid port %d", config.Port)
	}
	if config.MaxDatagram <= 0 {
		config.MaxDatagram = DefaultMaxDatagram
	}
	return &UDPTransport{
		config: config,
		group:  GroupAddr(config.Group, config.Port),
	}, nil
}

func (t *UDPTransport) Start() error {
	if t.onMessage == nil {
		return fmt.Errorf("OnMessage function is not defined")
	}
	if t.isStopped() {
		return nil
	}

	var ifi *net.Interface
	if t.config.Interface != "" {
		var err error
		if ifi, err = net.InterfaceByName(t.config.Interface); err != nil {
			return fmt.Errorf("udp: interface %q: %w", t.config.Interface, err)
		}
	}

	recv, err := net.ListenMulticastUDP("udp4", ifi, t.group)
	if err != nil {
		return fmt.Errorf("udp: join %s: %w", t.group, err)
	}
	send, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		recv.Close()
		return fmt.Errorf("udp: open send socket: %w", err)
	}

	pc := ipv4.NewPacketConn(send)
	if err := pc.SetMulticastTTL(1); err != nil {
		slog.Warn("Failed to set multicast TTL", "error", err)
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		slog.Warn("Failed to enable multicast loopback", "error", err)
	}
	if ifi != nil {
		if err := pc.SetMulticastInterface(ifi); err != nil {
			slog.Warn("Failed to set multicast interface", "interface", ifi.Name, "error", err)
		}
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		recv.Close()
		send.Close()
		return nil
	}
	t.recv = recv
	t.send = send
	t.srcPort = send.LocalAddr().(*net.UDPAddr).Port
	t.local = localAddrs()
	t.running.Store(true)
	t.mu.Unlock()

	slog.Info("UDP transport joined group", "group", t.group.String(), "src_port", t.srcPort)

	buf := make([]byte, 1500)
	for t.running.Load() {
		n, src, err := recv.ReadFromUDP(buf)
		if err != nil {
			if !t.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Warn("UDP read failed", "error", err)
			continue
		}
		if t.isSelf(src) {
			continue
		}
		t.received.Add(1)
		t.onMessage(string(buf[:n]))
	}
	return nil
}

func (t *UDPTransport) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// isSelf drops multicast loopback of our own sends.
func (t *UDPTransport) isSelf(src *net.UDPAddr) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return src.Port == t.srcPort && t.local[src.IP.String()]
}

func localAddrs() map[string]bool {
	out := map[string]bool{"127.0.0.1": true}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return out
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok {
			out[ipn.IP.String()] = true
		}
	}
	return out
}

func (t *UDPTransport) Broadcast(datagram string) error {
	if err := checkLength(datagram, t.config.MaxDatagram); err != nil {
		return err
	}
	t.mu.Lock()
	send := t.send
	t.mu.Unlock()
	if send == nil || !t.running.Load() {
		return ErrNotRunning
	}
	if _, err := send.WriteToUDP([]byte(datagram), t.group); err != nil {
		return fmt.Errorf("udp: send: %w", err)
	}
	t.sent.Add(1)
	return nil
}

func (t *UDPTransport) OnMessage(fn func(string)) {
	t.onMessage = fn
}

func (t *UDPTransport) Shutdown() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return nil
	}
	t.stopped = true
	if !t.running.Swap(false) {
		return nil
	}
	var errs []error
	if t.recv != nil {
		errs = append(errs, t.recv.Close())
	}
	if t.send != nil {
		errs = append(errs, t.send.Close())
	}
	slog.Info("UDP transport left group", "group", t.group.String())
	return errors.Join(errs...)
}

func (t *UDPTransport) Meta() Metadata {
	m := Metadata{
		ID:          fmt.Sprintf("udp-%d-%d", t.config.Group, t.config.Port),
		Name:        "udp",
		Protocol:    "udp",
		Address:     t.group.String(),
		Description: "UDP multicast radio group",
		MaxDatagram: t.config.MaxDatagram,
		Connected:   t.running.Load(),
	}
	t.fill(&m)
	return m
}
