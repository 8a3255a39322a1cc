package radio

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
)

// Channel is an in-process broadcast medium. Every joined transport hears
// every datagram except its own, subject to the configured loss.
type Channel struct {
	mu          sync.RWMutex
	endpoints   map[string]*MemoryTransport
	maxDatagram int
	loss        float64
	drop        func(from, to, datagram string) bool
	rng         *rand.Rand
	rngMu       sync.Mutex
}

func NewChannel(maxDatagram int) *Channel {
	if maxDatagram <= 0 {
		maxDatagram = DefaultMaxDatagram
	}
	return &Channel{
		endpoints:   make(map[string]*MemoryTransport),
		maxDatagram: maxDatagram,
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// SetLoss sets the probability in [0,1] that any single delivery is lost.
func (c *Channel) SetLoss(p float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loss = p
}

// SetDropFunc installs a deterministic loss hook; returning true drops the
// delivery from -> to.
func (c *Channel) SetDropFunc(fn func(from, to, datagram string) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drop = fn
}

// Join attaches a new transport to the channel.
func (c *Channel) Join(name string) *MemoryTransport {
	t := &MemoryTransport{
		id:      "mem-" + uuid.NewString()[:8],
		name:    name,
		channel: c,
		queue:   make(chan string, 100),
		done:    make(chan struct{}),
	}
	c.mu.Lock()
	c.endpoints[t.id] = t
	c.mu.Unlock()
	return t
}

func (c *Channel) leave(id string) {
	c.mu.Lock()
	delete(c.endpoints, id)
	c.mu.Unlock()
}

func (c *Channel) lose() bool {
	if c.loss <= 0 {
		return false
	}
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return c.rng.Float64() < c.loss
}

func (c *Channel) deliver(from *MemoryTransport, datagram string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, ep := range c.endpoints {
		if id == from.id {
			continue
		}
		if c.drop != nil && c.drop(from.name, ep.name, datagram) {
			ep.dropped.Add(1)
			continue
		}
		if c.lose() {
			ep.dropped.Add(1)
			continue
		}
		ep.enqueue(datagram)
	}
}

// MemoryTransport is one device's view of a Channel.
type MemoryTransport struct {
	counters

	id      string
	name    string
	channel *Channel

	onMessage func(string)
	queue     chan string
	done      chan struct{}

	mu      sync.RWMutex
	running bool
	once    sync.Once
}

func (t *MemoryTransport) Start() error {
	if t.onMessage == nil {
		return fmt.Errorf("OnMessage function is not defined")
	}
	t.mu.Lock()
	t.running = true
	t.mu.Unlock()
	slog.Debug("Memory transport started", "id", t.id, "name", t.name)

	for {
		select {
		case datagram := <-t.queue:
			t.received.Add(1)
			t.onMessage(datagram)
		case <-t.done:
			t.mu.Lock()
			t.running = false
			t.mu.Unlock()
			return nil
		}
	}
}

func (t *MemoryTransport) enqueue(datagram string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.running {
		t.dropped.Add(1)
		return
	}
	select {
	case t.queue <- datagram:
	default:
		t.dropped.Add(1)
		slog.Warn("Memory transport queue full, dropping datagram", "name", t.name)
	}
}

func (t *MemoryTransport) Broadcast(datagram string) error {
	if err := checkLength(datagram, t.channel.maxDatagram); err != nil {
		return err
	}
	t.mu.RLock()
	running := t.running
	t.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}
	t.sent.Add(1)
	t.channel.deliver(t, datagram)
	return nil
}

func (t *MemoryTransport) OnMessage(fn func(string)) {
	t.onMessage = fn
}

func (t *MemoryTransport) Shutdown() error {
	t.once.Do(func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		t.channel.leave(t.id)
		close(t.done)
	})
	return nil
}

// Running reports whether Start has begun accepting datagrams.
func (t *MemoryTransport) Running() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

func (t *MemoryTransport) Meta() Metadata {
	t.mu.RLock()
	connected := t.running
	t.mu.RUnlock()
	m := Metadata{
		ID:          t.id,
		Name:        t.name,
		Protocol:    "memory",
		Address:     "in-process",
		Description: "In-process broadcast channel",
		MaxDatagram: t.channel.maxDatagram,
		Connected:   connected,
	}
	t.fill(&m)
	return m
}
