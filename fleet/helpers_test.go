package fleet

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mbocsi/radiofleet/proto"
	"github.com/mbocsi/radiofleet/radio"
)

func fastTiming() Timing {
	return Timing{
		MessageLatency:     20 * time.Millisecond,
		BootstrapAttempts:  3,
		PollRounds:         5,
		PollWindow:         40 * time.Millisecond,
		ReplyDelay:         5 * time.Millisecond,
		MessagePause:       2 * time.Millisecond,
		RefreshInterval:    10 * time.Millisecond,
		EventPollingPeriod: 100 * time.Millisecond,
		InboxSize:          64,
	}
}

type fakeSensor struct {
	name string
	cfg  proto.RecordingConfig
}

func (s *fakeSensor) Name() string                        { return s.name }
func (s *fakeSensor) Configure(cfg proto.RecordingConfig) { s.cfg = cfg }

// fakeRegistry knows Temp and Light, case-insensitively.
type fakeRegistry struct{}

func (fakeRegistry) GetByName(name string) (Sensor, bool) {
	for _, known := range []string{"Temp", "Light"} {
		if strings.EqualFold(name, known) {
			return &fakeSensor{name: known}, true
		}
	}
	return nil, false
}

type startCall struct {
	sensors []Sensor
	relay   RowRelay
}

type fakeScheduler struct {
	mu    sync.Mutex
	calls []startCall
	onRun func(sensors []Sensor, relay RowRelay)
}

func (s *fakeScheduler) Start(sensors []Sensor, relay RowRelay) {
	s.mu.Lock()
	s.calls = append(s.calls, startCall{sensors: sensors, relay: relay})
	run := s.onRun
	s.mu.Unlock()
	if run != nil {
		go run(sensors, relay)
	}
}

func (s *fakeScheduler) started() []startCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]startCall(nil), s.calls...)
}

type fakeLog struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (l *fakeLog) Append(_ context.Context, entry LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *fakeLog) RowCount(context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries), nil
}

func (l *fakeLog) all() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// sniffer is a raw endpoint on the channel that records everything it hears.
type sniffer struct {
	tr *radio.MemoryTransport

	mu    sync.Mutex
	heard []string
	reply func(datagram string) []string
}

func newSniffer(t *testing.T, ch *radio.Channel) *sniffer {
	t.Helper()
	p := &sniffer{tr: ch.Join("sniffer")}
	p.tr.OnMessage(p.record)
	go p.tr.Start()
	t.Cleanup(func() { p.tr.Shutdown() })
	awaitRunning(t, p.tr)
	return p
}

func (p *sniffer) record(datagram string) {
	p.mu.Lock()
	p.heard = append(p.heard, datagram)
	reply := p.reply
	p.mu.Unlock()
	if reply != nil {
		for _, r := range reply(datagram) {
			p.tr.Broadcast(r)
		}
	}
}

func (p *sniffer) onHear(fn func(datagram string) []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reply = fn
}

func (p *sniffer) send(t *testing.T, datagrams ...string) {
	t.Helper()
	for _, d := range datagrams {
		if err := p.tr.Broadcast(d); err != nil {
			t.Fatalf("sniffer broadcast %q: %v", d, err)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (p *sniffer) messages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.heard...)
}

func (p *sniffer) count(datagram string) int {
	n := 0
	for _, m := range p.messages() {
		if m == datagram {
			n++
		}
	}
	return n
}

func (p *sniffer) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.heard = nil
}

func awaitRunning(t *testing.T, tr radio.Transport) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := radio.AwaitRunning(ctx, tr); err != nil {
		t.Fatalf("transport never started: %v", err)
	}
}

// startNode joins a node to the channel and runs its transport and
// dispatch loop for the duration of the test.
func startNode(t *testing.T, ch *radio.Channel, name string, opts Options) *Node {
	t.Helper()
	if opts.Timing == (Timing{}) {
		opts.Timing = fastTiming()
	}
	tr := ch.Join(name)
	n := NewNode(tr, opts)

	ctx, cancel := context.WithCancel(context.Background())
	go tr.Start()
	go n.Run(ctx)
	t.Cleanup(func() {
		cancel()
		tr.Shutdown()
	})
	awaitRunning(t, tr)
	return n
}

// startCommander skips the handshake.
func startCommander(t *testing.T, ch *radio.Channel, opts Options) *Node {
	t.Helper()
	opts.Display = true
	n := startNode(t, ch, "commander", opts)
	n.becomeCommander()
	return n
}

// startTarget skips the join and installs id directly.
func startTarget(t *testing.T, ch *radio.Channel, name string, id int, opts Options) *Node {
	t.Helper()
	n := startNode(t, ch, name, opts)
	n.becomeTarget()
	n.mu.Lock()
	n.id = id
	n.mu.Unlock()
	return n
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out: %s", msg)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
