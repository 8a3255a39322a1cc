package fleet

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/mbocsi/radiofleet/proto"
	"github.com/mbocsi/radiofleet/radio"
)

type Options struct {
	// Display is true when the device has a screen attached. Only such
	// devices may become commander.
	Display   bool
	Timing    Timing
	Sensors   SensorRegistry
	Scheduler RecordingScheduler
	Log       PersistentLog
	Rows      *RowBroker
}

type Node struct {
	transport radio.Transport
	opts      Options
	timing    Timing

	inbox   chan proto.Message
	bootMu  sync.Mutex
	pollMu  sync.Mutex
	handler func(context.Context, proto.Message)

	mu   sync.Mutex
	role Role
	id   int

	// commander
	nextID        int
	connected     int
	session       string
	registry      []int
	working       map[int]struct{}
	streamingDone bool
	liveView      bool

	// target
	expected   int
	received   int
	streamBack bool
	pending    []Sensor
	finished   bool
	finishSent bool
	jobs       int
}

// NewNode wires the node to the transport. The transport must not be
// started yet.
func NewNode(transport radio.Transport, opts Options) *Node {
	if opts.Timing == (Timing{}) {
		opts.Timing = DefaultTiming()
	}
	if opts.Timing.InboxSize <= 0 {
		opts.Timing.InboxSize = 64
	}
	if opts.Rows == nil {
		opts.Rows = NewRowBroker()
	}
	n := &Node{
		transport:     transport,
		opts:          opts,
		timing:        opts.Timing,
		inbox:         make(chan proto.Message, opts.Timing.InboxSize),
		id:            proto.UnassignedID,
		streamingDone: true,
	}
	transport.OnMessage(n.receive)
	return n
}

// receive runs on the transport goroutine and only enqueues.
func (n *Node) receive(datagram string) {
	msg, err := proto.Decode(datagram)
	if err != nil {
		slog.Debug("Dropping undecodable datagram", "datagram", datagram, "error", err)
		return
	}
	select {
	case n.inbox <- msg:
	default:
		slog.Warn("Node inbox full, dropping message", "tag", msg.Tag().String())
	}
}

// Run dispatches inbound messages to the installed handler until ctx is
// done.
func (n *Node) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-n.inbox:
			n.mu.Lock()
			h := n.handler
			n.mu.Unlock()
			if h == nil {
				slog.Debug("No handler installed, dropping message", "tag", msg.Tag().String())
				continue
			}
			h(ctx, msg)
		}
	}
}

func (n *Node) install(h func(context.Context, proto.Message)) {
	n.mu.Lock()
	n.handler = h
	n.mu.Unlock()
}

func (n *Node) send(msg proto.Message) error {
	wire, err := proto.Marshal(msg)
	if err != nil {
		return err
	}
	if err := n.transport.Broadcast(wire); err != nil {
		return err
	}
	slog.Debug("Sent", "datagram", wire)
	return nil
}

// sendBestEffort is for fire-and-forget protocol traffic.
func (n *Node) sendBestEffort(msg proto.Message) {
	if err := n.send(msg); err != nil {
		slog.Warn("Broadcast failed", "tag", msg.Tag().String(), "error", err)
	}
}

func (n *Node) Role() Role {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role
}

func (n *Node) ID() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.id
}

// Rows is the live feed of rows ingested by a commander.
func (n *Node) Rows() *RowBroker {
	return n.opts.Rows
}

func (n *Node) Log() PersistentLog {
	return n.opts.Log
}

type Status struct {
	Role          Role           `json:"role"`
	ID            int            `json:"id"`
	Display       bool           `json:"display"`
	Session       string         `json:"session,omitempty"`
	NextID        int            `json:"next_id,omitempty"`
	Connected     int            `json:"connected"`
	Targets       []int          `json:"targets"`
	StreamingDone bool           `json:"streaming_done"`
	LiveView      bool           `json:"live_view"`
	Expected      int            `json:"expected,omitempty"`
	Received      int            `json:"received,omitempty"`
	StreamBack    bool           `json:"stream_back,omitempty"`
	Jobs          int            `json:"jobs,omitempty"`
	Finished      bool           `json:"finished,omitempty"`
	Transport     radio.Metadata `json:"transport"`
}

func (n *Node) Status() Status {
	meta := n.transport.Meta()

	n.mu.Lock()
	defer n.mu.Unlock()
	targets := append([]int{}, n.registry...)
	sort.Ints(targets)
	return Status{
		Role:          n.role,
		ID:            n.id,
		Display:       n.opts.Display,
		Session:       n.session,
		NextID:        n.nextID,
		Connected:     n.connected,
		Targets:       targets,
		StreamingDone: n.streamingDone,
		LiveView:      n.liveView,
		Expected:      n.expected,
		Received:      n.received,
		StreamBack:    n.streamBack,
		Jobs:          n.jobs,
		Finished:      n.finished,
		Transport:     meta,
	}
}
