package fleet

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mbocsi/radiofleet/proto"
	"github.com/mbocsi/radiofleet/radio"
)

// Bootstrap resolves the node's role. It runs at most once; later calls
// return the settled role.
//
// Without a display the node becomes a target immediately and keeps asking
// to join until a commander assigns it an id. With a display it asks a
// bounded number of times and becomes the commander if nobody answers.
func (n *Node) Bootstrap(ctx context.Context) (Role, error) {
	n.bootMu.Lock()
	defer n.bootMu.Unlock()

	if r := n.Role(); r != RoleUnconfigured {
		return r, nil
	}
	if err := radio.AwaitRunning(ctx, n.transport); err != nil {
		return RoleUnconfigured, err
	}
	if !n.opts.Display {
		return n.joinHeadless(ctx)
	}
	return n.handshake(ctx)
}

func (n *Node) joinHeadless(ctx context.Context) (Role, error) {
	n.becomeTarget()
	slog.Info("No display attached, joining as target")

	for n.ID() == proto.UnassignedID {
		n.sendBestEffort(proto.JoinRequest{})
		if err := sleep(ctx, n.timing.MessageLatency); err != nil {
			return RoleTarget, err
		}
	}
	slog.Info("Joined fleet", "id", n.ID())
	return RoleTarget, nil
}

func (n *Node) handshake(ctx context.Context) (Role, error) {
	n.install(n.handleHandshake)

	for attempt := 1; attempt <= n.timing.BootstrapAttempts; attempt++ {
		n.sendBestEffort(proto.JoinRequest{})
		slog.Debug("Join request sent", "attempt", attempt)
		if err := sleep(ctx, n.timing.MessageLatency); err != nil {
			return RoleUnconfigured, err
		}
		if n.ID() != proto.UnassignedID {
			break
		}
	}

	if id := n.ID(); id != proto.UnassignedID {
		n.becomeTarget()
		slog.Info("Commander answered, became target", "id", id)
		return RoleTarget, nil
	}
	n.becomeCommander()
	return RoleCommander, nil
}

// handleHandshake only listens for an id while the handshake runs.
func (n *Node) handleHandshake(_ context.Context, msg proto.Message) {
	m, ok := msg.(proto.BecomeTarget)
	if !ok {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.id == proto.UnassignedID {
		n.id = m.ID
	}
}

func (n *Node) becomeTarget() {
	n.mu.Lock()
	n.role = RoleTarget
	n.handler = n.handleTarget
	n.mu.Unlock()
}

func (n *Node) becomeCommander() {
	n.mu.Lock()
	n.role = RoleCommander
	n.id = proto.CommanderID
	n.nextID = proto.CommanderID + 1
	n.connected = 0
	n.session = uuid.NewString()
	n.handler = n.handleCommander
	session := n.session
	n.mu.Unlock()

	slog.Info("No commander answered, became commander", "id", proto.CommanderID, "session", session)
}
