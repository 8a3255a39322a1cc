package fleet

import (
	"context"
	"log/slog"
	"sort"

	"github.com/mbocsi/radiofleet/proto"
)

// RequestTargetRegistry polls the channel for live targets. It broadcasts a
// bare GetId each round and collects replies for one poll window, stopping
// after PollRounds rounds or as soon as the set stops growing. The result
// replaces the cached registry.
func (n *Node) RequestTargetRegistry(ctx context.Context) ([]int, error) {
	if n.Role() != RoleCommander {
		return nil, ErrNotCommander
	}
	n.pollMu.Lock()
	defer n.pollMu.Unlock()

	n.mu.Lock()
	prev := len(n.registry)
	n.working = make(map[int]struct{})
	n.streamingDone = false
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		n.working = nil
		n.streamingDone = true
		n.mu.Unlock()
	}()

	last := 0
	for round := 0; round < n.timing.PollRounds; round++ {
		n.sendBestEffort(proto.GetID{})
		if err := sleep(ctx, n.timing.PollWindow); err != nil {
			return nil, err
		}

		size := n.workingSize()
		if size >= prev {
			break
		}
		if round > 0 && size == last {
			break
		}
		last = size
	}

	n.mu.Lock()
	ids := make([]int, 0, len(n.working))
	for id := range n.working {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	n.registry = ids
	n.mu.Unlock()

	slog.Debug("Target registry refreshed", "targets", ids, "previous", prev)
	return append([]int(nil), ids...), nil
}

func (n *Node) workingSize() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.working)
}

// Targets returns the registry published by the last completed poll.
func (n *Node) Targets() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int{}, n.registry...)
}

// WatchTargets returns a hold action that, while pressed, polls the
// registry every RefreshInterval and hands each result to onRefresh,
// which may be nil.
func (n *Node) WatchTargets(onRefresh func(ids []int)) *HoldAction {
	return NewHoldAction(n.timing.RefreshInterval, func(ctx context.Context) {
		ids, err := n.RequestTargetRegistry(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("Target registry refresh failed", "error", err)
			}
			return
		}
		if onRefresh != nil {
			onRefresh(ids)
		}
	})
}
