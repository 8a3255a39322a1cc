package services

import (
	"context"

	"github.com/mbocsi/radiofleet/fleet"
)

// TargetServiceImpl implements TargetService
type TargetServiceImpl struct {
	node *fleet.Node
}

// NewTargetService creates a new target service
func NewTargetService(node *fleet.Node) TargetService {
	return &TargetServiceImpl{
		node: node,
	}
}

// Status returns the node's current state
func (ts *TargetServiceImpl) Status() fleet.Status {
	return ts.node.Status()
}

// ListTargets returns the registry from the last completed poll
func (ts *TargetServiceImpl) ListTargets() ([]int, error) {
	if ts.node.Role() != fleet.RoleCommander {
		return nil, serviceError("Only the commander keeps a target registry", fleet.ErrNotCommander)
	}
	return ts.node.Targets(), nil
}

// RefreshTargets polls the channel and returns the new registry
func (ts *TargetServiceImpl) RefreshTargets(ctx context.Context) ([]int, error) {
	ids, err := ts.node.RequestTargetRegistry(ctx)
	if err != nil {
		return nil, serviceError("Failed to poll targets", err)
	}
	return ids, nil
}

// WatchTargets returns a hold action that refreshes the registry on the
// node's refresh interval while pressed
func (ts *TargetServiceImpl) WatchTargets(onRefresh func(ids []int)) *fleet.HoldAction {
	return ts.node.WatchTargets(onRefresh)
}
