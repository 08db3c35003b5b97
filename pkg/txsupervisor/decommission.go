package txsupervisor

import (
	"context"
	"fmt"
	"time"
)

const mutationSetDecommissioned = "CoordinatorSetDecommissioned"

// DecommissionController drives the supplemented decommission
// workflow: an operator marks a cell
// decommissioning, new distributed commits are refused from that point
// on (checked in CoordinatorCommitTransaction), and the controller
// reports once every persistent commit has drained so the cell can be
// safely retired.
type DecommissionController struct {
	sup *Supervisor
}

func NewDecommissionController(sup *Supervisor) *DecommissionController {
	return &DecommissionController{sup: sup}
}

// Register binds the decommission mutation handler to consensus.
func (d *DecommissionController) Register() {
	d.sup.consensus.RegisterMutationHandler(mutationSetDecommissioned, d.coordinatorSetDecommissioned)
}

// TriggerDecommission proposes setting the decommission flag. Once
// applied, every replica (including future leaders) refuses new
// distributed commits.
func (d *DecommissionController) TriggerDecommission(ctx context.Context) error {
	if !d.sup.consensus.IsLeader() {
		return Wrap(CodeFailed, "cannot trigger decommission", ErrNotLeading)
	}
	_, err := d.sup.consensus.CommitMutation(ctx, mutationSetDecommissioned, []byte{1})
	return err
}

// Rescind clears the decommission flag, allowing this cell to resume
// accepting distributed commits.
func (d *DecommissionController) Rescind(ctx context.Context) error {
	if !d.sup.consensus.IsLeader() {
		return Wrap(CodeFailed, "cannot rescind decommission", ErrNotLeading)
	}
	_, err := d.sup.consensus.CommitMutation(ctx, mutationSetDecommissioned, []byte{0})
	return err
}

func (d *DecommissionController) coordinatorSetDecommissioned(ctx context.Context, payload []byte) ([]byte, error) {
	if len(payload) != 1 {
		return nil, fmt.Errorf("decommission: malformed payload length %d", len(payload))
	}
	d.sup.setDecommissionFlag(payload[0] != 0)
	return nil, nil
}

// IsDecommissioning reports whether this cell currently refuses new
// distributed commits.
func (d *DecommissionController) IsDecommissioning() bool {
	return d.sup.isDecommissionFlagSet()
}

// Drained reports whether every persistent commit has finished, the
// precondition for actually retiring a decommissioning cell.
func (d *DecommissionController) Drained() bool {
	return len(d.sup.persistentKeysSnapshot()) == 0
}

// WaitUntilDrained blocks until Drained() or ctx is done, polling at the
// given interval. Intended for an admin-triggered "decommission and
// wait" flow (pkg/admin).
func (d *DecommissionController) WaitUntilDrained(ctx context.Context, pollInterval time.Duration) error {
	if d.Drained() {
		return nil
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if d.Drained() {
				return nil
			}
		}
	}
}
