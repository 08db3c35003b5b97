package txsupervisor

import (
	"sync"

	"github.com/arlenko/cellhive/pkg/hiveid"
	"github.com/arlenko/cellhive/pkg/wireframe"
)

// CommitState is the commit entity's position in its state chain:
// Start -> Prepare -> (GeneratingCommitTimestamps) -> Commit ->
// (Finishing); or Start/Prepare -> (Aborting) -> Abort -> (Finishing).
// States in parentheses are transient-only.
type CommitState int

const (
	CommitStateStart CommitState = iota
	CommitStatePrepare
	CommitStateGeneratingCommitTimestamps // transient only
	CommitStateCommit
	CommitStateAborting // transient only
	CommitStateAbort
	CommitStateFinishing // transient only
)

func (s CommitState) String() string {
	switch s {
	case CommitStateStart:
		return "Start"
	case CommitStatePrepare:
		return "Prepare"
	case CommitStateGeneratingCommitTimestamps:
		return "GeneratingCommitTimestamps"
	case CommitStateCommit:
		return "Commit"
	case CommitStateAborting:
		return "Aborting"
	case CommitStateAbort:
		return "Abort"
	case CommitStateFinishing:
		return "Finishing"
	default:
		return "Unknown"
	}
}

// Commit is the per-transaction coordination record. The identifying
// fields below are set once at construction and never change; the
// mutable ones are reached both from a mutation handler's consensus-apply
// goroutine and from a participant-RPC goroutine's automaton continuation,
// so mu guards them directly rather than relying on the automaton alone
// to serialize access.
type Commit struct {
	txID               hiveid.TxId
	mutationID         hiveid.MutationId
	userName           string
	participantCellIds []hiveid.CellId

	distributed              bool
	generatePrepareTimestamp bool
	inheritCommitTimestamp   bool
	coordinatorCommitMode    CoordinatorCommitMode

	mu sync.Mutex

	persistent bool

	transientState  CommitState
	persistentState CommitState

	commitTimestamps hiveid.TimestampMap
	respondedCellIds map[hiveid.CellId]struct{}

	responsePromise *Promise[[]byte]
}

// NewCommit creates a transient commit entity for txID.
func NewCommit(
	txID hiveid.TxId,
	mutationID hiveid.MutationId,
	userName string,
	participantCellIds []hiveid.CellId,
	distributed bool,
	generatePrepareTimestamp bool,
	inheritCommitTimestamp bool,
	mode CoordinatorCommitMode,
) *Commit {
	return &Commit{
		txID:                     txID,
		mutationID:               mutationID,
		userName:                 userName,
		participantCellIds:       participantCellIds,
		distributed:              distributed,
		generatePrepareTimestamp: generatePrepareTimestamp,
		inheritCommitTimestamp:   inheritCommitTimestamp,
		coordinatorCommitMode:    mode,
		respondedCellIds:         make(map[hiveid.CellId]struct{}),
		responsePromise:          NewPromise[[]byte](),
	}
}

func (c *Commit) TxID() hiveid.TxId { return c.txID }
func (c *Commit) MutationID() hiveid.MutationId { return c.mutationID }
func (c *Commit) UserName() string { return c.userName }
func (c *Commit) ParticipantCellIds() []hiveid.CellId { return c.participantCellIds }
func (c *Commit) Distributed() bool { return c.distributed }
func (c *Commit) GeneratePrepareTimestamp() bool { return c.generatePrepareTimestamp }
func (c *Commit) InheritCommitTimestamp() bool { return c.inheritCommitTimestamp }
func (c *Commit) CoordinatorCommitMode() CoordinatorCommitMode { return c.coordinatorCommitMode }

func (c *Commit) Persistent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persistent
}

func (c *Commit) SetPersistent(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persistent = v
}

func (c *Commit) TransientState() CommitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transientState
}

func (c *Commit) PersistentState() CommitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persistentState
}

// SetTransientState updates the transient state and clears
// respondedCellIds: every transient state change starts a fresh round
// of participant responses, including the Commit -> Finishing step.
func (c *Commit) SetTransientState(s CommitState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transientState = s
	c.respondedCellIds = make(map[hiveid.CellId]struct{})
}

func (c *Commit) SetPersistentState(s CommitState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persistentState = s
}

func (c *Commit) CommitTimestamps() hiveid.TimestampMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commitTimestamps
}

func (c *Commit) SetCommitTimestamps(m hiveid.TimestampMap) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commitTimestamps = m
}

// RespondedCellIds returns the set of participants that have
// acknowledged the current transient state.
func (c *Commit) RespondedCellIds() map[hiveid.CellId]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.respondedCellIds
}

// MarkResponded inserts cellID into the responded set (duplicates
// tolerated) and reports whether every participant has now responded.
func (c *Commit) MarkResponded(cellID hiveid.CellId) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.respondedCellIds[cellID] = struct{}{}
	if len(c.respondedCellIds) < len(c.participantCellIds) {
		return false
	}
	for _, p := range c.participantCellIds {
		if _, ok := c.respondedCellIds[p]; !ok {
			return false
		}
	}
	return true
}

// ResponsePromise returns the write-once future of the serialized
// response frame.
func (c *Commit) ResponsePromise() *Promise[[]byte] {
	return c.responsePromise
}

// SetSucceeded resolves the response promise with a success frame
// carrying entries, and caches it in keeper under MutationID when
// non-null.
func (c *Commit) SetSucceeded(keeper ResponseKeeper, entries []wireframe.TimestampEntry) {
	frame := wireframe.EncodeSuccess(entries)
	if c.responsePromise.Resolve(frame) && keeper != nil && !c.mutationID.IsNull() {
		keeper.Put(c.mutationID, frame)
	}
}

// SetFailed resolves the response promise with a failure frame built
// from err, and caches it the same way SetSucceeded does.
func (c *Commit) SetFailed(keeper ResponseKeeper, err *HiveError) {
	frame := wireframe.EncodeFailure(string(err.Code), err.Error())
	if c.responsePromise.Resolve(frame) && keeper != nil && !c.mutationID.IsNull() {
		keeper.Put(c.mutationID, frame)
	}
}

// ToRecord projects the commit's persistent attributes for snapshotting.
func (c *Commit) ToRecord() wireframe.CommitRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wireframe.CommitRecord{
		TxId:                     c.txID,
		MutationId:               c.mutationID,
		ParticipantCellIds:       c.participantCellIds,
		Distributed:              c.distributed,
		GeneratePrepareTimestamp: c.generatePrepareTimestamp,
		InheritCommitTimestamp:   c.inheritCommitTimestamp,
		CoordinatorCommitMode:    uint32(c.coordinatorCommitMode),
		UserName:                 c.userName,
		PersistentState:          uint32(c.persistentState),
		CommitTimestamps:         c.commitTimestamps,
	}
}

// CommitFromRecord reconstructs a persistent commit entity from a
// snapshot record. The transient state starts at Start; lifecycle.go's
// leader-activation replay sets it to PersistentState.
func CommitFromRecord(r wireframe.CommitRecord) *Commit {
	c := &Commit{
		txID:                     r.TxId,
		mutationID:               r.MutationId,
		userName:                 r.UserName,
		participantCellIds:       r.ParticipantCellIds,
		distributed:              r.Distributed,
		generatePrepareTimestamp: r.GeneratePrepareTimestamp,
		inheritCommitTimestamp:   r.InheritCommitTimestamp,
		coordinatorCommitMode:    CoordinatorCommitMode(r.CoordinatorCommitMode),
		persistent:               true,
		persistentState:          CommitState(r.PersistentState),
		transientState:           CommitStateStart,
		commitTimestamps:         r.CommitTimestamps,
		respondedCellIds:         make(map[hiveid.CellId]struct{}),
		responsePromise:          NewPromise[[]byte](),
	}
	return c
}
