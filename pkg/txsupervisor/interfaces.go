package txsupervisor

import (
	"context"
	"io"

	"github.com/arlenko/cellhive/pkg/hiveid"
)

// The types in this file are the boundary to every external collaborator:
// the replicated state machine, the local transaction manager, the
// timestamp provider, the participant transport, and the response
// keeper. The core never reaches past these interfaces.

// MutationHandler applies one replicated mutation and returns its result
// payload (opaque to the consensus layer).
type MutationHandler func(ctx context.Context, payload []byte) ([]byte, error)

// Consensus is the replicated state-machine layer the supervisor rides on
// top of (a Paxos/Raft-like "cell"). The core only ever uses a handful of
// operations: propose mutation, is-leader, is-recovering, register
// saver/loader, and get-current-mutation-context.
type Consensus interface {
	// IsLeader reports whether this replica currently leads the cell.
	IsLeader() bool

	// IsRecovering reports whether the replica is replaying its log
	// after a restart/failover, used to demote logging.
	IsRecovering() bool

	// RegisterMutationHandler binds a mutation type name to the handler
	// invoked on every replica when that mutation is applied, in log
	// order.
	RegisterMutationHandler(mutationType string, handler MutationHandler)

	// CommitMutation proposes payload under mutationType to the
	// replicated log and returns the registered handler's result once
	// the mutation has been committed and applied on this replica.
	CommitMutation(ctx context.Context, mutationType string, payload []byte) ([]byte, error)

	// RegisterSaver binds a named snapshot section writer, invoked in
	// registration order when a snapshot is built.
	RegisterSaver(name string, fn func(w io.Writer) error)

	// RegisterLoader binds a named snapshot section reader, invoked in
	// registration order when a snapshot is loaded.
	RegisterLoader(name string, fn func(r io.Reader) error)

	// CurrentMutationTimestamp returns a deterministic timestamp for use
	// while applying a mutation (so every replica computes the same
	// value), standing in for "get-current-mutation-context".
	CurrentMutationTimestamp() hiveid.Timestamp
}

// LocalTransactionManager owns row/resource-level transaction state. The
// core only calls prepare-commit/commit/prepare-abort/abort/ping.
type LocalTransactionManager interface {
	// PrepareCommit validates and (if persistent) durably records that
	// txID intends to commit at prepareTimestamp.
	PrepareCommit(ctx context.Context, txID hiveid.TxId, persistent bool, prepareTimestamp hiveid.Timestamp, user string) error

	// Commit applies txID's effects at commitTimestamp. Idempotent: a
	// repeated call for an already-committed tx succeeds.
	Commit(ctx context.Context, txID hiveid.TxId, commitTimestamp hiveid.Timestamp) error

	// PrepareAbort validates that txID can be aborted.
	PrepareAbort(ctx context.Context, txID hiveid.TxId, user string) error

	// Abort discards txID's effects. force bypasses validation the way
	// a best-effort cleanup abort must.
	Abort(ctx context.Context, txID hiveid.TxId, force bool) error

	// Ping extends txID's lease without affecting commit progress.
	Ping(ctx context.Context, txID hiveid.TxId, pingAncestors bool) error
}

// TimestampProvider supplies monotonic timestamps on demand, either the
// coordinator's own provider or a participant's (via ParticipantClient).
type TimestampProvider interface {
	GenerateTimestamp(ctx context.Context) (hiveid.Timestamp, error)
	LatestTimestamp() hiveid.Timestamp
}

// ParticipantClientState mirrors the underlying channel's validity, as
// reported by the transport layer.
type ParticipantClientState int

const (
	// ParticipantClientValid: the channel is usable.
	ParticipantClientValid ParticipantClientState = iota
	// ParticipantClientUnregistered: the peer cell is not (yet, or no
	// longer) a registered participant of this cluster.
	ParticipantClientUnregistered
	// ParticipantClientInvalid: the channel can never become usable
	// again (e.g. the peer cell was permanently removed).
	ParticipantClientInvalid
)

// ParticipantClient is the per-peer RPC surface a wrapped participant
// drives. Implementations live outside the core (the "low-level
// RPC transport" collaborator); the core only calls these five methods.
type ParticipantClient interface {
	Prepare(ctx context.Context, txID hiveid.TxId, prepareTimestamp hiveid.Timestamp) error
	Commit(ctx context.Context, txID hiveid.TxId, commitTimestamp hiveid.Timestamp) error
	Abort(ctx context.Context, txID hiveid.TxId) error
	AvailabilityCheck(ctx context.Context) error
	TimestampProvider() TimestampProvider
	State() ParticipantClientState
}

// ParticipantChannelProvider resolves a CellId to a fresh ParticipantClient.
// It may fail (e.g. unknown address, dial failure) in which case the
// wrapped participant reports Unavailable without requiring the peer to
// be reachable yet.
type ParticipantChannelProvider interface {
	GetClient(cellID hiveid.CellId) (ParticipantClient, error)
}

// ResponseKeeper caches a serialized RPC reply by MutationId so repeated
// submissions of the same logical request are served idempotently.
type ResponseKeeper interface {
	Get(mutationID hiveid.MutationId) ([]byte, bool)
	Put(mutationID hiveid.MutationId, response []byte)
}
