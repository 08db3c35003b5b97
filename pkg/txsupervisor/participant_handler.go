package txsupervisor

import (
	"context"
	"errors"

	"github.com/arlenko/cellhive/pkg/hiveid"
)

// ParticipantHandler is the server side a remote coordinator's
// WrappedParticipant talks to: it translates incoming Prepare/Commit/
// Abort/Ping/AvailabilityCheck calls into LocalTransactionManager
// operations and classifies the result into the wire error taxonomy.
// Every LocalTransactionManager failure is re-thrown to the caller,
// classified by classify, rather than swallowed: this cell has no basis to decide a
// local rejection is safe to ignore on the coordinator's behalf (see
// DESIGN.md's Open Question decision).
type ParticipantHandler struct {
	cfg            *Config
	localTxManager LocalTransactionManager
	selfTs         TimestampProvider
	log            *logger
}

func NewParticipantHandler(cfg *Config, localTxManager LocalTransactionManager, selfTs TimestampProvider, log *logger) *ParticipantHandler {
	return &ParticipantHandler{cfg: cfg, localTxManager: localTxManager, selfTs: selfTs, log: log}
}

// Prepare handles an incoming prepare request. persistent is always true
// here: only distributed commits reach a remote participant.
func (h *ParticipantHandler) Prepare(ctx context.Context, txID hiveid.TxId, prepareTimestamp hiveid.Timestamp, user string) error {
	if err := h.localTxManager.PrepareCommit(ctx, txID, true, prepareTimestamp, user); err != nil {
		return h.classify(err)
	}
	return nil
}

// Commit handles an incoming commit request. A NoSuchTransaction result
// from the local manager (e.g. the transaction was swept after its own
// finish) is returned as a CodeNoSuchTransaction error; the caller
// (coordinator) decides whether that counts as success.
func (h *ParticipantHandler) Commit(ctx context.Context, txID hiveid.TxId, commitTimestamp hiveid.Timestamp) error {
	if err := h.localTxManager.Commit(ctx, txID, commitTimestamp); err != nil {
		return h.classify(err)
	}
	return nil
}

// Abort handles an incoming abort request, forced: the coordinator only
// ever sends Abort once it has decided the transaction will not commit,
// so the participant must comply even if it has no independent record
// of an in-flight prepare.
func (h *ParticipantHandler) Abort(ctx context.Context, txID hiveid.TxId) error {
	if err := h.localTxManager.Abort(ctx, txID, true); err != nil {
		return h.classify(err)
	}
	return nil
}

// Ping extends txID's lease.
func (h *ParticipantHandler) Ping(ctx context.Context, txID hiveid.TxId, pingAncestors bool) error {
	if err := h.localTxManager.Ping(ctx, txID, pingAncestors); err != nil {
		return h.classify(err)
	}
	return nil
}

// TimestampProvider exposes the local timestamp oracle this handler was
// built with, for the RPC transport's GenerateTimestamp/LatestTimestamp
// calls.
func (h *ParticipantHandler) TimestampProvider() TimestampProvider {
	return h.selfTs
}

// AvailabilityCheck answers a probation poll from a coordinator that
// currently considers this cell down. No local transaction manager call
// is needed: reachability alone is the signal.
func (h *ParticipantHandler) AvailabilityCheck(ctx context.Context) error {
	return nil
}

// classify maps a LocalTransactionManager error onto the wire error
// taxonomy so the coordinator's WrappedParticipant can apply the
// succeed-on-unregistered and retry rules correctly.
func (h *ParticipantHandler) classify(err error) error {
	if err == nil {
		return nil
	}
	var he *HiveError
	if errors.As(err, &he) {
		return he
	}
	if errors.Is(err, ErrNoSuchTransaction) {
		return Wrap(CodeNoSuchTransaction, "no record of this transaction", err)
	}
	return Wrap(CodeFailed, "local transaction manager rejected request", err)
}
