package txsupervisor

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/arlenko/cellhive/pkg/hiveid"
	"github.com/arlenko/cellhive/pkg/wireframe"
)

// Mutation type names proposed to the replicated log. Every replica
// applies these deterministically, in log order.
const (
	mutationCommitSimple       = "CoordinatorCommitSimpleTransaction"
	mutationCommitPhaseOne     = "CoordinatorCommitDistributedTransactionPhaseOne"
	mutationCommitPhaseTwo     = "CoordinatorCommitDistributedTransactionPhaseTwo"
	mutationAbortPhaseTwo      = "CoordinatorAbortDistributedTransactionPhaseTwo"
	mutationFinishDistributed  = "CoordinatorFinishDistributedTransaction"
	mutationAbortTransaction   = "CoordinatorAbortTransaction"
)

// Supervisor is the coordinator state machine: it owns the
// transient and persistent commit/abort maps, drives the 2PC fan-out to
// participants, and is the target every mutation handler closes over.
// Field access from mutation handlers and their response continuations
// is serialized by mu; the heavier per-participant RPC work happens
// outside the lock in background goroutines.
type Supervisor struct {
	cfg            *Config
	consensus      Consensus
	localTxManager LocalTransactionManager
	selfTs         TimestampProvider
	registry       *ParticipantRegistry
	tsCombiner     *TimestampCombiner
	responseKeeper ResponseKeeper
	log            *logger
	automaton      *Automaton

	mu                sync.Mutex
	transientCommits  map[hiveid.TxId]*Commit
	persistentCommits map[hiveid.TxId]*Commit
	transientAborts   map[hiveid.TxId]*Abort
	decommissioned    bool
	pendingLoad       *pendingLoad
}

// NewSupervisor wires a Supervisor over its external collaborators. The
// caller (cmd/cellhived, see lifecycle.go) registers mutation handlers
// separately via RegisterMutationHandlers once the consensus layer is
// ready.
func NewSupervisor(
	cfg *Config,
	consensus Consensus,
	localTxManager LocalTransactionManager,
	selfTs TimestampProvider,
	provider ParticipantChannelProvider,
	responseKeeper ResponseKeeper,
) *Supervisor {
	log := newLogger(consensus.IsRecovering)
	registry := NewParticipantRegistry(provider, cfg, log)
	return &Supervisor{
		cfg:               cfg,
		consensus:         consensus,
		localTxManager:    localTxManager,
		selfTs:            selfTs,
		registry:          registry,
		tsCombiner:        NewTimestampCombiner(cfg.SelfCellID, selfTs, registry),
		responseKeeper:    responseKeeper,
		log:               log,
		automaton:         NewAutomaton(),
		transientCommits:  make(map[hiveid.TxId]*Commit),
		persistentCommits: make(map[hiveid.TxId]*Commit),
		transientAborts:   make(map[hiveid.TxId]*Abort),
	}
}

// RegisterMutationHandlers binds every coordinator mutation to consensus.
// Called once at startup (lifecycle.go), before the replica can become
// leader.
func (s *Supervisor) RegisterMutationHandlers() {
	s.consensus.RegisterMutationHandler(mutationCommitSimple, s.coordinatorCommitSimpleTransaction)
	s.consensus.RegisterMutationHandler(mutationCommitPhaseOne, s.coordinatorCommitDistributedTransactionPhaseOne)
	s.consensus.RegisterMutationHandler(mutationCommitPhaseTwo, s.coordinatorCommitDistributedTransactionPhaseTwo)
	s.consensus.RegisterMutationHandler(mutationAbortPhaseTwo, s.coordinatorAbortDistributedTransactionPhaseTwo)
	s.consensus.RegisterMutationHandler(mutationFinishDistributed, s.coordinatorFinishDistributedTransaction)
	s.consensus.RegisterMutationHandler(mutationAbortTransaction, s.coordinatorAbortTransactionMutation)
}

// --- entry points ---

// CommitRequest bundles the arguments accepted over RPC for starting a
// commit (see pkg/hiverpc for the wire-level service definition).
type CommitRequest struct {
	TxId                     hiveid.TxId
	MutationId               hiveid.MutationId
	UserName                 string
	ParticipantCellIds       []hiveid.CellId
	Distributed              bool
	GeneratePrepareTimestamp bool
	InheritCommitTimestamp   bool
	CoordinatorCommitMode    CoordinatorCommitMode
}

// CoordinatorCommitTransaction is the RPC entry point for starting a
// commit. It is idempotent: a repeated submission after completion
// returns the reply cached under its MutationId, and one made while a
// commit for the same TxId is still in flight waits on that commit's
// response promise rather than re-running 2PC.
func (s *Supervisor) CoordinatorCommitTransaction(ctx context.Context, req CommitRequest) ([]byte, error) {
	if !req.MutationId.IsNull() {
		if cached, ok := s.responseKeeper.Get(req.MutationId); ok {
			return cached, nil
		}
	}
	if existing := s.getTransientCommit(req.TxId); existing != nil {
		return existing.ResponsePromise().Wait(ctx)
	}
	if !s.consensus.IsLeader() {
		return nil, Wrap(CodeFailed, "cannot start commit", ErrNotLeading)
	}
	if req.Distributed && s.isDecommissionFlagSet() {
		return nil, NewHiveError(CodeDecommissioned, "cell is decommissioning, refusing new distributed commits")
	}

	mutationType := mutationCommitSimple
	if req.Distributed {
		mutationType = mutationCommitPhaseOne
	}

	payload := wireframe.EncodeCommitRecord(wireframe.CommitRecord{
		TxId:                     req.TxId,
		MutationId:               req.MutationId,
		ParticipantCellIds:       req.ParticipantCellIds,
		Distributed:              req.Distributed,
		GeneratePrepareTimestamp: req.GeneratePrepareTimestamp,
		InheritCommitTimestamp:   req.InheritCommitTimestamp,
		CoordinatorCommitMode:    uint32(req.CoordinatorCommitMode),
		UserName:                 req.UserName,
	})

	result, err := s.consensus.CommitMutation(ctx, mutationType, payload)
	if err != nil {
		return nil, err
	}
	if !req.Distributed {
		// The simple-commit handler resolves and forgets its transient
		// commit before returning, so its result is the reply.
		return result, nil
	}

	commit := s.getTransientCommit(req.TxId)
	if commit == nil {
		return nil, ErrCommitNotFound
	}
	return commit.ResponsePromise().Wait(ctx)
}

// CoordinatorAbortTransaction is the RPC entry point for explicitly
// aborting a transaction outside of a commit's own abort path. force
// bypasses the local transaction manager's validation the way a
// best-effort cleanup abort must; user identifies the caller to the
// local manager's prepare-abort check.
func (s *Supervisor) CoordinatorAbortTransaction(ctx context.Context, txID hiveid.TxId, mutationID hiveid.MutationId, force bool, user string) ([]byte, error) {
	if !mutationID.IsNull() {
		if cached, ok := s.responseKeeper.Get(mutationID); ok {
			return cached, nil
		}
	}
	if !s.consensus.IsLeader() {
		return nil, Wrap(CodeFailed, "cannot start abort", ErrNotLeading)
	}

	s.mu.Lock()
	if existing, ok := s.transientAborts[txID]; ok {
		s.mu.Unlock()
		return existing.ResponsePromise().Wait(ctx)
	}
	abort := NewAbort(txID, mutationID)
	s.transientAborts[txID] = abort
	s.mu.Unlock()

	if err := s.localTxManager.PrepareAbort(ctx, txID, user); err != nil {
		abort.SetFailed(s.responseKeeper, Wrap(CodeFailed, "prepare abort rejected", err))
		s.forgetTransientAbort(txID)
		return abort.ResponsePromise().Wait(ctx)
	}

	payload := wireframe.EncodeCommitRecord(wireframe.CommitRecord{TxId: txID, MutationId: mutationID, Force: force, UserName: user})
	if _, err := s.consensus.CommitMutation(ctx, mutationAbortTransaction, payload); err != nil {
		return nil, err
	}
	return abort.ResponsePromise().Wait(ctx)
}

// --- mutation handlers ---

func (s *Supervisor) coordinatorCommitSimpleTransaction(ctx context.Context, payload []byte) ([]byte, error) {
	rec, err := wireframe.DecodeCommitRecord(payload, s.cfg.SnapshotSchemaVersion)
	if err != nil {
		return nil, err
	}

	commit := NewCommit(rec.TxId, rec.MutationId, rec.UserName, nil, false,
		rec.GeneratePrepareTimestamp, rec.InheritCommitTimestamp, CoordinatorCommitMode(rec.CoordinatorCommitMode))

	s.mu.Lock()
	if _, exists := s.transientCommits[commit.TxID()]; exists {
		s.mu.Unlock()
		return nil, ErrCommitAlreadyExists
	}
	s.transientCommits[commit.TxID()] = commit
	s.mu.Unlock()
	defer s.forgetTransientCommit(commit.TxID())

	ts := s.consensus.CurrentMutationTimestamp()
	if err := s.localTxManager.PrepareCommit(ctx, commit.TxID(), false, ts, commit.UserName()); err != nil {
		commit.SetFailed(s.responseKeeper, Wrap(CodeFailed, "prepare commit rejected", err))
		return commit.ResponsePromise().Wait(ctx)
	}
	if err := s.localTxManager.Commit(ctx, commit.TxID(), ts); err != nil {
		commit.SetFailed(s.responseKeeper, Wrap(CodeFailed, "commit rejected", err))
		return commit.ResponsePromise().Wait(ctx)
	}

	commit.SetCommitTimestamps(hiveid.TimestampMap{s.cfg.SelfCellID.Tag(): ts})
	commit.SetSucceeded(s.responseKeeper, []wireframe.TimestampEntry{{CellTag: s.cfg.SelfCellID.Tag(), Timestamp: ts}})
	return commit.ResponsePromise().Wait(ctx)
}

func (s *Supervisor) coordinatorCommitDistributedTransactionPhaseOne(ctx context.Context, payload []byte) ([]byte, error) {
	rec, err := wireframe.DecodeCommitRecord(payload, s.cfg.SnapshotSchemaVersion)
	if err != nil {
		return nil, err
	}

	commit := NewCommit(rec.TxId, rec.MutationId, rec.UserName, rec.ParticipantCellIds, true,
		rec.GeneratePrepareTimestamp, rec.InheritCommitTimestamp, CoordinatorCommitMode(rec.CoordinatorCommitMode))
	commit.SetPersistent(true)
	commit.SetTransientState(CommitStatePrepare)
	commit.SetPersistentState(CommitStatePrepare)

	s.mu.Lock()
	if _, exists := s.transientCommits[commit.TxID()]; exists {
		s.mu.Unlock()
		return nil, ErrCommitAlreadyExists
	}
	s.transientCommits[commit.TxID()] = commit
	s.persistentCommits[commit.TxID()] = commit
	s.mu.Unlock()

	ts := s.consensus.CurrentMutationTimestamp()
	if err := s.localTxManager.PrepareCommit(ctx, commit.TxID(), true, ts, commit.UserName()); err != nil {
		s.log.Errorf("transaction %s: local prepare commit rejected: %v", commit.TxID(), err)
		s.triggerForceAbort(commit)
		return nil, nil
	}

	if s.consensus.IsLeader() {
		go s.runPhaseOneFanOut(commit)
	}
	return nil, nil
}

func (s *Supervisor) runPhaseOneFanOut(commit *Commit) {
	for _, cellID := range commit.ParticipantCellIds() {
		if cellID == s.cfg.SelfCellID {
			s.onParticipantPrepareResponse(commit, cellID, nil)
			continue
		}
		go func(cellID hiveid.CellId) {
			participant := s.registry.GetParticipant(cellID)
			prepareTs, err := s.tsCombiner.GeneratePrepareTimestamp(commit, participant)
			if err == nil {
				err = participant.Prepare(context.Background(), commit.TxID(), prepareTs)
			}
			s.onParticipantPrepareResponse(commit, cellID, err)
		}(cellID)
	}
}

// runOnAutomaton schedules fn on the automaton goroutine and blocks
// until it has run, so callers can safely read back whatever fn
// decided. Used for every check-and-transition on a Commit/Abort's
// transient state that is reached from a participant-RPC goroutine
// rather than from a mutation handler (which is already serialized by
// the consensus layer's own apply loop).
func (s *Supervisor) runOnAutomaton(fn func()) {
	doneCh := make(chan struct{})
	s.automaton.Enqueue(func() {
		fn()
		close(doneCh)
	})
	<-doneCh
}

func (s *Supervisor) onParticipantPrepareResponse(commit *Commit, cellID hiveid.CellId, err error) {
	if err != nil {
		s.log.Errorf("transaction %s: participant %s failed to prepare: %v", commit.TxID(), cellID, err)
		s.triggerForceAbort(commit)
		return
	}
	var allResponded bool
	s.runOnAutomaton(func() {
		allResponded = commit.MarkResponded(cellID)
	})
	if allResponded {
		s.beginPhaseTwoCommit(commit)
	}
}

func (s *Supervisor) beginPhaseTwoCommit(commit *Commit) {
	var proceed bool
	s.runOnAutomaton(func() {
		if commit.TransientState() == CommitStatePrepare {
			commit.SetTransientState(CommitStateGeneratingCommitTimestamps)
			proceed = true
		}
	})
	if !proceed {
		return
	}

	timestamps, err := s.tsCombiner.GenerateCommitTimestamps(context.Background(), commit)
	if err != nil {
		s.log.Errorf("transaction %s: commit timestamp generation failed: %v", commit.TxID(), err)
		s.triggerForceAbort(commit)
		return
	}

	payload := wireframe.EncodeCommitRecord(wireframe.CommitRecord{
		TxId:             commit.TxID(),
		CommitTimestamps: timestamps,
	})
	if _, err := s.consensus.CommitMutation(context.Background(), mutationCommitPhaseTwo, payload); err != nil {
		s.log.Errorf("transaction %s: failed to propose phase two: %v", commit.TxID(), err)
	}
}

func (s *Supervisor) coordinatorCommitDistributedTransactionPhaseTwo(ctx context.Context, payload []byte) ([]byte, error) {
	rec, err := wireframe.DecodeCommitRecord(payload, s.cfg.SnapshotSchemaVersion)
	if err != nil {
		return nil, err
	}

	commit := s.getTransientCommit(rec.TxId)
	if commit == nil {
		return nil, ErrCommitNotFound
	}
	if commit.TransientState() == CommitStateCommit || commit.TransientState() == CommitStateFinishing {
		return nil, nil
	}

	commit.SetCommitTimestamps(rec.CommitTimestamps)
	commit.SetTransientState(CommitStateCommit)
	commit.SetPersistentState(CommitStateCommit)

	selfTs := commit.CommitTimestamps()[s.cfg.SelfCellID.Tag()]
	if commit.CoordinatorCommitMode() == CoordinatorCommitModeEager {
		if err := s.localTxManager.Commit(ctx, commit.TxID(), selfTs); err != nil {
			s.log.Errorf("transaction %s: local eager commit failed: %v", commit.TxID(), err)
		}
	}

	if s.consensus.IsLeader() {
		go s.runPhaseTwoFanOut(commit)
	}
	return nil, nil
}

func (s *Supervisor) runPhaseTwoFanOut(commit *Commit) {
	timestamps := commit.CommitTimestamps()
	for _, cellID := range commit.ParticipantCellIds() {
		if cellID == s.cfg.SelfCellID {
			s.onParticipantCommitResponse(commit, cellID, nil)
			continue
		}
		go func(cellID hiveid.CellId) {
			participant := s.registry.GetParticipant(cellID)
			ts := timestamps[cellID.Tag()]
			err := participant.Commit(context.Background(), commit.TxID(), ts)
			if err != nil {
				s.log.Debugf("transaction %s: participant %s commit deferred, retrying: %v", commit.TxID(), cellID, err)
				err = participant.RetryCommit(context.Background(), commit.TxID(), ts)
			}
			s.onParticipantCommitResponse(commit, cellID, err)
		}(cellID)
	}
}

func (s *Supervisor) onParticipantCommitResponse(commit *Commit, cellID hiveid.CellId, err error) {
	if IsNoSuchTransaction(err) {
		// The participant has already forgotten this transaction: it
		// must have applied (and since forgotten) the commit through
		// another path. Treat as success rather than retry forever.
		err = nil
	}
	if err != nil {
		// Commit never truly fails once phase two has started; keep
		// retrying instead of forcing a state transition.
		s.log.Errorf("transaction %s: participant %s commit retry failed, will keep retrying: %v", commit.TxID(), cellID, err)
		go func() {
			retryErr := s.registry.GetParticipant(cellID).RetryCommit(context.Background(), commit.TxID(), commit.CommitTimestamps()[cellID.Tag()])
			s.onParticipantCommitResponse(commit, cellID, retryErr)
		}()
		return
	}
	var allResponded bool
	s.runOnAutomaton(func() {
		allResponded = commit.MarkResponded(cellID)
	})
	if allResponded {
		s.beginFinish(commit)
	}
}

func (s *Supervisor) beginFinish(commit *Commit) {
	var proceed bool
	s.runOnAutomaton(func() {
		proceed = commit.TransientState() == CommitStateCommit || commit.TransientState() == CommitStateAbort
	})
	if !proceed {
		return
	}
	payload := wireframe.EncodeCommitRecord(wireframe.CommitRecord{TxId: commit.TxID()})
	if _, err := s.consensus.CommitMutation(context.Background(), mutationFinishDistributed, payload); err != nil {
		s.log.Errorf("transaction %s: failed to propose finish: %v", commit.TxID(), err)
	}
}

// triggerForceAbort proposes the forced-abort mutation, best-effort: the
// leader alone proposes it, and nothing is proposed once the commit's
// transient state is Aborting, Abort or Finishing. Concurrent triggers
// may each propose the mutation; the abort handler ignores every one
// that arrives after the commit has reached Abort.
func (s *Supervisor) triggerForceAbort(commit *Commit) {
	if !s.consensus.IsLeader() {
		return
	}
	var shouldTrigger bool
	s.runOnAutomaton(func() {
		switch commit.TransientState() {
		case CommitStateAborting, CommitStateAbort, CommitStateFinishing:
			shouldTrigger = false
		default:
			shouldTrigger = true
		}
	})
	if !shouldTrigger {
		return
	}
	payload := wireframe.EncodeCommitRecord(wireframe.CommitRecord{TxId: commit.TxID()})
	go func() {
		if _, err := s.consensus.CommitMutation(context.Background(), mutationAbortPhaseTwo, payload); err != nil {
			s.log.Errorf("transaction %s: failed to propose forced abort: %v", commit.TxID(), err)
		}
	}()
}

func (s *Supervisor) coordinatorAbortDistributedTransactionPhaseTwo(ctx context.Context, payload []byte) ([]byte, error) {
	rec, err := wireframe.DecodeCommitRecord(payload, s.cfg.SnapshotSchemaVersion)
	if err != nil {
		return nil, err
	}
	commit := s.getTransientCommit(rec.TxId)
	if commit == nil {
		return nil, ErrCommitNotFound
	}
	if commit.TransientState() == CommitStateAbort || commit.TransientState() == CommitStateFinishing {
		return nil, nil
	}

	commit.SetTransientState(CommitStateAborting)
	commit.SetTransientState(CommitStateAbort)
	commit.SetPersistentState(CommitStateAbort)

	if err := s.localTxManager.Abort(ctx, commit.TxID(), true); err != nil {
		s.log.Errorf("transaction %s: local forced abort failed: %v", commit.TxID(), err)
	}

	if s.consensus.IsLeader() {
		go s.runAbortFanOut(commit)
	}
	return nil, nil
}

func (s *Supervisor) runAbortFanOut(commit *Commit) {
	for _, cellID := range commit.ParticipantCellIds() {
		if cellID == s.cfg.SelfCellID {
			s.onParticipantAbortResponse(commit, cellID, nil)
			continue
		}
		go func(cellID hiveid.CellId) {
			participant := s.registry.GetParticipant(cellID)
			err := participant.Abort(context.Background(), commit.TxID())
			if err != nil {
				err = participant.RetryAbort(context.Background(), commit.TxID())
			}
			s.onParticipantAbortResponse(commit, cellID, err)
		}(cellID)
	}
}

func (s *Supervisor) onParticipantAbortResponse(commit *Commit, cellID hiveid.CellId, err error) {
	if IsNoSuchTransaction(err) {
		err = nil
	}
	if err != nil {
		s.log.Errorf("transaction %s: participant %s abort retry failed, will keep retrying: %v", commit.TxID(), cellID, err)
		go func() {
			retryErr := s.registry.GetParticipant(cellID).RetryAbort(context.Background(), commit.TxID())
			s.onParticipantAbortResponse(commit, cellID, retryErr)
		}()
		return
	}
	var allResponded bool
	s.runOnAutomaton(func() {
		allResponded = commit.MarkResponded(cellID)
	})
	if allResponded {
		s.beginFinish(commit)
	}
}

func (s *Supervisor) coordinatorFinishDistributedTransaction(ctx context.Context, payload []byte) ([]byte, error) {
	rec, err := wireframe.DecodeCommitRecord(payload, s.cfg.SnapshotSchemaVersion)
	if err != nil {
		return nil, err
	}
	commit := s.getTransientCommit(rec.TxId)
	if commit == nil {
		return nil, ErrCommitNotFound
	}

	commit.SetTransientState(CommitStateFinishing)

	var result []byte
	switch commit.PersistentState() {
	case CommitStateCommit:
		if commit.CoordinatorCommitMode() == CoordinatorCommitModeLazy {
			ts := commit.CommitTimestamps()[s.cfg.SelfCellID.Tag()]
			if err := s.localTxManager.Commit(ctx, commit.TxID(), ts); err != nil {
				s.log.Errorf("transaction %s: lazy local commit failed at finish: %v", commit.TxID(), err)
			}
		}
		commit.SetSucceeded(s.responseKeeper, entriesFromTimestamps(commit.CommitTimestamps()))
		result, _ = commit.ResponsePromise().Wait(ctx)
	case CommitStateAbort:
		commit.SetFailed(s.responseKeeper, NewHiveError(CodeAborted, "transaction was aborted"))
		result, _ = commit.ResponsePromise().Wait(ctx)
	}

	s.mu.Lock()
	delete(s.transientCommits, commit.TxID())
	delete(s.persistentCommits, commit.TxID())
	s.mu.Unlock()

	return result, nil
}

func (s *Supervisor) coordinatorAbortTransactionMutation(ctx context.Context, payload []byte) ([]byte, error) {
	rec, err := wireframe.DecodeCommitRecord(payload, s.cfg.SnapshotSchemaVersion)
	if err != nil {
		return nil, err
	}

	// The leader already created the transient abort entity in
	// CoordinatorAbortTransaction; every other replica (and the leader
	// itself, on recovery replay) sees this mutation with no prior
	// entity and creates it fresh.
	s.mu.Lock()
	abort, exists := s.transientAborts[rec.TxId]
	if !exists {
		abort = NewAbort(rec.TxId, rec.MutationId)
		s.transientAborts[rec.TxId] = abort
	}
	s.mu.Unlock()
	defer s.forgetTransientAbort(abort.TxID())

	if err := s.localTxManager.Abort(ctx, abort.TxID(), rec.Force); err != nil {
		abort.SetFailed(s.responseKeeper, Wrap(CodeFailed, "abort rejected", err))
		return abort.ResponsePromise().Wait(ctx)
	}

	// A concurrent in-flight commit of the same transaction must not be
	// orphaned: resolve its response promise and fold its state into
	// the abort outcome rather than leaving it to wait forever.
	if commit := s.getTransientCommit(abort.TxID()); commit != nil {
		commit.SetFailed(s.responseKeeper, NewHiveError(CodeAborted, "transaction was aborted"))
		if commit.Persistent() {
			commit.SetTransientState(CommitStateAbort)
			commit.SetPersistentState(CommitStateAbort)
		} else {
			s.forgetTransientCommit(commit.TxID())
		}
	}

	abort.SetSucceeded(s.responseKeeper)
	return abort.ResponsePromise().Wait(ctx)
}

// --- accessors shared with persistence.go, decommission.go, lifecycle.go ---

func (s *Supervisor) getTransientCommit(txID hiveid.TxId) *Commit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transientCommits[txID]
}

func (s *Supervisor) forgetTransientCommit(txID hiveid.TxId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transientCommits, txID)
}

func (s *Supervisor) forgetTransientAbort(txID hiveid.TxId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transientAborts, txID)
}

func (s *Supervisor) persistentKeysSnapshot() []hiveid.TxId {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]hiveid.TxId, 0, len(s.persistentCommits))
	for k := range s.persistentCommits {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	return keys
}

func (s *Supervisor) persistentCommit(txID hiveid.TxId) (*Commit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.persistentCommits[txID]
	return c, ok
}

func (s *Supervisor) clearPersistentCommits() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistentCommits = make(map[hiveid.TxId]*Commit)
	s.transientCommits = make(map[hiveid.TxId]*Commit)
}

func (s *Supervisor) restorePersistentCommit(c *Commit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistentCommits[c.TxID()] = c
	s.transientCommits[c.TxID()] = c
}

func (s *Supervisor) isDecommissionFlagSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decommissioned
}

func (s *Supervisor) setDecommissionFlag(v bool) {
	s.mu.Lock()
	s.decommissioned = v
	s.mu.Unlock()
}

func entriesFromTimestamps(m hiveid.TimestampMap) []wireframe.TimestampEntry {
	entries := make([]wireframe.TimestampEntry, 0, len(m))
	for tag, ts := range m {
		entries = append(entries, wireframe.TimestampEntry{CellTag: tag, Timestamp: ts})
	}
	return entries
}
