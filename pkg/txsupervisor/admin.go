package txsupervisor

import (
	"fmt"
	"io"
	"sort"

	"github.com/arlenko/cellhive/pkg/hiveid"
)

// snapshotSaver is an optional capability of the consensus collaborator:
// a consensus layer that supports on-demand snapshotting implements it.
// Not part of the Consensus interface itself because not every consensus
// implementation can snapshot on command (a Raft log replay target, for
// instance, only saves at its own checkpoints).
type snapshotSaver interface {
	SaveSnapshot(w io.Writer) error
}

// CommitSummary is a status-only projection of a persistent commit, for
// an operator surface that must never see transaction payloads.
type CommitSummary struct {
	TxId               hiveid.TxId
	UserName           string
	ParticipantCellIds []hiveid.CellId
	Distributed        bool
	PersistentState    CommitState
}

// PersistentCommitSummaries lists every commit this cell is still
// carrying persistent state for, in TxId order.
func (s *Supervisor) PersistentCommitSummaries() []CommitSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]CommitSummary, 0, len(s.persistentCommits))
	for _, c := range s.persistentCommits {
		out = append(out, CommitSummary{
			TxId:               c.TxID(),
			UserName:           c.UserName(),
			ParticipantCellIds: c.ParticipantCellIds(),
			Distributed:        c.Distributed(),
			PersistentState:    c.PersistentState(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].TxId[:]) < string(out[j].TxId[:])
	})
	return out
}

// Registry exposes the participant registry for an operator surface's
// downed-participants query.
func (s *Supervisor) Registry() *ParticipantRegistry {
	return s.registry
}

// IsLeader reports whether this replica currently drives the
// coordinator's mutation handlers.
func (s *Supervisor) IsLeader() bool {
	return s.consensus.IsLeader()
}

// TriggerSnapshot writes a snapshot now, if the underlying consensus
// layer supports on-demand snapshotting. Returns false if it doesn't.
func (s *Supervisor) TriggerSnapshot(w io.Writer) (bool, error) {
	saver, ok := s.consensus.(snapshotSaver)
	if !ok {
		return false, nil
	}
	if err := saver.SaveSnapshot(w); err != nil {
		return true, fmt.Errorf("trigger snapshot: %w", err)
	}
	return true, nil
}
