package txsupervisor

import (
	"time"

	"github.com/arlenko/cellhive/pkg/hiveid"
)

// CoordinatorCommitMode selects whether the coordinator's own local
// commit runs during PhaseTwo (Eager) or is deferred to Finish (Lazy).
type CoordinatorCommitMode int

const (
	CoordinatorCommitModeEager CoordinatorCommitMode = iota
	CoordinatorCommitModeLazy
)

func (m CoordinatorCommitMode) String() string {
	if m == CoordinatorCommitModeLazy {
		return "Lazy"
	}
	return "Eager"
}

// Config holds the supervisor's tunables.
type Config struct {
	// SelfCellID is the cell this supervisor instance is bound to.
	SelfCellID hiveid.CellId

	// RPCTimeout bounds every participant prepare/commit/abort/
	// availability-check RPC.
	RPCTimeout time.Duration

	// ParticipantProbationPeriod is how often a downed wrapped
	// participant retries a queued sender or performs an availability
	// check.
	ParticipantProbationPeriod time.Duration

	// ParticipantCleanupPeriod is how often the registry reaps stale
	// wrapped participants. Defaults to 15s but is exposed as a tunable.
	ParticipantCleanupPeriod time.Duration

	// PendingQueueWarnThreshold logs a single warning the first time a
	// wrapped participant's pending-sender queue grows past this size
	// while down.
	PendingQueueWarnThreshold int

	// SnapshotSchemaVersion is the schema version the coordinator's
	// mutation handlers decode CommitRecord payloads with. Current is 7.
	// Snapshots are always written at CurrentSnapshotVersion.
	SnapshotSchemaVersion uint32
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig(selfCellID hiveid.CellId) *Config {
	return &Config{
		SelfCellID:                 selfCellID,
		RPCTimeout:                 15 * time.Second,
		ParticipantProbationPeriod: 3 * time.Second,
		ParticipantCleanupPeriod:   15 * time.Second,
		PendingQueueWarnThreshold:  1000,
		SnapshotSchemaVersion:      CurrentSnapshotVersion,
	}
}
