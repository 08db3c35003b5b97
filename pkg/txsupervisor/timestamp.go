package txsupervisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/arlenko/cellhive/pkg/hiveid"
)

// TimestampCombiner computes the per-cell-tag commit timestamps for
// a commit, dispatching participant requests in parallel with a
// WaitGroup and a result channel.
type TimestampCombiner struct {
	selfCellID hiveid.CellId
	selfTs     TimestampProvider
	registry   *ParticipantRegistry
}

func NewTimestampCombiner(selfCellID hiveid.CellId, selfTs TimestampProvider, registry *ParticipantRegistry) *TimestampCombiner {
	return &TimestampCombiner{selfCellID: selfCellID, selfTs: selfTs, registry: registry}
}

// GenerateCommitTimestamps builds the TimestampMap for commit.
// Any participant failure aborts the whole combination: the caller must
// force-abort the transaction, since participants may already be
// prepared.
func (tc *TimestampCombiner) GenerateCommitTimestamps(ctx context.Context, commit *Commit) (hiveid.TimestampMap, error) {
	selfTs, err := tc.selfTs.GenerateTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate self commit timestamp: %w", err)
	}

	result := hiveid.TimestampMap{tc.selfCellID.Tag(): selfTs}
	seen := map[hiveid.CellTag]bool{tc.selfCellID.Tag(): true}

	type job struct {
		tag      hiveid.CellTag
		provider TimestampProvider
	}
	var jobs []job

	for _, cellID := range commit.ParticipantCellIds() {
		tag := cellID.Tag()
		if seen[tag] {
			continue
		}
		seen[tag] = true

		if commit.InheritCommitTimestamp() && cellID != tc.selfCellID {
			result[tag] = selfTs
			continue
		}

		participant := tc.registry.GetParticipant(cellID)
		provider, err := participant.GetTimestampProvider()
		if err != nil {
			return nil, fmt.Errorf("participant %s timestamp provider: %w", cellID, err)
		}
		jobs = append(jobs, job{tag: tag, provider: provider})
	}

	if len(jobs) == 0 {
		return result, nil
	}

	type outcome struct {
		tag hiveid.CellTag
		ts  hiveid.Timestamp
		err error
	}
	outcomes := make(chan outcome, len(jobs))
	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			ts, err := j.provider.GenerateTimestamp(ctx)
			outcomes <- outcome{tag: j.tag, ts: ts, err: err}
		}(j)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var mu sync.Mutex
	var firstErr error
	for o := range outcomes {
		if o.err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("participant cell tag %d timestamp: %w", o.tag, o.err)
			}
			mu.Unlock()
			continue
		}
		result[o.tag] = o.ts
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

// GeneratePrepareTimestamp returns Null if prepare-timestamp generation
// is disabled for commit; otherwise the latest timestamp from either the
// coordinator's provider (when InheritCommitTimestamp) or participant's
// provider.
func (tc *TimestampCombiner) GeneratePrepareTimestamp(commit *Commit, participant *WrappedParticipant) (hiveid.Timestamp, error) {
	if !commit.GeneratePrepareTimestamp() {
		return hiveid.NullTimestamp, nil
	}
	if commit.InheritCommitTimestamp() || participant == nil {
		return tc.selfTs.LatestTimestamp(), nil
	}
	provider, err := participant.GetTimestampProvider()
	if err != nil {
		return hiveid.NullTimestamp, err
	}
	return provider.LatestTimestamp(), nil
}
