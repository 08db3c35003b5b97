package txsupervisor

import (
	"context"
	"testing"
	"time"

	"github.com/arlenko/cellhive/pkg/cellconsensus"
	"github.com/arlenko/cellhive/pkg/hiveid"
	"github.com/arlenko/cellhive/pkg/responsekeeper"
)

func TestAutomatonRunsEnqueuedWorkSerially(t *testing.T) {
	a := NewAutomaton()
	defer a.Stop()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		a.Enqueue(func() {
			order = append(order, i)
			if i == 4 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("automaton did not drain enqueued work in time")
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("work did not run in enqueue order: %v", order)
		}
	}
}

func TestAutomatonStopDrainsPendingWork(t *testing.T) {
	a := NewAutomaton()
	ran := make(chan struct{}, 1)
	a.Enqueue(func() { ran <- struct{}{} })
	a.Stop()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatalf("automaton did not run work enqueued before Stop")
	}

	// Enqueue after Stop must not block or panic.
	a.Enqueue(func() {})
}

func newLifecycleTestSupervisor(t *testing.T) (*Supervisor, *Lifecycle, *cellconsensus.Fake) {
	t.Helper()
	cellID := hiveid.NewCellId(1)
	consensus := cellconsensus.NewFake()
	localTx := cellconsensus.NewLocalTxManager()
	ts := cellconsensus.NewMonotonicTimestampProvider()
	cfg := DefaultConfig(cellID)
	keeper := responsekeeper.NewKeeper(16, time.Minute)
	sup := NewSupervisor(cfg, consensus, localTx, ts, nil, keeper)
	lifecycle := NewLifecycle(sup)
	lifecycle.Register()
	return sup, lifecycle, consensus
}

func TestLifecycleOnLeaderActiveIsIdempotent(t *testing.T) {
	sup, lifecycle, _ := newLifecycleTestSupervisor(t)
	lifecycle.OnLeaderActive()
	lifecycle.OnLeaderActive()
	t.Cleanup(func() { lifecycle.Shutdown(context.Background()) })

	if !sup.IsLeader() {
		t.Fatalf("IsLeader() = false after OnLeaderActive")
	}
}

func TestLifecycleOnLeaderActiveResumesPersistentCommits(t *testing.T) {
	sup, lifecycle, _ := newLifecycleTestSupervisor(t)
	t.Cleanup(func() { lifecycle.Shutdown(context.Background()) })

	commit := NewCommit(hiveid.NewTxId(1, 10), hiveid.MutationId{}, "root",
		[]hiveid.CellId{hiveid.NewCellId(1)}, true, false, false, CoordinatorCommitModeEager)
	commit.SetPersistent(true)
	commit.SetPersistentState(CommitStatePrepare)
	sup.restorePersistentCommit(commit)

	lifecycle.OnLeaderActive()

	// resumeCommit re-seeds the transient state from PersistentState
	// before it kicks off its fan-out in the background; poll for a
	// moment before failing.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if commit.TransientState() == CommitStatePrepare {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("resumed commit transient state = %v, want Prepare", commit.TransientState())
}

func TestLifecycleOnStopLeadingResolvesPendingPromisesAndClearsRegistry(t *testing.T) {
	sup, lifecycle, _ := newLifecycleTestSupervisor(t)
	lifecycle.OnLeaderActive()

	commit := NewCommit(hiveid.NewTxId(1, 11), hiveid.MutationId{}, "root", nil, false, false, false, CoordinatorCommitModeEager)
	sup.mu.Lock()
	sup.transientCommits[commit.TxID()] = commit
	sup.mu.Unlock()
	sup.registry.GetParticipant(hiveid.NewCellId(2))

	lifecycle.OnStopLeading()
	t.Cleanup(func() { lifecycle.Shutdown(context.Background()) })

	sup.registry.mu.Lock()
	remaining := len(sup.registry.strong)
	sup.registry.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("registry still holds %d participants after OnStopLeading", remaining)
	}

	frame, err := commit.ResponsePromise().Wait(context.Background())
	if err != nil {
		t.Fatalf("ResponsePromise().Wait() error = %v", err)
	}
	if len(frame) == 0 {
		t.Fatalf("expected a resolved failure frame after OnStopLeading")
	}
}

func TestLifecycleOnStopLeadingBeforeActiveIsNoop(t *testing.T) {
	_, lifecycle, _ := newLifecycleTestSupervisor(t)
	// Never called OnLeaderActive; OnStopLeading must not panic.
	lifecycle.OnStopLeading()
}
