package txsupervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arlenko/cellhive/pkg/cellconsensus"
	"github.com/arlenko/cellhive/pkg/hiveid"
	"github.com/arlenko/cellhive/pkg/responsekeeper"
)

func newTestSupervisor(t *testing.T) (*Supervisor, *cellconsensus.Fake) {
	t.Helper()
	cellID := hiveid.NewCellId(1)
	consensus := cellconsensus.NewFake()
	localTx := cellconsensus.NewLocalTxManager()
	ts := cellconsensus.NewMonotonicTimestampProvider()
	cfg := DefaultConfig(cellID)
	keeper := responsekeeper.NewKeeper(16, time.Minute)
	sup := NewSupervisor(cfg, consensus, localTx, ts, nil, keeper)
	return sup, consensus
}

func TestDecommissionTriggerRequiresLeadership(t *testing.T) {
	sup, consensus := newTestSupervisor(t)
	decomm := NewDecommissionController(sup)
	decomm.Register()

	consensus.SetLeader(false)
	if err := decomm.TriggerDecommission(context.Background()); err == nil {
		t.Fatalf("TriggerDecommission() on non-leader succeeded, want error")
	}
}

func TestDecommissionTriggerAndRescind(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	decomm := NewDecommissionController(sup)
	decomm.Register()

	if decomm.IsDecommissioning() {
		t.Fatalf("IsDecommissioning() = true before trigger")
	}
	if err := decomm.TriggerDecommission(context.Background()); err != nil {
		t.Fatalf("TriggerDecommission() error = %v", err)
	}
	if !decomm.IsDecommissioning() {
		t.Fatalf("IsDecommissioning() = false after trigger")
	}

	if err := decomm.Rescind(context.Background()); err != nil {
		t.Fatalf("Rescind() error = %v", err)
	}
	if decomm.IsDecommissioning() {
		t.Fatalf("IsDecommissioning() = true after rescind")
	}
}

func TestDecommissionDrainedWithNoPersistentCommits(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	decomm := NewDecommissionController(sup)
	decomm.Register()

	if !decomm.Drained() {
		t.Fatalf("Drained() = false with no persistent commits")
	}
}

func TestDecommissionNotDrainedWhileCommitPersists(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	decomm := NewDecommissionController(sup)
	decomm.Register()

	commit := NewCommit(hiveid.NewTxId(1, 1), hiveid.MutationId{}, "root",
		[]hiveid.CellId{hiveid.NewCellId(1), hiveid.NewCellId(2)}, true, false, false, CoordinatorCommitModeEager)
	commit.SetPersistent(true)
	commit.SetPersistentState(CommitStatePrepare)
	sup.restorePersistentCommit(commit)

	if decomm.Drained() {
		t.Fatalf("Drained() = true while a persistent commit is outstanding")
	}
}

func TestDecommissionRefusesNewDistributedCommits(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	decomm := NewDecommissionController(sup)
	decomm.Register()
	sup.RegisterMutationHandlers()

	if err := decomm.TriggerDecommission(context.Background()); err != nil {
		t.Fatalf("TriggerDecommission() error = %v", err)
	}

	_, err := sup.CoordinatorCommitTransaction(context.Background(), CommitRequest{
		TxId:               hiveid.NewTxId(1, 2),
		ParticipantCellIds: []hiveid.CellId{hiveid.NewCellId(1), hiveid.NewCellId(2)},
		Distributed:        true,
	})
	if err == nil {
		t.Fatalf("CoordinatorCommitTransaction() on decommissioning cell succeeded, want refusal")
	}
	var he *HiveError
	if !errors.As(err, &he) || he.Code != CodeDecommissioned {
		t.Fatalf("error = %v, want CodeDecommissioned", err)
	}
}

func TestDecommissionWaitUntilDrainedReturnsImmediatelyWhenDrained(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	decomm := NewDecommissionController(sup)
	decomm.Register()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := decomm.WaitUntilDrained(ctx, 10*time.Millisecond); err != nil {
		t.Fatalf("WaitUntilDrained() error = %v", err)
	}
}

func TestDecommissionWaitUntilDrainedTimesOut(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	decomm := NewDecommissionController(sup)
	decomm.Register()

	commit := NewCommit(hiveid.NewTxId(1, 3), hiveid.MutationId{}, "root",
		[]hiveid.CellId{hiveid.NewCellId(1)}, true, false, false, CoordinatorCommitModeEager)
	commit.SetPersistent(true)
	commit.SetPersistentState(CommitStatePrepare)
	sup.restorePersistentCommit(commit)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := decomm.WaitUntilDrained(ctx, 5*time.Millisecond); err == nil {
		t.Fatalf("WaitUntilDrained() succeeded while a persistent commit remained")
	}
}
