package txsupervisor

import (
	"context"
	"testing"
	"time"

	"github.com/arlenko/cellhive/pkg/cellconsensus"
	"github.com/arlenko/cellhive/pkg/hiveid"
	"github.com/arlenko/cellhive/pkg/responsekeeper"
	"github.com/arlenko/cellhive/pkg/wireframe"
)

func newCoordinatorTestSupervisor(t *testing.T) (*Supervisor, *cellconsensus.Fake) {
	t.Helper()
	cellID := hiveid.NewCellId(1)
	consensus := cellconsensus.NewFake()
	localTx := cellconsensus.NewLocalTxManager()
	ts := cellconsensus.NewMonotonicTimestampProvider()
	cfg := DefaultConfig(cellID)
	keeper := responsekeeper.NewKeeper(16, time.Minute)
	sup := NewSupervisor(cfg, consensus, localTx, ts, nil, keeper)
	sup.RegisterMutationHandlers()
	return sup, consensus
}

func TestCoordinatorCommitTransactionRequiresLeadership(t *testing.T) {
	sup, consensus := newCoordinatorTestSupervisor(t)
	consensus.SetLeader(false)

	_, err := sup.CoordinatorCommitTransaction(context.Background(), CommitRequest{
		TxId: hiveid.NewTxId(1, 1),
	})
	if err == nil {
		t.Fatalf("CoordinatorCommitTransaction() on non-leader succeeded, want error")
	}
}

func TestCoordinatorCommitSimpleTransactionSucceeds(t *testing.T) {
	sup, _ := newCoordinatorTestSupervisor(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	frame, err := sup.CoordinatorCommitTransaction(ctx, CommitRequest{
		TxId:        hiveid.NewTxId(1, 2),
		Distributed: false,
	})
	if err != nil {
		t.Fatalf("CoordinatorCommitTransaction() error = %v", err)
	}
	resp, err := wireframe.DecodeResponse(frame)
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if !resp.OK {
		t.Fatalf("simple commit did not succeed: %s %s", resp.ErrCode, resp.ErrMessage)
	}

	// The transient commit record must be cleaned up once the response
	// has resolved.
	if sup.getTransientCommit(hiveid.NewTxId(1, 2)) != nil {
		t.Fatalf("transient commit still tracked after simple commit completed")
	}
}

func TestCoordinatorCommitTransactionIsIdempotentOnMutationId(t *testing.T) {
	sup, _ := newCoordinatorTestSupervisor(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	req := CommitRequest{
		TxId:       hiveid.NewTxId(1, 3),
		MutationId: hiveid.MutationId{0x1},
	}
	first, err := sup.CoordinatorCommitTransaction(ctx, req)
	if err != nil {
		t.Fatalf("first commit error = %v", err)
	}
	second, err := sup.CoordinatorCommitTransaction(ctx, req)
	if err != nil {
		t.Fatalf("second commit error = %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("idempotent resubmission returned different frames")
	}
}

func TestCoordinatorSequentialSimpleCommitMutationsBothSucceed(t *testing.T) {
	sup, consensus := newCoordinatorTestSupervisor(t)
	txID := hiveid.NewTxId(1, 4)

	// A simple commit runs synchronously inside the mutation handler and
	// forgets its transient record before the handler returns, so two
	// back-to-back CommitMutation calls with the very same payload never
	// collide on ErrCommitAlreadyExists.
	payload := wireframe.EncodeCommitRecord(wireframe.CommitRecord{TxId: txID})
	if _, err := consensus.CommitMutation(context.Background(), mutationCommitSimple, payload); err != nil {
		t.Fatalf("first CommitMutation() error = %v", err)
	}
	// Second call is a fresh transient record (the first was cleaned up
	// via defer), so it succeeds too rather than colliding.
	if _, err := consensus.CommitMutation(context.Background(), mutationCommitSimple, payload); err != nil {
		t.Fatalf("second CommitMutation() error = %v", err)
	}
}

func TestCoordinatorAbortTransactionSucceeds(t *testing.T) {
	sup, _ := newCoordinatorTestSupervisor(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// A non-forced abort is validated by the local transaction manager,
	// which rejects a transaction it has no record of; prepare it first.
	txID := hiveid.NewTxId(1, 5)
	if err := sup.localTxManager.PrepareCommit(ctx, txID, false, 0, "root"); err != nil {
		t.Fatalf("PrepareCommit() error = %v", err)
	}

	frame, err := sup.CoordinatorAbortTransaction(ctx, txID, hiveid.MutationId{0x2}, false, "root")
	if err != nil {
		t.Fatalf("CoordinatorAbortTransaction() error = %v", err)
	}
	resp, err := wireframe.DecodeResponse(frame)
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if !resp.OK {
		t.Fatalf("abort did not succeed: %s %s", resp.ErrCode, resp.ErrMessage)
	}
}

func TestCoordinatorAbortTransactionRequiresLeadership(t *testing.T) {
	sup, consensus := newCoordinatorTestSupervisor(t)
	consensus.SetLeader(false)

	_, err := sup.CoordinatorAbortTransaction(context.Background(), hiveid.NewTxId(1, 6), hiveid.MutationId{}, false, "root")
	if err == nil {
		t.Fatalf("CoordinatorAbortTransaction() on non-leader succeeded, want error")
	}
}

func TestMarkRespondedReportsAllRespondedOnlyOnce(t *testing.T) {
	commit := NewCommit(hiveid.NewTxId(1, 7), hiveid.MutationId{}, "root",
		[]hiveid.CellId{hiveid.NewCellId(1), hiveid.NewCellId(2)}, true, false, false, CoordinatorCommitModeEager)

	if commit.MarkResponded(hiveid.NewCellId(1)) {
		t.Fatalf("MarkResponded() reported complete with only 1/2 participants")
	}
	if !commit.MarkResponded(hiveid.NewCellId(2)) {
		t.Fatalf("MarkResponded() did not report complete with 2/2 participants")
	}
}

func TestSetTransientStateResetsRespondedSet(t *testing.T) {
	commit := NewCommit(hiveid.NewTxId(1, 8), hiveid.MutationId{}, "root",
		[]hiveid.CellId{hiveid.NewCellId(1)}, true, false, false, CoordinatorCommitModeEager)
	commit.MarkResponded(hiveid.NewCellId(1))
	if len(commit.RespondedCellIds()) != 1 {
		t.Fatalf("expected 1 responded cell before transition")
	}

	commit.SetTransientState(CommitStateCommit)
	if len(commit.RespondedCellIds()) != 0 {
		t.Fatalf("SetTransientState() did not reset the responded set")
	}
}
