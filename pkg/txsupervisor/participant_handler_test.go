package txsupervisor

import (
	"context"
	"errors"
	"testing"

	"github.com/arlenko/cellhive/pkg/cellconsensus"
	"github.com/arlenko/cellhive/pkg/hiveid"
)

func newTestParticipantHandler() (*ParticipantHandler, *cellconsensus.LocalTxManager, *cellconsensus.MonotonicTimestampProvider) {
	cellID := hiveid.NewCellId(2)
	localTx := cellconsensus.NewLocalTxManager()
	ts := cellconsensus.NewMonotonicTimestampProvider()
	cfg := DefaultConfig(cellID)
	return NewParticipantHandler(cfg, localTx, ts, nil), localTx, ts
}

func TestParticipantHandlerPrepareCommitSucceeds(t *testing.T) {
	h, _, ts := newTestParticipantHandler()
	txID := hiveid.NewTxId(2, 1)
	prepareTs, err := ts.GenerateTimestamp(context.Background())
	if err != nil {
		t.Fatalf("GenerateTimestamp() error = %v", err)
	}

	if err := h.Prepare(context.Background(), txID, prepareTs, "root"); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	commitTs, err := ts.GenerateTimestamp(context.Background())
	if err != nil {
		t.Fatalf("GenerateTimestamp() error = %v", err)
	}
	if err := h.Commit(context.Background(), txID, commitTs); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
}

func TestParticipantHandlerAbortIsForced(t *testing.T) {
	h, _, _ := newTestParticipantHandler()
	txID := hiveid.NewTxId(2, 2)

	// Abort with no preceding Prepare still succeeds: the coordinator
	// only sends Abort once it has already decided the outcome.
	if err := h.Abort(context.Background(), txID); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}
}

func TestParticipantHandlerCommitOnForgottenTransactionSucceeds(t *testing.T) {
	h, localTx, ts := newTestParticipantHandler()
	txID := hiveid.NewTxId(2, 3)

	commitTs, _ := ts.GenerateTimestamp(context.Background())
	// Commit with no prior Prepare succeeds against LocalTxManager's
	// idempotent semantics (it treats an unknown tx as already
	// forgotten, not an error) — assert that path directly instead.
	if err := h.Commit(context.Background(), txID, commitTs); err != nil {
		t.Fatalf("Commit() on unknown tx error = %v, want nil (idempotent)", err)
	}

	// Abort on an unknown, non-forced tx is where LocalTxManager
	// reports ErrNoSuchTransaction; how the handler classifies it is
	// covered by TestParticipantHandlerClassifyMapsNoSuchTransaction.
	if err := localTx.Abort(context.Background(), txID, false); !errors.Is(err, ErrNoSuchTransaction) {
		t.Fatalf("localTx.Abort() error = %v, want ErrNoSuchTransaction", err)
	}
}

func TestParticipantHandlerClassifyWrapsUnknownErrorsAsFailed(t *testing.T) {
	h, _, _ := newTestParticipantHandler()
	err := h.classify(errors.New("boom"))
	var he *HiveError
	if !errors.As(err, &he) {
		t.Fatalf("classify() did not return a HiveError: %v", err)
	}
	if he.Code != CodeFailed {
		t.Fatalf("classify() code = %s, want %s", he.Code, CodeFailed)
	}
}

func TestParticipantHandlerClassifyMapsNoSuchTransaction(t *testing.T) {
	h, _, _ := newTestParticipantHandler()
	err := h.classify(ErrNoSuchTransaction)
	var he *HiveError
	if !errors.As(err, &he) {
		t.Fatalf("classify() did not return a HiveError: %v", err)
	}
	if he.Code != CodeNoSuchTransaction {
		t.Fatalf("classify() code = %s, want %s", he.Code, CodeNoSuchTransaction)
	}
}

func TestParticipantHandlerClassifyPassesThroughHiveError(t *testing.T) {
	h, _, _ := newTestParticipantHandler()
	original := NewHiveError(CodeUnavailable, "down")
	err := h.classify(original)
	if err != original {
		t.Fatalf("classify() rewrapped an existing HiveError: %v", err)
	}
}

func TestParticipantHandlerAvailabilityCheckAlwaysSucceeds(t *testing.T) {
	h, _, _ := newTestParticipantHandler()
	if err := h.AvailabilityCheck(context.Background()); err != nil {
		t.Fatalf("AvailabilityCheck() error = %v", err)
	}
}

func TestParticipantHandlerTimestampProviderReturnsBoundOracle(t *testing.T) {
	h, _, ts := newTestParticipantHandler()
	if h.TimestampProvider() != ts {
		t.Fatalf("TimestampProvider() did not return the bound oracle")
	}
}
