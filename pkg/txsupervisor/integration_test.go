package txsupervisor_test

import (
	"context"
	"testing"
	"time"

	"github.com/arlenko/cellhive/pkg/cellconsensus"
	"github.com/arlenko/cellhive/pkg/hiveid"
	"github.com/arlenko/cellhive/pkg/responsekeeper"
	"github.com/arlenko/cellhive/pkg/txsupervisor"
	"github.com/arlenko/cellhive/pkg/wireframe"
)

// loopbackParticipant routes a coordinator's participant RPCs straight
// into another in-process cell's ParticipantHandler, standing in for a
// gRPC round trip in these tests.
type loopbackParticipant struct {
	handler *txsupervisor.ParticipantHandler
	ts      txsupervisor.TimestampProvider
}

func (c *loopbackParticipant) Prepare(ctx context.Context, txID hiveid.TxId, prepareTimestamp hiveid.Timestamp) error {
	return c.handler.Prepare(ctx, txID, prepareTimestamp, "integration-test")
}

func (c *loopbackParticipant) Commit(ctx context.Context, txID hiveid.TxId, commitTimestamp hiveid.Timestamp) error {
	return c.handler.Commit(ctx, txID, commitTimestamp)
}

func (c *loopbackParticipant) Abort(ctx context.Context, txID hiveid.TxId) error {
	return c.handler.Abort(ctx, txID)
}

func (c *loopbackParticipant) AvailabilityCheck(ctx context.Context) error {
	return c.handler.AvailabilityCheck(ctx)
}

func (c *loopbackParticipant) TimestampProvider() txsupervisor.TimestampProvider { return c.ts }

func (c *loopbackParticipant) State() txsupervisor.ParticipantClientState {
	return txsupervisor.ParticipantClientValid
}

type loopbackProvider struct {
	client txsupervisor.ParticipantClient
}

func (p *loopbackProvider) GetClient(hiveid.CellId) (txsupervisor.ParticipantClient, error) {
	return p.client, nil
}

func newTwoCellCluster(t *testing.T) (coordinator *txsupervisor.Supervisor, cellA, cellB hiveid.CellId) {
	t.Helper()

	cellA = hiveid.NewCellId(1)
	cellB = hiveid.NewCellId(2)

	localB := cellconsensus.NewLocalTxManager()
	tsB := cellconsensus.NewMonotonicTimestampProvider()
	cfgB := txsupervisor.DefaultConfig(cellB)
	handlerB := txsupervisor.NewParticipantHandler(cfgB, localB, tsB, nil)

	provider := &loopbackProvider{client: &loopbackParticipant{handler: handlerB, ts: tsB}}

	consensusA := cellconsensus.NewFake()
	localA := cellconsensus.NewLocalTxManager()
	tsA := cellconsensus.NewMonotonicTimestampProvider()
	cfgA := txsupervisor.DefaultConfig(cellA)
	cfgA.RPCTimeout = 2 * time.Second

	keeper := responsekeeper.NewKeeper(64, time.Minute)
	sup := txsupervisor.NewSupervisor(cfgA, consensusA, localA, tsA, provider, keeper)
	lifecycle := txsupervisor.NewLifecycle(sup)
	lifecycle.Register()
	lifecycle.OnLeaderActive()

	t.Cleanup(func() { lifecycle.Shutdown(context.Background()) })

	return sup, cellA, cellB
}

func TestDistributedCommitSucceeds(t *testing.T) {
	sup, cellA, cellB := newTwoCellCluster(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	txID := hiveid.NewTxId(cellA.Tag(), 1)
	frame, err := sup.CoordinatorCommitTransaction(ctx, txsupervisor.CommitRequest{
		TxId:                  txID,
		MutationId:            hiveid.MutationId{0xAA},
		UserName:              "root",
		ParticipantCellIds:    []hiveid.CellId{cellA, cellB},
		Distributed:           true,
		CoordinatorCommitMode: txsupervisor.CoordinatorCommitModeEager,
	})
	if err != nil {
		t.Fatalf("CoordinatorCommitTransaction() error = %v", err)
	}

	resp, err := wireframe.DecodeResponse(frame)
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if !resp.OK {
		t.Fatalf("commit did not succeed: code=%s message=%s", resp.ErrCode, resp.ErrMessage)
	}
	if len(resp.Timestamps) != 2 {
		t.Fatalf("expected timestamps for both cells, got %d entries", len(resp.Timestamps))
	}
}

func TestDistributedCommitIdempotentOnMutationId(t *testing.T) {
	sup, cellA, cellB := newTwoCellCluster(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	mutationID := hiveid.MutationId{0xBB}
	req := txsupervisor.CommitRequest{
		TxId:               hiveid.NewTxId(cellA.Tag(), 2),
		MutationId:         mutationID,
		ParticipantCellIds: []hiveid.CellId{cellA, cellB},
		Distributed:        true,
	}

	first, err := sup.CoordinatorCommitTransaction(ctx, req)
	if err != nil {
		t.Fatalf("first CoordinatorCommitTransaction() error = %v", err)
	}

	second, err := sup.CoordinatorCommitTransaction(ctx, req)
	if err != nil {
		t.Fatalf("second CoordinatorCommitTransaction() error = %v", err)
	}

	if string(first) != string(second) {
		t.Fatalf("repeated submission returned a different frame: %q vs %q", first, second)
	}
}

func TestSimpleCommitSucceeds(t *testing.T) {
	sup, cellA, _ := newTwoCellCluster(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	frame, err := sup.CoordinatorCommitTransaction(ctx, txsupervisor.CommitRequest{
		TxId:       hiveid.NewTxId(cellA.Tag(), 3),
		MutationId: hiveid.MutationId{0xCC},
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
		t.Fatalf("simple commit did not succeed: code=%s message=%s", resp.ErrCode, resp.ErrMessage)
	}
}

func TestExplicitAbortSucceeds(t *testing.T) {
	sup, cellA, _ := newTwoCellCluster(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Forced: the coordinator cell's local manager has no record of this
	// transaction, and it rejects a non-forced abort of an unknown one.
	frame, err := sup.CoordinatorAbortTransaction(ctx, hiveid.NewTxId(cellA.Tag(), 4), hiveid.MutationId{0xDD}, true, "root")
	if err != nil {
		t.Fatalf("CoordinatorAbortTransaction() error = %v", err)
	}

	resp, err := wireframe.DecodeResponse(frame)
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if !resp.OK {
		t.Fatalf("abort did not succeed: code=%s message=%s", resp.ErrCode, resp.ErrMessage)
	}
}
