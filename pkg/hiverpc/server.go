package hiverpc

import (
	"context"
	"errors"

	"github.com/arlenko/cellhive/pkg/hiveid"
	"github.com/arlenko/cellhive/pkg/txsupervisor"
	"github.com/arlenko/cellhive/pkg/wireframe"
)

// errorToFrame encodes a Go-level error from the core into the same
// wire failure frame a promise resolution would have produced, so a
// caller never has to distinguish "the gRPC call failed" from "the
// transaction failed" at this layer.
func errorToFrame(err error) rawFrame {
	var he *txsupervisor.HiveError
	if errors.As(err, &he) {
		return wireframe.EncodeFailure(string(he.Code), he.Message)
	}
	return wireframe.EncodeFailure(string(txsupervisor.CodeFailed), err.Error())
}

type supervisorServer struct {
	sup *txsupervisor.Supervisor
}

func (s *supervisorServer) commitTransaction(ctx context.Context, req rawFrame) (rawFrame, error) {
	rec, err := wireframe.DecodeCommitRecord(req, txsupervisor.CurrentSnapshotVersion)
	if err != nil {
		return nil, err
	}
	resp, err := s.sup.CoordinatorCommitTransaction(ctx, txsupervisor.CommitRequest{
		TxId:                     rec.TxId,
		MutationId:               rec.MutationId,
		UserName:                 rec.UserName,
		ParticipantCellIds:       rec.ParticipantCellIds,
		Distributed:              rec.Distributed,
		GeneratePrepareTimestamp: rec.GeneratePrepareTimestamp,
		InheritCommitTimestamp:   rec.InheritCommitTimestamp,
		CoordinatorCommitMode:    txsupervisor.CoordinatorCommitMode(rec.CoordinatorCommitMode),
	})
	if err != nil {
		return errorToFrame(err), nil
	}
	return resp, nil
}

func (s *supervisorServer) abortTransaction(ctx context.Context, req rawFrame) (rawFrame, error) {
	rec, err := wireframe.DecodeCommitRecord(req, txsupervisor.CurrentSnapshotVersion)
	if err != nil {
		return nil, err
	}
	resp, err := s.sup.CoordinatorAbortTransaction(ctx, rec.TxId, rec.MutationId, rec.Force, rec.UserName)
	if err != nil {
		return errorToFrame(err), nil
	}
	return resp, nil
}

// participantServer is the gRPC-facing adapter over a
// *txsupervisor.ParticipantHandler: it decodes wire requests, calls the
// handler, and turns a non-nil error into an encoded failure frame
// rather than a gRPC status error, matching the coordinator's own
// always-a-frame reply convention.
type participantServer struct {
	handler *txsupervisor.ParticipantHandler
}

func (p *participantServer) prepare(ctx context.Context, req rawFrame) (rawFrame, error) {
	f, err := wireframe.DecodeParticipantRequest(req)
	if err != nil {
		return nil, err
	}
	if err := p.handler.Prepare(ctx, f.TxId, hiveid.Timestamp(f.Timestamp), f.User); err != nil {
		return errorToFrame(err), nil
	}
	return wireframe.EncodeSuccess(nil), nil
}

func (p *participantServer) commit(ctx context.Context, req rawFrame) (rawFrame, error) {
	f, err := wireframe.DecodeParticipantRequest(req)
	if err != nil {
		return nil, err
	}
	if err := p.handler.Commit(ctx, f.TxId, hiveid.Timestamp(f.Timestamp)); err != nil {
		return errorToFrame(err), nil
	}
	return wireframe.EncodeSuccess(nil), nil
}

func (p *participantServer) abort(ctx context.Context, req rawFrame) (rawFrame, error) {
	f, err := wireframe.DecodeParticipantRequest(req)
	if err != nil {
		return nil, err
	}
	if err := p.handler.Abort(ctx, f.TxId); err != nil {
		return errorToFrame(err), nil
	}
	return wireframe.EncodeSuccess(nil), nil
}

func (p *participantServer) ping(ctx context.Context, req rawFrame) (rawFrame, error) {
	f, err := wireframe.DecodeParticipantRequest(req)
	if err != nil {
		return nil, err
	}
	if err := p.handler.Ping(ctx, f.TxId, f.PingAncestors); err != nil {
		return errorToFrame(err), nil
	}
	return wireframe.EncodeSuccess(nil), nil
}

func (p *participantServer) availabilityCheck(ctx context.Context, _ rawFrame) (rawFrame, error) {
	if err := p.handler.AvailabilityCheck(ctx); err != nil {
		return errorToFrame(err), nil
	}
	return wireframe.EncodeSuccess(nil), nil
}

func (p *participantServer) generateTimestamp(ctx context.Context, _ rawFrame) (rawFrame, error) {
	ts, err := p.handler.TimestampProvider().GenerateTimestamp(ctx)
	if err != nil {
		return errorToFrame(err), nil
	}
	return wireframe.EncodeTimestamp(uint64(ts)), nil
}

func (p *participantServer) latestTimestamp(_ context.Context, _ rawFrame) (rawFrame, error) {
	ts := p.handler.TimestampProvider().LatestTimestamp()
	return wireframe.EncodeTimestamp(uint64(ts)), nil
}
