package wireframe

import (
	"testing"

	"github.com/arlenko/cellhive/pkg/hiveid"
)

func TestEncodeDecodeSuccess(t *testing.T) {
	entries := []TimestampEntry{{CellTag: 1, Timestamp: 100}, {CellTag: 2, Timestamp: 200}}
	b := EncodeSuccess(entries)

	got, err := DecodeResponse(b)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if !got.OK {
		t.Fatal("OK = false, want true")
	}
	if len(got.Timestamps) != 2 {
		t.Fatalf("len(Timestamps) = %d, want 2", len(got.Timestamps))
	}
}

func TestEncodeDecodeFailure(t *testing.T) {
	b := EncodeFailure("Unavailable", "peer did not respond")

	got, err := DecodeResponse(b)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if got.OK {
		t.Fatal("OK = true, want false")
	}
	if got.ErrCode != "Unavailable" || got.ErrMessage != "peer did not respond" {
		t.Fatalf("got %+v", got)
	}
}

func TestCommitRecordRoundTrip(t *testing.T) {
	rec := CommitRecord{
		TxId:                     hiveid.NewTxId(1, 42),
		MutationId:               hiveid.MutationId{0xAA},
		ParticipantCellIds:       []hiveid.CellId{hiveid.NewCellId(2), hiveid.NewCellId(3)},
		Distributed:              true,
		GeneratePrepareTimestamp: true,
		InheritCommitTimestamp:   false,
		CoordinatorCommitMode:    1,
		UserName:                 "alice",
		PersistentState:          3,
		CommitTimestamps:         hiveid.TimestampMap{1: 500, 2: 501},
	}

	b := EncodeCommitRecord(rec)
	got, err := DecodeCommitRecord(b, 7)
	if err != nil {
		t.Fatalf("DecodeCommitRecord: %v", err)
	}

	if got.TxId != rec.TxId {
		t.Fatalf("TxId mismatch: %v != %v", got.TxId, rec.TxId)
	}
	if got.UserName != rec.UserName {
		t.Fatalf("UserName = %q, want %q", got.UserName, rec.UserName)
	}
	if len(got.ParticipantCellIds) != 2 {
		t.Fatalf("len(ParticipantCellIds) = %d, want 2", len(got.ParticipantCellIds))
	}
	if got.CommitTimestamps[1] != 500 || got.CommitTimestamps[2] != 501 {
		t.Fatalf("CommitTimestamps = %v", got.CommitTimestamps)
	}
}

func TestCommitRecordUserDefaultsBeforeV6(t *testing.T) {
	rec := CommitRecord{TxId: hiveid.NewTxId(1, 1)}
	b := EncodeCommitRecord(rec)

	got, err := DecodeCommitRecord(b, 5)
	if err != nil {
		t.Fatalf("DecodeCommitRecord: %v", err)
	}
	if got.UserName != "root" {
		t.Fatalf("UserName = %q, want root default for schema < 6", got.UserName)
	}
}
