package wireframe

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/arlenko/cellhive/pkg/hiveid"
)

// Field numbers for a persistent commit record.
const (
	fieldRecTxId           = 1
	fieldRecMutationId      = 2
	fieldRecParticipant     = 3 // repeated fixed128 cell id
	fieldRecDistributed     = 4
	fieldRecGenPrepareTs    = 5
	fieldRecInheritTs       = 6
	fieldRecCoordMode       = 7
	fieldRecUser            = 8
	fieldRecPersistentState = 9
	fieldRecTimestamp       = 10 // repeated timestamp entry
	fieldRecForce           = 11
)

// CommitRecord is the persistent, snapshot-serializable projection of a
// commit entity.
type CommitRecord struct {
	TxId                    hiveid.TxId
	MutationId              hiveid.MutationId
	ParticipantCellIds      []hiveid.CellId
	Distributed             bool
	GeneratePrepareTimestamp bool
	InheritCommitTimestamp  bool
	CoordinatorCommitMode   uint32 // 0 = Eager, 1 = Lazy
	UserName                string
	PersistentState         uint32
	CommitTimestamps        hiveid.TimestampMap
	// Force carries AbortTransaction's force flag (§6's AbortTransaction
	// wire field): true bypasses the local transaction manager's
	// validation the way a best-effort cleanup abort must.
	Force bool
}

// EncodeCommitRecord serializes a CommitRecord as a single length-delimited
// value for the snapshot's values block.
func EncodeCommitRecord(r CommitRecord) []byte {
	var b []byte

	b = protowire.AppendTag(b, fieldRecTxId, protowire.BytesType)
	b = protowire.AppendBytes(b, r.TxId[:])

	b = protowire.AppendTag(b, fieldRecMutationId, protowire.BytesType)
	b = protowire.AppendBytes(b, r.MutationId[:])

	for _, cid := range r.ParticipantCellIds {
		b = protowire.AppendTag(b, fieldRecParticipant, protowire.BytesType)
		b = protowire.AppendBytes(b, cid[:])
	}

	b = protowire.AppendTag(b, fieldRecDistributed, protowire.VarintType)
	b = protowire.AppendVarint(b, boolToVarint(r.Distributed))

	b = protowire.AppendTag(b, fieldRecGenPrepareTs, protowire.VarintType)
	b = protowire.AppendVarint(b, boolToVarint(r.GeneratePrepareTimestamp))

	b = protowire.AppendTag(b, fieldRecInheritTs, protowire.VarintType)
	b = protowire.AppendVarint(b, boolToVarint(r.InheritCommitTimestamp))

	b = protowire.AppendTag(b, fieldRecCoordMode, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.CoordinatorCommitMode))

	b = protowire.AppendTag(b, fieldRecUser, protowire.BytesType)
	b = protowire.AppendString(b, r.UserName)

	b = protowire.AppendTag(b, fieldRecPersistentState, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.PersistentState))

	b = protowire.AppendTag(b, fieldRecForce, protowire.VarintType)
	b = protowire.AppendVarint(b, boolToVarint(r.Force))

	for tag, ts := range r.CommitTimestamps {
		var pair []byte
		pair = protowire.AppendTag(pair, 1, protowire.VarintType)
		pair = protowire.AppendVarint(pair, uint64(tag))
		pair = protowire.AppendTag(pair, 2, protowire.Fixed64Type)
		pair = protowire.AppendFixed64(pair, uint64(ts))

		b = protowire.AppendTag(b, fieldRecTimestamp, protowire.BytesType)
		b = protowire.AppendBytes(b, pair)
	}

	return b
}

// DecodeCommitRecord parses a value written by EncodeCommitRecord. schemaVersion
// controls field defaulting for older snapshot revisions: below 6 the
// user defaults to "root"; the decommission flag (carried separately by the
// caller) defaults to false below 7.
func DecodeCommitRecord(b []byte, schemaVersion uint32) (CommitRecord, error) {
	r := CommitRecord{CommitTimestamps: hiveid.TimestampMap{}}
	haveUser := false

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, fmt.Errorf("wireframe: malformed record tag (code %d)", n)
		}
		b = b[n:]

		switch num {
		case fieldRecTxId:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 || len(v) != len(r.TxId) {
				return r, fmt.Errorf("wireframe: malformed tx_id")
			}
			copy(r.TxId[:], v)
			b = b[n:]
		case fieldRecMutationId:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 || len(v) != len(r.MutationId) {
				return r, fmt.Errorf("wireframe: malformed mutation_id")
			}
			copy(r.MutationId[:], v)
			b = b[n:]
		case fieldRecParticipant:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, fmt.Errorf("wireframe: malformed participant cell id")
			}
			var cid hiveid.CellId
			if len(v) != len(cid) {
				return r, fmt.Errorf("wireframe: malformed participant cell id length")
			}
			copy(cid[:], v)
			r.ParticipantCellIds = append(r.ParticipantCellIds, cid)
			b = b[n:]
		case fieldRecDistributed:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, fmt.Errorf("wireframe: malformed distributed flag")
			}
			r.Distributed = v != 0
			b = b[n:]
		case fieldRecGenPrepareTs:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, fmt.Errorf("wireframe: malformed generate_prepare_timestamp flag")
			}
			r.GeneratePrepareTimestamp = v != 0
			b = b[n:]
		case fieldRecInheritTs:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, fmt.Errorf("wireframe: malformed inherit_commit_timestamp flag")
			}
			r.InheritCommitTimestamp = v != 0
			b = b[n:]
		case fieldRecCoordMode:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, fmt.Errorf("wireframe: malformed coordinator_commit_mode")
			}
			r.CoordinatorCommitMode = uint32(v)
			b = b[n:]
		case fieldRecUser:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, fmt.Errorf("wireframe: malformed user_name")
			}
			r.UserName = string(v)
			haveUser = true
			b = b[n:]
		case fieldRecPersistentState:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, fmt.Errorf("wireframe: malformed persistent_state")
			}
			r.PersistentState = uint32(v)
			b = b[n:]
		case fieldRecForce:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, fmt.Errorf("wireframe: malformed force flag")
			}
			r.Force = v != 0
			b = b[n:]
		case fieldRecTimestamp:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, fmt.Errorf("wireframe: malformed timestamp entry")
			}
			entry, err := decodeTimestampEntry(v)
			if err != nil {
				return r, err
			}
			r.CommitTimestamps[hiveid.CellTag(entry.CellTag)] = hiveid.Timestamp(entry.Timestamp)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return r, fmt.Errorf("wireframe: malformed unknown record field %d", num)
			}
			b = b[n:]
		}
	}

	if schemaVersion < 6 && (!haveUser || r.UserName == "") {
		r.UserName = "root"
	}
	return r, nil
}

func boolToVarint(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}
