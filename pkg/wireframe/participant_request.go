package wireframe

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers for the participant-RPC request frame (Prepare, Commit,
// Abort, Ping all share this shape; unused fields are simply omitted).
const (
	fieldReqTxId          = 1 // bytes: 16-byte TxId
	fieldReqTimestamp     = 2 // fixed64
	fieldReqUser          = 3 // string
	fieldReqPingAncestors = 4 // bool
)

// ParticipantRequestFrame is the decoded form of a Prepare/Commit/Abort/
// Ping request sent to a remote participant.
type ParticipantRequestFrame struct {
	TxId          [16]byte
	Timestamp     uint64
	User          string
	PingAncestors bool
}

// EncodeParticipantRequest serializes a participant RPC request. Fields
// that don't apply to a given call (e.g. User for Commit, Timestamp for
// Abort) are left at their zero value.
func EncodeParticipantRequest(f ParticipantRequestFrame) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldReqTxId, protowire.BytesType)
	b = protowire.AppendBytes(b, f.TxId[:])
	if f.Timestamp != 0 {
		b = protowire.AppendTag(b, fieldReqTimestamp, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, f.Timestamp)
	}
	if f.User != "" {
		b = protowire.AppendTag(b, fieldReqUser, protowire.BytesType)
		b = protowire.AppendString(b, f.User)
	}
	if f.PingAncestors {
		b = protowire.AppendTag(b, fieldReqPingAncestors, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	return b
}

// DecodeParticipantRequest parses a frame produced by
// EncodeParticipantRequest.
func DecodeParticipantRequest(b []byte) (ParticipantRequestFrame, error) {
	var f ParticipantRequestFrame
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return f, fmt.Errorf("wireframe: malformed tag (code %d)", n)
		}
		b = b[n:]

		switch num {
		case fieldReqTxId:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return f, fmt.Errorf("wireframe: malformed tx_id field (code %d)", n)
			}
			if len(v) != len(f.TxId) {
				return f, fmt.Errorf("wireframe: tx_id field has %d bytes, want %d", len(v), len(f.TxId))
			}
			copy(f.TxId[:], v)
			b = b[n:]
		case fieldReqTimestamp:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return f, fmt.Errorf("wireframe: malformed timestamp field (code %d)", n)
			}
			f.Timestamp = v
			b = b[n:]
		case fieldReqUser:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return f, fmt.Errorf("wireframe: malformed user field (code %d)", n)
			}
			f.User = string(v)
			b = b[n:]
		case fieldReqPingAncestors:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return f, fmt.Errorf("wireframe: malformed ping_ancestors field (code %d)", n)
			}
			f.PingAncestors = v != 0
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return f, fmt.Errorf("wireframe: malformed unknown field %d (code %d)", num, n)
			}
			b = b[n:]
		}
	}
	return f, nil
}
