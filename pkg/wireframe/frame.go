// Package wireframe implements the length-delimited, schema-evolved wire
// frames used for RPC response payloads and persistent snapshot records.
// It is a hand-rolled framing on top of
// google.golang.org/protobuf/encoding/protowire: each logical field is
// written as a (field number, wire type, value) triple, so fields can be
// added across format revisions without breaking older readers, the way
// a generated protobuf message would, without requiring a compiled
// .proto schema.
package wireframe

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers for the commit/abort response frame.
const (
	fieldRespOK        = 1 // bool: true = success, false = error
	fieldRespTimestamp = 2 // repeated (cellTag uint32, timestamp uint64) pairs
	fieldRespErrCode   = 3 // string
	fieldRespErrMsg    = 4 // string
)

// ResponseFrame is the decoded form of a commit/abort response payload.
type ResponseFrame struct {
	OK         bool
	Timestamps []TimestampEntry
	ErrCode    string
	ErrMessage string
}

// TimestampEntry is one (cellTag, timestamp) pair of a TimestampMap,
// in wire form.
type TimestampEntry struct {
	CellTag   uint32
	Timestamp uint64
}

// EncodeSuccess builds a success response frame carrying the supplied
// commit timestamps (empty for an abort's empty success message).
func EncodeSuccess(entries []TimestampEntry) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldRespOK, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)
	for _, e := range entries {
		var pair []byte
		pair = protowire.AppendTag(pair, 1, protowire.VarintType)
		pair = protowire.AppendVarint(pair, uint64(e.CellTag))
		pair = protowire.AppendTag(pair, 2, protowire.Fixed64Type)
		pair = protowire.AppendFixed64(pair, e.Timestamp)

		b = protowire.AppendTag(b, fieldRespTimestamp, protowire.BytesType)
		b = protowire.AppendBytes(b, pair)
	}
	return b
}

// EncodeFailure builds an error response frame.
func EncodeFailure(code, message string) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldRespOK, protowire.VarintType)
	b = protowire.AppendVarint(b, 0)
	b = protowire.AppendTag(b, fieldRespErrCode, protowire.BytesType)
	b = protowire.AppendString(b, code)
	b = protowire.AppendTag(b, fieldRespErrMsg, protowire.BytesType)
	b = protowire.AppendString(b, message)
	return b
}

// DecodeResponse parses a frame produced by EncodeSuccess or EncodeFailure.
// Unknown fields are skipped, so a frame written by a newer revision still
// decodes on an older reader.
func DecodeResponse(b []byte) (ResponseFrame, error) {
	var f ResponseFrame
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return f, fmt.Errorf("wireframe: malformed tag (code %d)", n)
		}
		b = b[n:]

		switch num {
		case fieldRespOK:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return f, fmt.Errorf("wireframe: malformed ok field (code %d)", n)
			}
			f.OK = v != 0
			b = b[n:]
		case fieldRespTimestamp:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return f, fmt.Errorf("wireframe: malformed timestamp entry (code %d)", n)
			}
			entry, err := decodeTimestampEntry(v)
			if err != nil {
				return f, err
			}
			f.Timestamps = append(f.Timestamps, entry)
			b = b[n:]
		case fieldRespErrCode:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return f, fmt.Errorf("wireframe: malformed err_code field (code %d)", n)
			}
			f.ErrCode = string(v)
			b = b[n:]
		case fieldRespErrMsg:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return f, fmt.Errorf("wireframe: malformed err_message field (code %d)", n)
			}
			f.ErrMessage = string(v)
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

func decodeTimestampEntry(b []byte) (TimestampEntry, error) {
	var e TimestampEntry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, fmt.Errorf("wireframe: malformed timestamp tag (code %d)", n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, fmt.Errorf("wireframe: malformed cell_tag (code %d)", n)
			}
			e.CellTag = uint32(v)
			b = b[n:]
		case 2:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return e, fmt.Errorf("wireframe: malformed timestamp value (code %d)", n)
			}
			e.Timestamp = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return e, fmt.Errorf("wireframe: malformed unknown field %d (code %d)", num, n)
			}
			b = b[n:]
		}
	}
	return e, nil
}
