// Package hiveid defines the wire identifiers shared by the transaction
// supervisor: transaction ids, cell ids, mutation ids and timestamps.
package hiveid

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// CellTag is the subset of bits of a CellId that identifies the cell for
// cross-cell timestamp indexing (see TimestampMap).
type CellTag uint32

// CellId is a 128-bit opaque cell identifier. Every supervisor instance is
// bound to exactly one CellId (its "self cell").
type CellId [16]byte

// NullCellId is the reserved zero value, never assigned to a real cell.
var NullCellId CellId

// Tag returns the subset of CellId bits used to key TimestampMap entries.
// YT-style cell ids carry their tag in the third 32-bit word; CellHive
// follows the same layout so synthetic and wire-decoded ids agree.
func (c CellId) Tag() CellTag {
	return CellTag(binary.BigEndian.Uint32(c[8:12]))
}

func (c CellId) String() string {
	return hex.EncodeToString(c[:])
}

func (c CellId) IsNull() bool {
	return c == NullCellId
}

// NewCellId builds a CellId embedding the given tag in its tag word and
// zero bits elsewhere, so the same tag always yields the same id. Used by
// tests and by tooling that mints synthetic cell identities.
func NewCellId(tag CellTag) CellId {
	var c CellId
	binary.BigEndian.PutUint32(c[8:12], uint32(tag))
	return c
}

// DeriveCellTag produces a collision-resistant CellTag from an arbitrary
// CellId when two distinct ids would otherwise project onto the same tag
// word (e.g. hand-rolled test fixtures). It is never used for ids that
// arrived over the wire with a canonical tag already embedded.
func DeriveCellTag(c CellId) CellTag {
	sum := blake2b.Sum256(c[:])
	return CellTag(binary.BigEndian.Uint32(sum[:4]))
}

// TxId is a 128-bit opaque transaction identifier. It embeds the
// originating cell's tag in its high word and, for tablet-style
// transactions, the transaction's start timestamp in its low word.
type TxId [16]byte

var NullTxId TxId

func (t TxId) IsNull() bool {
	return t == NullTxId
}

// CellTag projects the subset of TxId bits identifying the originating
// cell.
func (t TxId) CellTag() CellTag {
	return CellTag(binary.BigEndian.Uint32(t[0:4]))
}

// Counter projects the low 64 bits, which for tablet-style transactions
// encode the transaction's start timestamp.
func (t TxId) Counter() uint64 {
	return binary.BigEndian.Uint64(t[8:16])
}

func (t TxId) String() string {
	return hex.EncodeToString(t[:])
}

// NewTxId builds a TxId for the given originating cell tag and counter.
func NewTxId(tag CellTag, counter uint64) TxId {
	var t TxId
	binary.BigEndian.PutUint32(t[0:4], uint32(tag))
	binary.BigEndian.PutUint64(t[8:16], counter)
	return t
}

// MutationId is a 128-bit identifier that, when non-null, the response
// keeper uses to cache and replay RPC replies.
type MutationId [16]byte

var NullMutationId MutationId

func (m MutationId) IsNull() bool {
	return m == NullMutationId
}

func (m MutationId) String() string {
	return hex.EncodeToString(m[:])
}

func ParseMutationId(s string) (MutationId, error) {
	var m MutationId
	b, err := hex.DecodeString(s)
	if err != nil {
		return m, fmt.Errorf("parse mutation id %q: %w", s, err)
	}
	if len(b) != len(m) {
		return m, fmt.Errorf("parse mutation id %q: want %d bytes, got %d", s, len(m), len(b))
	}
	copy(m[:], b)
	return m, nil
}

// Timestamp is a 64-bit monotonic HLC-like timestamp. NullTimestamp is
// reserved and never assigned by a timestamp provider.
type Timestamp uint64

const NullTimestamp Timestamp = 0

// TimestampMap maps a participant's cell tag to the commit timestamp
// generated (or inherited) for it.
type TimestampMap map[CellTag]Timestamp

// Clone returns an independent copy of the map.
func (m TimestampMap) Clone() TimestampMap {
	if m == nil {
		return nil
	}
	out := make(TimestampMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
