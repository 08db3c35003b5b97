package wireframe

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const fieldTimestampValue = 1 // fixed64

// EncodeTimestamp serializes a single timestamp value, used by the
// participant transport's GenerateTimestamp/LatestTimestamp RPCs.
func EncodeTimestamp(ts uint64) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldTimestampValue, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, ts)
	return b
}

// DecodeTimestamp parses a frame produced by EncodeTimestamp.
func DecodeTimestamp(b []byte) (uint64, error) {
	var ts uint64
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, fmt.Errorf("wireframe: malformed tag (code %d)", n)
		}
		b = b[n:]
		switch num {
		case fieldTimestampValue:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return 0, fmt.Errorf("wireframe: malformed timestamp value (code %d)", n)
			}
			ts = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return 0, fmt.Errorf("wireframe: malformed unknown field %d (code %d)", num, n)
			}
			b = b[n:]
		}
	}
	return ts, nil
}
