// Package hiverpc wires pkg/txsupervisor onto google.golang.org/grpc as
// its RPC transport. It hand-writes the grpc.ServiceDesc a
// protoc-gen-go-grpc run would otherwise generate, because request and
// response bodies are already pkg/wireframe byte frames rather than
// generated protobuf messages.
package hiverpc

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

const codecName = "cellhive-raw"

// rawFrame is the request/response type for every method in this
// package's service descriptors: an opaque, already wire-encoded byte
// slice that rawCodec passes through verbatim instead of re-marshaling.
type rawFrame []byte

// rawCodec lets gRPC carry pkg/wireframe frames directly, without a
// second layer of protobuf message wrapping around bytes that are
// already a serialized wire format.
type rawCodec struct{}

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	switch m := v.(type) {
	case *rawFrame:
		return *m, nil
	case rawFrame:
		return m, nil
	case *[]byte:
		return *m, nil
	case []byte:
		return m, nil
	default:
		return nil, fmt.Errorf("hiverpc: rawCodec cannot marshal %T", v)
	}
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	switch m := v.(type) {
	case *rawFrame:
		*m = append(rawFrame(nil), data...)
	case *[]byte:
		*m = append([]byte(nil), data...)
	default:
		return fmt.Errorf("hiverpc: rawCodec cannot unmarshal into %T", v)
	}
	return nil
}

func (rawCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(rawCodec{})
}
