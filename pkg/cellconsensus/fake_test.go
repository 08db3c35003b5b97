package cellconsensus

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/arlenko/cellhive/pkg/txsupervisor"
)

func TestCommitMutationAppliesRegisteredHandler(t *testing.T) {
	f := NewFake()
	var seen []byte
	f.RegisterMutationHandler("test.echo", func(ctx context.Context, payload []byte) ([]byte, error) {
		seen = payload
		return payload, nil
	})

	result, err := f.CommitMutation(context.Background(), "test.echo", []byte("hello"))
	if err != nil {
		t.Fatalf("CommitMutation() error = %v", err)
	}
	if string(result) != "hello" || string(seen) != "hello" {
		t.Fatalf("CommitMutation() = %q; want hello", result)
	}
	if f.AppliedCount() != 1 {
		t.Fatalf("AppliedCount() = %d; want 1", f.AppliedCount())
	}
}

func TestCommitMutationUnknownType(t *testing.T) {
	f := NewFake()
	if _, err := f.CommitMutation(context.Background(), "nope", nil); err == nil {
		t.Fatalf("CommitMutation() with unregistered type did not error")
	}
}

func TestLeaderToggle(t *testing.T) {
	f := NewFake()
	if !f.IsLeader() {
		t.Fatalf("IsLeader() = false; want true by default")
	}
	f.SetLeader(false)
	if f.IsLeader() {
		t.Fatalf("IsLeader() = true after SetLeader(false)")
	}
}

func TestSaveLoadSnapshotRunsInRegistrationOrder(t *testing.T) {
	f := NewFake()
	var order []string
	f.RegisterSaver("a", func(w io.Writer) error {
		order = append(order, "a")
		_, err := w.Write([]byte("A"))
		return err
	})
	f.RegisterSaver("b", func(w io.Writer) error {
		order = append(order, "b")
		_, err := w.Write([]byte("B"))
		return err
	})
	var loaded []string
	for _, name := range []string{"a", "b"} {
		name := name
		f.RegisterLoader(name, func(r io.Reader) error {
			var b [1]byte
			if _, err := io.ReadFull(r, b[:]); err != nil {
				return err
			}
			loaded = append(loaded, name+":"+string(b[:]))
			return nil
		})
	}

	var buf bytes.Buffer
	if err := f.SaveSnapshot(&buf); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	if buf.String() != "AB" {
		t.Fatalf("SaveSnapshot() wrote %q; want %q", buf.String(), "AB")
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("savers did not run in registration order: %v", order)
	}

	if err := f.LoadSnapshot(&buf); err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if len(loaded) != 2 || loaded[0] != "a:A" || loaded[1] != "b:B" {
		t.Fatalf("loaders did not run in registration order: %v", loaded)
	}
}

var _ txsupervisor.Consensus = (*Fake)(nil)
