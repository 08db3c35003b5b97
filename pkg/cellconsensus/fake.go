// Package cellconsensus provides an in-memory stand-in for the
// replicated state machine a txsupervisor.Supervisor rides on top of,
// structured like a sequential, monotonically-numbered operation log
// with a single writer. It serves single-process wiring and tests and
// performs no cross-process replication; cmd/cellhived runs on this
// Fake as well.
package cellconsensus

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/arlenko/cellhive/pkg/hiveid"
	"github.com/arlenko/cellhive/pkg/txsupervisor"
)

type namedSection struct {
	name string
	fn   func(io.Writer) error
}

type namedLoader struct {
	name string
	fn   func(io.Reader) error
}

// Fake is a single-process Consensus implementation: every mutation is
// applied synchronously and immediately "committed" (there is only ever
// one replica), the way a one-node replica set has no real consensus to
// perform. IsLeader is externally controlled via SetLeader so tests can
// exercise leader-activation and stop-leading transitions.
type Fake struct {
	mu         sync.Mutex
	leader     bool
	recovering bool
	handlers   map[string]txsupervisor.MutationHandler
	savers     []namedSection
	loaders    []namedLoader
	clock      uint64
	applied    uint64
}

// NewFake returns a Fake that starts as leader and not recovering.
func NewFake() *Fake {
	return &Fake{
		leader:   true,
		handlers: make(map[string]txsupervisor.MutationHandler),
	}
}

func (f *Fake) IsLeader() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leader
}

func (f *Fake) IsRecovering() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recovering
}

// SetLeader flips leadership, for tests driving Lifecycle's
// OnLeaderActive/OnStopLeading transitions.
func (f *Fake) SetLeader(leader bool) {
	f.mu.Lock()
	f.leader = leader
	f.mu.Unlock()
}

// SetRecovering marks the fake as replaying its log, demoting log
// verbosity the way a real replica does while catching up.
func (f *Fake) SetRecovering(recovering bool) {
	f.mu.Lock()
	f.recovering = recovering
	f.mu.Unlock()
}

func (f *Fake) RegisterMutationHandler(mutationType string, handler txsupervisor.MutationHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[mutationType] = handler
}

// CommitMutation applies payload under mutationType immediately: a
// single-node log has nothing to wait for before being "committed".
func (f *Fake) CommitMutation(ctx context.Context, mutationType string, payload []byte) ([]byte, error) {
	f.mu.Lock()
	handler, ok := f.handlers[mutationType]
	f.clock++
	f.applied++
	f.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("cellconsensus: no handler registered for mutation type %q", mutationType)
	}
	return handler(ctx, payload)
}

func (f *Fake) RegisterSaver(name string, fn func(w io.Writer) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savers = append(f.savers, namedSection{name: name, fn: fn})
}

func (f *Fake) RegisterLoader(name string, fn func(r io.Reader) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaders = append(f.loaders, namedLoader{name: name, fn: fn})
}

func (f *Fake) CurrentMutationTimestamp() hiveid.Timestamp {
	f.mu.Lock()
	defer f.mu.Unlock()
	return hiveid.Timestamp(f.clock)
}

// SaveSnapshot runs every registered saver, in registration order, into
// w. Sections are concatenated; pairing is by registration order, not by
// name, matching how loadKeys/loadValues in pkg/txsupervisor's
// persistence.go expect to be invoked back to back against the same
// stream.
func (f *Fake) SaveSnapshot(w io.Writer) error {
	f.mu.Lock()
	savers := append([]namedSection(nil), f.savers...)
	f.mu.Unlock()

	for _, s := range savers {
		if err := s.fn(w); err != nil {
			return fmt.Errorf("cellconsensus: saver %q failed: %w", s.name, err)
		}
	}
	return nil
}

// LoadSnapshot runs every registered loader, in registration order,
// against r.
func (f *Fake) LoadSnapshot(r io.Reader) error {
	f.mu.Lock()
	loaders := append([]namedLoader(nil), f.loaders...)
	f.mu.Unlock()

	f.SetRecovering(true)
	defer f.SetRecovering(false)

	for _, l := range loaders {
		if err := l.fn(r); err != nil {
			return fmt.Errorf("cellconsensus: loader %q failed: %w", l.name, err)
		}
	}
	return nil
}

// AppliedCount reports how many mutations have been applied, for test
// assertions.
func (f *Fake) AppliedCount() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applied
}
