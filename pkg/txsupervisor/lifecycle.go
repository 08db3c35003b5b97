package txsupervisor

import (
	"context"
	"sync"
)

// Automaton is the guarded single-goroutine invoker: every
// state-mutating continuation of a commit or abort —
// marking a participant responded, deciding the next transient state —
// runs serialized on this one goroutine, even though those continuations
// are scheduled from many concurrent participant-RPC goroutines. Mutation
// handlers do not run here, so Commit still guards its mutable fields
// with its own mutex.
type Automaton struct {
	work chan func()
	done chan struct{}
}

// NewAutomaton starts the automaton's worker goroutine. Call Stop to
// shut it down.
func NewAutomaton() *Automaton {
	a := &Automaton{
		work: make(chan func(), 256),
		done: make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Automaton) run() {
	for {
		select {
		case fn := <-a.work:
			fn()
		case <-a.done:
			// Drain whatever was already queued before exiting so a
			// stop-leading transition doesn't strand in-flight
			// continuations.
			for {
				select {
				case fn := <-a.work:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Enqueue schedules fn to run on the automaton goroutine. It does not
// wait for fn to run.
func (a *Automaton) Enqueue(fn func()) {
	select {
	case a.work <- fn:
	case <-a.done:
	}
}

// Stop halts the worker goroutine after draining pending work.
func (a *Automaton) Stop() {
	close(a.done)
}

// Lifecycle binds the supervisor, its mutation handlers, its
// persistence section savers/loaders, and the participant registry's
// background cleanup to the consensus layer's leader-activation
// callbacks. cmd/cellhived constructs one Lifecycle per cell instance.
type Lifecycle struct {
	sup          *Supervisor
	persistence  *PersistenceAdapter
	decommission *DecommissionController

	mu     sync.Mutex
	active bool
}

func NewLifecycle(sup *Supervisor) *Lifecycle {
	return &Lifecycle{
		sup:          sup,
		persistence:  NewPersistenceAdapter(sup),
		decommission: NewDecommissionController(sup),
	}
}

// Decommission exposes the decommission controller to pkg/admin.
func (l *Lifecycle) Decommission() *DecommissionController { return l.decommission }

// Register wires every mutation handler and snapshot section to
// consensus. Called once at process startup, before the replica can be
// elected leader.
func (l *Lifecycle) Register() {
	l.sup.RegisterMutationHandlers()
	l.decommission.Register()
	l.persistence.Register(l.sup.consensus)
}

// OnLeaderActive is invoked by the consensus layer once this replica has
// become leader and finished replaying its log: it replays every
// surviving persistent commit's transient state from its PersistentState
// so in-flight 2PC work resumes, and starts the participant registry's
// background cleanup.
func (l *Lifecycle) OnLeaderActive() {
	l.mu.Lock()
	if l.active {
		l.mu.Unlock()
		return
	}
	l.active = true
	l.mu.Unlock()

	l.sup.registry.StartCleanup()

	for _, txID := range l.sup.persistentKeysSnapshot() {
		commit, ok := l.sup.persistentCommit(txID)
		if !ok {
			continue
		}
		l.resumeCommit(commit)
	}
}

func (l *Lifecycle) resumeCommit(commit *Commit) {
	switch commit.PersistentState() {
	case CommitStatePrepare:
		commit.SetTransientState(CommitStatePrepare)
		go l.sup.runPhaseOneFanOut(commit)
	case CommitStateCommit:
		commit.SetTransientState(CommitStateCommit)
		go l.sup.runPhaseTwoFanOut(commit)
	case CommitStateAbort:
		commit.SetTransientState(CommitStateAbort)
		go l.sup.runAbortFanOut(commit)
	}
}

// OnStopLeading is invoked when this replica loses leadership:
// every outstanding transient promise is resolved with
// ErrStoppedLeading so RPC callers blocked in CoordinatorCommitTransaction
// or CoordinatorAbortTransaction stop waiting, and the participant
// registry is cleared since its wrapped clients are meaningless once
// this replica is no longer driving 2PC.
func (l *Lifecycle) OnStopLeading() {
	l.mu.Lock()
	if !l.active {
		l.mu.Unlock()
		return
	}
	l.active = false
	l.mu.Unlock()

	l.sup.mu.Lock()
	commits := make([]*Commit, 0, len(l.sup.transientCommits))
	for _, c := range l.sup.transientCommits {
		commits = append(commits, c)
	}
	aborts := make([]*Abort, 0, len(l.sup.transientAborts))
	for _, a := range l.sup.transientAborts {
		aborts = append(aborts, a)
	}
	l.sup.mu.Unlock()

	stopped := Wrap(CodeUnavailable, "cell stopped leading", ErrStoppedLeading)
	for _, c := range commits {
		c.SetFailed(nil, stopped)
	}
	for _, a := range aborts {
		a.SetFailed(nil, stopped)
	}

	l.sup.registry.StopCleanup()
	l.sup.registry.Clear()
}

// Shutdown stops background work for process exit.
func (l *Lifecycle) Shutdown(ctx context.Context) {
	l.sup.registry.StopCleanup()
	l.sup.automaton.Stop()
}
