package txsupervisor

import (
	"context"
	"sync"
	"time"

	"github.com/arlenko/cellhive/pkg/hiveid"
)

// callKind distinguishes prepare from commit/abort for the
// succeed-on-unregistered rule: commit and abort treat an
// Unregistered peer as success; prepare never does.
type callKind int

const (
	callPrepare callKind = iota
	callCommit
	callAbort
	callAvailabilityCheck
)

func (k callKind) succeedsOnUnregistered() bool {
	return k == callCommit || k == callAbort
}

// WrappedParticipant is the per-remote-cell client: it multiplexes
// prepare/commit/abort RPCs to one peer cell, tracks that peer's up/down
// status, probes it while down, and queues non-urgent requests.
type WrappedParticipant struct {
	cellID   hiveid.CellId
	provider ParticipantChannelProvider
	cfg      *Config
	log      *logger

	mu               sync.Mutex
	up               bool
	client           ParticipantClient
	clientBuildErr   error
	pending          []func()
	probationStop    chan struct{}
	probationRunning bool
	warnedQueueLen   bool
}

// NewWrappedParticipant constructs a wrapper for cellID. It starts up,
// with no underlying client yet built.
func NewWrappedParticipant(cellID hiveid.CellId, provider ParticipantChannelProvider, cfg *Config, log *logger) *WrappedParticipant {
	return &WrappedParticipant{
		cellID:   cellID,
		provider: provider,
		cfg:      cfg,
		log:      log,
		up:       true,
	}
}

func (w *WrappedParticipant) CellID() hiveid.CellId { return w.cellID }

func (w *WrappedParticipant) IsUp() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.up
}

// GetState reports the underlying client's validity, constructing it
// lazily if needed. Returns ParticipantClientInvalid if construction
// fails outright, the same bucket as a peer cell that was removed.
func (w *WrappedParticipant) GetState() ParticipantClientState {
	w.mu.Lock()
	defer w.mu.Unlock()
	client, err := w.clientLocked()
	if err != nil {
		return ParticipantClientInvalid
	}
	return client.State()
}

func (w *WrappedParticipant) clientLocked() (ParticipantClient, error) {
	if w.client != nil {
		return w.client, nil
	}
	if w.clientBuildErr != nil {
		return nil, w.clientBuildErr
	}
	client, err := w.provider.GetClient(w.cellID)
	if err != nil {
		w.clientBuildErr = err
		return nil, err
	}
	w.client = client
	return client, nil
}

// GetTimestampProvider returns the peer's timestamp provider, failing
// with Unavailable if the underlying client cannot be constructed.
func (w *WrappedParticipant) GetTimestampProvider() (TimestampProvider, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	client, err := w.clientLocked()
	if err != nil {
		return nil, Wrap(CodeUnavailable, "cannot construct participant client", err)
	}
	return client.TimestampProvider(), nil
}

// Prepare enqueues a prepare RPC. It does not require the peer to be up;
// the call waits on the pending queue when down.
func (w *WrappedParticipant) Prepare(ctx context.Context, txID hiveid.TxId, prepareTimestamp hiveid.Timestamp) error {
	return w.dispatch(ctx, false, callPrepare, func(ctx context.Context, c ParticipantClient) error {
		return c.Prepare(ctx, txID, prepareTimestamp)
	})
}

// Commit enqueues a commit RPC. Must-send-immediately: fails fast with
// Unavailable if the peer is currently down.
func (w *WrappedParticipant) Commit(ctx context.Context, txID hiveid.TxId, commitTimestamp hiveid.Timestamp) error {
	return w.dispatch(ctx, true, callCommit, func(ctx context.Context, c ParticipantClient) error {
		return c.Commit(ctx, txID, commitTimestamp)
	})
}

// Abort enqueues an abort RPC with the same must-send-immediately
// semantics as Commit.
func (w *WrappedParticipant) Abort(ctx context.Context, txID hiveid.TxId) error {
	return w.dispatch(ctx, true, callAbort, func(ctx context.Context, c ParticipantClient) error {
		return c.Abort(ctx, txID)
	})
}

// RetryCommit and RetryAbort back the coordinator's Commit/Abort-phase
// failure retry path: unlike the must-send-immediately initial
// call, a retry queues behind the pending-sender queue so it is paced by
// probation instead of busy-retrying while the peer is down.
func (w *WrappedParticipant) RetryCommit(ctx context.Context, txID hiveid.TxId, commitTimestamp hiveid.Timestamp) error {
	return w.dispatch(ctx, false, callCommit, func(ctx context.Context, c ParticipantClient) error {
		return c.Commit(ctx, txID, commitTimestamp)
	})
}

func (w *WrappedParticipant) RetryAbort(ctx context.Context, txID hiveid.TxId) error {
	return w.dispatch(ctx, false, callAbort, func(ctx context.Context, c ParticipantClient) error {
		return c.Abort(ctx, txID)
	})
}

// dispatch builds the sender closure and runs or queues it according to
// the up/down + must-send-immediately rules.
func (w *WrappedParticipant) dispatch(ctx context.Context, mustSendImmediately bool, kind callKind, call func(context.Context, ParticipantClient) error) error {
	resultCh := make(chan error, 1)

	sender := func() {
		resultCh <- w.runOnce(ctx, kind, call)
	}

	w.mu.Lock()
	if w.up {
		w.mu.Unlock()
		sender()
		return <-resultCh
	}
	if mustSendImmediately {
		w.mu.Unlock()
		return Wrap(CodeUnavailable, "participant currently down", ErrParticipantDown)
	}
	w.pending = append(w.pending, sender)
	queueLen := len(w.pending)
	warn := !w.warnedQueueLen && queueLen >= w.cfg.PendingQueueWarnThreshold
	if warn {
		w.warnedQueueLen = true
	}
	w.mu.Unlock()

	if warn {
		w.log.Errorf("participant %s pending-sender queue has grown past %d entries", w.cellID, w.cfg.PendingQueueWarnThreshold)
	}

	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runOnce performs one real attempt outside the lock, classifies the
// underlying state, and toggles up/down from the result.
func (w *WrappedParticipant) runOnce(ctx context.Context, kind callKind, call func(context.Context, ParticipantClient) error) error {
	w.mu.Lock()
	client, buildErr := w.clientLocked()
	w.mu.Unlock()

	if buildErr != nil {
		w.setDown(Wrap(CodeUnavailable, "cannot construct participant client", buildErr))
		return Wrap(CodeUnavailable, "cannot construct participant client", buildErr)
	}

	switch client.State() {
	case ParticipantClientInvalid:
		err := Wrap(CodeFailed, "participant is no longer valid", ErrParticipantInvalid)
		w.setUpLocked(true)
		return err
	case ParticipantClientUnregistered:
		if kind.succeedsOnUnregistered() {
			w.setUpLocked(true)
			return nil
		}
		err := Wrap(CodeFailed, "participant is no longer registered", ErrParticipantUnregistered)
		w.setUpLocked(true)
		return err
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if w.cfg.RPCTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, w.cfg.RPCTimeout)
		defer cancel()
	}

	err := call(callCtx, client)
	if err == nil {
		w.setUpLocked(true)
		return nil
	}

	if isRetriableTransportError(err) {
		w.setDown(err)
		return Wrap(CodeUnavailable, "participant rpc failed", err)
	}

	// Any non-retriable failure (including semantic ones such as
	// NoSuchTransaction) means the peer answered: mark it up.
	w.setUpLocked(true)
	return classifyParticipantError(err)
}

func (w *WrappedParticipant) setUpLocked(up bool) {
	w.mu.Lock()
	wasDown := !w.up
	w.up = up
	var drained []func()
	if up && wasDown {
		drained = w.pending
		w.pending = nil
	}
	w.mu.Unlock()

	for _, sender := range drained {
		sender()
	}
}

// SetUp marks the peer up and drains queued senders in order.
func (w *WrappedParticipant) SetUp() {
	w.setUpLocked(true)
}

// SetDown marks the peer down because of err and starts/keeps probation
// running.
func (w *WrappedParticipant) SetDown(err error) {
	w.setDown(err)
}

func (w *WrappedParticipant) setDown(err error) {
	w.mu.Lock()
	w.up = false
	startProbation := !w.probationRunning
	if startProbation {
		w.probationRunning = true
		w.probationStop = make(chan struct{})
	}
	stop := w.probationStop
	w.mu.Unlock()

	if err != nil {
		w.log.Debugf("participant %s marked down: %v", w.cellID, err)
	}
	if startProbation {
		go w.probationLoop(stop)
	}
}

// probationLoop runs the periodic probation task while the peer
// is down: either pop and run one pending sender, or (queue empty)
// perform an availability check.
func (w *WrappedParticipant) probationLoop(stop chan struct{}) {
	ticker := time.NewTicker(w.cfg.ParticipantProbationPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.mu.Lock()
			if w.up {
				w.probationRunning = false
				w.mu.Unlock()
				return
			}
			var next func()
			if len(w.pending) > 0 {
				next = w.pending[0]
				w.pending = w.pending[1:]
			}
			w.mu.Unlock()

			if next != nil {
				next()
				continue
			}
			w.performAvailabilityCheck()
		}
	}
}

func (w *WrappedParticipant) performAvailabilityCheck() {
	w.mu.Lock()
	client, buildErr := w.clientLocked()
	w.mu.Unlock()
	if buildErr != nil {
		return
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if w.cfg.RPCTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, w.cfg.RPCTimeout)
		defer cancel()
	}

	if err := client.AvailabilityCheck(ctx); err == nil {
		w.setUpLocked(true)
	}
}

// Stop halts the probation loop, if any, and abandons pending senders.
// Used when the registry reaps an invalidated wrapper.
func (w *WrappedParticipant) Stop() {
	w.mu.Lock()
	stop := w.probationStop
	w.probationRunning = false
	w.mu.Unlock()
	if stop != nil {
		select {
		case <-stop:
		default:
			close(stop)
		}
	}
}

func isRetriableTransportError(err error) bool {
	if err == nil {
		return false
	}
	if he, ok := err.(*HiveError); ok {
		return he.Code == CodeUnavailable
	}
	return IsRetriable(err)
}

func classifyParticipantError(err error) error {
	if he, ok := err.(*HiveError); ok {
		return he
	}
	return Wrap(CodeFailed, "participant rejected request", err)
}
