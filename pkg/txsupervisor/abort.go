package txsupervisor

import (
	"github.com/arlenko/cellhive/pkg/hiveid"
	"github.com/arlenko/cellhive/pkg/wireframe"
)

// Abort is the transient-only per-abort coordination record. Simpler
// than Commit: no persistent half, no participant set, no timestamps.
type Abort struct {
	txID            hiveid.TxId
	mutationID      hiveid.MutationId
	responsePromise *Promise[[]byte]
}

// NewAbort creates a transient abort entity for txID.
func NewAbort(txID hiveid.TxId, mutationID hiveid.MutationId) *Abort {
	return &Abort{
		txID:            txID,
		mutationID:      mutationID,
		responsePromise: NewPromise[[]byte](),
	}
}

func (a *Abort) TxID() hiveid.TxId                 { return a.txID }
func (a *Abort) MutationID() hiveid.MutationId      { return a.mutationID }
func (a *Abort) ResponsePromise() *Promise[[]byte] { return a.responsePromise }

// SetSucceeded resolves the response promise with an empty success
// frame, caching it under MutationID when non-null.
func (a *Abort) SetSucceeded(keeper ResponseKeeper) {
	frame := wireframe.EncodeSuccess(nil)
	if a.responsePromise.Resolve(frame) && keeper != nil && !a.mutationID.IsNull() {
		keeper.Put(a.mutationID, frame)
	}
}

// SetFailed resolves the response promise with an error frame.
func (a *Abort) SetFailed(keeper ResponseKeeper, err *HiveError) {
	frame := wireframe.EncodeFailure(string(err.Code), err.Error())
	if a.responsePromise.Resolve(frame) && keeper != nil && !a.mutationID.IsNull() {
		keeper.Put(a.mutationID, frame)
	}
}
