package cellconsensus

import (
	"context"
	"sync"

	"github.com/arlenko/cellhive/pkg/hiveid"
	"github.com/arlenko/cellhive/pkg/txsupervisor"
)

type txRecord struct {
	prepared bool
	persistent bool
}

// LocalTxManager is an in-memory txsupervisor.LocalTransactionManager,
// grounded the same way pkg/replication/local_client.go stands in for a
// networked peer in single-process tests: it tracks just enough
// per-transaction state to exercise prepare/commit/abort/ping without a
// real storage engine behind it.
type LocalTxManager struct {
	mu  sync.Mutex
	txs map[hiveid.TxId]*txRecord
}

func NewLocalTxManager() *LocalTxManager {
	return &LocalTxManager{txs: make(map[hiveid.TxId]*txRecord)}
}

func (m *LocalTxManager) PrepareCommit(ctx context.Context, txID hiveid.TxId, persistent bool, prepareTimestamp hiveid.Timestamp, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[txID] = &txRecord{prepared: true, persistent: persistent}
	return nil
}

func (m *LocalTxManager) Commit(ctx context.Context, txID hiveid.TxId, commitTimestamp hiveid.Timestamp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txs[txID]; !ok {
		// Idempotent: a repeated commit for a transaction this replica
		// no longer tracks (already applied and forgotten) still
		// succeeds.
		return nil
	}
	delete(m.txs, txID)
	return nil
}

func (m *LocalTxManager) PrepareAbort(ctx context.Context, txID hiveid.TxId, user string) error {
	return nil
}

func (m *LocalTxManager) Abort(ctx context.Context, txID hiveid.TxId, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txs[txID]; !ok && !force {
		return txsupervisor.ErrNoSuchTransaction
	}
	delete(m.txs, txID)
	return nil
}

func (m *LocalTxManager) Ping(ctx context.Context, txID hiveid.TxId, pingAncestors bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txs[txID]; !ok {
		return txsupervisor.ErrNoSuchTransaction
	}
	return nil
}

var _ txsupervisor.LocalTransactionManager = (*LocalTxManager)(nil)
