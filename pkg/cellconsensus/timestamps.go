package cellconsensus

import (
	"context"
	"sync/atomic"

	"github.com/arlenko/cellhive/pkg/hiveid"
)

// MonotonicTimestampProvider is a txsupervisor.TimestampProvider backed
// by a simple atomic counter, standing in for the real cell's Hydra/
// Paxos-derived timestamp oracle in single-process wiring and tests.
type MonotonicTimestampProvider struct {
	counter uint64
}

func NewMonotonicTimestampProvider() *MonotonicTimestampProvider {
	return &MonotonicTimestampProvider{}
}

func (p *MonotonicTimestampProvider) GenerateTimestamp(ctx context.Context) (hiveid.Timestamp, error) {
	return hiveid.Timestamp(atomic.AddUint64(&p.counter, 1)), nil
}

func (p *MonotonicTimestampProvider) LatestTimestamp() hiveid.Timestamp {
	return hiveid.Timestamp(atomic.LoadUint64(&p.counter))
}
