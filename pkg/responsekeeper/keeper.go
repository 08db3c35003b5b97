// Package responsekeeper caches serialized RPC replies by MutationId so
// a retried submission of the same logical request is served
// idempotently instead of re-running a commit or abort.
package responsekeeper

import (
	"container/list"
	"sync"
	"time"

	"github.com/arlenko/cellhive/pkg/hiveid"
)

type entry struct {
	mutationID hiveid.MutationId
	response   []byte
	expiresAt  time.Time
	element    *list.Element
}

// Keeper is a thread-safe, capacity- and TTL-bounded LRU cache of
// responses keyed on hiveid.MutationId.
type Keeper struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[hiveid.MutationId]*entry
	order    *list.List
}

// NewKeeper returns a Keeper retaining up to capacity responses for up
// to ttl each.
func NewKeeper(capacity int, ttl time.Duration) *Keeper {
	return &Keeper{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[hiveid.MutationId]*entry),
		order:    list.New(),
	}
}

// Get returns the cached response for mutationID, if any and not
// expired.
func (k *Keeper) Get(mutationID hiveid.MutationId) ([]byte, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.items[mutationID]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		k.removeLocked(e)
		return nil, false
	}
	k.order.MoveToFront(e.element)
	return e.response, true
}

// Put caches response under mutationID, evicting the oldest entry if the
// keeper is now over capacity.
func (k *Keeper) Put(mutationID hiveid.MutationId, response []byte) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if e, exists := k.items[mutationID]; exists {
		e.response = response
		e.expiresAt = time.Now().Add(k.ttl)
		k.order.MoveToFront(e.element)
		return
	}

	e := &entry{mutationID: mutationID, response: response, expiresAt: time.Now().Add(k.ttl)}
	e.element = k.order.PushFront(e)
	k.items[mutationID] = e

	if k.capacity > 0 && k.order.Len() > k.capacity {
		oldest := k.order.Back()
		if oldest != nil {
			k.removeLocked(oldest.Value.(*entry))
		}
	}
}

func (k *Keeper) removeLocked(e *entry) {
	k.order.Remove(e.element)
	delete(k.items, e.mutationID)
}

// CleanupExpired drops every expired entry and reports how many were
// removed. Intended to be called periodically by the owning process.
func (k *Keeper) CleanupExpired() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, e := range k.items {
		if now.After(e.expiresAt) {
			k.removeLocked(e)
			removed++
		}
	}
	return removed
}

// Size returns the current number of cached responses.
func (k *Keeper) Size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.items)
}
