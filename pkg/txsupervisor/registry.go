package txsupervisor

import (
	"sync"
	"time"
	"weak"

	"github.com/arlenko/cellhive/pkg/hiveid"
)

// ParticipantRegistry holds a strong+weak map of wrapped
// participants: strong references keep a wrapper alive while
// it is in active use, weak references let callers (e.g. a
// downed-participants query) observe a wrapper without pinning it
// forever. The weak half uses the standard library's weak.Pointer,
// available since go 1.24.
type ParticipantRegistry struct {
	mu       sync.Mutex
	strong   map[hiveid.CellId]*WrappedParticipant
	weakRefs map[hiveid.CellId]weak.Pointer[WrappedParticipant]

	provider   ParticipantChannelProvider
	cfg        *Config
	log        *logger
	selfCellID hiveid.CellId

	cleanupStop chan struct{}
}

// NewParticipantRegistry creates an empty registry bound to selfCellID
// (excluded from GetDownedParticipants).
func NewParticipantRegistry(provider ParticipantChannelProvider, cfg *Config, log *logger) *ParticipantRegistry {
	return &ParticipantRegistry{
		strong:     make(map[hiveid.CellId]*WrappedParticipant),
		weakRefs:   make(map[hiveid.CellId]weak.Pointer[WrappedParticipant]),
		provider:   provider,
		cfg:        cfg,
		log:        log,
		selfCellID: cfg.SelfCellID,
	}
}

// GetParticipant returns the current wrapped participant for cellID,
// constructing one if absent or if the existing entry is no longer
// Valid.
func (r *ParticipantRegistry) GetParticipant(cellID hiveid.CellId) *WrappedParticipant {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.strong[cellID]; ok {
		if p.GetState() == ParticipantClientValid {
			return p
		}
		p.Stop()
		delete(r.strong, cellID)
		delete(r.weakRefs, cellID)
	}

	p := NewWrappedParticipant(cellID, r.provider, r.cfg, r.log)
	r.strong[cellID] = p
	r.weakRefs[cellID] = weak.Make(p)
	return p
}

// GetDownedParticipants returns, among the given filter (or all known
// participants when filter is empty), those currently down. The self
// cell is always excluded.
func (r *ParticipantRegistry) GetDownedParticipants(filter []hiveid.CellId) []hiveid.CellId {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []hiveid.CellId
	if len(filter) == 0 {
		for cellID := range r.strong {
			candidates = append(candidates, cellID)
		}
		for cellID, wp := range r.weakRefs {
			if _, ok := r.strong[cellID]; ok {
				continue
			}
			if wp.Value() != nil {
				candidates = append(candidates, cellID)
			}
		}
	} else {
		candidates = filter
	}

	var down []hiveid.CellId
	for _, cellID := range candidates {
		if cellID == r.selfCellID {
			continue
		}
		var p *WrappedParticipant
		if sp, ok := r.strong[cellID]; ok {
			p = sp
		} else if wp, ok := r.weakRefs[cellID]; ok {
			p = wp.Value()
		}
		if p != nil && !p.IsUp() {
			down = append(down, cellID)
		}
	}
	return down
}

// StartCleanup launches the periodic reaper, sweeping stale registry
// entries every ParticipantCleanupPeriod until StopCleanup is called.
func (r *ParticipantRegistry) StartCleanup() {
	r.mu.Lock()
	if r.cleanupStop != nil {
		r.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	r.cleanupStop = stop
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(r.cfg.ParticipantCleanupPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

// StopCleanup halts the periodic reaper.
func (r *ParticipantRegistry) StopCleanup() {
	r.mu.Lock()
	stop := r.cleanupStop
	r.cleanupStop = nil
	r.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

func (r *ParticipantRegistry) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for cellID, p := range r.strong {
		if p.GetState() != ParticipantClientValid {
			p.Stop()
			delete(r.strong, cellID)
			delete(r.weakRefs, cellID)
		}
	}
	for cellID, wp := range r.weakRefs {
		if _, ok := r.strong[cellID]; ok {
			continue
		}
		if wp.Value() == nil {
			delete(r.weakRefs, cellID)
		}
	}
}

// Clear drops every wrapped participant.
func (r *ParticipantRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.strong {
		p.Stop()
	}
	r.strong = make(map[hiveid.CellId]*WrappedParticipant)
	r.weakRefs = make(map[hiveid.CellId]weak.Pointer[WrappedParticipant])
}
