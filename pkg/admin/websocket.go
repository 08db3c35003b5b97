package admin

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arlenko/cellhive/pkg/txsupervisor"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// CommitFeedEvent is one observed transition of a persistent commit's
// state, pushed to every connected operator over the live feed.
type CommitFeedEvent struct {
	Type            string `json:"type"` // "state" or "gone"
	TxId            string `json:"txId,omitempty"`
	PersistentState string `json:"persistentState,omitempty"`
}

// CommitFeed polls Supervisor.PersistentCommitSummaries at pollInterval
// and broadcasts the diff (new commits, state changes, commits that
// have finished and dropped out of the persistent map) to every
// connected WebSocket client.
type CommitFeed struct {
	sup          *txsupervisor.Supervisor
	pollInterval time.Duration

	mu      sync.Mutex
	conns   map[string]*websocket.Conn
	last    map[string]txsupervisor.CommitSummary
	stop    chan struct{}
	stopped bool
}

func NewCommitFeed(sup *txsupervisor.Supervisor, pollInterval time.Duration) *CommitFeed {
	return &CommitFeed{
		sup:          sup,
		pollInterval: pollInterval,
		conns:        make(map[string]*websocket.Conn),
		last:         make(map[string]txsupervisor.CommitSummary),
		stop:         make(chan struct{}),
	}
}

// Start runs the polling loop in a background goroutine.
func (f *CommitFeed) Start() {
	go func() {
		ticker := time.NewTicker(f.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-f.stop:
				return
			case <-ticker.C:
				f.poll()
			}
		}
	}()
}

// Close stops polling and closes every connected client.
func (f *CommitFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	f.stopped = true
	close(f.stop)
	for _, c := range f.conns {
		c.Close()
	}
	f.conns = make(map[string]*websocket.Conn)
}

func (f *CommitFeed) poll() {
	current := f.sup.PersistentCommitSummaries()
	currentByID := make(map[string]txsupervisor.CommitSummary, len(current))
	for _, s := range current {
		currentByID[s.TxId.String()] = s
	}

	var events []CommitFeedEvent
	for id, s := range currentByID {
		if prior, ok := f.last[id]; !ok || prior.PersistentState != s.PersistentState {
			events = append(events, CommitFeedEvent{Type: "state", TxId: id, PersistentState: s.PersistentState.String()})
		}
	}
	for id := range f.last {
		if _, ok := currentByID[id]; !ok {
			events = append(events, CommitFeedEvent{Type: "gone", TxId: id})
		}
	}
	f.last = currentByID

	if len(events) == 0 {
		return
	}
	f.broadcast(events)
}

func (f *CommitFeed) broadcast(events []CommitFeedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.conns {
		for _, e := range events {
			if err := c.WriteJSON(e); err != nil {
				log.Printf("admin: commit feed write to %s failed: %v", id, err)
				delete(f.conns, id)
				c.Close()
				break
			}
		}
	}
}

// Handle upgrades an HTTP request to a WebSocket and streams commit
// state events until the client disconnects.
func (f *CommitFeed) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("admin: websocket upgrade failed: %v", err)
		return
	}

	connID := fmt.Sprintf("ws-%p", conn)
	f.mu.Lock()
	f.conns[connID] = conn
	f.mu.Unlock()

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		f.mu.Lock()
		delete(f.conns, connID)
		f.mu.Unlock()
		conn.Close()
	}()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	<-ctx.Done()
}
