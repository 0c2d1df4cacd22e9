package routing

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/baronsmv/navi/network"
	"github.com/baronsmv/navi/risk"
)

// Snapshot is one consistent view of the network and its risk. Everything reachable from a
// Snapshot is read-only.
type Snapshot struct {
	Version     uint64
	Graph       *network.Graph
	Risk        *risk.Snapshot
	Evaluator   *risk.Evaluator
	PublishedAt time.Time
}

// Store holds the snapshot currently served to requests. Readers load it without locking;
// publishers replace it with a single atomic store.
type Store struct {
	mu      sync.Mutex // serialises publishers
	current atomic.Pointer[Snapshot]
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Current returns the active snapshot, or nil before the first Publish.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Publish makes a new snapshot active and returns it. Versions increase by one per publish.
func (s *Store) Publish(g *network.Graph, r *risk.Snapshot, ev *risk.Evaluator) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var version uint64 = 1
	if prev := s.current.Load(); prev != nil {
		version = prev.Version + 1
	}
	snap := &Snapshot{
		Version:     version,
		Graph:       g,
		Risk:        r,
		Evaluator:   ev,
		PublishedAt: time.Now().UTC(),
	}
	s.current.Store(snap)
	return snap
}
