// Package reactive holds the single observable snapshot of a client and
// notifies subscribers on every change. It has no dependency on any UI
// reactivity system; adapters map Subscribe onto their own primitives.
package reactive

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/layer-3/fhevm/core"
	"github.com/layer-3/fhevm/internal/routine"
)

// Listener receives snapshots
type Listener func(core.Snapshot)

type subscription struct {
	id       string
	listener Listener

	// mu is held while the listener runs so that unsubscribe can wait for
	// a delivery that passed the active check
	mu     sync.Mutex
	active atomic.Bool
	// caller is the goroutine running the listener, 0 when idle
	caller  atomic.Uint64
	version uint64
}

// Store is a push-based observable over core.Snapshot
type Store struct {
	mu       sync.Mutex
	snap     core.Snapshot
	subs     map[string]*subscription
	order    []string
	queue    []core.Snapshot
	draining bool
}

// NewStore creates a store holding initial as version 1
func NewStore(initial core.Snapshot) *Store {
	initial.Version = 1
	return &Store{
		snap: initial,
		subs: make(map[string]*subscription),
	}
}

// Snapshot returns the current snapshot
func (s *Store) Snapshot() core.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Subscribe registers l. It is called synchronously with the current
// snapshot, then once per subsequent change. The returned function is
// idempotent; after it returns l is never invoked again.
func (s *Store) Subscribe(l Listener) func() {
	sub := &subscription{
		id:       uuid.New().String(),
		listener: l,
	}
	sub.active.Store(true)

	s.mu.Lock()
	current := s.snap
	// queued snapshots older than the one handed over here are never delivered
	sub.version = current.Version - 1
	s.subs[sub.id] = sub
	s.order = append(s.order, sub.id)
	s.mu.Unlock()

	sub.deliver(current)

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(sub) })
	}
}

func (s *Store) unsubscribe(sub *subscription) {
	s.mu.Lock()
	delete(s.subs, sub.id)
	for i, id := range s.order {
		if id == sub.id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	// A listener unsubscribing itself is inside its own delivery
	if id := sub.caller.Load(); id != 0 && id == routine.ID() {
		sub.active.Store(false)
		return
	}
	sub.mu.Lock()
	sub.active.Store(false)
	sub.mu.Unlock()
}

// Subscribers returns the number of active subscriptions
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Update applies one logical mutation. All field writes made by fn are
// published as a single snapshot; if the result is structurally identical
// to the current snapshot nothing is published. It reports whether a new
// snapshot was published.
func (s *Store) Update(fn func(*core.Snapshot)) bool {
	changed, _ := s.UpdateErr(func(snap *core.Snapshot) error {
		fn(snap)
		return nil
	})
	return changed
}

// UpdateErr is Update with a mutation that may refuse to apply. When fn
// returns an error the snapshot is left untouched.
func (s *Store) UpdateErr(fn func(*core.Snapshot) error) (bool, error) {
	s.mu.Lock()
	next := s.snap
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return false, err
	}
	next.Version = s.snap.Version
	if reflect.DeepEqual(next, s.snap) {
		s.mu.Unlock()
		return false, nil
	}
	next.Version++
	s.snap = next
	s.queue = append(s.queue, next)
	if s.draining {
		// the goroutine already delivering will pick it up
		s.mu.Unlock()
		return true, nil
	}
	s.draining = true
	s.mu.Unlock()

	s.drain()
	return true, nil
}

func (s *Store) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		snap := s.queue[0]
		s.queue = s.queue[1:]
		subs := make([]*subscription, 0, len(s.order))
		for _, id := range s.order {
			subs = append(subs, s.subs[id])
		}
		s.mu.Unlock()

		for _, sub := range subs {
			sub.deliver(snap)
		}
	}
}

func (sub *subscription) deliver(snap core.Snapshot) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if !sub.active.Load() || snap.Version <= sub.version {
		return
	}
	sub.version = snap.Version

	sub.caller.Store(routine.ID())
	defer sub.caller.Store(0)
	sub.listener(snap)
}
