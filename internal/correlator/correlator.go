// Package correlator matches asynchronous operation identifiers to their
// eventual outcome, independent of what kind of operation they represent.
package correlator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrTimeout is the error of an entry that timed out in Await
	ErrTimeout = errors.New("operation timed out")

	// ErrCancelled is the error of a cancelled entry
	ErrCancelled = errors.New("operation cancelled")

	// ErrUnknownID is returned for ids that are not registered
	ErrUnknownID = errors.New("unknown operation id")
)

// Status is the status of a correlator entry
type Status int

const (
	StatusPending Status = iota
	StatusResolved
	StatusFailed
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusResolved:
		return "resolved"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final status
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Outcome is the terminal result of an entry
type Outcome[T any] struct {
	ID     string
	Status Status
	Value  T
	Err    error
}

type entry[T any] struct {
	status  Status
	value   T
	err     error
	cancel  context.CancelFunc
	done    chan struct{}
	created time.Time
}

// Correlator is a registry of outstanding operations
type Correlator[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]

	// OnSettle, when set, is called exactly once per id right after the
	// entry reaches a terminal status. It runs outside the registry lock.
	OnSettle func(Outcome[T])
}

func New[T any]() *Correlator[T] {
	return &Correlator[T]{
		entries: make(map[string]*entry[T]),
	}
}

// Register adds a pending entry and returns its id
func (c *Correlator[T]) Register() string {
	id := uuid.New().String()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[id] = &entry[T]{
		status:  StatusPending,
		done:    make(chan struct{}),
		created: time.Now(),
	}
	return id
}

// Attach sets the cancellation handle invoked when the entry settles.
// If the entry is already terminal the handle is invoked immediately.
func (c *Correlator[T]) Attach(id string, cancel context.CancelFunc) error {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownID
	}
	if e.status.Terminal() {
		c.mu.Unlock()
		cancel()
		return nil
	}
	e.cancel = cancel
	c.mu.Unlock()
	return nil
}

// Resolve settles the entry with a value. It returns false if the entry is
// unknown or already terminal.
func (c *Correlator[T]) Resolve(id string, value T) bool {
	return c.settle(id, StatusResolved, value, nil)
}

// Fail settles the entry with an error
func (c *Correlator[T]) Fail(id string, err error) bool {
	var zero T
	return c.settle(id, StatusFailed, zero, err)
}

// Cancel fails a pending entry with ErrCancelled. Cancelling a terminal
// entry is a no-op.
func (c *Correlator[T]) Cancel(id string) bool {
	return c.Fail(id, ErrCancelled)
}

func (c *Correlator[T]) settle(id string, status Status, value T, err error) bool {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok || e.status.Terminal() {
		c.mu.Unlock()
		return false
	}
	e.status = status
	e.value = value
	e.err = err
	cancel := e.cancel
	e.cancel = nil
	close(e.done)
	hook := c.OnSettle
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if hook != nil {
		hook(Outcome[T]{ID: id, Status: status, Value: value, Err: err})
	}
	return true
}

// Await blocks until the entry settles, the timeout elapses or ctx is done.
// On timeout a still pending entry becomes StatusTimedOut. A timeout <= 0
// waits without a deadline. Once settled, every call returns the same
// outcome.
func (c *Correlator[T]) Await(ctx context.Context, id string, timeout time.Duration) (T, error) {
	var zero T

	c.mu.Lock()
	e, ok := c.entries[id]
	c.mu.Unlock()
	if !ok {
		return zero, ErrUnknownID
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-e.done:
	case <-expired:
		c.settle(id, StatusTimedOut, zero, ErrTimeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	// Whichever settle won decides the outcome
	c.mu.Lock()
	defer c.mu.Unlock()
	return e.value, e.err
}

// Status returns the status of the entry
func (c *Correlator[T]) Status(id string) (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return 0, false
	}
	return e.status, true
}

// Outcome returns the outcome of a terminal entry
func (c *Correlator[T]) Outcome(id string) (Outcome[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok || !e.status.Terminal() {
		return Outcome[T]{}, false
	}
	return Outcome[T]{ID: id, Status: e.status, Value: e.value, Err: e.err}, true
}

// Release forgets a terminal entry. Pending entries are kept.
func (c *Correlator[T]) Release(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok || !e.status.Terminal() {
		return false
	}
	delete(c.entries, id)
	return true
}

// CancelAll cancels every pending entry and forgets all entries
func (c *Correlator[T]) CancelAll() int {
	c.mu.Lock()
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	cancelled := 0
	for _, id := range ids {
		if c.Cancel(id) {
			cancelled++
		}
	}

	c.mu.Lock()
	for _, id := range ids {
		delete(c.entries, id)
	}
	c.mu.Unlock()
	return cancelled
}

// Len returns the number of tracked entries
func (c *Correlator[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
