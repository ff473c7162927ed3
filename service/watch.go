package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/layer-3/fhevm/core"
	"github.com/layer-3/fhevm/internal/routine"
)

// WatchOptions configures WatchContract
type WatchOptions struct {
	// Enabled starts the watch right away. A disabled watch does nothing
	// until SetEnabled(true).
	Enabled bool

	// PollingInterval is the refresh period. Zero fetches once.
	PollingInterval time.Duration

	// OnResult receives the outcome of every fetch made by the watch loop.
	// It runs on the watch goroutine.
	OnResult func(*core.ReadResult, error)
}

// Watch re-reads a contract on an interval. At most one read is in flight
// per watch; ticks that fire while a read is outstanding are skipped.
type Watch struct {
	client   *Client
	params   core.ContractCallParams
	interval time.Duration
	onResult func(*core.ReadResult, error)

	group   singleflight.Group
	busy    atomic.Bool
	skipped atomic.Int64
	fetches atomic.Int64

	mu      sync.Mutex
	enabled bool
	stopped bool
	run     *watchRun
}

// watchRun is one enabled period of a watch
type watchRun struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	owners map[uint64]struct{}
}

// enter records the calling goroutine as part of the run until the returned
// function is called
func (r *watchRun) enter() func() {
	id := routine.ID()
	r.mu.Lock()
	if r.owners == nil {
		r.owners = make(map[uint64]struct{})
	}
	r.owners[id] = struct{}{}
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.owners, id)
		r.mu.Unlock()
	}
}

func (r *watchRun) owns(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.owners[id]
	return ok
}

// WatchContract creates a polling read of params. It is stopped by
// Watch.Stop or by a Reset of the client.
func (c *Client) WatchContract(params core.ContractCallParams, opts WatchOptions) (*Watch, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if _, err := c.begin(nil); err != nil {
		return nil, err
	}

	w := &Watch{
		client:   c,
		params:   params,
		interval: opts.PollingInterval,
		onResult: opts.OnResult,
	}

	c.mu.Lock()
	c.watches[w] = struct{}{}
	c.mu.Unlock()

	if opts.Enabled {
		w.SetEnabled(true)
	}
	return w, nil
}

// SetEnabled starts or stops the interval. Disabling returns once the loop
// and any read it started have exited.
func (w *Watch) SetEnabled(enabled bool) {
	w.mu.Lock()
	if w.stopped || w.enabled == enabled {
		w.mu.Unlock()
		return
	}
	w.enabled = enabled

	if enabled {
		ctx, cancel := context.WithCancel(w.client.lifecycleContext())
		run := &watchRun{cancel: cancel}
		run.wg.Add(1)
		w.run = run
		w.mu.Unlock()
		go w.loop(ctx, run)
		return
	}

	run := w.run
	w.run = nil
	w.mu.Unlock()
	w.halt(run)
}

// Enabled reports whether the interval is running
func (w *Watch) Enabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enabled
}

// Stop disables the watch permanently and releases it from the client.
// It is idempotent.
func (w *Watch) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.enabled = false
	run := w.run
	w.run = nil
	w.mu.Unlock()

	w.halt(run)

	w.client.mu.Lock()
	delete(w.client.watches, w)
	w.client.mu.Unlock()
}

func (w *Watch) halt(run *watchRun) {
	if run == nil {
		return
	}
	run.cancel()
	// A goroutine of the run stopping its own watch, from OnResult or from a
	// listener notified by its read, cannot wait for itself
	if run.owns(routine.ID()) {
		return
	}
	run.wg.Wait()
}

// Refetch reads now, sharing the result of a read already in flight
func (w *Watch) Refetch(ctx context.Context) (*core.ReadResult, error) {
	return w.read(ctx)
}

// Skipped returns how many ticks were dropped because a read was in flight
func (w *Watch) Skipped() int64 {
	return w.skipped.Load()
}

// Fetches returns how many reads the watch loop started
func (w *Watch) Fetches() int64 {
	return w.fetches.Load()
}

func (w *Watch) loop(ctx context.Context, run *watchRun) {
	defer run.wg.Done()
	defer run.enter()()

	w.tick(ctx, run)
	if w.interval <= 0 {
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx, run)
		}
	}
}

func (w *Watch) tick(ctx context.Context, run *watchRun) {
	if ctx.Err() != nil {
		return
	}
	if !w.busy.CompareAndSwap(false, true) {
		w.skipped.Add(1)
		return
	}
	w.fetches.Add(1)

	run.wg.Add(1)
	go func() {
		defer run.wg.Done()
		defer w.busy.Store(false)
		defer run.enter()()

		result, err := w.read(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			w.client.logger.Debug("watched read failed",
				zap.String("address", w.params.Address),
				zap.String("function", w.params.FunctionName),
				zap.Error(err),
			)
		}
		if w.onResult != nil {
			w.onResult(result, err)
		}
	}()
}

func (w *Watch) read(ctx context.Context) (*core.ReadResult, error) {
	ch := w.group.DoChan("read", func() (any, error) {
		return w.client.ReadContract(ctx, w.params)
	})
	// a stopped run must not wait on a read led by another caller
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*core.ReadResult), nil
	}
}
