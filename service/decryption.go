package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/layer-3/fhevm/core"
	"github.com/layer-3/fhevm/internal/correlator"
	"github.com/layer-3/fhevm/ports"
)

// RequestDecryption submits ciphertext to the relayer and returns the
// request id without waiting for the plaintext
func (c *Client) RequestDecryption(ctx context.Context, ciphertext core.Ciphertext) (string, error) {
	if err := ciphertext.Validate(); err != nil {
		return "", err
	}

	started, err := c.begin(func(s *core.Snapshot) error {
		s.Decryption.Error = nil
		return nil
	})
	if err != nil {
		return "", err
	}

	id := c.decryptions.Register()

	c.mu.Lock()
	if c.session != started.SessionID {
		c.mu.Unlock()
		c.decryptions.Cancel(id)
		c.decryptions.Release(id)
		return "", core.ErrNotInitialized
	}
	c.requests[id] = &pendingRequest{
		req: core.DecryptionRequest{
			ID:          id,
			Ciphertext:  ciphertext,
			SubmittedAt: time.Now().UTC(),
			Status:      core.DecryptionPending,
		},
		sessionID: started.SessionID,
	}
	c.mu.Unlock()

	c.finish(started.SessionID, func(s *core.Snapshot) {
		c.slots.pending++
		s.Decryption.Pending = c.slots.pending
	})

	relayerID, err := c.relayer.SubmitDecryption(ctx, ciphertext)
	if err != nil {
		decErr := core.NewDecryptionError("failed to submit decryption request", err)
		c.decryptions.Fail(id, decErr)
		c.decryptions.Release(id)
		return "", decErr
	}

	c.mu.Lock()
	r, ok := c.requests[id]
	if ok {
		r.req.RelayerID = relayerID
	}
	c.mu.Unlock()
	if !ok {
		// settled while submitting, which only a Reset does
		return "", core.NewDecryptionError("decryption request cancelled", correlator.ErrCancelled)
	}

	c.logger.Debug("decryption submitted",
		zap.String("request_id", id),
		zap.String("relayer_id", relayerID),
	)
	return id, nil
}

// WaitForDecryption blocks until the request settles or timeout elapses.
// A timeout <= 0 uses the client default. Once a request has settled every
// wait returns the same outcome.
func (c *Client) WaitForDecryption(ctx context.Context, id string, timeout time.Duration) (*core.DecryptionResult, error) {
	if timeout <= 0 {
		timeout = c.decryptionTimeout
	}

	if _, ok := c.decryptions.Status(id); !ok {
		return c.archived(ctx, id)
	}

	if sessionID, ok := c.startPoller(id); ok {
		c.finish(sessionID, func(s *core.Snapshot) {
			c.slots.waiting++
			s.Decryption.IsDecrypting = true
		})
		defer c.finish(sessionID, func(s *core.Snapshot) {
			c.slots.waiting--
			s.Decryption.IsDecrypting = c.slots.waiting > 0
		})
	}

	result, err := c.decryptions.Await(ctx, id, timeout)
	switch {
	case errors.Is(err, correlator.ErrUnknownID):
		return c.archived(ctx, id)
	case err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// the request stays pending, only this wait ends
		return nil, core.NewDecryptionError(fmt.Sprintf("wait for decryption %s interrupted", id), err)
	}

	outcome := newOutcome(id, result, err)
	return outcome.Result, outcome.Err()
}

// Decrypt submits ciphertext and waits for its plaintext
func (c *Client) Decrypt(ctx context.Context, ciphertext core.Ciphertext, timeout time.Duration) (*core.DecryptionResult, error) {
	id, err := c.RequestDecryption(ctx, ciphertext)
	if err != nil {
		return nil, err
	}
	return c.WaitForDecryption(ctx, id, timeout)
}

// ResetDecryption clears the decryption result and error
func (c *Client) ResetDecryption() {
	c.store.Update(func(s *core.Snapshot) {
		s.Decryption = core.DecryptionState{
			IsDecrypting: c.slots.waiting > 0,
			Pending:      c.slots.pending,
		}
	})
}

func (c *Client) archived(ctx context.Context, id string) (*core.DecryptionResult, error) {
	unknown := fmt.Errorf("%w: %s", core.ErrUnknownRequest, id)
	if c.results == nil {
		return nil, unknown
	}
	outcome, ok, err := c.results.LoadOutcome(ctx, id)
	if err != nil {
		return nil, core.NewDecryptionError("failed to load decryption outcome", err)
	}
	if !ok {
		return nil, unknown
	}
	return outcome.Result, outcome.Err()
}

// startPoller starts the poller of id unless it runs already. It returns
// the session the request belongs to, or false if the request is no longer
// tracked.
func (c *Client) startPoller(id string) (string, bool) {
	c.mu.Lock()
	r, ok := c.requests[id]
	if !ok {
		c.mu.Unlock()
		return "", false
	}
	if r.polling {
		c.mu.Unlock()
		return r.sessionID, true
	}
	r.polling = true
	relayerID := r.req.RelayerID
	wake := make(chan struct{}, 1)
	c.wake[relayerID] = wake
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.mu.Unlock()

	if err := c.decryptions.Attach(id, cancel); err != nil {
		cancel()
		return r.sessionID, true
	}
	go c.poll(ctx, id, relayerID, wake)
	return r.sessionID, true
}

func (c *Client) poll(ctx context.Context, id, relayerID string, wake <-chan struct{}) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.pollInterval
	b.MaxInterval = c.maxPollInterval
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		res, err := c.relayer.PollDecryption(ctx, relayerID)
		if ctx.Err() != nil {
			return
		}

		switch {
		case err != nil:
			c.logger.Warn("decryption poll failed, retrying",
				zap.String("request_id", id),
				zap.String("relayer_id", relayerID),
				zap.Error(err),
			)
		case res == nil:
		case res.Status == ports.PollReady:
			c.decryptions.Resolve(id, core.DecryptionResult{RequestID: id, Type: res.Type, Value: res.Value})
			return
		case res.Status == ports.PollFailed:
			c.decryptions.Fail(id, core.NewDecryptionError(fmt.Sprintf("relayer rejected decryption: %s", res.Reason), nil))
			return
		}

		timer := time.NewTimer(b.NextBackOff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// onDecryptionSettled reflects the outcome in the snapshot and hands it to
// the archive. It runs once per request id.
func (c *Client) onDecryptionSettled(o correlator.Outcome[core.DecryptionResult]) {
	c.mu.Lock()
	r, ok := c.requests[o.ID]
	if ok {
		delete(c.requests, o.ID)
		delete(c.wake, r.req.RelayerID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	outcome := newOutcome(o.ID, o.Value, o.Err)

	// A timeout settles on the waiter's goroutine, which must not block on
	// the archive. Until the archive is written the correlator still holds
	// the entry, so later waits see the same outcome either way.
	if c.results != nil || c.events != nil {
		go c.archive(outcome, r.sessionID)
	}

	c.finish(r.sessionID, func(s *core.Snapshot) {
		c.slots.pending--
		s.Decryption.Pending = c.slots.pending
		if outcome.Status == core.DecryptionResolved {
			s.Decryption.Result = outcome.Result
			s.Decryption.Error = nil
			return
		}
		s.Decryption.Error = outcome.Err()
	})

	c.logger.Info("decryption settled",
		zap.String("request_id", o.ID),
		zap.String("status", string(outcome.Status)),
		since(r.req.SubmittedAt),
	)
}

func (c *Client) archive(outcome core.DecryptionOutcome, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if c.results != nil {
		if err := c.results.SaveOutcome(ctx, outcome, c.resultTTL); err != nil {
			c.logger.Error("failed to archive decryption outcome", zap.String("request_id", outcome.RequestID), zap.Error(err))
		} else {
			c.decryptions.Release(outcome.RequestID)
		}
	}

	if c.events != nil {
		if err := c.events.PublishDecryption(ctx, sessionID, outcome); err != nil {
			c.logger.Warn("failed to publish decryption event", zap.String("request_id", outcome.RequestID), zap.Error(err))
		}
	}
}

// newOutcome maps a correlator result onto the archived form. Live and
// archived waits both go through it so they report identical outcomes.
func newOutcome(id string, result core.DecryptionResult, err error) core.DecryptionOutcome {
	outcome := core.DecryptionOutcome{
		RequestID: id,
		SettledAt: time.Now().UTC(),
	}

	if err == nil {
		res := result
		res.RequestID = id
		if res.Value != nil {
			res.Value = new(uint256.Int).Set(res.Value)
		}
		outcome.Status = core.DecryptionResolved
		outcome.Result = &res
		return outcome
	}

	var decErr *core.Error
	switch {
	case errors.Is(err, correlator.ErrTimeout):
		outcome.Status = core.DecryptionTimedOut
		decErr = core.NewDecryptionTimeout(id, nil)
	case errors.Is(err, correlator.ErrCancelled):
		outcome.Status = core.DecryptionFailed
		decErr = core.NewDecryptionError(fmt.Sprintf("decryption request %s cancelled", id), nil)
	case errors.As(err, &decErr):
		outcome.Status = core.DecryptionFailed
	default:
		outcome.Status = core.DecryptionFailed
		decErr = core.NewDecryptionError("decryption failed", err)
	}

	outcome.ErrKind = decErr.Kind
	outcome.ErrCode = decErr.Code
	outcome.ErrMessage = decErr.Message
	if decErr.Err != nil {
		outcome.ErrMessage = fmt.Sprintf("%s: %v", decErr.Message, decErr.Err)
	}
	return outcome
}
