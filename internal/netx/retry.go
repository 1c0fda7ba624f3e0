package netx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/difychat/internal/common"
	"github.com/dmitrijs2005/difychat/internal/logging"
)

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 4096

// RetryPolicy bounds a call to MaxRetries+1 attempts separated by a flat Delay.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// Attempts returns the total number of attempts the policy allows.
func (p RetryPolicy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// RequestFunc builds a fresh request for one attempt. It is invoked once per
// attempt so request bodies can be re-read.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Observer receives per-attempt outcomes. *metrics.Metrics implements it.
type Observer interface {
	ObserveAttempt(call, outcome string)
	ObserveExhausted(call string)
}

// CallError describes an upstream call that did not succeed. It matches
// common.ErrorUpstream under errors.Is.
type CallError struct {
	Call       string
	Attempts   int
	StatusCode int
	Body       string
	Err        error
}

func (e *CallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed after %d attempt(s): status %d: %s", e.Call, e.Attempts, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Call, e.Attempts, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

func (e *CallError) Is(target error) bool { return target == common.ErrorUpstream }

// Caller performs HTTP calls with bounded, cancellable retries.
type Caller struct {
	client   *http.Client
	policy   RetryPolicy
	logger   logging.Logger
	observer Observer
}

// NewCaller constructs a Caller. observer may be nil.
func NewCaller(client *http.Client, policy RetryPolicy, l logging.Logger, observer Observer) *Caller {
	return &Caller{
		client:   client,
		policy:   policy,
		logger:   l.With("module", "remote_caller"),
		observer: observer,
	}
}

// Do sends the request built by newRequest until the response status equals
// wantStatus or the attempts run out. A transport error or any other status
// triggers a retry after the policy delay. The delay is abandoned when ctx is
// done. An ended ctx yields ctx.Err() wrapped with the call name, never a
// *CallError. On success the caller owns the returned response body.
func (c *Caller) Do(ctx context.Context, call string, newRequest RequestFunc, wantStatus int) (*http.Response, error) {
	attempts := c.policy.Attempts()
	last := &CallError{Call: call}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", call, err)
		}

		req, err := newRequest(ctx)
		if err != nil {
			return nil, fmt.Errorf("build %s request: %w", call, err)
		}

		last.Attempts = attempt

		resp, err := c.client.Do(req)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, fmt.Errorf("%s: %w", call, ctx.Err())
		case err != nil:
			last.StatusCode, last.Body, last.Err = 0, "", err
			c.observe(call, "transport")
			c.logger.Warn(ctx, "upstream call failed", "call", call, "attempt", attempt, "error", err)
		case resp.StatusCode == wantStatus:
			c.observe(call, "success")
			return resp, nil
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			_ = resp.Body.Close()
			last.StatusCode, last.Body, last.Err = resp.StatusCode, string(body), nil
			c.observe(call, "status")
			c.logger.Warn(ctx, "upstream call returned unexpected status", "call", call, "attempt", attempt, "status", resp.StatusCode)
		}

		if attempt < attempts {
			if err := sleepCtx(ctx, c.policy.Delay); err != nil {
				return nil, fmt.Errorf("%s: %w", call, err)
			}
		}
	}

	if c.observer != nil {
		c.observer.ObserveExhausted(call)
	}
	c.logger.Error(ctx, "upstream call exhausted retries", "call", call, "attempts", last.Attempts)
	return nil, last
}

func (c *Caller) observe(call, outcome string) {
	if c.observer != nil {
		c.observer.ObserveAttempt(call, outcome)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
