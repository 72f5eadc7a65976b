/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolbridge

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"chainguard.dev/backlogaf/backoff"
	"chainguard.dev/backlogaf/metrics"
	"chainguard.dev/backlogaf/runtrace"
	"github.com/chainguard-dev/clog"
)

const (
	// DefaultMaxAttempts bounds the total tries per call, first attempt
	// included.
	DefaultMaxAttempts = 3

	// DefaultCallTimeout bounds each individual transport call.
	DefaultCallTimeout = 30 * time.Second
)

// Transport executes a single named tool call against the remote
// service. Implementations classify failures they understand by
// wrapping them with Transient or Fatal; unwrapped errors fall back to
// the client's classifier.
type Transport interface {
	Call(ctx context.Context, name string, params map[string]any) (map[string]any, error)
}

// Client invokes remote tools with timeouts, retries, and session
// identifier injection. The cached session identifier is its only
// state; everything else is per-call.
type Client struct {
	transport    Transport
	policy       backoff.Policy
	maxAttempts  int
	callTimeout  time.Duration
	classify     func(error) bool
	recorder     *metrics.Recorder
	sessionTool  string
	sessionParam string

	// mu guards sessionID and doubles as the single-flight lock for
	// resolution: concurrent first calls wait for one resolution
	// instead of issuing their own.
	mu        sync.Mutex
	sessionID string
}

// NewClient builds a Client around the given transport.
func NewClient(transport Transport, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, errors.New("transport cannot be nil")
	}

	c := &Client{
		transport:   transport,
		policy:      backoff.DefaultPolicy(),
		maxAttempts: DefaultMaxAttempts,
		callTimeout: DefaultCallTimeout,
		classify:    IsTransient,
		recorder:    metrics.NewRecorder(metrics.MeterName),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	return c, nil
}

// Invoke calls the named tool with the given parameters, retrying
// transient failures up to the configured attempt budget. The returned
// Outcome records the result either way; the error, when non-nil, is a
// *FatalError unless the context was cancelled.
func (c *Client) Invoke(ctx context.Context, tool string, params map[string]any) (Outcome, error) {
	start := time.Now()

	if tool == "" {
		err := Fatal(errors.New("tool name cannot be empty"))
		return record(ctx, failureOutcome(tool, err, time.Since(start))), err
	}

	if params == nil {
		params = map[string]any{}
	} else {
		params = maps.Clone(params)
	}

	if c.sessionTool != "" && tool != c.sessionTool {
		if _, ok := params[c.sessionParam]; !ok {
			id, err := c.session(ctx)
			if err != nil {
				// Resolution failure fails this call only; the next
				// call retries resolution from scratch.
				err = asFatal(fmt.Errorf("resolving session identifier: %w", err))
				return record(ctx, failureOutcome(tool, err, time.Since(start))), err
			}
			params[c.sessionParam] = id
		}
	}

	data, err := c.invokeWithRetry(ctx, tool, params)
	elapsed := time.Since(start)
	if err != nil {
		return record(ctx, failureOutcome(tool, err, elapsed)), err
	}
	return record(ctx, successOutcome(tool, data, elapsed)), nil
}

// record appends the outcome to the run trace when the context carries
// one.
func record(ctx context.Context, out Outcome) Outcome {
	runtrace.FromContext(ctx).RecordTool(runtrace.ToolEvent{
		Tool:    out.Tool,
		Success: out.Success,
		Error:   out.Error,
		Elapsed: out.Elapsed,
	})
	return out
}

// VerifySession eagerly resolves the session identifier. It is the
// health probe for the bridge: success means the transport is reachable
// and the workspace is visible.
func (c *Client) VerifySession(ctx context.Context) error {
	if c.sessionTool == "" {
		return errors.New("session discovery is not configured")
	}
	if _, err := c.session(ctx); err != nil {
		return fmt.Errorf("resolving session identifier: %w", err)
	}
	return nil
}

func (c *Client) invokeWithRetry(ctx context.Context, tool string, params map[string]any) (map[string]any, error) {
	log := clog.FromContext(ctx).With("tool", tool)

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.policy.Delay(attempt - 1)
			log.With("attempt", attempt+1).
				With("max_attempts", c.maxAttempts).
				With("backoff", delay.String()).
				Warnf("Tool call failed with transient error, retrying: %v", lastErr)
			if err := c.policy.Sleep(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		data, err := c.callOnce(ctx, tool, params)
		if err == nil {
			c.recorder.RecordToolCall(ctx, tool, "ok")
			return data, nil
		}
		lastErr = err

		// A cancelled parent context aborts immediately, whatever the
		// transport reported.
		if ctx.Err() != nil {
			c.recorder.RecordToolCall(ctx, tool, "fatal")
			return nil, ctx.Err()
		}

		if !c.classify(err) {
			c.recorder.RecordToolCall(ctx, tool, "fatal")
			return nil, asFatal(err)
		}
		c.recorder.RecordToolCall(ctx, tool, "transient")
	}

	return nil, &FatalError{Err: fmt.Errorf("%s failed after %d attempts: %w", tool, c.maxAttempts, lastErr)}
}

// callOnce runs a single transport call under the per-call timeout.
func (c *Client) callOnce(ctx context.Context, tool string, params map[string]any) (map[string]any, error) {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}
	return c.transport.Call(ctx, tool, params)
}

// session returns the cached session identifier, resolving it through
// the discovery tool on first use. Only a successful resolution is
// cached.
func (c *Client) session(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID != "" {
		return c.sessionID, nil
	}

	data, err := c.invokeWithRetry(ctx, c.sessionTool, map[string]any{})
	if err != nil {
		return "", err
	}

	id, err := sessionFromPayload(data)
	if err != nil {
		return "", err
	}

	clog.FromContext(ctx).With("session_id", id).Info("Resolved session identifier")
	c.sessionID = id
	return id, nil
}

// sessionFromPayload digs the identifier out of the discovery tool's
// payload. Accepted shapes: {"id": ...}, or a "workspaces"/"resources"
// list whose first entry carries an "id".
func sessionFromPayload(data map[string]any) (string, error) {
	if id, ok := data["id"].(string); ok && id != "" {
		return id, nil
	}
	for _, key := range []string{"workspaces", "resources"} {
		list, ok := data[key].([]any)
		if !ok || len(list) == 0 {
			continue
		}
		entry, ok := list[0].(map[string]any)
		if !ok {
			continue
		}
		if id, ok := entry["id"].(string); ok && id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("no session identifier in payload with keys %v", mapKeys(data))
}

func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func asFatal(err error) error {
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return err
	}
	return &FatalError{Err: err}
}
