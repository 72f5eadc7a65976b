/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolbridge

import (
	"errors"
	"fmt"
	"time"

	"chainguard.dev/backlogaf/backoff"
	"chainguard.dev/backlogaf/metrics"
)

// Option is a functional option for configuring the Client.
type Option func(*Client) error

// WithMaxAttempts sets the total attempt budget per call, first attempt
// included.
func WithMaxAttempts(n int) Option {
	return func(c *Client) error {
		if n < 1 {
			return fmt.Errorf("max attempts must be at least 1, got %d", n)
		}
		c.maxAttempts = n
		return nil
	}
}

// WithCallTimeout bounds each individual transport call. Zero disables
// the per-call timeout and leaves deadlines to the caller's context.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("call timeout cannot be negative, got %v", d)
		}
		c.callTimeout = d
		return nil
	}
}

// WithBackoff replaces the retry delay policy.
func WithBackoff(p backoff.Policy) Option {
	return func(c *Client) error {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid backoff policy: %w", err)
		}
		c.policy = p
		return nil
	}
}

// WithClassifier replaces the transient-error classifier used for
// unwrapped transport errors.
func WithClassifier(fn func(error) bool) Option {
	return func(c *Client) error {
		if fn == nil {
			return errors.New("classifier cannot be nil")
		}
		c.classify = fn
		return nil
	}
}

// WithSessionDiscovery enables lazy session identifier resolution: the
// named tool is called once, and the resolved identifier is injected
// into every other call's parameters under paramKey unless the caller
// already set it.
func WithSessionDiscovery(tool, paramKey string) Option {
	return func(c *Client) error {
		if tool == "" {
			return errors.New("session discovery tool cannot be empty")
		}
		if paramKey == "" {
			return errors.New("session parameter key cannot be empty")
		}
		c.sessionTool = tool
		c.sessionParam = paramKey
		return nil
	}
}

// WithMetrics replaces the metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Client) error {
		if r == nil {
			return errors.New("metrics recorder cannot be nil")
		}
		c.recorder = r
		return nil
	}
}
