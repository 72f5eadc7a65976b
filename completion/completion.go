/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package completion abstracts over interchangeable model backends.
//
// Every backend exposes the same contract: an ordered message sequence
// and sampling options in, plain text out. Callers stay backend
// agnostic; the factory in this package picks the adapter from
// configuration. Each adapter carries its own retry budget for rate
// limits and transient server errors, and reports token usage to the
// shared metrics recorder.
package completion

import (
	"context"
	"fmt"
	"time"

	"chainguard.dev/backlogaf/backoff"
	"github.com/chainguard-dev/clog"
)

const (
	// DefaultMaxAttempts is each backend's internal retry budget.
	DefaultMaxAttempts = 3

	// DefaultCallTimeout bounds a single completion request.
	DefaultCallTimeout = 2 * time.Minute

	// defaultMaxTokens applies when the caller leaves the truncation
	// bound unset.
	defaultMaxTokens = 4096
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the prompt.
type Message struct {
	Role    Role
	Content string
}

// System builds a system message.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User builds a user message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant builds an assistant message.
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Options carries sampling parameters. Zero values fall back to the
// backend's defaults. Extra is carried for forward compatibility and
// ignored by every current backend; unrecognized options are never an
// error.
type Options struct {
	// Temperature controls randomness, typically in [0, 1].
	Temperature float64

	// MaxOutputTokens bounds the length of the generated text.
	MaxOutputTokens int64

	// TopP is the nucleus sampling bound in (0, 1].
	TopP float64

	// Extra holds options this package does not recognize.
	Extra map[string]any
}

// Engine is the completion capability the pipeline consumes. Every
// call is a fresh request; engines never cache.
type Engine interface {
	// Complete generates text for the given messages. Failures are
	// *UnavailableError when the endpoint could not be reached after
	// the internal retry budget, *BackendError otherwise.
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)

	// Model returns the configured model name.
	Model() string
}

// UnavailableError reports that the inference endpoint could not be
// reached: requests timed out or kept failing with retryable errors
// until the retry budget ran out.
type UnavailableError struct {
	Backend string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s backend unavailable: %v", e.Backend, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// BackendError reports a non-timeout failure from the backend, such as
// a malformed request or an empty response.
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend error: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// retrySettings is the per-backend retry configuration.
type retrySettings struct {
	policy    backoff.Policy
	attempts  int
	timeout   time.Duration
	retryable func(error) bool
}

// completeWithRetry runs one request attempt at a time under the
// per-attempt timeout, retrying errors the backend classifier accepts.
// Exhausting the budget on retryable errors yields *UnavailableError;
// any other failure yields *BackendError.
func completeWithRetry(ctx context.Context, backend string, rs retrySettings, fn func(ctx context.Context) (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt < rs.attempts; attempt++ {
		if attempt > 0 {
			clog.FromContext(ctx).With("backend", backend).
				With("attempt", attempt+1).
				With("max_attempts", rs.attempts).
				Warnf("Completion failed with retryable error, retrying: %v", lastErr)
			if err := rs.policy.Sleep(ctx, attempt-1); err != nil {
				return "", err
			}
		}

		text, err := attemptOnce(ctx, rs.timeout, fn)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !rs.retryable(err) {
			return "", &BackendError{Backend: backend, Err: err}
		}
	}
	return "", &UnavailableError{Backend: backend, Err: fmt.Errorf("after %d attempts: %w", rs.attempts, lastErr)}
}

func attemptOnce(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (string, error)) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}
