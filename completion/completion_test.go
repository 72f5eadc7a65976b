/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package completion

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/backlogaf/backoff"
)

func fastRetrySettings(attempts int, retryable func(error) bool) retrySettings {
	return retrySettings{
		policy:    backoff.Policy{Base: time.Millisecond, Cap: 4 * time.Millisecond},
		attempts:  attempts,
		timeout:   time.Second,
		retryable: retryable,
	}
}

func alwaysRetry(error) bool { return true }
func neverRetry(error) bool  { return false }

func TestCompleteWithRetrySucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	text, err := completeWithRetry(context.Background(), "fake", fastRetrySettings(3, neverRetry), func(context.Context) (string, error) {
		calls.Add(1)
		return "hello", nil
	})
	if err != nil {
		t.Fatalf("completeWithRetry() error = %v", err)
	}
	if text != "hello" {
		t.Errorf("text = %q, want %q", text, "hello")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestCompleteWithRetryRecoversFromRetryableError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	text, err := completeWithRetry(context.Background(), "fake", fastRetrySettings(3, alwaysRetry), func(context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("overloaded")
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("completeWithRetry() error = %v", err)
	}
	if text != "recovered" {
		t.Errorf("text = %q, want %q", text, "recovered")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestCompleteWithRetryExhaustsBudget(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	_, err := completeWithRetry(context.Background(), "fake", fastRetrySettings(3, alwaysRetry), func(context.Context) (string, error) {
		calls.Add(1)
		return "", errors.New("overloaded")
	})

	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("completeWithRetry() error = %v, want *UnavailableError", err)
	}
	if unavailable.Backend != "fake" {
		t.Errorf("Backend = %q, want %q", unavailable.Backend, "fake")
	}
	if !strings.Contains(unavailable.Error(), "after 3 attempts") {
		t.Errorf("Error() = %q, want attempt count", unavailable.Error())
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestCompleteWithRetryNonRetryableFailsImmediately(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	cause := errors.New("invalid request")
	_, err := completeWithRetry(context.Background(), "fake", fastRetrySettings(3, neverRetry), func(context.Context) (string, error) {
		calls.Add(1)
		return "", cause
	})

	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("completeWithRetry() error = %v, want *BackendError", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("error chain does not include the cause: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestCompleteWithRetryHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int64
	_, err := completeWithRetry(ctx, "fake", fastRetrySettings(3, alwaysRetry), func(context.Context) (string, error) {
		calls.Add(1)
		cancel()
		return "", errors.New("overloaded")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("completeWithRetry() error = %v, want context.Canceled", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestCompleteWithRetryTimesOutPerAttempt(t *testing.T) {
	t.Parallel()

	rs := fastRetrySettings(2, func(err error) bool {
		return errors.Is(err, context.DeadlineExceeded)
	})
	rs.timeout = 10 * time.Millisecond

	var calls atomic.Int64
	_, err := completeWithRetry(context.Background(), "fake", rs, func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-ctx.Done()
		return "", ctx.Err()
	})

	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("completeWithRetry() error = %v, want *UnavailableError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error chain does not include the deadline: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestMessageConstructors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		got  Message
		want Message
	}{
		{name: "system", got: System("be terse"), want: Message{Role: RoleSystem, Content: "be terse"}},
		{name: "user", got: User("hello"), want: Message{Role: RoleUser, Content: "hello"}},
		{name: "assistant", got: Assistant("hi"), want: Message{Role: RoleAssistant, Content: "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.got != tt.want {
				t.Errorf("message = %+v, want %+v", tt.got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	if !errors.Is(&UnavailableError{Backend: "fake", Err: cause}, cause) {
		t.Error("UnavailableError does not unwrap to its cause")
	}
	if !errors.Is(&BackendError{Backend: "fake", Err: cause}, cause) {
		t.Error("BackendError does not unwrap to its cause")
	}
}
