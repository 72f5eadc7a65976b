/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolbridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/backlogaf/backoff"
	"chainguard.dev/backlogaf/runtrace"
	"github.com/google/go-cmp/cmp"
)

// scriptTransport drives tests: fn receives the 1-based call number.
type scriptTransport struct {
	calls atomic.Int64
	fn    func(n int64, name string, params map[string]any) (map[string]any, error)
}

func (s *scriptTransport) Call(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	return s.fn(s.calls.Add(1), name, params)
}

// fastBackoff keeps retry tests quick.
func fastBackoff() backoff.Policy {
	return backoff.Policy{Base: time.Millisecond, Cap: 4 * time.Millisecond}
}

func TestInvokeSuccess(t *testing.T) {
	t.Parallel()

	tr := &scriptTransport{fn: func(_ int64, name string, params map[string]any) (map[string]any, error) {
		return map[string]any{"key": params["key"], "status": "Open"}, nil
	}}
	client, err := NewClient(tr)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	outcome, err := client.Invoke(context.Background(), "fetch-item", map[string]any{"key": "PROJ-1"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !outcome.Success {
		t.Error("outcome.Success = false, want true")
	}
	if outcome.Tool != "fetch-item" {
		t.Errorf("outcome.Tool = %q, want fetch-item", outcome.Tool)
	}
	if outcome.Data["status"] != "Open" {
		t.Errorf("outcome.Data = %v, want status Open", outcome.Data)
	}
	if outcome.Error != "" {
		t.Errorf("outcome.Error = %q, want empty on success", outcome.Error)
	}
	if outcome.Elapsed <= 0 {
		t.Error("outcome.Elapsed not recorded")
	}
	if got := tr.calls.Load(); got != 1 {
		t.Errorf("transport calls = %d, want 1", got)
	}
}

func TestInvokeRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	tr := &scriptTransport{fn: func(n int64, _ string, _ map[string]any) (map[string]any, error) {
		if n < 3 {
			return nil, errors.New("rate limit exceeded")
		}
		return map[string]any{"ok": true}, nil
	}}
	client, err := NewClient(tr, WithBackoff(fastBackoff()))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	outcome, err := client.Invoke(context.Background(), "fetch-item", nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !outcome.Success {
		t.Error("outcome.Success = false after recovery, want true")
	}
	if got := tr.calls.Load(); got != 3 {
		t.Errorf("transport calls = %d, want 3", got)
	}
}

func TestInvokeExhaustsRetries(t *testing.T) {
	t.Parallel()

	var times []time.Time
	tr := &scriptTransport{fn: func(_ int64, _ string, _ map[string]any) (map[string]any, error) {
		times = append(times, time.Now())
		return nil, errors.New("rate limit exceeded")
	}}
	client, err := NewClient(tr,
		WithMaxAttempts(3),
		WithBackoff(backoff.Policy{Base: 20 * time.Millisecond, Cap: 200 * time.Millisecond}),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	outcome, err := client.Invoke(context.Background(), "fetch-item", nil)

	if got := tr.calls.Load(); got != 3 {
		t.Errorf("transport calls = %d, want exactly 3", got)
	}
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("Invoke() error = %v, want *FatalError", err)
	}
	if outcome.Success {
		t.Error("outcome.Success = true, want false")
	}
	if outcome.Error == "" {
		t.Error("outcome.Error empty, want failure message")
	}
	if outcome.Data != nil {
		t.Errorf("outcome.Data = %v, want nil on failure", outcome.Data)
	}

	// Backoff delays double: the second wait must be at least twice the
	// base, the first at least the base.
	if len(times) != 3 {
		t.Fatalf("recorded %d attempt times, want 3", len(times))
	}
	if gap := times[1].Sub(times[0]); gap < 20*time.Millisecond {
		t.Errorf("first backoff %v, want >= 20ms", gap)
	}
	if gap := times[2].Sub(times[1]); gap < 40*time.Millisecond {
		t.Errorf("second backoff %v, want >= 40ms", gap)
	}
}

func TestInvokeFatalNotRetried(t *testing.T) {
	t.Parallel()

	tr := &scriptTransport{fn: func(_ int64, _ string, _ map[string]any) (map[string]any, error) {
		return nil, errors.New("issue not found")
	}}
	client, err := NewClient(tr, WithBackoff(fastBackoff()))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = client.Invoke(context.Background(), "fetch-item", nil)
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("Invoke() error = %v, want *FatalError", err)
	}
	if got := tr.calls.Load(); got != 1 {
		t.Errorf("transport calls = %d, want 1 for a fatal error", got)
	}
}

func TestInvokeWrappedFatalNotRetried(t *testing.T) {
	t.Parallel()

	tr := &scriptTransport{fn: func(_ int64, _ string, _ map[string]any) (map[string]any, error) {
		// The message alone would look transient; the wrapper wins.
		return nil, Fatal(errors.New("upstream gateway timeout"))
	}}
	client, err := NewClient(tr, WithBackoff(fastBackoff()))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = client.Invoke(context.Background(), "add-comment", nil)
	if err == nil {
		t.Fatal("Invoke() error = nil, want fatal error")
	}
	if got := tr.calls.Load(); got != 1 {
		t.Errorf("transport calls = %d, want 1", got)
	}
}

func TestInvokeCancelledContextStopsRetries(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	tr := &scriptTransport{fn: func(_ int64, _ string, _ map[string]any) (map[string]any, error) {
		cancel()
		return nil, errors.New("rate limit exceeded")
	}}
	client, err := NewClient(tr, WithBackoff(fastBackoff()))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = client.Invoke(ctx, "fetch-item", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Invoke() error = %v, want context.Canceled", err)
	}
	if got := tr.calls.Load(); got != 1 {
		t.Errorf("transport calls = %d, want 1 after cancellation", got)
	}
}

func TestInvokePerCallTimeoutRetried(t *testing.T) {
	t.Parallel()

	blocking := &blockingTransport{}
	client, err := NewClient(blocking,
		WithMaxAttempts(2),
		WithCallTimeout(10*time.Millisecond),
		WithBackoff(fastBackoff()),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = client.Invoke(context.Background(), "search-similar", nil)
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("Invoke() error = %v, want *FatalError after exhausted retries", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Invoke() error = %v, want wrapped deadline exceeded", err)
	}
	if got := blocking.calls.Load(); got != 2 {
		t.Errorf("transport calls = %d, want 2 (timeout treated as transient)", got)
	}
}

// blockingTransport waits out the per-call deadline on every call.
type blockingTransport struct {
	calls atomic.Int64
}

func (b *blockingTransport) Call(ctx context.Context, _ string, _ map[string]any) (map[string]any, error) {
	b.calls.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestInvokeEmptyToolName(t *testing.T) {
	t.Parallel()

	tr := &scriptTransport{fn: func(_ int64, _ string, _ map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	}}
	client, err := NewClient(tr)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	outcome, err := client.Invoke(context.Background(), "", nil)
	if err == nil {
		t.Fatal("Invoke(\"\") error = nil, want error")
	}
	if outcome.Success {
		t.Error("outcome.Success = true, want false")
	}
	if got := tr.calls.Load(); got != 0 {
		t.Errorf("transport calls = %d, want 0", got)
	}
}

func TestInvokeIdempotentData(t *testing.T) {
	t.Parallel()

	tr := &scriptTransport{fn: func(_ int64, _ string, params map[string]any) (map[string]any, error) {
		return map[string]any{"key": params["key"], "labels": []any{"auth", "backend"}}, nil
	}}
	client, err := NewClient(tr)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	first, err := client.Invoke(context.Background(), "fetch-item", map[string]any{"key": "PROJ-9"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	second, err := client.Invoke(context.Background(), "fetch-item", map[string]any{"key": "PROJ-9"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if diff := cmp.Diff(first.Data, second.Data); diff != "" {
		t.Errorf("repeated Invoke() data mismatch (-first +second):\n%s", diff)
	}
}

func TestSessionResolvedOnceAcrossConcurrentCalls(t *testing.T) {
	t.Parallel()

	var (
		mu            sync.Mutex
		seenWorkspace []any
		sessionCalls  atomic.Int64
	)
	tr := &scriptTransport{fn: func(_ int64, name string, params map[string]any) (map[string]any, error) {
		if name == "list-workspaces" {
			sessionCalls.Add(1)
			// Slow resolution widens the single-flight window.
			time.Sleep(10 * time.Millisecond)
			return map[string]any{"workspaces": []any{map[string]any{"id": "ws-1", "name": "primary"}}}, nil
		}
		mu.Lock()
		seenWorkspace = append(seenWorkspace, params["workspaceId"])
		mu.Unlock()
		return map[string]any{"ok": true}, nil
	}}
	client, err := NewClient(tr, WithSessionDiscovery("list-workspaces", "workspaceId"))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Invoke(context.Background(), "fetch-item", map[string]any{"key": "PROJ-1"}); err != nil {
				t.Errorf("Invoke() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := sessionCalls.Load(); got != 1 {
		t.Errorf("session discovery calls = %d, want exactly 1", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seenWorkspace) != 8 {
		t.Fatalf("tool calls = %d, want 8", len(seenWorkspace))
	}
	for i, ws := range seenWorkspace {
		if ws != "ws-1" {
			t.Errorf("call %d workspaceId = %v, want ws-1", i, ws)
		}
	}
}

func TestSessionResolutionFailureIsPerCall(t *testing.T) {
	t.Parallel()

	tr := &scriptTransport{fn: func(n int64, name string, _ map[string]any) (map[string]any, error) {
		if name == "list-workspaces" {
			if n == 1 {
				return nil, errors.New("permission denied")
			}
			return map[string]any{"id": "ws-2"}, nil
		}
		return map[string]any{"ok": true}, nil
	}}
	client, err := NewClient(tr, WithSessionDiscovery("list-workspaces", "workspaceId"), WithBackoff(fastBackoff()))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if _, err := client.Invoke(context.Background(), "fetch-item", nil); err == nil {
		t.Fatal("Invoke() error = nil, want session resolution failure")
	}

	// The failure is not cached: the next call resolves and proceeds.
	outcome, err := client.Invoke(context.Background(), "fetch-item", nil)
	if err != nil {
		t.Fatalf("Invoke() after recovery error = %v", err)
	}
	if !outcome.Success {
		t.Error("outcome.Success = false after recovery, want true")
	}
}

func TestSessionParamNotOverridden(t *testing.T) {
	t.Parallel()

	var sessionCalls atomic.Int64
	tr := &scriptTransport{fn: func(_ int64, name string, params map[string]any) (map[string]any, error) {
		if name == "list-workspaces" {
			sessionCalls.Add(1)
			return map[string]any{"id": "ws-1"}, nil
		}
		return map[string]any{"workspace": params["workspaceId"]}, nil
	}}
	client, err := NewClient(tr, WithSessionDiscovery("list-workspaces", "workspaceId"))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	outcome, err := client.Invoke(context.Background(), "fetch-item", map[string]any{"workspaceId": "custom"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if outcome.Data["workspace"] != "custom" {
		t.Errorf("workspace = %v, want caller-supplied value preserved", outcome.Data["workspace"])
	}
	if got := sessionCalls.Load(); got != 0 {
		t.Errorf("session discovery calls = %d, want 0 when the caller supplies the parameter", got)
	}
}

func TestVerifySession(t *testing.T) {
	t.Parallel()

	tr := &scriptTransport{fn: func(_ int64, name string, _ map[string]any) (map[string]any, error) {
		if name != "list-workspaces" {
			t.Errorf("unexpected tool %q", name)
		}
		return map[string]any{"resources": []any{map[string]any{"id": "ws-3"}}}, nil
	}}
	client, err := NewClient(tr, WithSessionDiscovery("list-workspaces", "workspaceId"))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if err := client.VerifySession(context.Background()); err != nil {
		t.Errorf("VerifySession() error = %v", err)
	}

	unconfigured, err := NewClient(tr)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if err := unconfigured.VerifySession(context.Background()); err == nil {
		t.Error("VerifySession() without discovery = nil, want error")
	}
}

func TestInvokeDoesNotMutateCallerParams(t *testing.T) {
	t.Parallel()

	tr := &scriptTransport{fn: func(_ int64, name string, _ map[string]any) (map[string]any, error) {
		if name == "list-workspaces" {
			return map[string]any{"id": "ws-1"}, nil
		}
		return map[string]any{}, nil
	}}
	client, err := NewClient(tr, WithSessionDiscovery("list-workspaces", "workspaceId"))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	params := map[string]any{"key": "PROJ-1"}
	if _, err := client.Invoke(context.Background(), "fetch-item", params); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if _, ok := params["workspaceId"]; ok {
		t.Error("caller params mutated with injected session identifier")
	}
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	tr := &scriptTransport{fn: func(_ int64, _ string, _ map[string]any) (map[string]any, error) {
		return nil, nil
	}}

	tests := []struct {
		name string
		run  func() error
	}{
		{name: "nil transport", run: func() error { _, err := NewClient(nil); return err }},
		{name: "zero attempts", run: func() error { _, err := NewClient(tr, WithMaxAttempts(0)); return err }},
		{name: "negative timeout", run: func() error { _, err := NewClient(tr, WithCallTimeout(-time.Second)); return err }},
		{name: "bad backoff", run: func() error { _, err := NewClient(tr, WithBackoff(backoff.Policy{})); return err }},
		{name: "nil classifier", run: func() error { _, err := NewClient(tr, WithClassifier(nil)); return err }},
		{name: "empty session tool", run: func() error { _, err := NewClient(tr, WithSessionDiscovery("", "k")); return err }},
		{name: "empty session param", run: func() error { _, err := NewClient(tr, WithSessionDiscovery("t", "")); return err }},
		{name: "nil metrics", run: func() error { _, err := NewClient(tr, WithMetrics(nil)); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.run(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestInvokeRecordsTraceEvents(t *testing.T) {
	t.Parallel()

	tr := &scriptTransport{fn: func(_ int64, name string, _ map[string]any) (map[string]any, error) {
		if name == "add-comment" {
			return nil, Fatal(errors.New("permission denied"))
		}
		return map[string]any{"ok": true}, nil
	}}
	client, err := NewClient(tr)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	ctx, trace := runtrace.Start(context.Background(), "PROJ-1",
		runtrace.WithSink(runtrace.SinkFunc(func(*runtrace.Trace) {})))

	if _, err := client.Invoke(ctx, "fetch-item", nil); err != nil {
		t.Fatalf("Invoke(fetch-item) error = %v", err)
	}
	if _, err := client.Invoke(ctx, "add-comment", nil); err == nil {
		t.Fatal("Invoke(add-comment) error = nil, want fatal error")
	}
	trace.Complete("succeeded")

	if len(trace.Tools) != 2 {
		t.Fatalf("trace recorded %d tool events, want 2", len(trace.Tools))
	}
	if got := trace.Tools[0]; got.Tool != "fetch-item" || !got.Success {
		t.Errorf("first event = %+v, want successful fetch-item", got)
	}
	if got := trace.Tools[1]; got.Tool != "add-comment" || got.Success || got.Error == "" {
		t.Errorf("second event = %+v, want failed add-comment with error", got)
	}
}
