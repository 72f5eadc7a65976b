/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package runtrace records the audit trail of one pipeline run: every
// remote tool invocation and every completion stage, in order, with
// timings. The trace rides the context so the layers that do the work
// can append events without threading a parameter through every
// signature, and the finished trace is attached to the run record.
package runtrace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ToolEvent records one remote tool invocation, retries included.
type ToolEvent struct {
	Tool    string        `json:"tool"`
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
	At      time.Time     `json:"at"`
}

// StageEvent records one completion stage execution. Disposition is
// "ok", "degraded", or "failed", matching how the stage ended.
type StageEvent struct {
	Stage       string        `json:"stage"`
	Disposition string        `json:"disposition"`
	Confidence  float64       `json:"confidence,omitempty"`
	Error       string        `json:"error,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
	At          time.Time     `json:"at"`
}

// Trace is the event log for a single run. Recording is safe for
// concurrent use; reading the event slices is safe once the trace is
// complete.
type Trace struct {
	ID      string       `json:"id"`
	Item    string       `json:"item,omitempty"`
	Tools   []ToolEvent  `json:"tool_events,omitempty"`
	Stages  []StageEvent `json:"stage_events,omitempty"`
	Outcome string       `json:"outcome,omitempty"`
	Started time.Time    `json:"started"`
	Ended   time.Time    `json:"ended"`

	mu   sync.Mutex
	sink Sink
}

// Option configures a trace at start.
type Option func(*Trace)

// WithSink routes the completed trace to the given sink instead of the
// default log sink.
func WithSink(sink Sink) Option {
	return func(t *Trace) {
		if sink != nil {
			t.sink = sink
		}
	}
}

type traceKey struct{}

// Start begins a trace for the given item and returns a context that
// carries it. An existing trace in the context is shadowed; each run
// gets its own.
func Start(ctx context.Context, item string, opts ...Option) (context.Context, *Trace) {
	t := &Trace{
		ID:      newTraceID(),
		Item:    item,
		Started: time.Now(),
		sink:    logSink(ctx),
	}
	for _, opt := range opts {
		opt(t)
	}
	return context.WithValue(ctx, traceKey{}, t), t
}

// FromContext returns the trace carried by the context, or nil. All
// recording methods are nil-safe, so callers chain without checking:
//
//	runtrace.FromContext(ctx).RecordTool(ev)
func FromContext(ctx context.Context) *Trace {
	t, _ := ctx.Value(traceKey{}).(*Trace)
	return t
}

// RecordTool appends a tool event. Recording on a nil trace is a no-op.
func (t *Trace) RecordTool(ev ToolEvent) {
	if t == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Tools = append(t.Tools, ev)
}

// RecordStage appends a stage event. Recording on a nil trace is a
// no-op.
func (t *Trace) RecordStage(ev StageEvent) {
	if t == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Stages = append(t.Stages, ev)
}

// Complete marks the trace finished with the run's outcome and hands it
// to the sink. Only the first call takes effect.
func (t *Trace) Complete(outcome string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	if !t.Ended.IsZero() {
		t.mu.Unlock()
		return
	}
	t.Ended = time.Now()
	t.Outcome = outcome
	sink := t.sink
	t.mu.Unlock()

	if sink != nil {
		sink.Record(t)
	}
}

// Duration returns how long the trace has been running, or its total
// duration once complete.
func (t *Trace) Duration() time.Duration {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Ended.IsZero() {
		return time.Since(t.Started)
	}
	return t.Ended.Sub(t.Started)
}

// String returns a structured representation of the trace.
func (t *Trace) String() string {
	if t == nil {
		return "<nil trace>"
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var duration time.Duration
	if t.Ended.IsZero() {
		duration = time.Since(t.Started)
	} else {
		duration = t.Ended.Sub(t.Started)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("=== Trace %s ===\n", t.ID))
	if t.Item != "" {
		sb.WriteString(fmt.Sprintf("Item: %s\n", t.Item))
	}
	sb.WriteString(fmt.Sprintf("Duration: %v\n", duration))

	if len(t.Tools) > 0 {
		sb.WriteString(fmt.Sprintf("\nTool Calls (%d):\n", len(t.Tools)))
		for i, ev := range t.Tools {
			sb.WriteString(fmt.Sprintf("  [%d] %s (%v)\n", i+1, ev.Tool, ev.Elapsed))
			if ev.Error != "" {
				sb.WriteString(fmt.Sprintf("      Error: %s\n", ev.Error))
			}
		}
	} else {
		sb.WriteString("\nNo tool calls\n")
	}

	if len(t.Stages) > 0 {
		sb.WriteString(fmt.Sprintf("\nStages (%d):\n", len(t.Stages)))
		for i, ev := range t.Stages {
			sb.WriteString(fmt.Sprintf("  [%d] %s: %s (%v)\n", i+1, ev.Stage, ev.Disposition, ev.Elapsed))
			if ev.Disposition != "failed" {
				sb.WriteString(fmt.Sprintf("      Confidence: %.2f\n", ev.Confidence))
			}
			if ev.Error != "" {
				sb.WriteString(fmt.Sprintf("      Error: %s\n", ev.Error))
			}
		}
	} else {
		sb.WriteString("\nNo stages\n")
	}

	if t.Outcome != "" {
		sb.WriteString(fmt.Sprintf("\nOutcome: %s\n", t.Outcome))
	}

	return sb.String()
}

// newTraceID generates a unique trace ID.
func newTraceID() string {
	// Generate a random component
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp only if random generation fails
		return time.Now().Format("20060102-150405.000000")
	}
	// Format: YYYYMMDD-HHMMSS-RRRR where RRRR is random hex
	return fmt.Sprintf("%s-%s", time.Now().Format("20060102-150405"), hex.EncodeToString(b))
}
