/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package batch runs the analysis pipeline over many work items with
// bounded concurrency. Items are processed independently: one failure
// never aborts its siblings, and the report preserves input order
// regardless of completion order.
package batch

import (
	"context"
	"fmt"

	"chainguard.dev/backlogaf/metrics"
	"chainguard.dev/backlogaf/pipeline"
	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxInFlight bounds how many items are processed concurrently.
const DefaultMaxInFlight = 3

// ItemRunner executes the pipeline for one work item key.
type ItemRunner interface {
	Run(ctx context.Context, key string) *pipeline.Run
}

// Coordinator fans work item keys out to an ItemRunner.
type Coordinator struct {
	runner      ItemRunner
	maxInFlight int
}

// Option configures a Coordinator.
type Option func(*Coordinator) error

// WithMaxInFlight caps concurrent runs.
func WithMaxInFlight(n int) Option {
	return func(c *Coordinator) error {
		if n <= 0 {
			return fmt.Errorf("max in flight must be positive, got %d", n)
		}
		c.maxInFlight = n
		return nil
	}
}

// New builds a Coordinator over the given runner.
func New(runner ItemRunner, opts ...Option) (*Coordinator, error) {
	if runner == nil {
		return nil, fmt.Errorf("item runner is required")
	}
	c := &Coordinator{runner: runner, maxInFlight: DefaultMaxInFlight}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ItemOutcome is one item's result within a batch.
type ItemOutcome struct {
	Key     string        `json:"key"`
	Success bool          `json:"success"`
	Run     *pipeline.Run `json:"run,omitempty"`
}

// Report aggregates a batch. Items matches the input key order, and
// Total is always Succeeded + Failed. A report with zero successes is
// a valid result, not an error.
type Report struct {
	Items     []ItemOutcome `json:"items"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
}

// Run processes the keys with at most the configured number in flight.
func (c *Coordinator) Run(ctx context.Context, keys []string) *Report {
	log := clog.FromContext(ctx).With("total", len(keys))
	log.Infof("Starting batch analysis")

	outcomes := make([]ItemOutcome, len(keys))
	var g errgroup.Group
	g.SetLimit(c.maxInFlight)
	for i, key := range keys {
		g.Go(func() error {
			outcomes[i] = c.runOne(ctx, key)
			return nil
		})
	}
	_ = g.Wait() // runOne never returns an error

	report := &Report{Items: outcomes, Total: len(keys)}
	for _, item := range outcomes {
		if item.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	log.With("succeeded", report.Succeeded).With("failed", report.Failed).Infof("Batch analysis complete")
	return report
}

// runOne isolates a single run, converting a panic into a failed
// outcome so one item cannot unwind the batch.
func (c *Coordinator) runOne(ctx context.Context, key string) (out ItemOutcome) {
	out = ItemOutcome{Key: key}
	defer func() {
		if r := recover(); r != nil {
			clog.FromContext(ctx).With("item", key).Errorf("Run panicked: %v", r)
			out.Success = false
			out.Run = &pipeline.Run{
				Key:    key,
				State:  pipeline.StateFailed,
				Status: pipeline.StatusFailed,
				Err:    &pipeline.StageError{Stage: pipeline.StateFailed, Err: fmt.Errorf("panic: %v", r)},
			}
		}
	}()

	ctx = metrics.WithItemContext(ctx, metrics.ItemContext{ItemKey: key, Batch: true})
	run := c.runner.Run(ctx, key)
	out.Run = run
	out.Success = run.Status.Success()
	return out
}
