/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package runtrace

import (
	"context"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
)

// Sink receives completed traces.
type Sink interface {
	Record(trace *Trace)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(*Trace)

// Record invokes the function.
func (f SinkFunc) Record(trace *Trace) {
	f(trace)
}

type fanout struct {
	sinks []Sink
}

// Fanout returns a sink that delivers each trace to every given sink in
// parallel.
func Fanout(sinks ...Sink) Sink {
	return &fanout{sinks: sinks}
}

// Record delivers the trace to all sinks in parallel.
func (f *fanout) Record(trace *Trace) {
	g := new(errgroup.Group)

	for _, sink := range f.sinks {
		if sink != nil {
			g.Go(func() error {
				sink.Record(trace)
				return nil
			})
		}
	}

	// Wait for all sinks to complete
	// We ignore the error since our sinks never return one
	_ = g.Wait()
}

// logSink is the default sink: it logs the structured trace through the
// logger carried by the context at trace start.
func logSink(ctx context.Context) Sink {
	logger := clog.FromContext(ctx)

	return SinkFunc(func(trace *Trace) {
		logger.With(
			"trace_id", trace.ID,
			"duration_ms", trace.Duration().Milliseconds(),
			"tool_events", len(trace.Tools),
			"stage_events", len(trace.Stages),
		).Info("Run trace completed", "trace", trace.String())
	})
}
