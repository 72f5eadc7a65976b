/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"context"
	"fmt"
	"time"

	"chainguard.dev/backlogaf/metrics"
	"chainguard.dev/backlogaf/runtrace"
	"chainguard.dev/backlogaf/stage"
	"chainguard.dev/backlogaf/workitem"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "chainguard.dev/backlogaf/pipeline"

// Fetcher resolves a work item key, or a URL containing one, into the
// item plus its similar-item context.
type Fetcher interface {
	FetchContext(ctx context.Context, key string) (workitem.Context, error)
}

// StageRunner executes one analysis stage against the item context.
type StageRunner interface {
	Run(ctx context.Context, kind stage.Kind, wc workitem.Context, prior []stage.Result) (stage.Result, error)
}

// Publisher posts a completed run's summary back to the tracker.
type Publisher interface {
	PostSummary(ctx context.Context, run *Run) error
}

// Verifier reports whether the remote tool bridge is reachable.
type Verifier interface {
	VerifySession(ctx context.Context) error
}

// Orchestrator walks one work item through the stage sequence,
// applying the gates between stages.
type Orchestrator struct {
	fetcher   Fetcher
	stages    StageRunner
	publisher Publisher
	verifier  Verifier
	cfg       Config
	tracer    trace.Tracer
	traceSink runtrace.Sink
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithConfig replaces the default gating configuration.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		o.cfg = cfg
		return nil
	}
}

// WithPublisher sets the publisher used when Config.Publish is on.
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) error {
		if p == nil {
			return fmt.Errorf("publisher cannot be nil")
		}
		o.publisher = p
		return nil
	}
}

// WithVerifier wires the tool bridge checked by Health.
func WithVerifier(v Verifier) Option {
	return func(o *Orchestrator) error {
		if v == nil {
			return fmt.Errorf("verifier cannot be nil")
		}
		o.verifier = v
		return nil
	}
}

// WithTraceSink routes each run's completed trace to the given sink.
func WithTraceSink(sink runtrace.Sink) Option {
	return func(o *Orchestrator) error {
		if sink == nil {
			return fmt.Errorf("trace sink cannot be nil")
		}
		o.traceSink = sink
		return nil
	}
}

// New builds an Orchestrator over the given fetcher and stage runner.
func New(fetcher Fetcher, stages StageRunner, opts ...Option) (*Orchestrator, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if stages == nil {
		return nil, fmt.Errorf("stage runner is required")
	}
	o := &Orchestrator{
		fetcher: fetcher,
		stages:  stages,
		cfg:     DefaultConfig(),
		tracer:  otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.cfg.Publish && o.publisher == nil {
		return nil, fmt.Errorf("publishing enabled but no publisher configured")
	}
	return o, nil
}

// Run executes the pipeline for one work item key. The returned Run
// always carries whatever stage results completed before the run
// ended; failures are recorded on it rather than returned separately.
func (o *Orchestrator) Run(ctx context.Context, key string) *Run {
	ctx = metrics.WithItemContext(ctx, metrics.ItemContext{ItemKey: key})
	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("item.key", key),
	))
	defer span.End()
	log := clog.FromContext(ctx).With("item", key)

	var traceOpts []runtrace.Option
	if o.traceSink != nil {
		traceOpts = append(traceOpts, runtrace.WithSink(o.traceSink))
	}
	ctx, tr := runtrace.Start(ctx, key, traceOpts...)

	run := &Run{Key: key, State: StateFetching, Started: time.Now(), Trace: tr}
	defer func() {
		run.Finished = time.Now()
		tr.Complete(string(run.Status))
		span.SetAttributes(attribute.String("run.status", string(run.Status)))
		log.With("status", run.Status).With("stages", len(run.Results)).Infof("Run finished")
	}()

	wc, err := o.fetcher.FetchContext(ctx, key)
	if err != nil {
		log.Errorf("Fetching work item failed: %v", err)
		return run.fail(StateFetching, err)
	}
	run.Item = &wc.Item
	run.Similar = wc.Similar
	if wc.Item.Key != "" {
		// The caller may have passed a URL; keep the resolved key.
		run.Key = wc.Item.Key
	}

	for _, kind := range stage.Order() {
		if ctx.Err() != nil {
			log.With("stage", kind.String()).Infof("Run cancelled at stage boundary")
			return run.cancel()
		}
		run.State = stateFor(kind)

		res, err := o.stages.Run(ctx, kind, wc, run.Results)
		if err != nil {
			// A backend timeout also carries DeadlineExceeded, so only
			// the parent context distinguishes cancellation from failure.
			if ctx.Err() != nil {
				log.With("stage", kind.String()).Infof("Run cancelled, keeping completed results")
				return run.cancel()
			}
			log.With("stage", kind.String()).Errorf("Stage failed: %v", err)
			return run.fail(run.State, err)
		}
		run.Results = append(run.Results, res)

		switch kind {
		case stage.KindAnalysis:
			var score float64
			if res.Analysis != nil {
				score = res.Analysis.CompletenessScore
			}
			if score < o.cfg.MinCompleteness {
				run.GateNote = fmt.Sprintf("completeness %.1f below minimum %.1f, deeper analysis skipped", score, o.cfg.MinCompleteness)
				log.With("completeness", score).Infof("Analysis below completeness gate, stopping early")
				return run.finish(StatusPartial)
			}
		case stage.KindEstimation:
			if res.Confidence < o.cfg.MinEstimateConfidence {
				run.Results[len(run.Results)-1].NeedsReview = true
				run.GateNote = fmt.Sprintf("estimation confidence %.2f below minimum %.2f", res.Confidence, o.cfg.MinEstimateConfidence)
				log.With("confidence", res.Confidence).Infof("Estimation flagged for review")
			}
		}
	}

	if !o.cfg.Publish {
		return run.finish(StatusSucceeded)
	}
	if ctx.Err() != nil {
		return run.cancel()
	}
	run.State = StatePublishing
	if err := o.publisher.PostSummary(ctx, run); err != nil {
		log.Warnf("Publishing summary failed, keeping results: %v", err)
		run.Err = &StageError{Stage: StatePublishing, Err: err}
		return run.finish(StatusPublishFailed)
	}
	return run.finish(StatusSucceeded)
}

// Health verifies the remote tool bridge is reachable. It is a no-op
// when no verifier was configured.
func (o *Orchestrator) Health(ctx context.Context) error {
	if o.verifier == nil {
		return nil
	}
	if err := o.verifier.VerifySession(ctx); err != nil {
		return fmt.Errorf("tool bridge unavailable: %w", err)
	}
	return nil
}
