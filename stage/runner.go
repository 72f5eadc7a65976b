/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chainguard.dev/backlogaf/completion"
	"chainguard.dev/backlogaf/fieldparse"
	"chainguard.dev/backlogaf/metrics"
	"chainguard.dev/backlogaf/runtrace"
	"chainguard.dev/backlogaf/workitem"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "chainguard.dev/backlogaf/stage"

const (
	// DefaultVelocity is the team velocity fed to estimation prompts.
	DefaultVelocity = 30.0

	// DefaultTestFramework is the framework test generation targets.
	DefaultTestFramework = "Jest"
)

// defaultSampling returns each stage's sampling parameters. Estimation
// and summary run cooler for consistency; test generation gets more
// room because suites are verbose.
func defaultSampling(kind Kind) completion.Options {
	switch kind {
	case KindAnalysis:
		return completion.Options{Temperature: 0.7, MaxOutputTokens: 4096}
	case KindEstimation:
		return completion.Options{Temperature: 0.5, MaxOutputTokens: 2048}
	case KindTestSuite:
		return completion.Options{Temperature: 0.7, MaxOutputTokens: 6000}
	case KindSummary:
		return completion.Options{Temperature: 0.4, MaxOutputTokens: 2048}
	}
	return completion.Options{}
}

// Runner executes single stages: prompt, complete, parse, score.
type Runner struct {
	engine        completion.Engine
	recorder      *metrics.Recorder
	tracer        trace.Tracer
	velocity      float64
	testFramework string
	sampling      map[Kind]completion.Options
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner) error

// WithMetrics sets the metrics recorder.
func WithMetrics(recorder *metrics.Recorder) RunnerOption {
	return func(r *Runner) error {
		if recorder == nil {
			return fmt.Errorf("metrics recorder cannot be nil")
		}
		r.recorder = recorder
		return nil
	}
}

// WithVelocity sets the team velocity used by estimation prompts.
func WithVelocity(pointsPerSprint float64) RunnerOption {
	return func(r *Runner) error {
		if pointsPerSprint <= 0 {
			return fmt.Errorf("velocity must be positive, got %v", pointsPerSprint)
		}
		r.velocity = pointsPerSprint
		return nil
	}
}

// WithTestFramework sets the framework test generation targets.
func WithTestFramework(name string) RunnerOption {
	return func(r *Runner) error {
		if name == "" {
			return fmt.Errorf("test framework cannot be empty")
		}
		r.testFramework = name
		return nil
	}
}

// WithSampling overrides one stage's sampling parameters.
func WithSampling(kind Kind, opts completion.Options) RunnerOption {
	return func(r *Runner) error {
		if !kind.Valid() {
			return fmt.Errorf("unknown stage kind %q", kind)
		}
		r.sampling[kind] = opts
		return nil
	}
}

// NewRunner builds a Runner over the given engine.
func NewRunner(engine completion.Engine, opts ...RunnerOption) (*Runner, error) {
	if engine == nil {
		return nil, fmt.Errorf("completion engine is required")
	}
	r := &Runner{
		engine:        engine,
		recorder:      metrics.NewRecorder(metrics.MeterName),
		tracer:        otel.Tracer(instrumentationName),
		velocity:      DefaultVelocity,
		testFramework: DefaultTestFramework,
		sampling:      map[Kind]completion.Options{},
	}
	for _, kind := range Order() {
		r.sampling[kind] = defaultSampling(kind)
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Run executes one stage against the item context. prior carries the
// results of already completed stages; only the summary stage reads
// them. A malformed model response degrades the result (reduced
// confidence, missing fields listed) instead of failing the stage;
// completion failures fail it.
func (r *Runner) Run(ctx context.Context, kind Kind, wc workitem.Context, prior []Result) (Result, error) {
	if !kind.Valid() {
		return Result{}, fmt.Errorf("unknown stage kind %q", kind)
	}
	ctx, span := r.tracer.Start(ctx, "stage."+kind.String(), trace.WithAttributes(
		attribute.String("stage.kind", kind.String()),
		attribute.String("item.key", wc.Item.Key),
	))
	defer span.End()
	log := clog.FromContext(ctx).With("stage", kind.String()).With("item", wc.Item.Key)
	start := time.Now()

	messages, err := r.messages(kind, wc, prior)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prompt construction failed")
		return Result{}, err
	}

	text, err := r.engine.Complete(ctx, messages, r.sampling[kind])
	if err != nil {
		r.recorder.RecordStage(ctx, kind.String(), "failed")
		runtrace.FromContext(ctx).RecordStage(runtrace.StageEvent{
			Stage:       kind.String(),
			Disposition: "failed",
			Error:       err.Error(),
			Elapsed:     time.Since(start),
		})
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return Result{}, fmt.Errorf("completing %s stage: %w", kind, err)
	}

	res := Result{Kind: kind, RawOutput: text}
	parsed, perr := fieldparse.Parse(text, schemaFor(kind))
	res.Missing = parsed.Missing
	decodeInto(&res, parsed.Values)
	res.Confidence = confidenceOf(parsed)

	if perr != nil {
		var malformed *fieldparse.MalformedError
		if !errors.As(perr, &malformed) {
			r.recorder.RecordStage(ctx, kind.String(), "failed")
			runtrace.FromContext(ctx).RecordStage(runtrace.StageEvent{
				Stage:       kind.String(),
				Disposition: "failed",
				Error:       perr.Error(),
				Elapsed:     time.Since(start),
			})
			span.RecordError(perr)
			span.SetStatus(codes.Error, "parse failed")
			return Result{}, fmt.Errorf("parsing %s output: %w", kind, perr)
		}
		if f := parsed.Fraction(); res.Confidence > f {
			res.Confidence = f
		}
		log.With("missing", res.Missing).Warnf("Stage output incomplete, degrading result: %v", malformed)
		r.recorder.RecordStage(ctx, kind.String(), "degraded")
		runtrace.FromContext(ctx).RecordStage(runtrace.StageEvent{
			Stage:       kind.String(),
			Disposition: "degraded",
			Confidence:  res.Confidence,
			Elapsed:     time.Since(start),
		})
		span.SetAttributes(attribute.Bool("stage.degraded", true))
		return res, nil
	}

	r.recorder.RecordStage(ctx, kind.String(), "ok")
	runtrace.FromContext(ctx).RecordStage(runtrace.StageEvent{
		Stage:       kind.String(),
		Disposition: "ok",
		Confidence:  res.Confidence,
		Elapsed:     time.Since(start),
	})
	span.SetAttributes(attribute.Float64("stage.confidence", res.Confidence))
	log.With("confidence", res.Confidence).Infof("Stage complete")
	return res, nil
}

// confidenceOf prefers the model's own confidence figure, already
// clamped by the parse, and falls back to the parsed-field fraction.
func confidenceOf(parsed fieldparse.Result) float64 {
	if c, ok := parsed.Values["confidence"].(float64); ok {
		return c
	}
	return parsed.Fraction()
}
