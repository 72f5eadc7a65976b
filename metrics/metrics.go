/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics provides OpenTelemetry counters for the analysis
// pipeline: model token usage, remote tool calls, and stage runs.
package metrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName is the unified meter shared by every component, with model,
// tool, and stage names serving as dimensions on the recorded metrics.
const MeterName = "chainguard.ai.backlog"

// Recorder holds the pipeline's metric instruments. Creation never
// fails: any counter that cannot be initialized degrades to a no-op and
// logs a warning.
type Recorder struct {
	meter            metric.Meter
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	toolCalls        metric.Int64Counter
	stageRuns        metric.Int64Counter
	enricher         AttributeEnricher
}

// NewRecorder creates a Recorder on the named meter. The enricher
// defaults to ItemEnricher so metrics recorded under WithItemContext
// pick up the item's project automatically.
func NewRecorder(meterName string) *Recorder {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))

	promptTokens, err := meter.Int64Counter("genai.token.prompt",
		metric.WithDescription("The number of prompt tokens used"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create prompt tokens counter, metrics will be disabled", "error", err, "meter", meterName)
		promptTokens = noop.Int64Counter{}
	}

	completionTokens, err := meter.Int64Counter("genai.token.completion",
		metric.WithDescription("The number of completion tokens used"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create completion tokens counter, metrics will be disabled", "error", err, "meter", meterName)
		completionTokens = noop.Int64Counter{}
	}

	toolCalls, err := meter.Int64Counter("pipeline.tool.calls",
		metric.WithDescription("The number of remote tool call attempts"),
		metric.WithUnit("{calls}"))
	if err != nil {
		slog.Warn("Failed to create tool calls counter, metrics will be disabled", "error", err, "meter", meterName)
		toolCalls = noop.Int64Counter{}
	}

	stageRuns, err := meter.Int64Counter("pipeline.stage.runs",
		metric.WithDescription("The number of analysis stage executions"),
		metric.WithUnit("{runs}"))
	if err != nil {
		slog.Warn("Failed to create stage runs counter, metrics will be disabled", "error", err, "meter", meterName)
		stageRuns = noop.Int64Counter{}
	}

	return &Recorder{
		meter:            meter,
		promptTokens:     promptTokens,
		completionTokens: completionTokens,
		toolCalls:        toolCalls,
		stageRuns:        stageRuns,
		enricher:         ItemEnricher,
	}
}

// SetAttributeEnricher replaces the enricher applied to every recorded
// metric. Passing nil disables enrichment.
func (r *Recorder) SetAttributeEnricher(enricher AttributeEnricher) {
	r.enricher = enricher
}

// RecordTokens records prompt and completion token usage for one model
// call.
func (r *Recorder) RecordTokens(ctx context.Context, model string, promptTokens, completionTokens int64, attrs ...attribute.KeyValue) {
	baseAttrs := []attribute.KeyValue{
		attribute.String("model", model),
	}
	baseAttrs = r.enrich(ctx, baseAttrs, attrs)

	r.promptTokens.Add(ctx, promptTokens, metric.WithAttributes(baseAttrs...))
	r.completionTokens.Add(ctx, completionTokens, metric.WithAttributes(baseAttrs...))
}

// RecordToolCall records one remote tool call attempt. The outcome
// label is one of "ok", "transient", or "fatal".
func (r *Recorder) RecordToolCall(ctx context.Context, tool, outcome string, attrs ...attribute.KeyValue) {
	baseAttrs := []attribute.KeyValue{
		attribute.String("tool", tool),
		attribute.String("outcome", outcome),
	}
	baseAttrs = r.enrich(ctx, baseAttrs, attrs)

	r.toolCalls.Add(ctx, 1, metric.WithAttributes(baseAttrs...))
}

// RecordStage records one stage execution. The disposition label is one
// of "ok", "degraded", or "failed".
func (r *Recorder) RecordStage(ctx context.Context, kind, disposition string, attrs ...attribute.KeyValue) {
	baseAttrs := []attribute.KeyValue{
		attribute.String("stage", kind),
		attribute.String("disposition", disposition),
	}
	baseAttrs = r.enrich(ctx, baseAttrs, attrs)

	r.stageRuns.Add(ctx, 1, metric.WithAttributes(baseAttrs...))
}

func (r *Recorder) enrich(ctx context.Context, baseAttrs, extra []attribute.KeyValue) []attribute.KeyValue {
	if r.enricher != nil {
		baseAttrs = r.enricher(ctx, baseAttrs)
	}
	return append(baseAttrs, extra...)
}
