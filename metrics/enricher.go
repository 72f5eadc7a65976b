/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// AttributeEnricher enriches metric attributes with additional context.
// It receives the base attributes (model, tool, stage) and returns an
// enriched set, letting callers attach their own dimensions without
// coupling the instruments to a specific use case.
type AttributeEnricher func(ctx context.Context, baseAttrs []attribute.KeyValue) []attribute.KeyValue

// ItemContext carries per-run identity for metric and log enrichment.
// The full item key is kept for logs and traces; metrics only ever see
// the project prefix, which is bounded, so per-item keys never create
// new time series.
type ItemContext struct {
	// ItemKey is the tracker key, e.g. "PROJ-123".
	ItemKey string `json:"item_key,omitempty"`

	// Batch marks runs launched by the batch coordinator.
	Batch bool `json:"batch,omitempty"`
}

// Project extracts the project prefix from the item key:
// "PROJ-123" yields "PROJ". Returns empty for malformed keys.
func (ic ItemContext) Project() string {
	project, _, found := strings.Cut(ic.ItemKey, "-")
	if !found {
		return ""
	}
	return project
}

// EnrichAttributes appends the bounded item attributes to baseAttrs.
func (ic ItemContext) EnrichAttributes(baseAttrs []attribute.KeyValue) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, len(baseAttrs), len(baseAttrs)+2)
	copy(attrs, baseAttrs)

	if project := ic.Project(); project != "" {
		attrs = append(attrs, attribute.String("project", project))
	}
	attrs = append(attrs, attribute.Bool("batch", ic.Batch))

	return attrs
}

type itemContextKey struct{}

// WithItemContext returns a context carrying the given item context.
func WithItemContext(ctx context.Context, ic ItemContext) context.Context {
	return context.WithValue(ctx, itemContextKey{}, ic)
}

// ItemContextFrom extracts the item context, if any, from ctx.
func ItemContextFrom(ctx context.Context) (ItemContext, bool) {
	ic, ok := ctx.Value(itemContextKey{}).(ItemContext)
	return ic, ok
}

// ItemEnricher is the default AttributeEnricher: it appends the item
// attributes carried by the context, when present.
func ItemEnricher(ctx context.Context, baseAttrs []attribute.KeyValue) []attribute.KeyValue {
	ic, ok := ItemContextFrom(ctx)
	if !ok {
		return baseAttrs
	}
	return ic.EnrichAttributes(baseAttrs)
}
