/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chainguard.dev/backlogaf/backoff"
	"chainguard.dev/backlogaf/metrics"
)

// Provider identifies a completion backend implementation.
type Provider string

const (
	ProviderClaude Provider = "claude"
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// Config selects and configures a backend. Model is required;
// everything else has a working default.
type Config struct {
	// Provider forces a backend. When empty it is inferred from the
	// Model prefix.
	Provider Provider

	// Model is the provider-side model name, such as
	// claude-sonnet-4-5, gpt-4o, or gemini-2.5-pro.
	Model string

	// APIKey authenticates with the provider. Backends fall back to
	// their SDK's ambient credentials when empty.
	APIKey string

	// BaseURL overrides the endpoint for OpenAI-compatible servers.
	BaseURL string

	// VertexProject routes Gemini traffic through Vertex AI instead of
	// the Gemini API when set.
	VertexProject string

	// VertexRegion is the Vertex AI region, such as us-central1.
	VertexRegion string

	// MaxAttempts overrides the retry budget for retryable failures.
	MaxAttempts int

	// CallTimeout overrides the per-request deadline.
	CallTimeout time.Duration

	// Metrics receives token usage. A fresh recorder is created when
	// nil.
	Metrics *metrics.Recorder
}

// New builds the engine for the configured provider. When
// cfg.Provider is empty the backend is inferred from the model name
// prefix the same way each provider names its models.
func New(ctx context.Context, cfg Config) (Engine, error) {
	if cfg.Model == "" {
		return nil, errors.New("model name is required")
	}
	provider := cfg.Provider
	if provider == "" {
		provider = inferProvider(cfg.Model)
	}
	switch provider {
	case ProviderClaude:
		return newClaude(cfg)
	case ProviderOpenAI:
		return newOpenAI(cfg)
	case ProviderGemini:
		return newGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported model: %s (expected claude-*, gpt-*, o*, or gemini-*)", cfg.Model)
	}
}

func inferProvider(model string) Provider {
	modelLower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(modelLower, "claude-"):
		return ProviderClaude
	case strings.HasPrefix(modelLower, "gemini-"):
		return ProviderGemini
	case strings.HasPrefix(modelLower, "gpt-"),
		strings.HasPrefix(modelLower, "o1"),
		strings.HasPrefix(modelLower, "o3"),
		strings.HasPrefix(modelLower, "o4"):
		return ProviderOpenAI
	default:
		return ""
	}
}

func (cfg Config) retrySettings(retryable func(error) bool) retrySettings {
	rs := retrySettings{
		policy:    backoff.DefaultPolicy(),
		attempts:  DefaultMaxAttempts,
		timeout:   DefaultCallTimeout,
		retryable: retryable,
	}
	if cfg.MaxAttempts > 0 {
		rs.attempts = cfg.MaxAttempts
	}
	if cfg.CallTimeout > 0 {
		rs.timeout = cfg.CallTimeout
	}
	return rs
}

func (cfg Config) recorder() *metrics.Recorder {
	if cfg.Metrics != nil {
		return cfg.Metrics
	}
	return metrics.NewRecorder(metrics.MeterName)
}
