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

	"chainguard.dev/backlogaf/metrics"
	"google.golang.org/genai"
)

// geminiEngine generates completions through the Gemini API, or
// through Vertex AI when a project is configured.
type geminiEngine struct {
	client   *genai.Client
	model    string
	rs       retrySettings
	recorder *metrics.Recorder
}

func newGemini(ctx context.Context, cfg Config) (*geminiEngine, error) {
	if !strings.HasPrefix(cfg.Model, "gemini-") {
		return nil, fmt.Errorf("invalid gemini model %q: expected gemini-* model name", cfg.Model)
	}
	cc := &genai.ClientConfig{}
	if cfg.VertexProject != "" {
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.VertexProject
		cc.Location = cfg.VertexRegion
	} else {
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google AI client: %w", err)
	}
	return &geminiEngine{
		client:   client,
		model:    cfg.Model,
		rs:       cfg.retrySettings(isRetryableGeminiError),
		recorder: cfg.recorder(),
	}, nil
}

func (e *geminiEngine) Model() string {
	return e.model
}

func (e *geminiEngine) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	contents, config, err := e.buildRequest(messages, opts)
	if err != nil {
		return "", err
	}
	return completeWithRetry(ctx, "gemini", e.rs, func(ctx context.Context) (string, error) {
		resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, config)
		if err != nil {
			return "", err
		}
		if usage := resp.UsageMetadata; usage != nil {
			e.recorder.RecordTokens(ctx, e.model, int64(usage.PromptTokenCount), int64(usage.CandidatesTokenCount))
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return "", errors.New("response contained no candidates")
		}

		var sb strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
		if sb.Len() == 0 {
			return "", errors.New("response contained no text content")
		}
		return sb.String(), nil
	})
}

func (e *geminiEngine) buildRequest(messages []Message, opts Options) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	config := &genai.GenerateContentConfig{}
	if opts.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(opts.Temperature))
	}
	if opts.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxOutputTokens)
	} else {
		config.MaxOutputTokens = defaultMaxTokens
	}
	if opts.TopP > 0 {
		config.TopP = genai.Ptr(float32(opts.TopP))
	}

	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if config.SystemInstruction == nil {
				config.SystemInstruction = &genai.Content{}
			}
			config.SystemInstruction.Parts = append(config.SystemInstruction.Parts, &genai.Part{Text: m.Content})
		case RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		case RoleUser:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		default:
			return nil, nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	if len(contents) == 0 {
		return nil, nil, errors.New("no user or assistant messages to send")
	}
	return contents, config, nil
}

// isRetryableGeminiError reports whether the request should be retried
// with backoff. The Gemini SDK does not expose structured status codes
// for every failure mode, so this matches the messages the API is
// known to return for rate limiting and transient server errors.
func isRetryableGeminiError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{
		"Resource exhausted",
		"RESOURCE_EXHAUSTED",
		"429",
		"rate limit",
		"quota exceeded",
		"Overloaded",
		"503",
		"Internal error",
		"server error",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
