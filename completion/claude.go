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
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// claudeEngine generates completions through the Anthropic API.
type claudeEngine struct {
	client   anthropic.Client
	model    string
	rs       retrySettings
	recorder *metrics.Recorder
}

func newClaude(cfg Config) (*claudeEngine, error) {
	if !strings.HasPrefix(cfg.Model, "claude-") {
		return nil, fmt.Errorf("invalid claude model %q: expected claude-* model name", cfg.Model)
	}
	var ro []option.RequestOption
	if cfg.APIKey != "" {
		ro = append(ro, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		ro = append(ro, option.WithBaseURL(cfg.BaseURL))
	}
	return &claudeEngine{
		client:   anthropic.NewClient(ro...),
		model:    cfg.Model,
		rs:       cfg.retrySettings(isRetryableClaudeError),
		recorder: cfg.recorder(),
	}, nil
}

func (e *claudeEngine) Model() string {
	return e.model
}

func (e *claudeEngine) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	params, err := e.buildParams(messages, opts)
	if err != nil {
		return "", err
	}
	return completeWithRetry(ctx, "claude", e.rs, func(ctx context.Context) (string, error) {
		message, err := e.client.Messages.New(ctx, params)
		if err != nil {
			return "", err
		}
		e.recorder.RecordTokens(ctx, e.model, message.Usage.InputTokens, message.Usage.OutputTokens)

		var sb strings.Builder
		for _, content := range message.Content {
			if content.Type == "text" {
				sb.WriteString(content.Text)
			}
		}
		if sb.Len() == 0 {
			return "", errors.New("response contained no text content")
		}
		return sb.String(), nil
	})
}

func (e *claudeEngine) buildParams(messages []Message, opts Options) (anthropic.MessageNewParams, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: defaultMaxTokens,
	}
	if opts.MaxOutputTokens > 0 {
		params.MaxTokens = opts.MaxOutputTokens
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	if opts.TopP > 0 {
		params.TopP = anthropic.Float(opts.TopP)
	}

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)},
			})
		case RoleUser:
			params.Messages = append(params.Messages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)},
			})
		default:
			return anthropic.MessageNewParams{}, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	if len(params.Messages) == 0 {
		return anthropic.MessageNewParams{}, errors.New("no user or assistant messages to send")
	}
	return params, nil
}

// isRetryableClaudeError reports whether the request should be retried
// with backoff. 429 is rate limiting, 529 is Anthropic's overloaded
// signal, 503/504 are transient gateway failures.
func isRetryableClaudeError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 503, 504, 529:
			return true
		}
	}
	return false
}
