/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package completion

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/backlogaf/metrics"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openaiEngine generates completions through the OpenAI chat API. With
// BaseURL set it also serves OpenAI-compatible endpoints.
type openaiEngine struct {
	client   openai.Client
	model    string
	rs       retrySettings
	recorder *metrics.Recorder
}

func newOpenAI(cfg Config) (*openaiEngine, error) {
	if cfg.Model == "" {
		return nil, errors.New("openai model name is required")
	}
	var ro []option.RequestOption
	if cfg.APIKey != "" {
		ro = append(ro, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		ro = append(ro, option.WithBaseURL(cfg.BaseURL))
	}
	return &openaiEngine{
		client:   openai.NewClient(ro...),
		model:    cfg.Model,
		rs:       cfg.retrySettings(isRetryableOpenAIError),
		recorder: cfg.recorder(),
	}, nil
}

func (e *openaiEngine) Model() string {
	return e.model
}

func (e *openaiEngine) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	params, err := e.buildParams(messages, opts)
	if err != nil {
		return "", err
	}
	return completeWithRetry(ctx, "openai", e.rs, func(ctx context.Context) (string, error) {
		chat, err := e.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", err
		}
		e.recorder.RecordTokens(ctx, e.model, chat.Usage.PromptTokens, chat.Usage.CompletionTokens)

		if len(chat.Choices) == 0 {
			return "", errors.New("response contained no choices")
		}
		text := chat.Choices[0].Message.Content
		if text == "" {
			return "", errors.New("response contained no text content")
		}
		return text, nil
	})
}

func (e *openaiEngine) buildParams(messages []Message, opts Options) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(e.model),
		MaxCompletionTokens: openai.Int(defaultMaxTokens),
	}
	if opts.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(opts.MaxOutputTokens)
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.TopP > 0 {
		params.TopP = openai.Float(opts.TopP)
	}

	var sent int
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
			sent++
		case RoleUser:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
			sent++
		default:
			return openai.ChatCompletionNewParams{}, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	if sent == 0 {
		return openai.ChatCompletionNewParams{}, errors.New("no user or assistant messages to send")
	}
	return params, nil
}

// isRetryableOpenAIError reports whether the request should be retried
// with backoff: rate limits and transient server-side failures.
func isRetryableOpenAIError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return false
}
