/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package config loads the analyzer configuration in three layers:
// compiled-in defaults, an optional YAML file, then environment
// variables. A value set in the file survives unless its environment
// variable is actually present; the environment always wins when it is.
// Library packages take plain structs; this package is the only place
// that reads files or the environment.
package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"chainguard.dev/backlogaf/batch"
	"chainguard.dev/backlogaf/completion"
	"chainguard.dev/backlogaf/pipeline"
	"chainguard.dev/backlogaf/stage"
	"chainguard.dev/backlogaf/toolbridge"
	"chainguard.dev/backlogaf/workitem"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultModel is the completion model used when none is configured.
const DefaultModel = "claude-sonnet-4-5"

// Duration is a time.Duration spelled the same way in YAML and in the
// environment, as in "30s" or "2m".
type Duration time.Duration

// UnmarshalText parses durations from environment values.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML parses durations from YAML scalars.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the analyzer's full configuration surface.
type Config struct {
	// Model selection.
	Provider      string `yaml:"provider" env:"BACKLOG_PROVIDER"`
	Model         string `yaml:"model" env:"BACKLOG_MODEL"`
	APIKey        string `yaml:"api_key" env:"BACKLOG_API_KEY"`
	BaseURL       string `yaml:"base_url" env:"BACKLOG_BASE_URL"`
	VertexProject string `yaml:"vertex_project" env:"BACKLOG_VERTEX_PROJECT"`
	VertexRegion  string `yaml:"vertex_region" env:"BACKLOG_VERTEX_REGION"`

	// Gating thresholds and publishing.
	MinCompleteness       float64 `yaml:"min_completeness" env:"BACKLOG_MIN_COMPLETENESS"`
	MinEstimateConfidence float64 `yaml:"min_estimate_confidence" env:"BACKLOG_MIN_ESTIMATE_CONFIDENCE"`
	Publish               bool    `yaml:"publish" env:"BACKLOG_PUBLISH"`

	// Concurrency and retries.
	MaxInFlight int      `yaml:"max_in_flight" env:"BACKLOG_MAX_IN_FLIGHT"`
	MaxAttempts int      `yaml:"max_attempts" env:"BACKLOG_MAX_ATTEMPTS"`
	CallTimeout Duration `yaml:"call_timeout" env:"BACKLOG_CALL_TIMEOUT"`

	// Analysis context fed to the prompts.
	Velocity      float64 `yaml:"velocity" env:"BACKLOG_VELOCITY"`
	TestFramework string  `yaml:"test_framework" env:"BACKLOG_TEST_FRAMEWORK"`

	// Tool names on the remote bridge. SessionTool empty disables
	// session discovery.
	SessionTool  string `yaml:"session_tool" env:"BACKLOG_SESSION_TOOL"`
	SessionParam string `yaml:"session_param" env:"BACKLOG_SESSION_PARAM"`
	FetchTool    string `yaml:"fetch_tool" env:"BACKLOG_FETCH_TOOL"`
	SearchTool   string `yaml:"search_tool" env:"BACKLOG_SEARCH_TOOL"`
	CommentTool  string `yaml:"comment_tool" env:"BACKLOG_COMMENT_TOOL"`
	PageTool     string `yaml:"page_tool" env:"BACKLOG_PAGE_TOOL"`
}

// Default returns the compiled-in configuration, drawn from each
// package's own defaults.
func Default() *Config {
	return &Config{
		Model:                 DefaultModel,
		MinCompleteness:       pipeline.DefaultMinCompleteness,
		MinEstimateConfidence: pipeline.DefaultMinEstimateConfidence,
		MaxInFlight:           batch.DefaultMaxInFlight,
		MaxAttempts:           toolbridge.DefaultMaxAttempts,
		CallTimeout:           Duration(toolbridge.DefaultCallTimeout),
		Velocity:              stage.DefaultVelocity,
		TestFramework:         stage.DefaultTestFramework,
		SessionParam:          "workspaceId",
		FetchTool:             workitem.DefaultFetchTool,
		SearchTool:            workitem.DefaultSearchTool,
		CommentTool:           pipeline.DefaultCommentTool,
		PageTool:              pipeline.DefaultPageTool,
	}
}

// Load reads the configuration: Default, then the YAML file at path
// when path is non-empty, then the process environment on top.
func Load(ctx context.Context, path string) (*Config, error) {
	return load(ctx, path, envconfig.OsLookuper())
}

func load(ctx context.Context, path string, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: cfg, Lookuper: lookuper}); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks thresholds against their scales and enum fields
// against their known values.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	switch completion.Provider(c.Provider) {
	case "", completion.ProviderClaude, completion.ProviderOpenAI, completion.ProviderGemini:
	default:
		return fmt.Errorf("unknown provider %q (expected claude, openai, or gemini)", c.Provider)
	}
	if err := c.Pipeline().Validate(); err != nil {
		return err
	}
	if c.MaxInFlight <= 0 {
		return fmt.Errorf("max in flight must be positive, got %d", c.MaxInFlight)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive, got %v", c.CallTimeout.Std())
	}
	if c.Velocity <= 0 {
		return fmt.Errorf("velocity must be positive, got %v", c.Velocity)
	}
	if c.TestFramework == "" {
		return fmt.Errorf("test framework cannot be empty")
	}
	return nil
}

// Pipeline projects the orchestrator's slice of the configuration.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		MinCompleteness:       c.MinCompleteness,
		MinEstimateConfidence: c.MinEstimateConfidence,
		Publish:               c.Publish,
	}
}

// Completion projects the engine factory's slice of the configuration.
func (c *Config) Completion() completion.Config {
	return completion.Config{
		Provider:      completion.Provider(c.Provider),
		Model:         c.Model,
		APIKey:        c.APIKey,
		BaseURL:       c.BaseURL,
		VertexProject: c.VertexProject,
		VertexRegion:  c.VertexRegion,
		MaxAttempts:   c.MaxAttempts,
		CallTimeout:   c.CallTimeout.Std(),
	}
}
