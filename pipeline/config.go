/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import "fmt"

const (
	// DefaultMinCompleteness is the analysis completeness score, on the
	// 0-10 scale, below which a run stops early as partial.
	DefaultMinCompleteness = 7.0

	// DefaultMinEstimateConfidence is the estimation confidence below
	// which the result is flagged needs_review.
	DefaultMinEstimateConfidence = 0.5
)

// Config carries the orchestrator's gating thresholds and publishing
// switch.
type Config struct {
	// MinCompleteness gates Analyzing -> Estimating. An analysis scoring
	// below it ends the run as partial, later stages skipped.
	MinCompleteness float64 `json:"min_completeness"`

	// MinEstimateConfidence gates the needs_review flag. An estimation
	// scoring below it still proceeds, flagged for human review.
	MinEstimateConfidence float64 `json:"min_estimate_confidence"`

	// Publish posts the run summary back to the tracker when true.
	Publish bool `json:"publish"`
}

// DefaultConfig returns the stock gating thresholds with publishing
// off.
func DefaultConfig() Config {
	return Config{
		MinCompleteness:       DefaultMinCompleteness,
		MinEstimateConfidence: DefaultMinEstimateConfidence,
	}
}

// Validate checks the thresholds against their scales.
func (c Config) Validate() error {
	if c.MinCompleteness < 0 || c.MinCompleteness > 10 {
		return fmt.Errorf("min completeness %v outside [0, 10]", c.MinCompleteness)
	}
	if c.MinEstimateConfidence < 0 || c.MinEstimateConfidence > 1 {
		return fmt.Errorf("min estimate confidence %v outside [0, 1]", c.MinEstimateConfidence)
	}
	return nil
}
