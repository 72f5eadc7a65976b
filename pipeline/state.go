/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package pipeline drives the analysis of one backlog item through its
// stages: fetch, analyze, estimate, generate tests, summarize, and
// optionally publish. Transitions are strictly forward, gates decide
// how far a run gets, and completed stage results survive whatever
// happens afterwards.
package pipeline

import "chainguard.dev/backlogaf/stage"

// State is the orchestrator's position within one run.
type State string

const (
	StateFetching        State = "fetching"
	StateAnalyzing       State = "analyzing"
	StateEstimating      State = "estimating"
	StateGeneratingTests State = "generating_tests"
	StateSummarizing     State = "summarizing"
	StatePublishing      State = "publishing"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// stateFor maps a stage kind to the orchestrator state executing it.
func stateFor(kind stage.Kind) State {
	switch kind {
	case stage.KindAnalysis:
		return StateAnalyzing
	case stage.KindEstimation:
		return StateEstimating
	case stage.KindTestSuite:
		return StateGeneratingTests
	case stage.KindSummary:
		return StateSummarizing
	}
	return StateFailed
}

// Status is a finished run's disposition.
type Status string

const (
	// StatusSucceeded means every stage ran and publishing, when
	// enabled, landed.
	StatusSucceeded Status = "succeeded"

	// StatusPartial means the completeness gate stopped the run after
	// analysis. The analysis result is retained; this is a valid
	// outcome, not a failure.
	StatusPartial Status = "partial"

	// StatusPublishFailed means the stages all ran but posting the
	// summary did not land. Results are retained.
	StatusPublishFailed Status = "publish_failed"

	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Success reports whether the run produced usable results.
func (s Status) Success() bool {
	switch s {
	case StatusSucceeded, StatusPartial, StatusPublishFailed:
		return true
	}
	return false
}
