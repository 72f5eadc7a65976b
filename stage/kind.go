/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package stage runs the individual analysis stages of a pipeline:
// prompt construction, model completion, response parsing, and
// confidence scoring.
package stage

// Kind identifies one analysis stage.
type Kind string

const (
	KindAnalysis   Kind = "analysis"
	KindEstimation Kind = "estimation"
	KindTestSuite  Kind = "test_suite"
	KindSummary    Kind = "summary"
)

// Order is the fixed execution order of stages within a run. A run's
// results are always a prefix of this sequence.
func Order() []Kind {
	return []Kind{KindAnalysis, KindEstimation, KindTestSuite, KindSummary}
}

// Valid reports whether k names a known stage.
func (k Kind) Valid() bool {
	switch k {
	case KindAnalysis, KindEstimation, KindTestSuite, KindSummary:
		return true
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}
