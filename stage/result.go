/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package stage

// Result is the outcome of one stage. Exactly one of the variant
// pointers matching Kind is set. Immutable once returned by a Runner,
// except for NeedsReview which the orchestrator may set during gating.
type Result struct {
	Kind Kind `json:"kind"`

	// Confidence is the stage's overall confidence in [0, 1]: the
	// model's own figure when it reported one, otherwise the fraction
	// of expected fields recovered by the parse.
	Confidence float64 `json:"confidence"`

	// RawOutput is the unmodified model response, kept for audit.
	RawOutput string `json:"raw_output,omitempty"`

	// Missing lists expected fields the response did not provide.
	Missing []string `json:"missing_fields,omitempty"`

	// NeedsReview marks a result that passed gating only marginally
	// and should be checked by a human.
	NeedsReview bool `json:"needs_review,omitempty"`

	Analysis   *Analysis   `json:"analysis,omitempty"`
	Estimation *Estimation `json:"estimation,omitempty"`
	TestSuite  *TestSuite  `json:"test_suite,omitempty"`
	Summary    *Summary    `json:"summary,omitempty"`
}

// Analysis is the structured requirements review of an item.
type Analysis struct {
	Actors               []string `json:"actors,omitempty" jsonschema:"description=User types or roles the story involves"`
	Actions              []string `json:"actions,omitempty" jsonschema:"description=User actions the story describes"`
	BusinessValue        string   `json:"business_value,omitempty" jsonschema:"description=Why this story matters"`
	ImplicitRequirements []string `json:"implicit_requirements,omitempty" jsonschema:"description=Requirements implied but not stated"`
	Assumptions          []string `json:"assumptions,omitempty" jsonschema:"description=Assumptions that need validation"`

	// CompletenessScore rates the story's readiness on [0, 10] and
	// gates whether later stages run.
	CompletenessScore float64 `json:"completeness_score" jsonschema:"description=Completeness rating from 0 to 10,required"`

	// MissingRequirements groups gaps by category, such as security or
	// error_handling.
	MissingRequirements map[string][]string `json:"missing_requirements,omitempty" jsonschema:"description=Missing elements grouped by category"`

	AcceptanceCriteriaGaps []string `json:"acceptance_criteria_gaps,omitempty" jsonschema:"description=Missing or unclear acceptance criteria"`
	Risks                  []Risk   `json:"risks,omitempty" jsonschema:"description=Identified risks"`
	Recommendations        []string `json:"recommendations,omitempty" jsonschema:"description=Actionable improvement suggestions"`
	OwnerQuestions         []string `json:"questions_for_po,omitempty" jsonschema:"description=Questions needing product owner clarification"`
}

// Risk is one identified risk from the analysis.
type Risk struct {
	Type        string `json:"type,omitempty" jsonschema:"description=technical, dependency, or unknown"`
	Description string `json:"description" jsonschema:"description=What the risk is,required"`
	Severity    string `json:"severity,omitempty" jsonschema:"description=high, medium, or low"`
}

// Estimation is a story point estimate grounded in similar items.
type Estimation struct {
	Points int64 `json:"estimated_points" jsonschema:"description=Recommended story points,required"`

	// Interval is the low and high bound of the estimate, ordered.
	Interval [2]int64 `json:"confidence_interval" jsonschema:"description=Low and high bound of the estimate"`

	Reasoning         string             `json:"reasoning,omitempty" jsonschema:"description=Explanation of the estimate"`
	SimilarAnalyzed   int64              `json:"similar_stories_analyzed,omitempty" jsonschema:"description=How many similar items informed the estimate"`
	Comparison        string             `json:"comparison_to_similar,omitempty" jsonschema:"description=How this compares to similar items"`
	AdjustmentFactors map[string]float64 `json:"adjustment_factors,omitempty" jsonschema:"description=Multipliers applied to the base estimate"`
	RiskFactors       []string           `json:"risk_factors,omitempty" jsonschema:"description=Factors that could increase effort"`
	Recommendations   []string           `json:"recommendations,omitempty" jsonschema:"description=Suggestions such as splitting the story"`
}

// TestSuite is the generated test plan for an item.
type TestSuite struct {
	Framework        string            `json:"test_framework,omitempty" jsonschema:"description=Test framework the cases target"`
	TotalCases       int64             `json:"total_test_cases" jsonschema:"description=Total number of generated test cases,required"`
	Coverage         map[string]string `json:"coverage_analysis,omitempty" jsonschema:"description=Coverage summary per aspect"`
	UnitTests        []map[string]any  `json:"unit_tests,omitempty" jsonschema:"description=Unit test cases"`
	IntegrationTests []map[string]any  `json:"integration_tests,omitempty" jsonschema:"description=Integration test cases"`
	EndToEndTests    []map[string]any  `json:"e2e_tests,omitempty" jsonschema:"description=End to end test cases"`
	QAScenarios      []map[string]any  `json:"qa_scenarios,omitempty" jsonschema:"description=Manual QA scenarios"`
	CoverageGaps     []string          `json:"missing_test_coverage,omitempty" jsonschema:"description=Acceptance criteria not fully covered"`
	Recommendations  []string          `json:"recommendations,omitempty" jsonschema:"description=Additional scenarios to consider"`
}

// Summary condenses a run's findings for publication.
type Summary struct {
	Headline   string   `json:"headline" jsonschema:"description=One sentence verdict on the item,required"`
	Highlights []string `json:"highlights,omitempty" jsonschema:"description=Key findings worth calling out"`
	KeyRisks   []string `json:"key_risks,omitempty" jsonschema:"description=Most important risks"`
	NextSteps  []string `json:"next_steps,omitempty" jsonschema:"description=Recommended follow-up actions"`
}
