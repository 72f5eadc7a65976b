/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package stage

import (
	"fmt"

	"chainguard.dev/backlogaf/completion"
	"chainguard.dev/backlogaf/prompt"
	"chainguard.dev/backlogaf/schema"
	"chainguard.dev/backlogaf/workitem"
)

// Schemas embedded in the prompts so the model answers in the shape the
// parser expects.
var (
	analysisSchemaText   = schema.MustText[Analysis]()
	estimationSchemaText = schema.MustText[Estimation]()
	testSuiteSchemaText  = schema.MustText[TestSuite]()
	summarySchemaText    = schema.MustText[Summary]()
)

var analysisTemplate = prompt.MustNew(`Analyze this backlog item:

{{item}}

Similar past items:
{{similar}}

Assess:
1. Actors, actions, and business value, plus implicit requirements and assumptions.
2. Completeness on a 0-10 scale, with missing elements grouped by category (functional, security, performance, accessibility, error_handling, edge_cases).
3. Gaps or ambiguities in the acceptance criteria.
4. Technical and dependency risks with severity.
5. Specific recommendations and questions for the product owner.

Respond with a single JSON object matching this schema:
{{schema}}`)

var estimationTemplate = prompt.MustNew(`Estimate story points for this backlog item:

{{item}}

Similar past items with points:
{{similar}}

Team context: average velocity {{velocity}} points per sprint.

Known gaps from the requirements analysis:
{{gaps}}

Use the scale 1, 2, 3, 5, 8, 13, where 13 means the item should be split. Weigh complexity, uncertainty, integration points, and testing effort against the similar items, and report a confidence interval around the estimate.

Respond with a single JSON object matching this schema:
{{schema}}`)

var testSuiteTemplate = prompt.MustNew(`Generate test cases for this backlog item:

{{item}}

Target framework: {{framework}}

Cover unit tests for each acceptance criterion including error handling and boundary conditions, integration tests for component interactions, end-to-end tests for complete user journeys, and manual QA scenarios with step-by-step procedures. Report coverage per aspect and note any criteria left uncovered.

Respond with a single JSON object matching this schema:
{{schema}}`)

var summaryTemplate = prompt.MustNew(`Summarize the completed analysis of backlog item {{key}} for a comment to the team:

{{results}}

Give a one-sentence headline verdict, the highlights worth calling out, the most important risks, and concrete next steps.

Respond with a single JSON object matching this schema:
{{schema}}`)

func systemPrompt(kind Kind) string {
	switch kind {
	case KindAnalysis:
		return "You are an expert requirements analyst. Provide detailed, structured analysis in JSON format."
	case KindEstimation:
		return "You are an expert at story point estimation. Provide data-driven estimates in JSON format."
	case KindTestSuite:
		return "You are a QA expert. Generate comprehensive test suites in JSON format."
	case KindSummary:
		return "You are a technical program manager. Summarize analysis findings in JSON format."
	}
	return ""
}

// messages builds the conversation for one stage. Estimation reads the
// analysis stage's gap findings, summary consumes every prior result,
// and the rest work from the item context alone.
func (r *Runner) messages(kind Kind, wc workitem.Context, prior []Result) ([]completion.Message, error) {
	var (
		tpl *prompt.Template
		err error
	)
	switch kind {
	case KindAnalysis:
		tpl, err = bindItem(analysisTemplate, wc)
		if err == nil {
			tpl, err = tpl.Literal("schema", analysisSchemaText)
		}

	case KindEstimation:
		tpl, err = bindItem(estimationTemplate, wc)
		if err == nil {
			tpl, err = tpl.Literal("velocity", fmt.Sprintf("%g", r.velocity))
		}
		if err == nil {
			if gaps := analysisGaps(prior); gaps != nil {
				tpl, err = tpl.JSON("gaps", gaps)
			} else {
				tpl, err = tpl.Literal("gaps", "(no analysis available)")
			}
		}
		if err == nil {
			tpl, err = tpl.Literal("schema", estimationSchemaText)
		}

	case KindTestSuite:
		tpl, err = testSuiteTemplate.YAML("item", wc.Item)
		if err == nil {
			tpl, err = tpl.Literal("framework", r.testFramework)
		}
		if err == nil {
			tpl, err = tpl.Literal("schema", testSuiteSchemaText)
		}

	case KindSummary:
		tpl, err = summaryTemplate.Literal("key", wc.Item.Key)
		if err == nil {
			tpl, err = tpl.JSON("results", priorByKind(prior))
		}
		if err == nil {
			tpl, err = tpl.Literal("schema", summarySchemaText)
		}

	default:
		return nil, fmt.Errorf("unknown stage kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("building %s prompt: %w", kind, err)
	}

	user, err := tpl.Render()
	if err != nil {
		return nil, fmt.Errorf("rendering %s prompt: %w", kind, err)
	}
	return []completion.Message{
		completion.System(systemPrompt(kind)),
		completion.User(user),
	}, nil
}

func bindItem(tpl *prompt.Template, wc workitem.Context) (*prompt.Template, error) {
	tpl, err := tpl.YAML("item", wc.Item)
	if err != nil {
		return nil, err
	}
	if len(wc.Similar) == 0 {
		return tpl.Literal("similar", "(none found)")
	}
	return tpl.JSON("similar", wc.Similar)
}

// analysisGaps surfaces the analysis stage's missing requirements and
// acceptance criteria gaps for the estimation prompt.
func analysisGaps(prior []Result) any {
	for _, res := range prior {
		if res.Kind != KindAnalysis || res.Analysis == nil {
			continue
		}
		if len(res.Analysis.MissingRequirements) == 0 && len(res.Analysis.AcceptanceCriteriaGaps) == 0 {
			return nil
		}
		return map[string]any{
			"missing_requirements":     res.Analysis.MissingRequirements,
			"acceptance_criteria_gaps": res.Analysis.AcceptanceCriteriaGaps,
		}
	}
	return nil
}

// priorByKind shapes prior results for the summary prompt, dropping
// raw output to keep the prompt compact.
func priorByKind(prior []Result) map[string]any {
	out := make(map[string]any, len(prior))
	for _, res := range prior {
		entry := map[string]any{"confidence": res.Confidence}
		switch res.Kind {
		case KindAnalysis:
			entry["fields"] = res.Analysis
		case KindEstimation:
			entry["fields"] = res.Estimation
			if res.NeedsReview {
				entry["needs_review"] = true
			}
		case KindTestSuite:
			entry["fields"] = res.TestSuite
		case KindSummary:
			entry["fields"] = res.Summary
		}
		out[res.Kind.String()] = entry
	}
	return out
}
