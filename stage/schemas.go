/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package stage

import (
	"chainguard.dev/backlogaf/fieldparse"
)

// confidenceField is shared by every schema: an optional model-reported
// confidence, clamped to [0, 1].
var confidenceField = fieldparse.Field{
	Name: "confidence",
	Kind: fieldparse.KindNumber,
	Min:  fieldparse.Bound(0),
	Max:  fieldparse.Bound(1),
}

func schemaFor(kind Kind) fieldparse.Schema {
	switch kind {
	case KindAnalysis:
		return fieldparse.Schema{Name: "analysis", Fields: []fieldparse.Field{
			{Name: "actors", Kind: fieldparse.KindStringList},
			{Name: "actions", Kind: fieldparse.KindStringList},
			{Name: "business_value", Kind: fieldparse.KindString},
			{Name: "implicit_requirements", Kind: fieldparse.KindStringList},
			{Name: "assumptions", Kind: fieldparse.KindStringList},
			{Name: "completeness_score", Kind: fieldparse.KindNumber, Required: true, Min: fieldparse.Bound(0), Max: fieldparse.Bound(10)},
			{Name: "missing_requirements", Kind: fieldparse.KindStringListMap},
			{Name: "acceptance_criteria_gaps", Kind: fieldparse.KindStringList},
			{Name: "risks", Kind: fieldparse.KindObjectList},
			{Name: "recommendations", Kind: fieldparse.KindStringList},
			{Name: "questions_for_po", Kind: fieldparse.KindStringList},
			confidenceField,
		}}

	case KindEstimation:
		return fieldparse.Schema{Name: "estimation", Fields: []fieldparse.Field{
			{Name: "estimated_points", Kind: fieldparse.KindInt, Required: true, Min: fieldparse.Bound(0), Max: fieldparse.Bound(100)},
			{Name: "confidence", Kind: fieldparse.KindNumber, Required: true, Min: fieldparse.Bound(0), Max: fieldparse.Bound(1)},
			{Name: "confidence_interval", Kind: fieldparse.KindIntList},
			{Name: "reasoning", Kind: fieldparse.KindString},
			{Name: "similar_stories_analyzed", Kind: fieldparse.KindInt, Min: fieldparse.Bound(0)},
			{Name: "comparison_to_similar", Kind: fieldparse.KindString},
			{Name: "adjustment_factors", Kind: fieldparse.KindNumberMap},
			{Name: "risk_factors", Kind: fieldparse.KindStringList},
			{Name: "recommendations", Kind: fieldparse.KindStringList},
		}}

	case KindTestSuite:
		return fieldparse.Schema{Name: "test_suite", Fields: []fieldparse.Field{
			{Name: "test_framework", Kind: fieldparse.KindString},
			{Name: "total_test_cases", Kind: fieldparse.KindInt, Required: true, Min: fieldparse.Bound(0)},
			{Name: "coverage_analysis", Kind: fieldparse.KindStringMap},
			{Name: "unit_tests", Kind: fieldparse.KindObjectList},
			{Name: "integration_tests", Kind: fieldparse.KindObjectList},
			{Name: "e2e_tests", Kind: fieldparse.KindObjectList},
			{Name: "qa_scenarios", Kind: fieldparse.KindObjectList},
			{Name: "missing_test_coverage", Kind: fieldparse.KindStringList},
			{Name: "recommendations", Kind: fieldparse.KindStringList},
			confidenceField,
		}}

	case KindSummary:
		return fieldparse.Schema{Name: "summary", Fields: []fieldparse.Field{
			{Name: "headline", Kind: fieldparse.KindString, Required: true},
			{Name: "highlights", Kind: fieldparse.KindStringList},
			{Name: "key_risks", Kind: fieldparse.KindStringList},
			{Name: "next_steps", Kind: fieldparse.KindStringList},
			confidenceField,
		}}
	}
	return fieldparse.Schema{}
}

// decodeInto fills the Result variant for kind from parsed values.
func decodeInto(res *Result, values map[string]any) {
	switch res.Kind {
	case KindAnalysis:
		res.Analysis = decodeAnalysis(values)
	case KindEstimation:
		res.Estimation = decodeEstimation(values)
	case KindTestSuite:
		res.TestSuite = decodeTestSuite(values)
	case KindSummary:
		res.Summary = decodeSummary(values)
	}
}

func decodeAnalysis(values map[string]any) *Analysis {
	a := &Analysis{
		Actors:                 getStrings(values, "actors"),
		Actions:                getStrings(values, "actions"),
		BusinessValue:          getString(values, "business_value"),
		ImplicitRequirements:   getStrings(values, "implicit_requirements"),
		Assumptions:            getStrings(values, "assumptions"),
		CompletenessScore:      getFloat(values, "completeness_score"),
		MissingRequirements:    getStringListMap(values, "missing_requirements"),
		AcceptanceCriteriaGaps: getStrings(values, "acceptance_criteria_gaps"),
		Recommendations:        getStrings(values, "recommendations"),
		OwnerQuestions:         getStrings(values, "questions_for_po"),
	}
	for _, obj := range getObjects(values, "risks") {
		desc, _ := obj["description"].(string)
		if desc == "" {
			continue
		}
		typ, _ := obj["type"].(string)
		sev, _ := obj["severity"].(string)
		a.Risks = append(a.Risks, Risk{Type: typ, Description: desc, Severity: sev})
	}
	return a
}

func decodeEstimation(values map[string]any) *Estimation {
	e := &Estimation{
		Points:            getInt(values, "estimated_points"),
		Reasoning:         getString(values, "reasoning"),
		SimilarAnalyzed:   getInt(values, "similar_stories_analyzed"),
		Comparison:        getString(values, "comparison_to_similar"),
		AdjustmentFactors: getNumberMap(values, "adjustment_factors"),
		RiskFactors:       getStrings(values, "risk_factors"),
		Recommendations:   getStrings(values, "recommendations"),
	}
	e.Interval = interval(getInts(values, "confidence_interval"), e.Points)
	return e
}

// interval normalizes the model's bounds to an ordered pair, falling
// back to a degenerate [points, points] interval when absent.
func interval(bounds []int64, points int64) [2]int64 {
	switch len(bounds) {
	case 0:
		return [2]int64{points, points}
	case 1:
		return [2]int64{bounds[0], bounds[0]}
	default:
		lo, hi := bounds[0], bounds[1]
		if lo > hi {
			lo, hi = hi, lo
		}
		return [2]int64{lo, hi}
	}
}

func decodeTestSuite(values map[string]any) *TestSuite {
	ts := &TestSuite{
		Framework:        getString(values, "test_framework"),
		TotalCases:       getInt(values, "total_test_cases"),
		Coverage:         getStringMap(values, "coverage_analysis"),
		UnitTests:        getObjects(values, "unit_tests"),
		IntegrationTests: getObjects(values, "integration_tests"),
		EndToEndTests:    getObjects(values, "e2e_tests"),
		QAScenarios:      getObjects(values, "qa_scenarios"),
		CoverageGaps:     getStrings(values, "missing_test_coverage"),
		Recommendations:  getStrings(values, "recommendations"),
	}
	if ts.TotalCases == 0 {
		ts.TotalCases = int64(len(ts.UnitTests) + len(ts.IntegrationTests) + len(ts.EndToEndTests) + len(ts.QAScenarios))
	}
	return ts
}

func decodeSummary(values map[string]any) *Summary {
	return &Summary{
		Headline:   getString(values, "headline"),
		Highlights: getStrings(values, "highlights"),
		KeyRisks:   getStrings(values, "key_risks"),
		NextSteps:  getStrings(values, "next_steps"),
	}
}

func getString(values map[string]any, key string) string {
	s, _ := values[key].(string)
	return s
}

func getFloat(values map[string]any, key string) float64 {
	f, _ := values[key].(float64)
	return f
}

func getInt(values map[string]any, key string) int64 {
	n, _ := values[key].(int64)
	return n
}

func getStrings(values map[string]any, key string) []string {
	list, _ := values[key].([]string)
	return list
}

func getInts(values map[string]any, key string) []int64 {
	list, _ := values[key].([]int64)
	return list
}

func getStringMap(values map[string]any, key string) map[string]string {
	m, _ := values[key].(map[string]string)
	return m
}

func getStringListMap(values map[string]any, key string) map[string][]string {
	m, _ := values[key].(map[string][]string)
	return m
}

func getNumberMap(values map[string]any, key string) map[string]float64 {
	m, _ := values[key].(map[string]float64)
	return m
}

func getObjects(values map[string]any, key string) []map[string]any {
	list, _ := values[key].([]map[string]any)
	return list
}
