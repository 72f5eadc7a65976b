/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package fieldparse

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func scoreSchema() Schema {
	return Schema{
		Name: "analysis",
		Fields: []Field{
			{Name: "completeness_score", Kind: KindNumber, Required: true, Min: Bound(0), Max: Bound(10)},
			{Name: "confidence", Kind: KindNumber, Min: Bound(0), Max: Bound(1)},
			{Name: "actors", Kind: KindStringList},
			{Name: "missing_requirements", Kind: KindStringListMap},
			{Name: "risks", Kind: KindObjectList},
			{Name: "estimated_points", Kind: KindInt, Min: Bound(0), Max: Bound(100)},
			{Name: "business_value", Kind: KindString},
		},
	}
}

func TestParseComplete(t *testing.T) {
	t.Parallel()

	text := "```json\n" + `{
		"completeness_score": 7.5,
		"confidence": 0.8,
		"actors": ["admin", "customer"],
		"missing_requirements": {"security": ["no auth flow"], "ux": []},
		"risks": [{"category": "technical", "severity": "high"}],
		"estimated_points": 8,
		"business_value": "reduces churn"
	}` + "\n```"

	res, err := Parse(text, scoreSchema())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(res.Missing) != 0 {
		t.Errorf("Missing = %v, want none", res.Missing)
	}
	if got := res.Fraction(); got != 1 {
		t.Errorf("Fraction() = %v, want 1", got)
	}

	want := map[string]any{
		"completeness_score":   7.5,
		"confidence":           0.8,
		"actors":               []string{"admin", "customer"},
		"missing_requirements": map[string][]string{"security": {"no auth flow"}, "ux": {}},
		"risks":                []map[string]any{{"category": "technical", "severity": "high"}},
		"estimated_points":     int64(8),
		"business_value":       "reduces churn",
	}
	if diff := cmp.Diff(want, res.Values); diff != "" {
		t.Errorf("Values mismatch (-want +got):\n%s", diff)
	}
}

func TestParseClampsOutOfRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		field string
		want  any
	}{{
		name:  "confidence above bound",
		text:  `{"completeness_score": 5, "confidence": 1.4}`,
		field: "confidence",
		want:  1.0,
	}, {
		name:  "confidence below bound",
		text:  `{"completeness_score": 5, "confidence": -0.2}`,
		field: "confidence",
		want:  0.0,
	}, {
		name:  "score above bound",
		text:  `{"completeness_score": 12.5}`,
		field: "completeness_score",
		want:  10.0,
	}, {
		name:  "score below bound",
		text:  `{"completeness_score": -3}`,
		field: "completeness_score",
		want:  0.0,
	}, {
		name:  "int clamped then truncated",
		text:  `{"completeness_score": 5, "estimated_points": 250}`,
		field: "estimated_points",
		want:  int64(100),
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := Parse(tt.text, scoreSchema())
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got := res.Values[tt.field]; got != tt.want {
				t.Errorf("Values[%q] = %v (%T), want %v (%T)", tt.field, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestParseCoercesNumericStrings(t *testing.T) {
	t.Parallel()

	res, err := Parse(`{"completeness_score": "7.5", "estimated_points": " 13 "}`, scoreSchema())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := res.Values["completeness_score"]; got != 7.5 {
		t.Errorf("completeness_score = %v, want 7.5", got)
	}
	if got := res.Values["estimated_points"]; got != int64(13) {
		t.Errorf("estimated_points = %v, want 13", got)
	}
}

func TestParseScalarPromotedToList(t *testing.T) {
	t.Parallel()

	res, err := Parse(`{"completeness_score": 5, "actors": "admin"}`, scoreSchema())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if diff := cmp.Diff([]string{"admin"}, res.Values["actors"]); diff != "" {
		t.Errorf("actors mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMissingOptionalFields(t *testing.T) {
	t.Parallel()

	res, err := Parse(`{"completeness_score": 6}`, scoreSchema())
	if err != nil {
		t.Fatalf("Parse() error = %v, optional fields must not error", err)
	}
	wantMissing := []string{"actors", "business_value", "confidence", "estimated_points", "missing_requirements", "risks"}
	if diff := cmp.Diff(wantMissing, res.Missing); diff != "" {
		t.Errorf("Missing mismatch (-want +got):\n%s", diff)
	}
	if got, want := res.Fraction(), 1.0/7.0; got != want {
		t.Errorf("Fraction() = %v, want %v", got, want)
	}
}

func TestParseMissingRequiredField(t *testing.T) {
	t.Parallel()

	res, err := Parse(`{"confidence": 0.9, "business_value": "x"}`, scoreSchema())

	var malformed *MalformedError
	if !errors.As(err, &malformed) {
		t.Fatalf("Parse() error = %v, want *MalformedError", err)
	}
	if diff := cmp.Diff([]string{"completeness_score"}, malformed.MissingRequired); diff != "" {
		t.Errorf("MissingRequired mismatch (-want +got):\n%s", diff)
	}

	// Recovered fields are still returned alongside the error.
	if got := res.Values["confidence"]; got != 0.9 {
		t.Errorf("Values[confidence] = %v, want 0.9", got)
	}
	if got := res.Values["business_value"]; got != "x" {
		t.Errorf("Values[business_value] = %v, want x", got)
	}
}

func TestParseNoStructuredBlock(t *testing.T) {
	t.Parallel()

	res, err := Parse("I am sorry, I cannot analyze this story.", scoreSchema())

	var malformed *MalformedError
	if !errors.As(err, &malformed) {
		t.Fatalf("Parse() error = %v, want *MalformedError", err)
	}
	if len(res.Values) != 0 {
		t.Errorf("Values = %v, want empty", res.Values)
	}
	if got, want := len(res.Missing), len(scoreSchema().Fields); got != want {
		t.Errorf("len(Missing) = %d, want %d", got, want)
	}
	if got := res.Fraction(); got != 0 {
		t.Errorf("Fraction() = %v, want 0", got)
	}
}

func TestParseWrongTypeIsMissing(t *testing.T) {
	t.Parallel()

	// actors is an object, not a list or scalar: dropped, not an error.
	res, err := Parse(`{"completeness_score": 5, "actors": {"admin": true}}`, scoreSchema())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if _, ok := res.Values["actors"]; ok {
		t.Error("actors parsed from incompatible shape, want missing")
	}
	found := false
	for _, name := range res.Missing {
		if name == "actors" {
			found = true
		}
	}
	if !found {
		t.Errorf("Missing = %v, want to include actors", res.Missing)
	}
}

func TestParseNullIsMissing(t *testing.T) {
	t.Parallel()

	res, err := Parse(`{"completeness_score": 5, "business_value": null}`, scoreSchema())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if _, ok := res.Values["business_value"]; ok {
		t.Error("null field parsed, want missing")
	}
}

func TestParseIntListAndNumberMap(t *testing.T) {
	t.Parallel()

	s := Schema{
		Name: "estimation",
		Fields: []Field{
			{Name: "confidence_interval", Kind: KindIntList},
			{Name: "adjustment_factors", Kind: KindNumberMap},
			{Name: "coverage_analysis", Kind: KindStringMap},
		},
	}
	res, err := Parse(`{
		"confidence_interval": [3, "8"],
		"adjustment_factors": {"complexity": 1.2, "bogus": "x"},
		"coverage_analysis": {"acceptance_criteria": "90%", "edge_cases": "75%", "bogus": []}
	}`, s)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if diff := cmp.Diff([]int64{3, 8}, res.Values["confidence_interval"]); diff != "" {
		t.Errorf("confidence_interval mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]float64{"complexity": 1.2}, res.Values["adjustment_factors"]); diff != "" {
		t.Errorf("adjustment_factors mismatch (-want +got):\n%s", diff)
	}
	want := map[string]string{"acceptance_criteria": "90%", "edge_cases": "75%"}
	if diff := cmp.Diff(want, res.Values["coverage_analysis"]); diff != "" {
		t.Errorf("coverage_analysis mismatch (-want +got):\n%s", diff)
	}
}
