/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package fieldparse

import (
	"sort"
	"strconv"
	"strings"
)

// Result holds the parsed fields and the names of schema fields that
// were absent or not coercible. Every schema field lands in exactly one
// of the two.
type Result struct {
	Values  map[string]any
	Missing []string
}

// Fraction reports the share of schema fields successfully parsed, in
// [0, 1]. Stage confidence falls back to this when the model supplies
// no explicit confidence.
func (r Result) Fraction() float64 {
	total := len(r.Values) + len(r.Missing)
	if total == 0 {
		return 1
	}
	return float64(len(r.Values)) / float64(total)
}

// Parse extracts the schema's fields from a model response. It never
// discards partial output: the Result carries whatever was recovered
// even when the returned error is a *MalformedError (no structured
// block, or a required field absent).
func Parse(text string, s Schema) (Result, error) {
	res := Result{Values: map[string]any{}}

	obj, err := ExtractObject(text)
	if err != nil {
		for _, f := range s.Fields {
			res.Missing = append(res.Missing, f.Name)
		}
		sort.Strings(res.Missing)
		return res, &MalformedError{Schema: s.Name, Reason: err.Error()}
	}

	var missingRequired []string
	for _, f := range s.Fields {
		raw, ok := obj[f.Name]
		if ok && raw != nil {
			if v, ok := coerce(raw, f); ok {
				res.Values[f.Name] = v
				continue
			}
		}
		res.Missing = append(res.Missing, f.Name)
		if f.Required {
			missingRequired = append(missingRequired, f.Name)
		}
	}
	sort.Strings(res.Missing)

	if len(missingRequired) > 0 {
		sort.Strings(missingRequired)
		return res, &MalformedError{
			Schema:          s.Name,
			Reason:          "incomplete response",
			MissingRequired: missingRequired,
		}
	}
	return res, nil
}

// coerce converts a raw JSON value to the field's declared kind.
func coerce(raw any, f Field) (any, bool) {
	switch f.Kind {
	case KindString:
		return asString(raw)

	case KindNumber:
		n, ok := asNumber(raw)
		if !ok {
			return nil, false
		}
		return clamp(n, f), true

	case KindInt:
		n, ok := asNumber(raw)
		if !ok {
			return nil, false
		}
		return int64(clamp(n, f)), true

	case KindStringList:
		return asStringList(raw)

	case KindIntList:
		list, ok := asList(raw)
		if !ok {
			return nil, false
		}
		out := make([]int64, 0, len(list))
		for _, el := range list {
			if n, ok := asNumber(el); ok {
				out = append(out, int64(n))
			}
		}
		return out, true

	case KindStringMap:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, false
		}
		out := make(map[string]string, len(m))
		for k, v := range m {
			if s, ok := asString(v); ok {
				out[k] = s
			}
		}
		return out, true

	case KindStringListMap:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, false
		}
		out := make(map[string][]string, len(m))
		for k, v := range m {
			if list, ok := asStringList(v); ok {
				out[k] = list
			}
		}
		return out, true

	case KindNumberMap:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, false
		}
		out := make(map[string]float64, len(m))
		for k, v := range m {
			if n, ok := asNumber(v); ok {
				out[k] = n
			}
		}
		return out, true

	case KindObjectList:
		var list []any
		switch v := raw.(type) {
		case []any:
			list = v
		case map[string]any:
			list = []any{v}
		default:
			return nil, false
		}
		out := make([]map[string]any, 0, len(list))
		for _, el := range list {
			if obj, ok := el.(map[string]any); ok {
				out = append(out, obj)
			}
		}
		return out, true
	}
	return nil, false
}

func clamp(n float64, f Field) float64 {
	if f.Min != nil && n < *f.Min {
		return *f.Min
	}
	if f.Max != nil && n > *f.Max {
		return *f.Max
	}
	return n
}

func asString(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	}
	return "", false
}

// asNumber accepts JSON numbers and numeric-looking strings.
func asNumber(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// asList accepts a JSON array, or promotes a lone scalar to a
// single-element list.
func asList(raw any) ([]any, bool) {
	switch v := raw.(type) {
	case []any:
		return v, true
	case string, float64, bool:
		return []any{v}, true
	}
	return nil, false
}

func asStringList(raw any) ([]string, bool) {
	list, ok := asList(raw)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, el := range list {
		if s, ok := asString(el); ok {
			out = append(out, s)
		}
	}
	return out, true
}
