/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package prompt builds model prompts from templates with named
// placeholders. A template declares slots as {{name}}; values are bound
// with Literal, JSON, or YAML, each returning a new template so shared
// base templates are never mutated. Render fails if any slot is left
// unbound, which keeps prompt construction errors at build time instead
// of surfacing as confused model output.
package prompt

import (
	"fmt"
	"maps"
	"sort"
	"strings"
)

// Template is an immutable prompt template. The zero value is not
// usable; construct with New or MustNew.
type Template struct {
	text   string
	slots  map[string]struct{}
	values map[string]slot
}

// slot produces the text substituted for one placeholder.
type slot interface {
	render() (string, error)
}

// New parses text into a Template, validating every {{name}}
// placeholder it contains.
func New(text string) (*Template, error) {
	slots, err := scanSlots(text)
	if err != nil {
		return nil, err
	}
	return &Template{
		text:   text,
		slots:  slots,
		values: map[string]slot{},
	}, nil
}

// Slots returns the set of placeholder names declared by the template.
func (t *Template) Slots() map[string]struct{} {
	return maps.Clone(t.slots)
}

// Render substitutes every bound slot and returns the final prompt
// text. It fails if any declared slot has no binding.
func (t *Template) Render() (string, error) {
	var unbound []string
	for name := range t.slots {
		if _, ok := t.values[name]; !ok {
			unbound = append(unbound, name)
		}
	}
	if len(unbound) > 0 {
		sort.Strings(unbound)
		return "", fmt.Errorf("unbound placeholders: %s", strings.Join(unbound, ", "))
	}

	// Single pass so substituted values are never re-scanned for
	// placeholders.
	var b strings.Builder
	rest := t.text
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:open])
		rest = rest[open+2:]
		end := strings.Index(rest, "}}")
		name := rest[:end]
		rendered, err := t.values[name].render()
		if err != nil {
			return "", fmt.Errorf("rendering placeholder %q: %w", name, err)
		}
		b.WriteString(rendered)
		rest = rest[end+2:]
	}
}

// bind returns a copy of the template with one more slot bound.
// Rebinding an already-bound slot replaces the previous value.
func (t *Template) bind(name string, v slot) (*Template, error) {
	if _, ok := t.slots[name]; !ok {
		return nil, fmt.Errorf("no placeholder %q in template", name)
	}
	values := maps.Clone(t.values)
	values[name] = v
	return &Template{text: t.text, slots: t.slots, values: values}, nil
}

func scanSlots(text string) (map[string]struct{}, error) {
	slots := map[string]struct{}{}
	rest := text
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			return slots, nil
		}
		rest = rest[open+2:]
		end := strings.Index(rest, "}}")
		if end < 0 {
			return nil, fmt.Errorf("unterminated placeholder near %q", clip(rest))
		}
		name := rest[:end]
		if err := checkSlotName(name); err != nil {
			return nil, err
		}
		slots[name] = struct{}{}
		rest = rest[end+2:]
	}
}

func checkSlotName(name string) error {
	if name == "" {
		return fmt.Errorf("empty placeholder name")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '_', r == '-', r == '.':
		default:
			return fmt.Errorf("invalid character %q in placeholder name %q", r, name)
		}
	}
	return nil
}

func clip(s string) string {
	if len(s) > 20 {
		return s[:20] + "..."
	}
	return s
}
