/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package prompt

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Literal binds a plain string value to the named slot.
func (t *Template) Literal(name, value string) (*Template, error) {
	return t.bind(name, literalSlot(value))
}

// JSON binds a value rendered as indented JSON to the named slot.
// Marshalling is deferred until Render.
func (t *Template) JSON(name string, v any) (*Template, error) {
	return t.bind(name, jsonSlot{v: v})
}

// YAML binds a value rendered as YAML to the named slot. Marshalling is
// deferred until Render.
func (t *Template) YAML(name string, v any) (*Template, error) {
	return t.bind(name, yamlSlot{v: v})
}

type literalSlot string

func (s literalSlot) render() (string, error) {
	return string(s), nil
}

type jsonSlot struct {
	v any
}

func (s jsonSlot) render() (string, error) {
	b, err := json.MarshalIndent(s.v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshalling to JSON: %w", err)
	}
	return string(b), nil
}

type yamlSlot struct {
	v any
}

func (s yamlSlot) render() (string, error) {
	b, err := yaml.Marshal(s.v)
	if err != nil {
		return "", fmt.Errorf("marshalling to YAML: %w", err)
	}
	return string(b), nil
}
