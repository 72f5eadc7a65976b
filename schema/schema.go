/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package schema reflects Go types into JSON Schema documents. The
// pipeline embeds these in stage prompts so the model is told the exact
// field set the parser will look for.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Generator wraps jsonschema.Reflector with the defaults used for model
// output contracts: flat, reference-free schemas that tolerate extra
// properties from chatty models.
type Generator struct {
	reflector jsonschema.Reflector
}

// NewGenerator constructs a generator with the output-contract defaults.
func NewGenerator() *Generator {
	return &Generator{
		reflector: jsonschema.Reflector{
			RequiredFromJSONSchemaTags: true,
			ExpandedStruct:             true,
			AllowAdditionalProperties:  true,
			DoNotReference:             true,
		},
	}
}

// Reflect returns the JSON schema for the provided value.
func (g *Generator) Reflect(v any) *jsonschema.Schema {
	return g.reflector.Reflect(v)
}

// Reflect derives the JSON schema for the provided value using a
// default generator.
func Reflect(v any) *jsonschema.Schema {
	return NewGenerator().Reflect(v)
}

// ReflectType allocates a zero value of T and reflects it to a schema.
func ReflectType[T any]() *jsonschema.Schema {
	var zero T
	return Reflect(&zero)
}

// Text renders T's schema as indented JSON suitable for embedding in a
// prompt template.
func Text[T any]() (string, error) {
	b, err := json.MarshalIndent(ReflectType[T](), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshalling schema: %w", err)
	}
	return string(b), nil
}

// MustText is Text for package-level schema literals; it panics on a
// marshalling failure.
func MustText[T any]() string {
	s, err := Text[T]()
	if err != nil {
		panic(err)
	}
	return s
}
