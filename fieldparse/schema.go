/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package fieldparse

import (
	"fmt"
	"strings"
)

// Kind is the expected type of a schema field.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindInt
	KindStringList
	KindIntList
	KindStringMap
	KindStringListMap
	KindNumberMap
	KindObjectList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindInt:
		return "int"
	case KindStringList:
		return "string list"
	case KindIntList:
		return "int list"
	case KindStringMap:
		return "string map"
	case KindStringListMap:
		return "string list map"
	case KindNumberMap:
		return "number map"
	case KindObjectList:
		return "object list"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Field declares one expected field: its JSON name, type, whether the
// stage needs it, and optional numeric bounds used for clamping.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	Min      *float64
	Max      *float64
}

// Schema enumerates the fields a stage expects back from the model.
type Schema struct {
	Name   string
	Fields []Field
}

// Bound returns a pointer to v for use as a Field Min or Max.
func Bound(v float64) *float64 {
	return &v
}

// MalformedError reports that a response could not be fully parsed
// against a schema: no structured block was found, or required fields
// were absent. The accompanying Result still carries every field that
// was recovered.
type MalformedError struct {
	Schema          string
	Reason          string
	MissingRequired []string
}

func (e *MalformedError) Error() string {
	if len(e.MissingRequired) > 0 {
		return fmt.Sprintf("malformed %s output: %s: missing required fields %s",
			e.Schema, e.Reason, strings.Join(e.MissingRequired, ", "))
	}
	return fmt.Sprintf("malformed %s output: %s", e.Schema, e.Reason)
}
