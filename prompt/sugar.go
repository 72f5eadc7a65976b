/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package prompt

// MustNew is New for package-level template literals; it panics on a
// malformed template.
func MustNew(text string) *Template {
	t, err := New(text)
	if err != nil {
		panic(err)
	}
	return t
}

// MustLiteral is Literal that panics instead of returning an error.
func (t *Template) MustLiteral(name, value string) *Template {
	out, err := t.Literal(name, value)
	if err != nil {
		panic(err)
	}
	return out
}

// MustJSON is JSON that panics instead of returning an error.
func (t *Template) MustJSON(name string, v any) *Template {
	out, err := t.JSON(name, v)
	if err != nil {
		panic(err)
	}
	return out
}

// MustYAML is YAML that panics instead of returning an error.
func (t *Template) MustYAML(name string, v any) *Template {
	out, err := t.YAML(name, v)
	if err != nil {
		panic(err)
	}
	return out
}
