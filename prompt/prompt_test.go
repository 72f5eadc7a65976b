/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package prompt

import (
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		text      string
		wantSlots []string
		wantErr   bool
	}{{
		name:      "no placeholders",
		text:      "analyze this story",
		wantSlots: nil,
	}, {
		name:      "single placeholder",
		text:      "analyze {{item}}",
		wantSlots: []string{"item"},
	}, {
		name:      "repeated placeholder counted once",
		text:      "{{key}} and again {{key}}",
		wantSlots: []string{"key"},
	}, {
		name:      "dots dashes underscores",
		text:      "{{item.key}} {{similar-items}} {{output_schema}}",
		wantSlots: []string{"item.key", "output_schema", "similar-items"},
	}, {
		name:    "unterminated placeholder",
		text:    "analyze {{item",
		wantErr: true,
	}, {
		name:    "empty placeholder name",
		text:    "analyze {{}}",
		wantErr: true,
	}, {
		name:    "invalid character",
		text:    "analyze {{item key}}",
		wantErr: true,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tmpl, err := New(tt.text)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			slots := tmpl.Slots()
			if len(slots) != len(tt.wantSlots) {
				t.Fatalf("Slots() = %v, want %v", slots, tt.wantSlots)
			}
			for _, want := range tt.wantSlots {
				if _, ok := slots[want]; !ok {
					t.Errorf("Slots() missing %q", want)
				}
			}
		})
	}
}

func TestRenderLiteral(t *testing.T) {
	t.Parallel()

	tmpl := MustNew("Story {{key}}: {{title}}")
	bound := tmpl.MustLiteral("key", "PROJ-42").MustLiteral("title", "add login")

	got, err := bound.Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if want := "Story PROJ-42: add login"; got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestRenderRepeatedPlaceholder(t *testing.T) {
	t.Parallel()

	tmpl := MustNew("{{key}} then {{key}} again").MustLiteral("key", "X-1")
	got, err := tmpl.Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if want := "X-1 then X-1 again"; got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestRenderUnbound(t *testing.T) {
	t.Parallel()

	tmpl := MustNew("{{a}} {{b}} {{c}}").MustLiteral("b", "x")
	_, err := tmpl.Render()
	if err == nil {
		t.Fatal("Render() expected error for unbound placeholders")
	}
	// Unbound names are reported sorted for stable messages.
	if !strings.Contains(err.Error(), "a, c") {
		t.Errorf("Render() error = %v, want it to list a, c", err)
	}
}

func TestRenderJSON(t *testing.T) {
	t.Parallel()

	tmpl := MustNew("context:\n{{ctx}}").MustJSON("ctx", map[string]any{"key": "PROJ-1"})
	got, err := tmpl.Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(got, `"key": "PROJ-1"`) {
		t.Errorf("Render() = %q, want JSON body", got)
	}
}

func TestRenderYAML(t *testing.T) {
	t.Parallel()

	tmpl := MustNew("item:\n{{item}}").MustYAML("item", map[string]string{"status": "Open"})
	got, err := tmpl.Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(got, "status: Open") {
		t.Errorf("Render() = %q, want YAML body", got)
	}
}

func TestRenderedValueNotRescanned(t *testing.T) {
	t.Parallel()

	tmpl := MustNew("say {{value}}").MustLiteral("value", "{{not_a_slot}}")
	got, err := tmpl.Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if want := "say {{not_a_slot}}"; got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestBindUnknownSlot(t *testing.T) {
	t.Parallel()

	tmpl := MustNew("hello {{name}}")
	if _, err := tmpl.Literal("nope", "x"); err == nil {
		t.Error("Literal() expected error for unknown placeholder")
	}
}

func TestBindDoesNotMutate(t *testing.T) {
	t.Parallel()

	base := MustNew("hello {{name}}")
	a := base.MustLiteral("name", "alpha")
	b := base.MustLiteral("name", "beta")

	gotA, err := a.Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	gotB, err := b.Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if gotA != "hello alpha" || gotB != "hello beta" {
		t.Errorf("Render() = %q / %q, bindings leaked between copies", gotA, gotB)
	}
	if _, err := base.Render(); err == nil {
		t.Error("Render() on the unbound base should still fail")
	}
}

func TestRebindReplaces(t *testing.T) {
	t.Parallel()

	tmpl := MustNew("{{x}}").MustLiteral("x", "first").MustLiteral("x", "second")
	got, err := tmpl.Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got != "second" {
		t.Errorf("Render() = %q, want %q", got, "second")
	}
}
