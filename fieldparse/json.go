/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package fieldparse extracts typed fields from model responses.
//
// Models are asked for JSON but deliver it wrapped in prose, markdown
// fences, or both. This package finds the first well-formed object in
// the response, then reads it against a declared schema: numeric
// strings are coerced, out-of-range numbers are clamped to the nearest
// bound, and absent fields are reported rather than thrown, so a
// partially usable response stays usable.
package fieldparse

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// ExtractBlock extracts JSON content from a response that may contain
// markdown code blocks. It looks for content between ```json and ```
// markers, or returns the input trimmed of stray fences if none are
// found.
func ExtractBlock(text string) string {
	lines := strings.Split(text, "\n")
	var buf bytes.Buffer
	inBlock := false
	found := false

	for _, line := range lines {
		if !inBlock && strings.TrimSpace(line) == "```json" {
			inBlock = true
			found = true
			continue
		}
		if inBlock && strings.TrimSpace(line) == "```" {
			break
		}
		if inBlock {
			if buf.Len() > 0 {
				buf.WriteString("\n")
			}
			buf.WriteString(line)
		}
	}

	if found {
		return strings.TrimSpace(buf.String())
	}

	// No fenced block: trim whatever fence fragments are present.
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// ExtractObject locates the first well-formed JSON object in a model
// response, tolerating surrounding prose and code fences.
func ExtractObject(text string) (map[string]any, error) {
	block := ExtractBlock(text)

	var m map[string]any
	if err := json.Unmarshal([]byte(block), &m); err == nil {
		return m, nil
	}

	// The block itself did not parse; scan the raw text for the first
	// brace that starts a decodable object. A json.Decoder stops after
	// one value, so trailing prose is fine.
	rest := text
	offset := 0
	for {
		idx := strings.IndexByte(rest[offset:], '{')
		if idx < 0 {
			return nil, errors.New("no well-formed JSON object found")
		}
		idx += offset

		dec := json.NewDecoder(strings.NewReader(rest[idx:]))
		var obj map[string]any
		if err := dec.Decode(&obj); err == nil {
			return obj, nil
		}
		offset = idx + 1
	}
}
