/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package workitem

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	keyExact = regexp.MustCompile(`^[A-Z]+-\d+$`)
	keyLoose = regexp.MustCompile(`[A-Z]+-\d+`)
)

// ParseKey extracts a work item key such as PROJ-123 from text. The
// text may be a bare key, a tracker browse URL, or prose mentioning a
// key; the first match wins.
func ParseKey(text string) (string, error) {
	text = strings.TrimSpace(text)
	if keyExact.MatchString(text) {
		return text, nil
	}
	if key := keyLoose.FindString(text); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("no work item key found in %q", text)
}

// ValidKey reports whether key is exactly a work item key.
func ValidKey(key string) bool {
	return keyExact.MatchString(key)
}

// Project returns the project prefix of a key: PROJ for PROJ-123.
func Project(key string) string {
	project, _, ok := strings.Cut(key, "-")
	if !ok {
		return ""
	}
	return project
}
