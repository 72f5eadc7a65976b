/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolbridge

import "time"

// Outcome is the record of one tool invocation, kept regardless of how
// the call ended. Data is present exactly when Success is true; Error
// is present exactly when it is false. Elapsed covers the whole
// invocation including backoff waits.
type Outcome struct {
	Tool    string         `json:"tool_name"`
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Elapsed time.Duration  `json:"elapsed,omitempty"`
}

func successOutcome(tool string, data map[string]any, elapsed time.Duration) Outcome {
	if data == nil {
		data = map[string]any{}
	}
	return Outcome{
		Tool:    tool,
		Success: true,
		Data:    data,
		Elapsed: elapsed,
	}
}

func failureOutcome(tool string, err error, elapsed time.Duration) Outcome {
	return Outcome{
		Tool:    tool,
		Success: false,
		Error:   err.Error(),
		Elapsed: elapsed,
	}
}
