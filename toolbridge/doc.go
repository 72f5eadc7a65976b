/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package toolbridge is a uniform client for named remote tools.
//
// The pipeline reaches its tracker (work item fetches, similarity
// searches, comments, pages) exclusively through this package. Callers
// supply a Transport that executes a single named call; the Client
// layers on what every call needs:
//
//   - per-call timeouts
//   - exponential backoff retries for transient failures, with a
//     bounded total attempt count
//   - lazy, single-flight resolution of the workspace/tenant session
//     identifier, injected into call parameters once resolved
//   - elapsed-time accounting and per-attempt metrics
//
// Tool names are opaque strings configured by callers; the client
// attaches no meaning to them beyond the optional session discovery
// tool.
//
// Usage:
//
//	client, err := toolbridge.NewClient(transport,
//		toolbridge.WithSessionDiscovery("list-workspaces", "workspaceId"),
//		toolbridge.WithMaxAttempts(3),
//	)
//	if err != nil {
//		return err
//	}
//	outcome, err := client.Invoke(ctx, "fetch-item", map[string]any{"key": "PROJ-123"})
package toolbridge
