/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package batch

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"chainguard.dev/backlogaf/stage"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// Markdown renders the report as a Markdown table, one row per item in
// input order, followed by the aggregate counts.
func (r *Report) Markdown() string {
	var buf bytes.Buffer
	table := standardTable([]string{"Item", "Status", "Completeness", "Points", "Tests", "Note"}, &buf)

	for _, item := range r.Items {
		_ = table.Append(itemRow(item))
	}
	_ = table.Render()

	return fmt.Sprintf("## Batch Report\n\n%s\n%d/%d items succeeded\n", buf.String(), r.Succeeded, r.Total)
}

// itemRow flattens one outcome into table cells. Stages the run never
// reached render as "-".
func itemRow(item ItemOutcome) []string {
	status := "-"
	completeness := "-"
	points := "-"
	tests := "-"
	note := "-"

	if run := item.Run; run != nil {
		status = string(run.Status)
		if res := run.Result(stage.KindAnalysis); res != nil && res.Analysis != nil {
			completeness = fmt.Sprintf("%.1f", res.Analysis.CompletenessScore)
		}
		if res := run.Result(stage.KindEstimation); res != nil && res.Estimation != nil {
			points = fmt.Sprintf("%d [%d-%d]", res.Estimation.Points, res.Estimation.Interval[0], res.Estimation.Interval[1])
			if res.NeedsReview {
				points += " ⚠"
			}
		}
		if res := run.Result(stage.KindTestSuite); res != nil && res.TestSuite != nil {
			tests = fmt.Sprintf("%d", res.TestSuite.TotalCases)
		}
		switch {
		case run.Err != nil:
			note = truncateNote(run.Err.Error())
		case run.GateNote != "":
			note = truncateNote(run.GateNote)
		}
	}

	if !item.Success {
		status = fmt.Sprintf("❌ %s", status)
	}

	return []string{item.Key, status, completeness, points, tests, note}
}

// truncateNote keeps note cells to a single readable line.
func truncateNote(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 60 {
		return s[:57] + "..."
	}
	return s
}

// standardTable creates a table writer with standard formatting options
// so every report renders consistently.
func standardTable(headers []string, w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		MaxWidth: 120,
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{
				Left:   tw.On,
				Top:    tw.Off,
				Right:  tw.On,
				Bottom: tw.Off,
			},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}
