/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"chainguard.dev/backlogaf/completion"
	"chainguard.dev/backlogaf/prompt"
	"chainguard.dev/backlogaf/stage"
	"chainguard.dev/backlogaf/toolbridge"
	"github.com/chainguard-dev/clog"
)

const (
	// DefaultCommentTool posts a comment on a work item.
	DefaultCommentTool = "add-comment"

	// DefaultPageTool creates a documentation page.
	DefaultPageTool = "create-page"

	// DefaultSpecSpace is the documentation space technical specs land
	// in when none is configured.
	DefaultSpecSpace = "TECH"
)

// Invoker is the tool bridge surface publishing needs.
type Invoker interface {
	Invoke(ctx context.Context, tool string, params map[string]any) (toolbridge.Outcome, error)
}

// CommentPublisher posts run summaries as Markdown comments on the
// analyzed work item.
type CommentPublisher struct {
	invoker Invoker
	tool    string
}

// NewCommentPublisher builds a CommentPublisher. An empty tool name
// selects DefaultCommentTool.
func NewCommentPublisher(invoker Invoker, tool string) (*CommentPublisher, error) {
	if invoker == nil {
		return nil, fmt.Errorf("invoker is required")
	}
	if tool == "" {
		tool = DefaultCommentTool
	}
	return &CommentPublisher{invoker: invoker, tool: tool}, nil
}

// PostSummary renders the run as Markdown and comments it on the item.
func (p *CommentPublisher) PostSummary(ctx context.Context, run *Run) error {
	if _, err := p.invoker.Invoke(ctx, p.tool, map[string]any{
		"key":  run.Key,
		"body": FormatSummary(run),
	}); err != nil {
		return fmt.Errorf("posting summary to %s: %w", run.Key, err)
	}
	return nil
}

// FormatSummary renders a run's results as a Markdown comment body.
// Sections appear only for stages that completed.
func FormatSummary(run *Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Automated Backlog Analysis: %s\n\n", run.Key)

	if res := run.Result(stage.KindSummary); res != nil && res.Summary != nil && res.Summary.Headline != "" {
		fmt.Fprintf(&b, "%s\n\n", res.Summary.Headline)
	}
	if run.GateNote != "" {
		fmt.Fprintf(&b, "> %s\n\n", run.GateNote)
	}

	if res := run.Result(stage.KindAnalysis); res != nil && res.Analysis != nil {
		a := res.Analysis
		fmt.Fprintf(&b, "**Completeness:** %.1f/10 (confidence %d%%)\n\n", a.CompletenessScore, int(res.Confidence*100))
		b.WriteString("### Requirements\n\n")
		fmt.Fprintf(&b, "**Actors:** %s\n", orNone(a.Actors))
		fmt.Fprintf(&b, "**Actions:** %s\n", orNone(a.Actions))
		fmt.Fprintf(&b, "**Business value:** %s\n", orText(a.BusinessValue, "Not clearly stated"))
		writeGroupedList(&b, "Missing requirements", a.MissingRequirements)
	}

	if res := run.Result(stage.KindEstimation); res != nil && res.Estimation != nil {
		e := res.Estimation
		b.WriteString("\n### Story Point Estimate\n\n")
		fmt.Fprintf(&b, "**Recommended points:** %d (range %d-%d, confidence %d%%)\n", e.Points, e.Interval[0], e.Interval[1], int(res.Confidence*100))
		if e.Reasoning != "" {
			fmt.Fprintf(&b, "**Reasoning:** %s\n", e.Reasoning)
		}
		if e.SimilarAnalyzed > 0 {
			fmt.Fprintf(&b, "**Similar stories analyzed:** %d\n", e.SimilarAnalyzed)
		}
		if res.NeedsReview {
			b.WriteString("\n> Estimate flagged for review: confidence below the configured minimum.\n")
		}
	}

	if res := run.Result(stage.KindTestSuite); res != nil && res.TestSuite != nil {
		ts := res.TestSuite
		b.WriteString("\n### Test Cases\n\n")
		fmt.Fprintf(&b, "**Total:** %d (%d unit, %d integration, %d e2e, %d QA)\n",
			ts.TotalCases, len(ts.UnitTests), len(ts.IntegrationTests), len(ts.EndToEndTests), len(ts.QAScenarios))
		if len(ts.CoverageGaps) > 0 {
			writeList(&b, "Uncovered", ts.CoverageGaps)
		}
	}

	if res := run.Result(stage.KindAnalysis); res != nil && res.Analysis != nil {
		if len(res.Analysis.Recommendations) > 0 {
			b.WriteString("\n### Recommendations\n\n")
			for _, rec := range res.Analysis.Recommendations {
				fmt.Fprintf(&b, "- %s\n", rec)
			}
		}
		if len(res.Analysis.OwnerQuestions) > 0 {
			b.WriteString("\n### Questions for Product Owner\n\n")
			for _, q := range res.Analysis.OwnerQuestions {
				fmt.Fprintf(&b, "- %s\n", q)
			}
		}
	}

	if res := run.Result(stage.KindSummary); res != nil && res.Summary != nil {
		if len(res.Summary.KeyRisks) > 0 {
			writeList(&b, "Key risks", res.Summary.KeyRisks)
		}
		if len(res.Summary.NextSteps) > 0 {
			writeList(&b, "Next steps", res.Summary.NextSteps)
		}
	}

	b.WriteString("\n---\n_Generated by the backlog analysis agent._\n")
	return b.String()
}

func orNone(items []string) string {
	if len(items) == 0 {
		return "None identified"
	}
	return strings.Join(items, ", ")
}

func orText(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func writeList(b *strings.Builder, heading string, items []string) {
	fmt.Fprintf(b, "\n**%s:**\n", heading)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

// writeGroupedList renders a category -> items map with deterministic
// category ordering.
func writeGroupedList(b *strings.Builder, heading string, groups map[string][]string) {
	categories := make([]string, 0, len(groups))
	for category, items := range groups {
		if len(items) > 0 {
			categories = append(categories, category)
		}
	}
	if len(categories) == 0 {
		return
	}
	sort.Strings(categories)

	fmt.Fprintf(b, "\n**%s:**\n", heading)
	for _, category := range categories {
		fmt.Fprintf(b, "\n_%s:_\n", titleCase(category))
		for _, item := range groups[category] {
			fmt.Fprintf(b, "- %s\n", item)
		}
	}
}

// titleCase renders "error_handling" as "Error Handling".
func titleCase(s string) string {
	words := strings.Split(strings.ReplaceAll(s, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

var specTemplate = prompt.MustNew(`Write a technical design document for this backlog item:

{{item}}

Requirements analysis findings:
{{analysis}}

Similar past items:
{{similar}}

Structure the document with Markdown headings covering: overview, business context, requirements summary, architecture and design, implementation plan, testing strategy, risks and mitigations, and open questions. Keep the content specific to this item.`)

// SpecPublisher renders a technical specification for an analyzed item
// and publishes it as a documentation page, linking the page back on
// the item.
type SpecPublisher struct {
	invoker     Invoker
	engine      completion.Engine
	space       string
	pageTool    string
	commentTool string
}

// SpecOption configures a SpecPublisher.
type SpecOption func(*SpecPublisher) error

// WithSpace sets the documentation space pages are created in.
func WithSpace(space string) SpecOption {
	return func(p *SpecPublisher) error {
		if space == "" {
			return fmt.Errorf("space cannot be empty")
		}
		p.space = space
		return nil
	}
}

// WithPageTool overrides the page creation tool name.
func WithPageTool(tool string) SpecOption {
	return func(p *SpecPublisher) error {
		if tool == "" {
			return fmt.Errorf("page tool cannot be empty")
		}
		p.pageTool = tool
		return nil
	}
}

// WithLinkCommentTool overrides the tool used to comment the page link
// back on the item.
func WithLinkCommentTool(tool string) SpecOption {
	return func(p *SpecPublisher) error {
		if tool == "" {
			return fmt.Errorf("comment tool cannot be empty")
		}
		p.commentTool = tool
		return nil
	}
}

// NewSpecPublisher builds a SpecPublisher over the given tool bridge
// and completion engine.
func NewSpecPublisher(invoker Invoker, engine completion.Engine, opts ...SpecOption) (*SpecPublisher, error) {
	if invoker == nil {
		return nil, fmt.Errorf("invoker is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("completion engine is required")
	}
	p := &SpecPublisher{
		invoker:     invoker,
		engine:      engine,
		space:       DefaultSpecSpace,
		pageTool:    DefaultPageTool,
		commentTool: DefaultCommentTool,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// PublishSpec generates a technical design document from the run's item
// and analysis, creates a page for it, and comments the page link on
// the item. It returns the page URL when the tool reports one.
func (p *SpecPublisher) PublishSpec(ctx context.Context, run *Run) (string, error) {
	if run.Item == nil {
		return "", fmt.Errorf("run has no fetched item")
	}
	log := clog.FromContext(ctx).With("item", run.Key)

	doc, err := p.render(ctx, run)
	if err != nil {
		return "", err
	}

	title := fmt.Sprintf("Technical Spec: %s", orText(run.Item.Title, run.Key))
	out, err := p.invoker.Invoke(ctx, p.pageTool, map[string]any{
		"space": p.space,
		"title": title,
		"body":  doc,
	})
	if err != nil {
		return "", fmt.Errorf("creating spec page for %s: %w", run.Key, err)
	}
	url, _ := out.Data["url"].(string)
	if url == "" {
		log.Warnf("Page tool returned no URL, skipping link comment")
		return "", nil
	}

	if _, err := p.invoker.Invoke(ctx, p.commentTool, map[string]any{
		"key":  run.Key,
		"body": fmt.Sprintf("Technical specification created: %s", url),
	}); err != nil {
		log.Warnf("Commenting spec link failed: %v", err)
	}
	return url, nil
}

func (p *SpecPublisher) render(ctx context.Context, run *Run) (string, error) {
	var analysis *stage.Analysis
	if res := run.Result(stage.KindAnalysis); res != nil {
		analysis = res.Analysis
	}

	tpl, err := specTemplate.YAML("item", run.Item)
	if err == nil {
		if analysis != nil {
			tpl, err = tpl.JSON("analysis", analysis)
		} else {
			tpl, err = tpl.Literal("analysis", "(not analyzed)")
		}
	}
	if err == nil {
		if len(run.Similar) > 0 {
			tpl, err = tpl.JSON("similar", run.Similar)
		} else {
			tpl, err = tpl.Literal("similar", "(none found)")
		}
	}
	if err != nil {
		return "", fmt.Errorf("building spec prompt: %w", err)
	}
	user, err := tpl.Render()
	if err != nil {
		return "", fmt.Errorf("rendering spec prompt: %w", err)
	}

	doc, err := p.engine.Complete(ctx, []completion.Message{
		completion.System("You are a senior software architect. Write precise technical design documents in Markdown."),
		completion.User(user),
	}, completion.Options{Temperature: 0.5, MaxOutputTokens: 8192})
	if err != nil {
		return "", fmt.Errorf("generating spec for %s: %w", run.Key, err)
	}
	return doc, nil
}
