/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package workitem

import (
	"context"
	"fmt"

	"chainguard.dev/backlogaf/toolbridge"
	"github.com/chainguard-dev/clog"
)

const (
	// DefaultFetchTool is the tool that returns one item by key.
	DefaultFetchTool = "fetch-item"

	// DefaultSearchTool is the tool that finds semantically similar
	// items for a free-text query.
	DefaultSearchTool = "search-similar"

	// DefaultSimilarityFloor drops search hits scored below it.
	DefaultSimilarityFloor = 0.6

	// DefaultSimilarLimit caps how many similar items are kept.
	DefaultSimilarLimit = 5

	// queryContextLimit bounds how much of the description is embedded
	// in the similarity query.
	queryContextLimit = 500
)

// Invoker is the slice of the tool bridge this package needs.
type Invoker interface {
	Invoke(ctx context.Context, tool string, params map[string]any) (toolbridge.Outcome, error)
}

// Similar is one semantic search hit against past items.
type Similar struct {
	Key     string  `json:"key"`
	Title   string  `json:"title"`
	Excerpt string  `json:"excerpt,omitempty"`
	URL     string  `json:"url,omitempty"`
	Score   float64 `json:"score"`
}

// Context is an item plus the surrounding material the analysis
// prompts draw on.
type Context struct {
	Item    Item      `json:"item"`
	Similar []Similar `json:"similar,omitempty"`
}

// Fetcher loads items and their context through the tool bridge.
type Fetcher struct {
	invoker    Invoker
	fetchTool  string
	searchTool string
	minScore   float64
	limit      int
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher) error

// WithFetchTool overrides the item fetch tool name.
func WithFetchTool(name string) FetcherOption {
	return func(f *Fetcher) error {
		if name == "" {
			return fmt.Errorf("fetch tool name cannot be empty")
		}
		f.fetchTool = name
		return nil
	}
}

// WithSearchTool overrides the similarity search tool name.
func WithSearchTool(name string) FetcherOption {
	return func(f *Fetcher) error {
		if name == "" {
			return fmt.Errorf("search tool name cannot be empty")
		}
		f.searchTool = name
		return nil
	}
}

// WithSimilarityFloor sets the minimum score for keeping a hit.
func WithSimilarityFloor(score float64) FetcherOption {
	return func(f *Fetcher) error {
		if score < 0 || score > 1 {
			return fmt.Errorf("similarity floor must be in [0, 1], got %v", score)
		}
		f.minScore = score
		return nil
	}
}

// WithSimilarLimit caps the number of similar items kept.
func WithSimilarLimit(limit int) FetcherOption {
	return func(f *Fetcher) error {
		if limit < 0 {
			return fmt.Errorf("similar limit cannot be negative, got %d", limit)
		}
		f.limit = limit
		return nil
	}
}

// NewFetcher builds a Fetcher over the given invoker.
func NewFetcher(invoker Invoker, opts ...FetcherOption) (*Fetcher, error) {
	if invoker == nil {
		return nil, fmt.Errorf("invoker is required")
	}
	f := &Fetcher{
		invoker:    invoker,
		fetchTool:  DefaultFetchTool,
		searchTool: DefaultSearchTool,
		minScore:   DefaultSimilarityFloor,
		limit:      DefaultSimilarLimit,
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Fetch loads one item by key.
func (f *Fetcher) Fetch(ctx context.Context, key string) (Item, error) {
	key, err := ParseKey(key)
	if err != nil {
		return Item{}, err
	}
	outcome, err := f.invoker.Invoke(ctx, f.fetchTool, map[string]any{"key": key})
	if err != nil {
		return Item{}, fmt.Errorf("fetching %s: %w", key, err)
	}
	item := FromPayload(outcome.Data)
	if item.Key == "" {
		item.Key = key
	}
	return item, nil
}

// FetchContext loads an item and searches for similar past items. A
// failed search degrades to item-only context rather than failing the
// fetch: similarity is enrichment, not a prerequisite.
func (f *Fetcher) FetchContext(ctx context.Context, key string) (Context, error) {
	item, err := f.Fetch(ctx, key)
	if err != nil {
		return Context{}, err
	}
	wc := Context{Item: item}
	if f.limit == 0 {
		return wc, nil
	}

	outcome, err := f.invoker.Invoke(ctx, f.searchTool, map[string]any{
		"query": similarityQuery(item),
		"limit": f.limit,
	})
	if err != nil {
		clog.FromContext(ctx).With("item", item.Key).
			Warnf("Similarity search failed, continuing with item only: %v", err)
		return wc, nil
	}
	wc.Similar = decodeSimilar(outcome.Data, item.Key, f.minScore, f.limit)
	return wc, nil
}

func similarityQuery(item Item) string {
	desc := item.Description
	if len(desc) > queryContextLimit {
		desc = desc[:queryContextLimit]
	}
	return fmt.Sprintf("Find work items similar to:\n%s\n\nContext: %s", item.Title, desc)
}

func decodeSimilar(payload map[string]any, selfKey string, minScore float64, limit int) []Similar {
	raw, ok := payload["results"].([]any)
	if !ok {
		return nil
	}
	var out []Similar
	for _, entry := range raw {
		if len(out) == limit {
			break
		}
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		score, _ := num(m, "score")
		if score < minScore {
			continue
		}
		hit := Similar{
			Key:     str(m, "key", "id"),
			Title:   str(m, "title"),
			Excerpt: str(m, "excerpt"),
			URL:     str(m, "url"),
			Score:   score,
		}
		if hit.Key == "" || hit.Key == selfKey {
			continue
		}
		out = append(out, hit)
	}
	return out
}
