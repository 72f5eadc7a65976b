/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package workitem models backlog items and fetches them, with
// surrounding context, through the tool bridge.
package workitem

import (
	"strings"
)

// Item is one backlog work item. Fetched once per pipeline run and
// treated as immutable afterwards.
type Item struct {
	Key         string   `json:"key" yaml:"key"`
	ID          string   `json:"id,omitempty" yaml:"id,omitempty"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Type        string   `json:"type,omitempty" yaml:"type,omitempty"`
	Status      string   `json:"status,omitempty" yaml:"status,omitempty"`
	Priority    string   `json:"priority,omitempty" yaml:"priority,omitempty"`
	Assignee    string   `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	Reporter    string   `json:"reporter,omitempty" yaml:"reporter,omitempty"`
	Labels      []string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Components  []string `json:"components,omitempty" yaml:"components,omitempty"`

	// Points is the existing estimate, when the tracker has one.
	Points *float64 `json:"points,omitempty" yaml:"points,omitempty"`

	// AcceptanceCriteria is free text, usually one criterion per line.
	AcceptanceCriteria string `json:"acceptance_criteria,omitempty" yaml:"acceptance_criteria,omitempty"`

	Links []Link `json:"links,omitempty" yaml:"links,omitempty"`
}

// Link is a reference from an item to an external document.
type Link struct {
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	URL   string `json:"url" yaml:"url"`
}

// Criteria splits the acceptance criteria text into individual
// entries, one per bulleted or numbered line.
func (it Item) Criteria() []string {
	var out []string
	for _, line := range strings.Split(it.AcceptanceCriteria, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789.) ")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// FromPayload decodes a tool outcome payload into an Item. It accepts
// both a flat shape (title, status, ...) and the tracker's nested
// shape where most attributes live under a "fields" object with
// single-name sub-objects (status.name, issuetype.name). Unknown or
// malformed entries are skipped rather than failing the decode.
func FromPayload(payload map[string]any) Item {
	item := Item{
		Key: str(payload, "key"),
		ID:  str(payload, "id"),
	}

	fields := payload
	if nested, ok := payload["fields"].(map[string]any); ok {
		fields = nested
	}

	item.Title = str(fields, "title", "summary")
	item.Description = str(fields, "description")
	item.Type = strOrName(fields, "type", "issuetype")
	item.Status = strOrName(fields, "status")
	item.Priority = strOrName(fields, "priority")
	item.Assignee = strOrName(fields, "assignee")
	item.Reporter = strOrName(fields, "reporter")
	item.Labels = strList(fields, "labels")
	item.Components = nameList(fields, "components")
	item.AcceptanceCriteria = str(fields, "acceptance_criteria", "customfield_10100")

	if pts, ok := num(fields, "points", "story_points", "customfield_10016"); ok {
		item.Points = &pts
	}

	if links, ok := fields["links"].([]any); ok {
		for _, raw := range links {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			url := str(m, "url")
			if url == "" {
				continue
			}
			item.Links = append(item.Links, Link{Title: str(m, "title"), URL: url})
		}
	}
	return item
}

func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// strOrName reads a plain string, or the common tracker shape of an
// object with a "name" or "displayName".
func strOrName(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if s := str(v, "name", "displayName"); s != "" {
				return s
			}
		}
	}
	return ""
}

func num(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if f, ok := m[k].(float64); ok {
			return f, true
		}
	}
	return 0, false
}

func strList(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// nameList reads a list of strings or of {"name": ...} objects.
func nameList(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range raw {
		switch v := v.(type) {
		case string:
			if v != "" {
				out = append(out, v)
			}
		case map[string]any:
			if s := str(v, "name"); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
