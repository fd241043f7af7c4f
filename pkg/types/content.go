// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the research-brief pipeline:
// topic expansions, source sets, content items, budgets, score records, themes,
// and the per-stage configuration structs.
package types

import "encoding/json"

// TopicExpansion is the structured expansion of a raw topic string.
// It is produced once per run and never mutated afterwards.
type TopicExpansion struct {
	// Original is the canonical form of the topic.
	Original string `json:"original" yaml:"original"`

	// Subtopics lists narrower angles on the topic.
	Subtopics []string `json:"subtopics" yaml:"subtopics"`

	// FeedKeywords drive feed search URLs.
	FeedKeywords []string `json:"feed_keywords" yaml:"feed_keywords"`

	// SocialKeywords drive social search queries.
	SocialKeywords []string `json:"social_keywords" yaml:"social_keywords"`
}

// UnmarshalJSON accepts both the canonical field names and the legacy
// rss_keywords / twitter_keywords names that some models still emit.
func (t *TopicExpansion) UnmarshalJSON(data []byte) error {
	var raw struct {
		Original        string   `json:"original"`
		Subtopics       []string `json:"subtopics"`
		FeedKeywords    []string `json:"feed_keywords"`
		SocialKeywords  []string `json:"social_keywords"`
		RSSKeywords     []string `json:"rss_keywords"`
		TwitterKeywords []string `json:"twitter_keywords"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Original = raw.Original
	t.Subtopics = raw.Subtopics
	t.FeedKeywords = raw.FeedKeywords
	if t.FeedKeywords == nil {
		t.FeedKeywords = raw.RSSKeywords
	}
	t.SocialKeywords = raw.SocialKeywords
	if t.SocialKeywords == nil {
		t.SocialKeywords = raw.TwitterKeywords
	}
	return nil
}

// SourceSet holds every source candidate discovered for a topic. Feeds and
// SocialQueries are deduplicated before they reach the fetchers.
type SourceSet struct {
	Feeds         []string `json:"feeds" yaml:"feeds"`
	SocialQueries []string `json:"social_queries" yaml:"social_queries"`

	// Websites are bare hosts (e.g. "example.com") to probe for feeds.
	Websites []string `json:"websites" yaml:"websites"`

	// Communities are community names (e.g. "r/golang") proposed by discovery.
	Communities []string `json:"communities" yaml:"communities"`
}

// ContentItem is one piece of fetched content. Fetchers produce owned copies;
// RelevanceScore stays nil until the relevance filter scores the item.
type ContentItem struct {
	Source    string `json:"source" yaml:"source"`
	Title     string `json:"title" yaml:"title"`
	Summary   string `json:"summary" yaml:"summary"`
	Link      string `json:"link" yaml:"link"`
	Body      string `json:"body" yaml:"body"`
	Published string `json:"published,omitempty" yaml:"published,omitempty"`
	Author    string `json:"author,omitempty" yaml:"author,omitempty"`

	RelevanceScore *float64 `json:"relevance_score,omitempty" yaml:"relevance_score,omitempty"`
}

// Content returns the best available text for the item: the body, else the summary.
func (c ContentItem) Content() string {
	if c.Body != "" {
		return c.Body
	}
	return c.Summary
}

// Score returns the relevance score, or 0 when the item is unscored.
func (c ContentItem) Score() float64 {
	if c.RelevanceScore == nil {
		return 0
	}
	return *c.RelevanceScore
}

// ScoreRecord is the audit entry for one scored item. Index is the item's
// position in the filter input, independent of scoring order.
type ScoreRecord struct {
	Index    int     `json:"index"`
	Title    string  `json:"title"`
	Source   string  `json:"source"`
	Score    float64 `json:"score"`
	Accepted bool    `json:"accepted"`
}

// Theme groups accepted items under a label.
type Theme struct {
	Name    string        `json:"name" yaml:"name"`
	Members []ContentItem `json:"members" yaml:"members"`
}

// PersonaContext carries the personalization data the memory store hands
// to the pipeline. The pipeline only reads it.
type PersonaContext struct {
	Persona     string            `json:"persona" yaml:"persona"`
	Interests   []string          `json:"interests,omitempty" yaml:"interests,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty" yaml:"preferences,omitempty"`
}

// ScoringMode selects how relevance is computed.
type ScoringMode string

const (
	ModeVector     ScoringMode = "vector"
	ModeGenerative ScoringMode = "generative"
)

// Valid reports whether m is a known scoring mode.
func (m ScoringMode) Valid() bool {
	return m == ModeVector || m == ModeGenerative
}
