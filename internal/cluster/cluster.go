// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cluster groups accepted items into named themes and extracts key
// facts for the downstream synthesis step.
package cluster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/pdiddy/research-brief/internal/llm"
	"github.com/pdiddy/research-brief/pkg/types"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"
)

const (
	previewSummaryLimit = 200
	assignContentLimit  = 500
	factItemLimit       = 1000
	factCombinedLimit   = 8000
)

// FallbackThemes are used whenever theme identification fails.
var FallbackThemes = []string{"Key Findings", "Recent Developments", "Expert Insights", "Practical Applications"}

var themesPromptTmpl = template.Must(template.New("themes").Parse(`Analyze these content items and identify 4-6 major themes/topics.

Items:
{{.Preview}}

Return ONLY a JSON array of theme names, like:
["Theme 1", "Theme 2", "Theme 3"]

Keep themes specific and actionable.`))

var factsPromptTmpl = template.Must(template.New("facts").Parse(`Extract the {{.Max}} most important facts, statistics, quotes, or insights from this content.

Focus on:
- Specific numbers, percentages, or data points
- Notable quotes from experts or sources
- Surprising or counter-intuitive findings
- Actionable insights
- Recent developments or trends

Content:
{{.Content}}

Return as a JSON array of strings. Each fact should be concise (1-2 sentences) and specific.
Format: ["fact 1", "fact 2", ...]`))

// Result is the clustered view of one run's accepted items.
type Result struct {
	Topic    string        `yaml:"topic"`
	Themes   []types.Theme `yaml:"themes"`
	KeyFacts []string      `yaml:"key_facts"`
}

// Clusterer identifies themes and key facts. Generator may be nil, in which
// case fallback themes and no facts are produced.
type Clusterer struct {
	Generator llm.Generator
	Config    types.ClusteringConfig
	Logger    *zap.Logger
}

// New returns a Clusterer with zero config fields replaced by defaults.
func New(gen llm.Generator, cfg types.ClusteringConfig, logger *zap.Logger) *Clusterer {
	def := types.DefaultConfig().Clustering
	if cfg.MaxSampled <= 0 {
		cfg.MaxSampled = def.MaxSampled
	}
	if cfg.MaxFacts <= 0 {
		cfg.MaxFacts = def.MaxFacts
	}
	if cfg.FactItems <= 0 {
		cfg.FactItems = def.FactItems
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Clusterer{Generator: gen, Config: cfg, Logger: logger}
}

// Cluster identifies themes, assigns every item to exactly one, and
// extracts key facts.
func (c *Clusterer) Cluster(ctx context.Context, topic string, items []types.ContentItem) Result {
	themes := c.IdentifyThemes(ctx, items)
	res := Result{
		Topic:    topic,
		Themes:   Assign(items, themes),
		KeyFacts: c.ExtractKeyFacts(ctx, items),
	}
	for _, th := range res.Themes {
		c.Logger.Debug("theme", zap.String("name", th.Name), zap.Int("items", len(th.Members)))
	}
	return res
}

// IdentifyThemes asks the generator for theme names over a preview of the
// first MaxSampled items. Any failure yields FallbackThemes.
func (c *Clusterer) IdentifyThemes(ctx context.Context, items []types.ContentItem) []string {
	if c.Generator == nil || len(items) == 0 {
		return fallback()
	}

	sample := lo.Slice(items, 0, c.Config.MaxSampled)
	lines := make([]string, len(sample))
	for i, item := range sample {
		lines[i] = fmt.Sprintf("%d. %s: %s", i+1, item.Title, types.Truncate(item.Summary, previewSummaryLimit))
	}

	themes, err := c.generateList(ctx, "theme identification", themesPromptTmpl, map[string]any{
		"Preview": strings.Join(lines, "\n"),
	}, 200)
	if err != nil {
		c.Logger.Warn("theme identification failed, using fallback themes", zap.Error(err))
		return fallback()
	}
	themes = lo.Uniq(themes)
	if len(themes) == 0 {
		c.Logger.Warn("theme identification returned no themes, using fallback themes")
		return fallback()
	}
	c.Logger.Info("identified themes", zap.Strings("themes", themes))
	return themes
}

// ExtractKeyFacts asks the generator for up to MaxFacts facts drawn from the
// first FactItems items. Any failure yields an empty list.
func (c *Clusterer) ExtractKeyFacts(ctx context.Context, items []types.ContentItem) []string {
	if c.Generator == nil || len(items) == 0 {
		return []string{}
	}

	var parts []string
	for _, item := range lo.Slice(items, 0, c.Config.FactItems) {
		if content := item.Content(); content != "" {
			parts = append(parts, types.Truncate(content, factItemLimit))
		}
	}
	if len(parts) == 0 {
		return []string{}
	}

	facts, err := c.generateList(ctx, "key fact extraction", factsPromptTmpl, map[string]any{
		"Max":     c.Config.MaxFacts,
		"Content": types.Truncate(strings.Join(parts, "\n\n"), factCombinedLimit),
	}, 800)
	if err != nil {
		c.Logger.Warn("key fact extraction failed", zap.Error(err))
		return []string{}
	}
	return lo.Slice(facts, 0, c.Config.MaxFacts)
}

func (c *Clusterer) generateList(ctx context.Context, stage string, tmpl *template.Template, data any, maxTokens int) ([]string, error) {
	prompt, err := llm.Render(tmpl, data)
	if err != nil {
		return nil, err
	}
	raw, err := c.Generator.Generate(ctx, llm.Request{Prompt: prompt, Temperature: 0.3, MaxTokens: maxTokens})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stage, err)
	}
	return llm.DecodeStrings(stage, raw)
}

// Assign places every item in exactly one theme. Rules are tried in theme
// order: an item joins the first theme with any lowercased name token found
// in its title or leading content, else the first theme. The output keeps
// theme order and includes empty themes. An empty theme list is treated as
// FallbackThemes.
func Assign(items []types.ContentItem, themes []string) []types.Theme {
	if len(themes) == 0 {
		themes = fallback()
	}
	out := make([]types.Theme, len(themes))
	tokens := make([][]string, len(themes))
	for i, name := range themes {
		out[i] = types.Theme{Name: name, Members: []types.ContentItem{}}
		tokens[i] = strings.Fields(strings.ToLower(name))
	}

	for _, item := range items {
		haystack := strings.ToLower(item.Title + " " + types.Truncate(item.Content(), assignContentLimit))
		idx := 0
		for i, toks := range tokens {
			if lo.SomeBy(toks, func(tok string) bool { return strings.Contains(haystack, tok) }) {
				idx = i
				break
			}
		}
		out[idx].Members = append(out[idx].Members, item)
	}
	return out
}

// WriteResult stores res as YAML at path, creating parent directories.
func WriteResult(path string, res Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	data, err := yaml.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshaling cluster result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ReadResult loads a Result written by WriteResult.
func ReadResult(path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("reading %s: %w", path, err)
	}
	var res Result
	if err := yaml.Unmarshal(data, &res); err != nil {
		return Result{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return res, nil
}

func fallback() []string {
	return append([]string(nil), FallbackThemes...)
}
