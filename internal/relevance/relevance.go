// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package relevance scores content items against a topic and keeps those at
// or above a threshold. Scores come from embedding similarity, or from a
// generative model when vector scoring is unavailable.
package relevance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/pdiddy/research-brief/internal/embedding"
	"github.com/pdiddy/research-brief/internal/llm"
	"github.com/pdiddy/research-brief/internal/metrics"
	"github.com/pdiddy/research-brief/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	recordTextLimit     = 100
	generativeTextLimit = 1000
	generativeMaxTokens = 10
)

var (
	// ErrInvalidThreshold is returned for thresholds outside [0, 1].
	ErrInvalidThreshold = errors.New("threshold must be within [0, 1]")

	// ErrInvalidMode is returned for unknown scoring modes.
	ErrInvalidMode = errors.New("unknown scoring mode")

	// ErrNoGenerator is returned when generative scoring is needed but no
	// generator is configured.
	ErrNoGenerator = errors.New("generative scoring requires a generator")
)

var scorePromptTmpl = template.Must(template.New("score").Parse(`Rate how relevant this content is to the topic: '{{.Topic}}'
Consider the persona: {{.Persona}}

Respond with ONLY a number between 0.0 and 1.0.

Content:
{{.Content}}
`))

// Stats summarizes the score distribution of one call.
type Stats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`

	// AcceptanceRate is accepted / total in [0, 1].
	AcceptanceRate float64 `json:"acceptance_rate"`
}

// Outcome is the result of one Score call.
type Outcome struct {
	// Accepted holds items with score >= threshold, sorted by score
	// descending; ties keep input order.
	Accepted []types.ContentItem

	// Records has one entry per input item, in input order.
	Records []types.ScoreRecord

	// Mode is the scoring mode actually used.
	Mode types.ScoringMode

	// FellBack is true when vector scoring was requested but the topic
	// embedding failed and generative scoring ran instead.
	FellBack bool

	// DegradedBatches counts embedding batches replaced by zero vectors.
	DegradedBatches int

	Threshold float64
	Stats     Stats
}

// Filter scores items. Embedder is required for vector mode and Generator
// for generative mode and for fallback.
type Filter struct {
	Embedder  embedding.Embedder
	Generator llm.Generator
	Persona   types.PersonaContext
	Config    types.RelevanceConfig
	Limiter   *rate.Limiter
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// New returns a Filter with zero config fields replaced by defaults.
func New(emb embedding.Embedder, gen llm.Generator, persona types.PersonaContext, cfg types.RelevanceConfig, logger *zap.Logger, m *metrics.Metrics) *Filter {
	def := types.DefaultConfig().Relevance
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = def.MaxChars
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Filter{
		Embedder:  emb,
		Generator: gen,
		Persona:   persona,
		Config:    cfg,
		Logger:    logger,
		Metrics:   m,
	}
	if cfg.RequestsPerSecond > 0 {
		f.Limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Workers)
	}
	return f
}

// Score scores every item and keeps those with score >= threshold. In vector
// mode a failed topic embedding switches the call to generative mode once;
// there is no switch back.
func (f *Filter) Score(ctx context.Context, topic string, items []types.ContentItem, mode types.ScoringMode, threshold float64) (Outcome, error) {
	if threshold < 0 || threshold > 1 {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	if !mode.Valid() {
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	out := Outcome{Mode: mode, Threshold: threshold, Accepted: []types.ContentItem{}, Records: []types.ScoreRecord{}}
	if len(items) == 0 {
		return out, nil
	}

	var scores []float64
	if out.Mode == types.ModeVector {
		var err error
		scores, out.DegradedBatches, err = f.scoreVector(ctx, topic, items)
		if err != nil {
			f.Logger.Warn("topic embedding failed, falling back to generative scoring", zap.Error(err))
			f.Metrics.FellBack()
			out.Mode = types.ModeGenerative
			out.FellBack = true
		}
	}
	if out.Mode == types.ModeGenerative {
		if f.Generator == nil {
			return Outcome{}, ErrNoGenerator
		}
		scores = f.scoreGenerative(ctx, topic, items)
	}

	for i, item := range items {
		s := scores[i]
		accepted := s >= threshold
		out.Records = append(out.Records, types.ScoreRecord{
			Index:    i,
			Title:    types.Truncate(item.Title, recordTextLimit),
			Source:   types.Truncate(item.Source, recordTextLimit),
			Score:    s,
			Accepted: accepted,
		})
		if accepted {
			item.RelevanceScore = &s
			out.Accepted = append(out.Accepted, item)
		}
	}
	sort.SliceStable(out.Accepted, func(a, b int) bool {
		return out.Accepted[a].Score() > out.Accepted[b].Score()
	})

	out.Stats = computeStats(scores, len(out.Accepted))
	f.Metrics.Scored(len(out.Accepted), len(items)-len(out.Accepted))
	f.Logger.Info("scored items",
		zap.String("mode", string(out.Mode)),
		zap.Bool("fell_back", out.FellBack),
		zap.Int("total", len(items)),
		zap.Int("accepted", len(out.Accepted)),
		zap.Float64("threshold", threshold))
	return out, nil
}

// TopicContext builds the text embedded for the topic side of vector scoring.
func TopicContext(topic string, p types.PersonaContext) string {
	parts := []string{topic, "Persona: " + p.Persona}
	if len(p.Interests) > 0 {
		parts = append(parts, "Interests: "+strings.Join(p.Interests, ", "))
	}
	if len(p.Preferences) > 0 {
		keys := make([]string, 0, len(p.Preferences))
		for k := range p.Preferences {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		prefs := make([]string, len(keys))
		for i, k := range keys {
			prefs[i] = k + "=" + p.Preferences[k]
		}
		parts = append(parts, "Preferences: "+strings.Join(prefs, ", "))
	}
	return strings.Join(parts, ". ")
}

// ItemText builds the text embedded for one item.
func ItemText(item types.ContentItem, maxChars int) string {
	return types.Truncate(item.Title+". "+item.Content(), maxChars)
}

// scoreVector returns one score per item and the number of degraded
// batches. An error means the topic embedding failed.
func (f *Filter) scoreVector(ctx context.Context, topic string, items []types.ContentItem) ([]float64, int, error) {
	if f.Embedder == nil {
		return nil, 0, fmt.Errorf("%w: no embedder configured", embedding.ErrEmbedding)
	}

	topicVecs, err := f.Embedder.Embed(ctx, []string{TopicContext(topic, f.Persona)})
	if err != nil {
		return nil, 0, err
	}
	if len(topicVecs) != 1 || embedding.IsZero(topicVecs[0]) {
		return nil, 0, fmt.Errorf("%w: empty topic vector", embedding.ErrEmbedding)
	}
	topicVec := topicVecs[0]

	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = ItemText(item, f.Config.MaxChars)
	}

	scores := make([]float64, len(items))
	degraded := 0
	batches := (len(texts) + f.Config.BatchSize - 1) / f.Config.BatchSize
	for start := 0; start < len(texts); start += f.Config.BatchSize {
		end := min(start+f.Config.BatchSize, len(texts))
		batchNum := start/f.Config.BatchSize + 1

		vecs, err := f.Embedder.Embed(ctx, texts[start:end])
		if err == nil && len(vecs) != end-start {
			err = fmt.Errorf("%w: got %d vectors for %d texts", embedding.ErrEmbedding, len(vecs), end-start)
		}
		if err != nil {
			degraded++
			f.Metrics.EmbeddingBatchFailed()
			f.Logger.Warn("embedding batch failed, scoring batch as zero",
				zap.Int("batch", batchNum), zap.Int("batches", batches), zap.Error(err))
			continue
		}
		for j, v := range vecs {
			scores[start+j] = vectorScore(topicVec, v)
		}
		f.Logger.Debug("embedding batch complete", zap.Int("batch", batchNum), zap.Int("batches", batches))
	}
	return scores, degraded, nil
}

// vectorScore is Remap(cosine), or 0 for zero or mismatched vectors.
func vectorScore(topic, item []float32) float64 {
	if len(item) != len(topic) || embedding.IsZero(item) {
		return 0
	}
	return embedding.Remap(embedding.Cosine(topic, item))
}

// scoreGenerative scores items on a bounded worker pool. Each unit of work
// carries its item index and writes only its own slot.
func (f *Filter) scoreGenerative(ctx context.Context, topic string, items []types.ContentItem) []float64 {
	scores := make([]float64, len(items))

	var g errgroup.Group
	g.SetLimit(f.Config.Workers)
	for i := range items {
		g.Go(func() error {
			scores[i] = f.scoreOne(ctx, topic, items[i])
			return nil
		})
	}
	_ = g.Wait()
	return scores
}

// scoreOne never fails; any error scores 0.
func (f *Filter) scoreOne(ctx context.Context, topic string, item types.ContentItem) float64 {
	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			return 0
		}
	}
	prompt, err := llm.Render(scorePromptTmpl, struct{ Topic, Persona, Content string }{
		Topic:   topic,
		Persona: f.Persona.Persona,
		Content: types.Truncate(item.Content(), generativeTextLimit),
	})
	if err != nil {
		return 0
	}
	raw, err := f.Generator.Generate(ctx, llm.Request{Prompt: prompt, Temperature: 0, MaxTokens: generativeMaxTokens})
	if err != nil {
		f.Logger.Debug("generative scoring failed", zap.String("title", item.Title), zap.Error(err))
		return 0
	}
	s, ok := llm.FirstFloat(raw)
	if !ok {
		f.Logger.Debug("no score in generative response", zap.String("title", item.Title), zap.String("raw", raw))
		return 0
	}
	return s
}

func computeStats(scores []float64, accepted int) Stats {
	if len(scores) == 0 {
		return Stats{}
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, s := range sorted {
		sum += s
	}
	n := len(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return Stats{
		Mean:           sum / float64(n),
		Median:         median,
		Min:            sorted[0],
		Max:            sorted[n-1],
		AcceptanceRate: float64(accepted) / float64(n),
	}
}
