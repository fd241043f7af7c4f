// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package relevance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pdiddy/research-brief/internal/embedding"
	"github.com/pdiddy/research-brief/internal/llm"
	"github.com/pdiddy/research-brief/internal/metrics"
	"github.com/pdiddy/research-brief/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeEmbedder returns topicVec for the first text of the first call and
// itemVec(text) for everything else. failCalls lists 1-based call numbers
// that fail.
type fakeEmbedder struct {
	mu        sync.Mutex
	calls     int
	topicVec  []float32
	itemVec   func(text string) []float32
	failCalls map[int]bool
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	call := e.calls
	e.mu.Unlock()

	if e.failCalls[call] {
		return nil, fmt.Errorf("%w: upstream 500", embedding.ErrEmbedding)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if call == 1 {
			out[i] = e.topicVec
			continue
		}
		out[i] = e.itemVec(text)
	}
	return out, nil
}

func (e *fakeEmbedder) Dimensions() int { return 2 }

// uniform gives every item the same vector with cosine 0.2 to [1, 0], so
// every score is (0.2 + 1) / 2 = 0.6.
func uniform(string) []float32 {
	return []float32{0.2, float32(math.Sqrt(1 - 0.04))}
}

func makeItems(n int) []types.ContentItem {
	out := make([]types.ContentItem, n)
	for i := range out {
		out[i] = types.ContentItem{
			Source: "feed",
			Title:  fmt.Sprintf("item %d", i),
			Body:   fmt.Sprintf("body %d", i),
		}
	}
	return out
}

// keywordGenerator scores content by the number after "body ": item i
// scores i/10.
func keywordGenerator() llm.Generator {
	return llm.GeneratorFunc(func(_ context.Context, req llm.Request) (string, error) {
		idx := strings.Index(req.Prompt, "body ")
		if idx < 0 {
			return "no idea", nil
		}
		var n int
		fmt.Sscanf(req.Prompt[idx+len("body "):], "%d", &n)
		return fmt.Sprintf("Score: %.1f", float64(n)/10), nil
	})
}

func newFilter(emb embedding.Embedder, gen llm.Generator, cfg types.RelevanceConfig) *Filter {
	return New(emb, gen, types.PersonaContext{Persona: "analyst"}, cfg, nil, nil)
}

func TestScore_UniformScoresAllAccepted(t *testing.T) {
	emb := &fakeEmbedder{topicVec: []float32{1, 0}, itemVec: uniform}
	f := newFilter(emb, nil, types.RelevanceConfig{})

	out, err := f.Score(context.Background(), "topic", makeItems(10), types.ModeVector, 0.5)
	require.NoError(t, err)

	require.Len(t, out.Accepted, 10)
	for i, item := range out.Accepted {
		assert.Equal(t, fmt.Sprintf("item %d", i), item.Title, "ties keep input order")
		require.NotNil(t, item.RelevanceScore)
		assert.InDelta(t, 0.6, *item.RelevanceScore, 1e-6)
	}
	assert.Equal(t, types.ModeVector, out.Mode)
	assert.False(t, out.FellBack)
	assert.InDelta(t, 1.0, out.Stats.AcceptanceRate, 1e-9)
}

func TestScore_UniformScoresBelowThreshold(t *testing.T) {
	emb := &fakeEmbedder{topicVec: []float32{1, 0}, itemVec: uniform}
	f := newFilter(emb, nil, types.RelevanceConfig{})

	out, err := f.Score(context.Background(), "topic", makeItems(10), types.ModeVector, 0.7)
	require.NoError(t, err)
	assert.Empty(t, out.Accepted)
	require.Len(t, out.Records, 10)
	for _, r := range out.Records {
		assert.False(t, r.Accepted)
	}
}

func TestScore_TopicEmbeddingFailureFallsBack(t *testing.T) {
	emb := &fakeEmbedder{failCalls: map[int]bool{1: true}}
	m := metrics.New()
	f := New(emb, keywordGenerator(), types.PersonaContext{}, types.RelevanceConfig{}, nil, m)

	out, err := f.Score(context.Background(), "topic", makeItems(10), types.ModeVector, 0.5)
	require.NoError(t, err)

	assert.True(t, out.FellBack)
	assert.Equal(t, types.ModeGenerative, out.Mode)
	require.Len(t, out.Accepted, 5)
	for _, item := range out.Accepted {
		assert.GreaterOrEqual(t, item.Score(), 0.5)
	}
	assert.Equal(t, "item 9", out.Accepted[0].Title, "highest score first")
	assert.Equal(t, 1, emb.calls, "no vector retries after the transition")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScoringFallback))
}

func TestScore_FallbackWithoutGeneratorErrors(t *testing.T) {
	emb := &fakeEmbedder{failCalls: map[int]bool{1: true}}
	_, err := newFilter(emb, nil, types.RelevanceConfig{}).Score(context.Background(), "t", makeItems(2), types.ModeVector, 0.5)
	assert.ErrorIs(t, err, ErrNoGenerator)
}

func TestScore_ThresholdProperty(t *testing.T) {
	f := newFilter(nil, keywordGenerator(), types.RelevanceConfig{})
	items := makeItems(11)

	for _, threshold := range []float64{0, 0.05, 0.3, 0.5, 0.55, 0.9, 1} {
		out, err := f.Score(context.Background(), "topic", items, types.ModeGenerative, threshold)
		require.NoError(t, err)

		accepted := map[string]bool{}
		for _, item := range out.Accepted {
			accepted[item.Title] = true
			assert.GreaterOrEqual(t, item.Score(), threshold)
		}
		for _, r := range out.Records {
			assert.Equal(t, r.Score >= threshold, r.Accepted, "threshold %v index %d", threshold, r.Index)
			assert.Equal(t, r.Accepted, accepted[r.Title])
		}
		for i := 1; i < len(out.Accepted); i++ {
			assert.GreaterOrEqual(t, out.Accepted[i-1].Score(), out.Accepted[i].Score())
		}
	}
}

func TestScore_ConcurrentMatchesSequential(t *testing.T) {
	items := makeItems(40)
	slow := llm.GeneratorFunc(func(ctx context.Context, req llm.Request) (string, error) {
		time.Sleep(time.Millisecond * time.Duration(len(req.Prompt)%5))
		return keywordGenerator().Generate(ctx, req)
	})

	seq, err := newFilter(nil, slow, types.RelevanceConfig{Workers: 1}).Score(context.Background(), "t", items, types.ModeGenerative, 0.3)
	require.NoError(t, err)
	par, err := newFilter(nil, slow, types.RelevanceConfig{Workers: 10}).Score(context.Background(), "t", items, types.ModeGenerative, 0.3)
	require.NoError(t, err)

	if diff := cmp.Diff(seq.Records, par.Records); diff != "" {
		t.Errorf("records differ (-sequential +concurrent):\n%s", diff)
	}
	if diff := cmp.Diff(seq.Accepted, par.Accepted); diff != "" {
		t.Errorf("accepted differ (-sequential +concurrent):\n%s", diff)
	}
}

func TestScore_WorkerPoolIsBounded(t *testing.T) {
	var inFlight, peak int32
	gen := llm.GeneratorFunc(func(context.Context, llm.Request) (string, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return "0.5", nil
	})

	_, err := newFilter(nil, gen, types.RelevanceConfig{Workers: 3}).Score(context.Background(), "t", makeItems(20), types.ModeGenerative, 0.5)
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestScore_GenerativeFailuresScoreZero(t *testing.T) {
	gen := llm.GeneratorFunc(func(_ context.Context, req llm.Request) (string, error) {
		switch {
		case strings.Contains(req.Prompt, "body 0"):
			return "", errors.New("rate limited")
		case strings.Contains(req.Prompt, "body 1"):
			return "I think it is quite relevant", nil
		default:
			return "1.7", nil
		}
	})

	out, err := newFilter(nil, gen, types.RelevanceConfig{}).Score(context.Background(), "t", makeItems(3), types.ModeGenerative, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.Records[0].Score)
	assert.Equal(t, 0.0, out.Records[1].Score)
	assert.Equal(t, 1.0, out.Records[2].Score, "scores are clamped to 1")
}

func TestScore_DegradedBatchScoresZero(t *testing.T) {
	emb := &fakeEmbedder{
		topicVec:  []float32{1, 0},
		itemVec:   func(string) []float32 { return []float32{1, 0} },
		failCalls: map[int]bool{3: true},
	}
	m := metrics.New()
	f := New(emb, nil, types.PersonaContext{}, types.RelevanceConfig{BatchSize: 2}, nil, m)

	out, err := f.Score(context.Background(), "t", makeItems(5), types.ModeVector, 0.5)
	require.NoError(t, err)

	scores := make([]float64, len(out.Records))
	for i, r := range out.Records {
		scores[i] = r.Score
	}
	assert.InDeltaSlice(t, []float64{1, 1, 0, 0, 1}, scores, 1e-9)
	assert.Equal(t, 1, out.DegradedBatches)
	assert.False(t, out.FellBack)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingErrors))
}

func TestScore_ZeroAndMismatchedVectorsScoreZero(t *testing.T) {
	emb := &fakeEmbedder{
		topicVec: []float32{1, 0},
		itemVec: func(text string) []float32 {
			switch {
			case strings.HasPrefix(text, "item 0"):
				return []float32{0, 0}
			case strings.HasPrefix(text, "item 1"):
				return []float32{1, 0, 0}
			}
			return []float32{-1, 0}
		},
	}
	out, err := newFilter(emb, nil, types.RelevanceConfig{}).Score(context.Background(), "t", makeItems(3), types.ModeVector, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.Records[0].Score)
	assert.Equal(t, 0.0, out.Records[1].Score)
	assert.InDelta(t, 0.0, out.Records[2].Score, 1e-9, "opposite vectors remap to 0")
}

func TestScore_InvalidInput(t *testing.T) {
	f := newFilter(nil, keywordGenerator(), types.RelevanceConfig{})
	_, err := f.Score(context.Background(), "t", makeItems(1), types.ModeGenerative, 1.5)
	assert.ErrorIs(t, err, ErrInvalidThreshold)
	_, err = f.Score(context.Background(), "t", makeItems(1), types.ModeGenerative, -0.1)
	assert.ErrorIs(t, err, ErrInvalidThreshold)
	_, err = f.Score(context.Background(), "t", makeItems(1), types.ScoringMode("hybrid"), 0.5)
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestScore_NoItems(t *testing.T) {
	out, err := newFilter(nil, nil, types.RelevanceConfig{}).Score(context.Background(), "t", nil, types.ModeVector, 0.5)
	require.NoError(t, err)
	assert.Empty(t, out.Accepted)
	assert.Empty(t, out.Records)
	assert.Equal(t, Stats{}, out.Stats)
}

func TestTopicContext(t *testing.T) {
	got := TopicContext("fusion energy", types.PersonaContext{
		Persona:     "investor",
		Interests:   []string{"startups", "policy"},
		Preferences: map[string]string{"region": "EU", "depth": "high"},
	})
	assert.Equal(t, "fusion energy. Persona: investor. Interests: startups, policy. Preferences: depth=high, region=EU", got)
	assert.Equal(t, "x. Persona: ", TopicContext("x", types.PersonaContext{}))
}

func TestItemText(t *testing.T) {
	item := types.ContentItem{Title: "T", Summary: "summary only"}
	assert.Equal(t, "T. summary only", ItemText(item, 8000))
	assert.Equal(t, "T. su", ItemText(item, 5))
}

func TestComputeStats(t *testing.T) {
	s := computeStats([]float64{0.2, 0.8, 0.4, 0.6}, 2)
	assert.InDelta(t, 0.5, s.Mean, 1e-9)
	assert.InDelta(t, 0.5, s.Median, 1e-9)
	assert.Equal(t, 0.2, s.Min)
	assert.Equal(t, 0.8, s.Max)
	assert.Equal(t, 0.5, s.AcceptanceRate)

	assert.Equal(t, 0.4, computeStats([]float64{0.9, 0.1, 0.4}, 0).Median)
}
