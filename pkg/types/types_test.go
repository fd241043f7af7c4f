// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func items(n int) []ContentItem {
	out := make([]ContentItem, n)
	for i := range out {
		out[i] = ContentItem{Title: string(rune('a' + i%26))}
	}
	return out
}

func TestNewBudget(t *testing.T) {
	tests := []struct {
		param     int
		unlimited bool
	}{
		{-5, true},
		{0, true},
		{1, false},
		{999, false},
		{1000, true},
		{5000, true},
	}
	for _, tt := range tests {
		b := NewBudget(tt.param)
		assert.Equal(t, tt.unlimited, b.Unlimited(), "param %d", tt.param)
		if tt.unlimited {
			assert.Equal(t, -1, b.Remaining())
		} else {
			assert.Equal(t, tt.param, b.Remaining())
		}
	}
}

func TestBudgetTakeNeverExceedsLimit(t *testing.T) {
	b := NewBudget(10)
	var kept []ContentItem
	for _, n := range []int{4, 0, 5, 7, 3} {
		kept = append(kept, b.Take(items(n))...)
		assert.LessOrEqual(t, b.Consumed, 10)
		assert.Equal(t, len(kept), b.Consumed)
	}
	assert.Len(t, kept, 10)
	assert.True(t, b.Exhausted())
	assert.Equal(t, 0, b.Remaining())
	assert.Empty(t, b.Take(items(2)))
}

func TestBudgetUnlimitedTakesEverything(t *testing.T) {
	b := NewBudget(UnlimitedBudgetSentinel)
	assert.Len(t, b.Take(items(3000)), 3000)
	assert.False(t, b.Exhausted())
	assert.Equal(t, 3000, b.Consumed)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 10))
	assert.Equal(t, "hel", Truncate("hello", 3))
	assert.Equal(t, "", Truncate("hello", 0))
	assert.Equal(t, "héé", Truncate("hééllo", 3))
	assert.Equal(t, "日本", Truncate("日本語", 2))
	assert.Equal(t, 3, RuneLen("日本語"))
}

func TestTopicExpansionLegacyNames(t *testing.T) {
	var exp TopicExpansion
	require.NoError(t, json.Unmarshal([]byte(`{"original":"x","rss_keywords":["a"],"twitter_keywords":["#b"]}`), &exp))
	assert.Equal(t, []string{"a"}, exp.FeedKeywords)
	assert.Equal(t, []string{"#b"}, exp.SocialKeywords)

	require.NoError(t, json.Unmarshal([]byte(`{"original":"x","feed_keywords":["c"],"rss_keywords":["a"]}`), &exp))
	assert.Equal(t, []string{"c"}, exp.FeedKeywords, "canonical name wins")
}

func TestContentItemHelpers(t *testing.T) {
	item := ContentItem{Summary: "short"}
	assert.Equal(t, "short", item.Content())
	assert.Equal(t, 0.0, item.Score())

	item.Body = "full body"
	s := 0.75
	item.RelevanceScore = &s
	assert.Equal(t, "full body", item.Content())
	assert.Equal(t, 0.75, item.Score())
}

func TestScoringModeValid(t *testing.T) {
	assert.True(t, ModeVector.Valid())
	assert.True(t, ModeGenerative.Valid())
	assert.False(t, ScoringMode("hybrid").Valid())
}
