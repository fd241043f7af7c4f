// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discover

import (
	"context"
	"errors"
	"testing"

	"github.com/pdiddy/research-brief/internal/llm"
	"github.com/pdiddy/research-brief/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func fixedGenerator(out string, err error) llm.Generator {
	return llm.GeneratorFunc(func(context.Context, llm.Request) (string, error) {
		return out, err
	})
}

var expansion = types.TopicExpansion{
	Original:       "edge computing",
	Subtopics:      []string{"5G", "IoT"},
	FeedKeywords:   []string{"edge computing", "fog computing"},
	SocialKeywords: []string{"edge computing", "#IoT"},
}

func TestDiscover_DerivedSourcesWithoutGenerator(t *testing.T) {
	d := New(nil, types.DiscoveryConfig{
		BaseFeeds:  []string{"https://base.example/feed"},
		BaseSocial: []string{"@base"},
	}, nil)

	set := d.Discover(context.Background(), expansion, types.PersonaContext{})

	assert.Equal(t, []string{
		"https://base.example/feed",
		"https://news.google.com/rss/search?q=edge+computing",
		"https://news.google.com/rss/search?q=fog+computing",
	}, set.Feeds)
	assert.Equal(t, []string{"@base", "#edgecomputing", "#IoT"}, set.SocialQueries)
	assert.Empty(t, set.Websites)
	assert.Empty(t, set.Communities)
}

func TestDiscover_GenerativeProposal(t *testing.T) {
	var seen llm.Request
	gen := llm.GeneratorFunc(func(_ context.Context, req llm.Request) (string, error) {
		seen = req
		return "```json\n" + `{
			"feeds": ["https://blog.example/rss", "https://news.google.com/rss/search?q=edge+computing"],
			"websites": ["https://www.edgeir.com/", "stackoverflow.blog/feed"],
			"social_handles": ["@edge_expert", "#IoT"],
			"communities": ["r/edgecomputing", "homelab"]
		}` + "\n```", nil
	})
	d := New(gen, types.DiscoveryConfig{}, nil)

	set := d.Discover(context.Background(), expansion, types.PersonaContext{Persona: "architect"})

	assert.Equal(t, 0.3, seen.Temperature)
	assert.Contains(t, seen.Prompt, "Persona: architect")
	assert.Contains(t, seen.Prompt, "Subtopics: 5G, IoT")

	assert.Equal(t, []string{
		"https://news.google.com/rss/search?q=edge+computing",
		"https://news.google.com/rss/search?q=fog+computing",
		"https://blog.example/rss",
		"https://www.reddit.com/r/edgecomputing/.rss",
		"https://www.reddit.com/r/homelab/.rss",
	}, set.Feeds, "duplicate feed keeps its first position")
	assert.Equal(t, []string{"#edgecomputing", "#IoT", "@edge_expert"}, set.SocialQueries)
	assert.Equal(t, []string{"www.edgeir.com", "stackoverflow.blog"}, set.Websites)
	assert.Equal(t, []string{"r/edgecomputing", "homelab"}, set.Communities)
}

func TestDiscover_LegacyNamesAndClipping(t *testing.T) {
	gen := fixedGenerator(`{"rss_feeds": ["https://a/1", "https://a/2", "https://a/3"], "websites": [], "twitter_accounts": ["@x"], "subreddits": ["r/go"]}`, nil)
	d := New(gen, types.DiscoveryConfig{MaxPerCategory: 2}, nil)

	set := d.Discover(context.Background(), types.TopicExpansion{Original: "go"}, types.PersonaContext{})

	assert.Equal(t, []string{"https://a/1", "https://a/2", "https://www.reddit.com/r/go/.rss"}, set.Feeds)
	assert.Equal(t, []string{"@x"}, set.SocialQueries)
}

func TestDiscover_FailuresDegradeToDerived(t *testing.T) {
	tests := []struct {
		name string
		gen  llm.Generator
	}{
		{"network error", fixedGenerator("", errors.New("dial tcp: timeout"))},
		{"no json", fixedGenerator("Here are some great sources!", nil)},
		{"wrong shape", fixedGenerator(`{"sources": ["x"]}`, nil)},
		{"non-string entries", fixedGenerator(`{"feeds": [1]}`, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			d := New(tt.gen, types.DiscoveryConfig{}, zap.New(core))

			set := d.Discover(context.Background(), expansion, types.PersonaContext{})

			assert.Len(t, set.Feeds, 2)
			assert.Equal(t, []string{"#edgecomputing", "#IoT"}, set.SocialQueries)
			assert.Empty(t, set.Websites)
			require.Equal(t, 1, logs.FilterMessage("generative source discovery failed").Len())
		})
	}
}

func TestHashtag(t *testing.T) {
	tests := map[string]string{
		"machine learning": "#machinelearning",
		"#AI":              "#AI",
		"  spaced  out ":   "#spacedout",
		"":                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Hashtag(in), in)
	}
}

func TestHost(t *testing.T) {
	tests := map[string]string{
		"https://example.com/":       "example.com",
		"http://blog.example.com/a":  "blog.example.com",
		"example.com/":               "example.com",
		"example.com":                "example.com",
		" https://x.io:8443/path?q ": "x.io:8443",
	}
	for in, want := range tests {
		assert.Equal(t, want, Host(in), in)
	}
}

func TestCommunityFeedURL(t *testing.T) {
	for _, in := range []string{"r/golang", "/r/golang/", "golang"} {
		assert.Equal(t, "https://www.reddit.com/r/golang/.rss", CommunityFeedURL(in), in)
	}
}
