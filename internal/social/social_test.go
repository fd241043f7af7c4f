// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package social

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pdiddy/research-brief/internal/httputil"
	"github.com/pdiddy/research-brief/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	httputil.RetryBaseDelay = 0
}

func withSearchServer(t *testing.T, h http.HandlerFunc) {
	t.Helper()
	ts := httptest.NewServer(h)
	orig := searchBaseURL
	searchBaseURL = ts.URL
	t.Cleanup(func() {
		searchBaseURL = orig
		ts.Close()
	})
}

func TestFetch_NoTokenIsEmpty(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	f := New("", types.HTTPConfig{}, 0, zap.New(core))

	items, failed := f.Fetch(context.Background(), []string{"#go"})
	assert.Zero(t, failed)
	assert.NotNil(t, items)
	assert.Empty(t, items)
	assert.Equal(t, 1, logs.FilterMessage("no social bearer token, skipping social search").Len())
}

func TestFetch_MapsPosts(t *testing.T) {
	longText := strings.Repeat("x", 250)
	withSearchServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/tweets/search/recent", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "golang", r.URL.Query().Get("query"))
		assert.Equal(t, "10", r.URL.Query().Get("max_results"))
		fmt.Fprintf(w, `{"data":[
			{"id":"1","text":"hello gophers","created_at":"2025-10-01T00:00:00Z","author_id":"42"},
			{"id":"2","text":"%s"}
		]}`, longText)
	})

	f := New("tok", types.HTTPConfig{}, 0, nil)
	items, failed := f.Fetch(context.Background(), []string{"#golang"})
	require.Len(t, items, 2)
	assert.Zero(t, failed)

	assert.Equal(t, types.ContentItem{
		Source:    "social:#golang",
		Title:     "Post about #golang",
		Summary:   "hello gophers",
		Link:      "https://x.com/i/web/status/1",
		Body:      "hello gophers",
		Published: "2025-10-01T00:00:00Z",
		Author:    "42",
	}, items[0])
	assert.Len(t, items[1].Summary, 200)
	assert.Equal(t, longText, items[1].Body)
}

func TestFetch_FailedQueriesAreSkipped(t *testing.T) {
	withSearchServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("query") {
		case "throttled":
			w.WriteHeader(http.StatusTooManyRequests)
		case "forbidden":
			w.WriteHeader(http.StatusForbidden)
		case "garbled":
			fmt.Fprint(w, `{"data": [`)
		default:
			fmt.Fprint(w, `{"data":[{"id":"9","text":"ok"}]}`)
		}
	})

	core, logs := observer.New(zapcore.WarnLevel)
	f := New("tok", types.HTTPConfig{MaxRetries: 1}, 0, zap.New(core))

	items, failed := f.Fetch(context.Background(), []string{"throttled", "forbidden", "garbled", "#fine"})
	require.Len(t, items, 1)
	assert.Equal(t, 3, failed)
	assert.Equal(t, "social:#fine", items[0].Source)
	assert.Equal(t, 3, logs.FilterMessage("skipping social query").Len())
}

func TestFetch_EmptyResultSet(t *testing.T) {
	withSearchServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"meta":{"result_count":0}}`)
	})
	items, failed := New("tok", types.HTTPConfig{}, 5, nil).Fetch(context.Background(), []string{"a", "b"})
	assert.Empty(t, items)
	assert.Zero(t, failed, "an empty result set is not a failure")
}

func TestFetch_CancelledContextCountsUnattemptedQueries(t *testing.T) {
	withSearchServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":[{"id":"1","text":"ok"}]}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items, failed := New("tok", types.HTTPConfig{}, 1, nil).Fetch(ctx, []string{"a", "b", "c"})
	assert.Empty(t, items)
	assert.Equal(t, 3, failed)
}
