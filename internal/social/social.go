// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package social fetches recent posts for social search queries through the
// v2 recent-search API.
package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pdiddy/research-brief/internal/httputil"
	"github.com/pdiddy/research-brief/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// searchBaseURL is the recent-search API root. Package-level var for test
// substitution.
var searchBaseURL = "https://api.twitter.com"

// statusURL formats a post id into its public link.
const statusURL = "https://x.com/i/web/status/"

const (
	maxResultsPerQuery = 10
	summaryLimit       = 200
)

// Fetcher queries the recent-search API. Without a bearer token it runs in
// degraded mode and returns no items.
type Fetcher struct {
	BearerToken string
	Client      *http.Client
	MaxRetries  int
	Limiter     *rate.Limiter
	Logger      *zap.Logger
}

// New returns a Fetcher. requestsPerSecond <= 0 disables pacing.
func New(token string, cfg types.HTTPConfig, requestsPerSecond float64, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	f := &Fetcher{
		BearerToken: token,
		Client:      &http.Client{Timeout: timeout},
		MaxRetries:  cfg.MaxRetries,
		Logger:      logger,
	}
	if requestsPerSecond > 0 {
		f.Limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return f
}

type searchResponse struct {
	Data []post `json:"data"`
}

type post struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
	AuthorID  string `json:"author_id"`
}

// Fetch runs one search per query and returns the posts found with the
// number of queries that failed. A failed query is logged and skipped; a
// query never attempted because the context ended counts as failed. Without
// a bearer token nothing is attempted and nothing fails.
func (f *Fetcher) Fetch(ctx context.Context, queries []string) ([]types.ContentItem, int) {
	out := []types.ContentItem{}
	if f.BearerToken == "" {
		f.Logger.Info("no social bearer token, skipping social search", zap.Int("queries", len(queries)))
		return out, 0
	}

	failed := 0
	for i, q := range queries {
		if f.Limiter != nil {
			if err := f.Limiter.Wait(ctx); err != nil {
				f.Logger.Warn("social search stopped", zap.Error(err))
				return out, failed + len(queries) - i
			}
		}
		posts, err := f.search(ctx, q)
		if err != nil {
			f.Logger.Warn("skipping social query", zap.String("query", q), zap.Error(err))
			failed++
			continue
		}
		for _, p := range posts {
			out = append(out, toContentItem(q, p))
		}
	}
	f.Logger.Debug("fetched social posts", zap.Int("items", len(out)), zap.Int("failed", failed))
	return out, failed
}

func (f *Fetcher) search(ctx context.Context, query string) ([]post, error) {
	params := url.Values{}
	params.Set("query", strings.ReplaceAll(query, "#", ""))
	params.Set("max_results", fmt.Sprint(maxResultsPerQuery))
	params.Set("tweet.fields", "created_at,author_id")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		searchBaseURL+"/2/tweets/search/recent?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+f.BearerToken)

	resp, err := httputil.DoWithRetry(ctx, f.Client, req, f.MaxRetries)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("recent search returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decoding recent search response: %w", err)
	}
	return sr.Data, nil
}

func toContentItem(query string, p post) types.ContentItem {
	return types.ContentItem{
		Source:    "social:" + query,
		Title:     "Post about " + query,
		Summary:   types.Truncate(p.Text, summaryLimit),
		Link:      statusURL + p.ID,
		Body:      p.Text,
		Published: p.CreatedAt,
		Author:    p.AuthorID,
	}
}
