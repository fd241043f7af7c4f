// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package feed fetches RSS and Atom feeds into ContentItems and discovers
// feed URLs on web pages.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/pdiddy/research-brief/internal/httputil"
	"github.com/pdiddy/research-brief/internal/metrics"
	"github.com/pdiddy/research-brief/pkg/types"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// summaryLimit caps ContentItem.Summary in runes.
const summaryLimit = 500

// maxFeedBytes bounds a single feed body.
const maxFeedBytes = 10 << 20

// FetchError records why one feed contributed no items.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("feed %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("feed %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher retrieves and parses feeds. The zero value is not usable; call New.
type Fetcher struct {
	Client     *http.Client
	UserAgent  string
	MaxRetries int
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// New returns a Fetcher configured from cfg. A nil logger discards output and
// a nil m records nothing.
func New(cfg types.HTTPConfig, logger *zap.Logger, m *metrics.Metrics) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		Client:     &http.Client{Timeout: timeout},
		UserAgent:  cfg.UserAgent,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
		Metrics:    m,
	}
}

// Fetch deduplicates urls and fetches each feed in order. Feeds that fail
// are logged once and skipped. Fetch returns the items with the number of
// feeds that failed; it never fails itself.
func (f *Fetcher) Fetch(ctx context.Context, urls []string) ([]types.ContentItem, int) {
	var out []types.ContentItem
	failed := 0
	for _, u := range lo.Uniq(urls) {
		items, err := f.FetchOne(ctx, u)
		if err != nil {
			f.Logger.Warn("skipping feed", zap.String("feed", u), zap.Error(err))
			f.Metrics.FeedFailed()
			failed++
			continue
		}
		f.Logger.Debug("fetched feed", zap.String("feed", u), zap.Int("items", len(items)))
		out = append(out, items...)
	}
	return out, failed
}

// FetchOne fetches and parses a single feed. Errors are *FetchError.
func (f *Fetcher) FetchOne(ctx context.Context, feedURL string) ([]types.ContentItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: err}
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := httputil.DoWithRetry(ctx, f.Client, req, f.MaxRetries)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &FetchError{URL: feedURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: fmt.Errorf("reading body: %w", err)}
	}

	parsed, err := f.parse(feedURL, body)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: err}
	}

	items := make([]types.ContentItem, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		items = append(items, toContentItem(feedURL, it))
	}
	return items, nil
}

// parse tries the body as-is, then once more with invalid XML characters
// stripped. A successful second attempt is logged as an anomaly.
func (f *Fetcher) parse(feedURL string, body []byte) (*gofeed.Feed, error) {
	parser := gofeed.NewParser()
	parsed, err := parser.Parse(bytes.NewReader(body))
	if err == nil {
		return parsed, nil
	}

	clean := sanitizeXML(body)
	if bytes.Equal(clean, body) {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}
	parsed, err2 := gofeed.NewParser().Parse(bytes.NewReader(clean))
	if err2 != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}
	f.Logger.Warn("feed parsed after removing invalid characters",
		zap.String("feed", feedURL), zap.NamedError("original_error", err))
	return parsed, nil
}

// sanitizeXML drops runes that are not legal XML 1.0 characters.
func sanitizeXML(b []byte) []byte {
	return bytes.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case r >= 0x20 && r <= 0xD7FF:
			return r
		case r >= 0xE000 && r <= 0xFFFD:
			return r
		case r >= 0x10000 && r <= 0x10FFFF:
			return r
		}
		return -1
	}, b)
}

func toContentItem(source string, it *gofeed.Item) types.ContentItem {
	body := it.Content
	if body == "" {
		body = it.Description
	}
	published := it.Published
	if published == "" {
		published = it.Updated
	}
	var author string
	switch {
	case it.Author != nil:
		author = it.Author.Name
	case len(it.Authors) > 0 && it.Authors[0] != nil:
		author = it.Authors[0].Name
	}
	return types.ContentItem{
		Source:    source,
		Title:     it.Title,
		Summary:   types.Truncate(it.Description, summaryLimit),
		Link:      it.Link,
		Body:      body,
		Published: published,
		Author:    author,
	}
}
