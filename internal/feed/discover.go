// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pdiddy/research-brief/internal/discover"
	"github.com/pdiddy/research-brief/internal/httputil"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// feedLinkTypes are the <link type="..."> values treated as feeds.
var feedLinkTypes = []string{"application/rss+xml", "application/atom+xml", "application/xml"}

// wellKnownPaths are probed on the page origin.
var wellKnownPaths = []string{"/feed", "/rss", "/feed.xml", "/rss.xml", "/atom.xml"}

// feedMarkers identify a feed by its Content-Type.
var feedMarkers = []string{"xml", "rss", "atom"}

// topicPattern builds a candidate feed URL from a topic. Spaces in the topic
// are replaced by sep.
type topicPattern struct {
	format string
	sep    string
}

// topicPatterns are probed by SearchByTopic. Package-level var for test
// substitution.
var topicPatterns = []topicPattern{
	{format: "https://www.reddit.com/r/%s.rss", sep: ""},
	{format: "https://techcrunch.com/tag/%s/feed/", sep: "-"},
	{format: "https://medium.com/feed/tag/%s", sep: "-"},
}

// Discover returns feed URLs advertised by the page at pageURL through
// <link> tags, plus well-known feed paths on its origin that answer with a
// feed Content-Type. A page answering with an error status or unparseable
// HTML still gets the well-known path checks; an invalid URL or a transport
// failure yields nil.
func (f *Fetcher) Discover(ctx context.Context, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		f.Logger.Warn("feed discovery skipped, invalid page URL", zap.String("page", pageURL))
		return nil
	}

	doc, err := f.fetchPage(ctx, pageURL)
	var pageErr *FetchError
	switch {
	case errors.As(err, &pageErr):
		f.Logger.Info("page unusable, checking well-known feed paths only", zap.String("page", pageURL), zap.Error(err))
	case err != nil:
		f.Logger.Warn("feed discovery failed", zap.String("page", pageURL), zap.Error(err))
		return nil
	}

	var found []string
	if doc != nil {
		found = linkedFeeds(doc, base)
	}

	origin := base.Scheme + "://" + base.Host
	for _, p := range wellKnownPaths {
		candidate := origin + p
		if httputil.ProbeContentType(ctx, f.Client, candidate, f.UserAgent, feedMarkers...) {
			found = append(found, candidate)
		}
	}

	found = lo.Uniq(found)
	f.Logger.Debug("discovered feeds", zap.String("page", pageURL), zap.Int("feeds", len(found)))
	return found
}

// linkedFeeds returns the feed hrefs of doc's <link> tags resolved against base.
func linkedFeeds(doc *goquery.Document, base *url.URL) []string {
	var found []string
	doc.Find("link[type]").Each(func(_ int, s *goquery.Selection) {
		typ := strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))
		if !lo.Contains(feedLinkTypes, typ) {
			return
		}
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		found = append(found, base.ResolveReference(ref).String())
	})
	return found
}

// fetchPage GETs and parses pageURL. Transport errors are returned as-is; a
// page the server answered but that cannot be used is a *FetchError.
func (f *Fetcher) fetchPage(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, f.Client, req, f.MaxRetries)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: fmt.Errorf("parsing page: %w", err)}
	}
	return doc, nil
}

// SearchByTopic returns the Google News search feed for topic followed by up
// to maxResults pattern-derived candidates that pass a Content-Type probe.
func (f *Fetcher) SearchByTopic(ctx context.Context, topic string, maxResults int) []string {
	feeds := []string{discover.NewsSearchURL(topic)}

	for _, p := range lo.Slice(topicPatterns, 0, maxResults) {
		candidate := fmt.Sprintf(p.format, strings.ReplaceAll(strings.TrimSpace(topic), " ", p.sep))
		if httputil.ProbeContentType(ctx, f.Client, candidate, f.UserAgent, feedMarkers...) {
			feeds = append(feeds, candidate)
		}
	}
	f.Logger.Debug("topic feed search", zap.String("topic", topic), zap.Int("feeds", len(feeds)))
	return feeds
}
