// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package acquire runs the budgeted acquisition cascade: primary feeds, feeds
// discovered on websites, topic-search feeds, then social search, stopping as
// soon as the global item budget is spent.
package acquire

import (
	"context"
	"fmt"
	"io"

	"github.com/pdiddy/research-brief/internal/metrics"
	"github.com/pdiddy/research-brief/pkg/types"
	"go.uber.org/zap"
)

// Stage names, in cascade order.
const (
	StagePrimaryFeeds = "primary_feeds"
	StageWebsites     = "websites"
	StageTopicFeeds   = "topic_feeds"
	StageSocial       = "social"
)

// FeedSource fetches feeds and finds new ones. *feed.Fetcher implements it.
// Fetch returns the items found and the number of feeds that failed.
type FeedSource interface {
	Fetch(ctx context.Context, urls []string) ([]types.ContentItem, int)
	Discover(ctx context.Context, pageURL string) []string
	SearchByTopic(ctx context.Context, topic string, maxResults int) []string
}

// SocialSource fetches posts for social queries. *social.Fetcher implements
// it. Fetch returns the posts found and the number of queries that failed.
type SocialSource interface {
	Fetch(ctx context.Context, queries []string) ([]types.ContentItem, int)
}

// StageReport is the outcome of one cascade stage. Fetched counts items the
// stage produced; Kept counts items that fit in the budget. Failed counts the
// individual feeds or queries that contributed nothing because they failed.
type StageReport struct {
	Stage   string `json:"stage"`
	Fetched int    `json:"fetched"`
	Kept    int    `json:"kept"`
	Failed  int    `json:"failed"`
	Skipped bool   `json:"skipped"`
	Err     error  `json:"-"`
}

// Result holds the outcome of one acquisition run.
type Result struct {
	Items  []types.ContentItem
	Budget types.Budget
	Stages []StageReport
}

// Total returns the number of items acquired.
func (r Result) Total() int {
	return len(r.Items)
}

// HasFailures reports whether any stage failed or lost a source.
func (r Result) HasFailures() bool {
	for _, s := range r.Stages {
		if s.Err != nil || s.Failed > 0 {
			return true
		}
	}
	return false
}

// FailedSources returns the number of feeds and queries that failed.
func (r Result) FailedSources() int {
	n := 0
	for _, s := range r.Stages {
		n += s.Failed
	}
	return n
}

// Coordinator owns the budget for one run. Fetchers never see it.
type Coordinator struct {
	Feeds         FeedSource
	Social        SocialSource
	MaxWebsites   int
	MaxTopicFeeds int

	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Out     io.Writer
}

// New returns a Coordinator configured from cfg. A nil logger discards log
// output and a nil w discards progress output.
func New(feeds FeedSource, social SocialSource, cfg types.AcquisitionConfig, logger *zap.Logger, m *metrics.Metrics, w io.Writer) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if w == nil {
		w = io.Discard
	}
	return &Coordinator{
		Feeds:         feeds,
		Social:        social,
		MaxWebsites:   cfg.MaxWebsites,
		MaxTopicFeeds: cfg.MaxTopicFeeds,
		Logger:        logger,
		Metrics:       m,
		Out:           w,
	}
}

// stageFunc produces a stage's items and its count of failed sources.
// remaining is the budget left when the stage starts, or -1 when unlimited;
// a stage may stop early once it has produced that many items.
type stageFunc func(ctx context.Context, remaining int) ([]types.ContentItem, int)

// Acquire runs the cascade against budget parameter limit (see
// types.NewBudget). Stage failures are recorded on the result and never
// abort the run.
func (c *Coordinator) Acquire(ctx context.Context, exp types.TopicExpansion, sources types.SourceSet, limit int) Result {
	res := Result{Budget: types.NewBudget(limit)}

	stages := []struct {
		name string
		fn   stageFunc
	}{
		{StagePrimaryFeeds, func(ctx context.Context, _ int) ([]types.ContentItem, int) {
			return c.Feeds.Fetch(ctx, sources.Feeds)
		}},
		{StageWebsites, func(ctx context.Context, remaining int) ([]types.ContentItem, int) {
			return c.fetchWebsites(ctx, sources.Websites, remaining)
		}},
		{StageTopicFeeds, func(ctx context.Context, _ int) ([]types.ContentItem, int) {
			return c.Feeds.Fetch(ctx, c.Feeds.SearchByTopic(ctx, exp.Original, c.MaxTopicFeeds))
		}},
		{StageSocial, func(ctx context.Context, _ int) ([]types.ContentItem, int) {
			return c.Social.Fetch(ctx, sources.SocialQueries)
		}},
	}

	for _, st := range stages {
		report := StageReport{Stage: st.name}
		if res.Budget.Exhausted() {
			report.Skipped = true
			res.Stages = append(res.Stages, report)
			fmt.Fprintf(c.Out, "skipped: %s (budget exhausted)\n", st.name)
			continue
		}

		items, failed, err := c.runStage(ctx, st.name, res.Budget.Remaining(), st.fn)
		if err != nil {
			report.Err = err
			res.Stages = append(res.Stages, report)
			c.Metrics.StageFailed(st.name)
			c.Logger.Warn("acquisition stage failed", zap.String("stage", st.name), zap.Error(err))
			fmt.Fprintf(c.Out, "failed:  %s (%v)\n", st.name, err)
			continue
		}

		kept := res.Budget.Take(items)
		res.Items = append(res.Items, kept...)
		report.Fetched = len(items)
		report.Kept = len(kept)
		report.Failed = failed
		res.Stages = append(res.Stages, report)

		c.Metrics.Acquired(st.name, len(kept))
		c.Logger.Info("acquisition stage complete",
			zap.String("stage", st.name),
			zap.Int("fetched", report.Fetched),
			zap.Int("kept", report.Kept),
			zap.Int("failed", report.Failed),
			zap.Int("remaining", res.Budget.Remaining()))
		if failed > 0 {
			fmt.Fprintf(c.Out, "%s: %d fetched, %d kept, %d failed\n", st.name, report.Fetched, report.Kept, failed)
		} else {
			fmt.Fprintf(c.Out, "%s: %d fetched, %d kept\n", st.name, report.Fetched, report.Kept)
		}
	}

	budget := "unlimited"
	if !res.Budget.Unlimited() {
		budget = fmt.Sprintf("%d of %d", res.Budget.Consumed, *res.Budget.Limit)
	}
	fmt.Fprintf(c.Out, "\nAcquisition summary: %d items (budget: %s)\n", res.Total(), budget)
	return res
}

// runStage calls fn with a recover guard. A panic or a cancelled context
// becomes an error and the stage contributes nothing.
func (c *Coordinator) runStage(ctx context.Context, name string, remaining int, fn stageFunc) (items []types.ContentItem, failed int, err error) {
	defer func() {
		if r := recover(); r != nil {
			items, failed = nil, 0
			err = fmt.Errorf("stage %s panicked: %v", name, r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, 0, fmt.Errorf("stage %s: %w", name, err)
	}
	items, failed = fn(ctx, remaining)
	return items, failed, nil
}

// fetchWebsites discovers and fetches feeds for up to MaxWebsites hosts,
// stopping once remaining items have been collected. A website with no feeds
// is not a failure; a discovered feed that cannot be fetched is.
func (c *Coordinator) fetchWebsites(ctx context.Context, hosts []string, remaining int) ([]types.ContentItem, int) {
	if c.MaxWebsites >= 0 && len(hosts) > c.MaxWebsites {
		hosts = hosts[:c.MaxWebsites]
	}
	var out []types.ContentItem
	failed := 0
	for _, host := range hosts {
		feeds := c.Feeds.Discover(ctx, "https://"+host)
		if len(feeds) == 0 {
			c.Logger.Debug("no feeds found on website", zap.String("website", host))
			continue
		}
		items, n := c.Feeds.Fetch(ctx, feeds)
		out = append(out, items...)
		failed += n
		if remaining >= 0 && len(out) >= remaining {
			break
		}
	}
	return out, failed
}
