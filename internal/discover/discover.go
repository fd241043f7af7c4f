// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package discover derives the source candidates for a topic: configured base
// sources, keyword-derived feed and social queries, and a generative proposal
// of feeds, websites, handles, and communities.
package discover

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"text/template"

	"github.com/pdiddy/research-brief/internal/llm"
	"github.com/pdiddy/research-brief/pkg/types"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const stage = "source discovery"

// googleNewsSearchURL is the Google News RSS search endpoint. Package-level
// var for test substitution.
var googleNewsSearchURL = "https://news.google.com/rss/search?q="

// redditBaseURL prefixes community feed URLs.
var redditBaseURL = "https://www.reddit.com/r/"

var discoverPromptTmpl = template.Must(template.New("discover").Parse(`You are a research assistant helping discover high-quality information sources.

Topic: {{.Topic}}
Subtopics: {{.Subtopics}}
Persona: {{.Persona}}

Find the most authoritative sources for this topic:
- news outlets and industry publications with RSS or Atom feeds
- expert blogs and specialized websites
- active social accounts of experts, organizations, and news sources
- active online communities

Return ONLY a JSON object:
{"feeds": ["https://..."], "websites": ["example.com"], "social_handles": ["@expert"], "communities": ["r/topic"]}

Provide up to {{.Max}} sources per category.
`))

// proposal is the generative discovery schema. Legacy field names are folded
// into the canonical ones.
type proposal struct {
	Feeds         []string `json:"feeds"`
	Websites      []string `json:"websites"`
	SocialHandles []string `json:"social_handles"`
	Communities   []string `json:"communities"`

	RSSFeeds        []string `json:"rss_feeds"`
	TwitterAccounts []string `json:"twitter_accounts"`
	Subreddits      []string `json:"subreddits"`
}

// Validate folds legacy names and requires at least one recognized field.
func (p *proposal) Validate() error {
	if p.Feeds == nil {
		p.Feeds = p.RSSFeeds
	}
	if p.SocialHandles == nil {
		p.SocialHandles = p.TwitterAccounts
	}
	if p.Communities == nil {
		p.Communities = p.Subreddits
	}
	if p.Feeds == nil && p.Websites == nil && p.SocialHandles == nil && p.Communities == nil {
		return errors.New("no recognized source categories")
	}
	return nil
}

// Discoverer assembles SourceSets. Generator may be nil, in which case only
// configured and keyword-derived sources are produced.
type Discoverer struct {
	Generator llm.Generator
	Config    types.DiscoveryConfig
	Logger    *zap.Logger
}

// New returns a Discoverer. A nil logger discards output.
func New(gen llm.Generator, cfg types.DiscoveryConfig, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxPerCategory <= 0 {
		cfg.MaxPerCategory = types.DefaultConfig().Discovery.MaxPerCategory
	}
	return &Discoverer{Generator: gen, Config: cfg, Logger: logger}
}

// Discover never fails: a failed generative proposal contributes nothing and
// the derived sources are still returned.
func (d *Discoverer) Discover(ctx context.Context, exp types.TopicExpansion, persona types.PersonaContext) types.SourceSet {
	p := d.propose(ctx, exp, persona)

	feeds := make([]string, 0, len(d.Config.BaseFeeds)+len(exp.FeedKeywords)+len(p.Feeds)+len(p.Communities))
	feeds = append(feeds, d.Config.BaseFeeds...)
	feeds = append(feeds, lo.Map(exp.FeedKeywords, func(kw string, _ int) string { return NewsSearchURL(kw) })...)
	feeds = append(feeds, p.Feeds...)
	feeds = append(feeds, lo.Map(p.Communities, func(c string, _ int) string { return CommunityFeedURL(c) })...)

	social := make([]string, 0, len(d.Config.BaseSocial)+len(exp.SocialKeywords)+len(p.SocialHandles))
	social = append(social, d.Config.BaseSocial...)
	social = append(social, lo.Map(exp.SocialKeywords, func(kw string, _ int) string { return Hashtag(kw) })...)
	social = append(social, p.SocialHandles...)

	set := types.SourceSet{
		Feeds:         dedup(feeds),
		SocialQueries: dedup(social),
		Websites:      dedup(lo.Map(p.Websites, func(w string, _ int) string { return Host(w) })),
		Communities:   dedup(p.Communities),
	}
	d.Logger.Info("discovered sources",
		zap.Int("feeds", len(set.Feeds)),
		zap.Int("social_queries", len(set.SocialQueries)),
		zap.Int("websites", len(set.Websites)),
		zap.Int("communities", len(set.Communities)))
	return set
}

func (d *Discoverer) propose(ctx context.Context, exp types.TopicExpansion, persona types.PersonaContext) proposal {
	if d.Generator == nil {
		d.Logger.Info("no generator configured, skipping generative source discovery")
		return proposal{}
	}

	prompt, err := llm.Render(discoverPromptTmpl, struct {
		Topic, Subtopics, Persona string
		Max                       int
	}{
		Topic:     exp.Original,
		Subtopics: strings.Join(lo.Slice(exp.Subtopics, 0, 5), ", "),
		Persona:   persona.Persona,
		Max:       d.Config.MaxPerCategory,
	})
	if err != nil {
		d.Logger.Warn("generative source discovery failed", zap.Error(err))
		return proposal{}
	}

	raw, err := d.Generator.Generate(ctx, llm.Request{Prompt: prompt, Temperature: 0.3})
	if err != nil {
		d.Logger.Warn("generative source discovery failed", zap.Error(err))
		return proposal{}
	}

	var p proposal
	if err := llm.DecodeObject(stage, raw, &p); err != nil {
		d.Logger.Warn("generative source discovery failed", zap.Error(err))
		return proposal{}
	}

	limit := d.Config.MaxPerCategory
	return proposal{
		Feeds:         clip(p.Feeds, limit),
		Websites:      clip(p.Websites, limit),
		SocialHandles: clip(p.SocialHandles, limit),
		Communities:   clip(p.Communities, limit),
	}
}

// NewsSearchURL builds the Google News RSS search URL for a keyword.
func NewsSearchURL(keyword string) string {
	return googleNewsSearchURL + strings.ReplaceAll(strings.TrimSpace(keyword), " ", "+")
}

// Hashtag normalizes a keyword to "#tag" form: a leading '#' is kept and
// inner whitespace removed.
func Hashtag(keyword string) string {
	tag := strings.Join(strings.Fields(keyword), "")
	if tag == "" || strings.HasPrefix(tag, "#") {
		return tag
	}
	return "#" + tag
}

// CommunityFeedURL maps "r/name", "/r/name", or "name" to the community's RSS feed.
func CommunityFeedURL(name string) string {
	name = strings.Trim(strings.TrimSpace(name), "/")
	name = strings.TrimPrefix(name, "r/")
	return redditBaseURL + name + "/.rss"
}

// Host reduces a website reference to a bare host: scheme, path, and
// trailing slash are removed.
func Host(site string) string {
	site = strings.TrimSpace(site)
	if strings.Contains(site, "://") {
		if u, err := url.Parse(site); err == nil && u.Host != "" {
			return u.Host
		}
	}
	site, _, _ = strings.Cut(site, "/")
	return site
}

// dedup drops blanks and repeats, keeping first-occurrence order.
func dedup(values []string) []string {
	out := lo.Uniq(lo.Compact(lo.Map(values, func(v string, _ int) string { return strings.TrimSpace(v) })))
	if out == nil {
		return []string{}
	}
	return out
}

func clip(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}
