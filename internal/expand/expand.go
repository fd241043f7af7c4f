// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package expand turns a raw topic string into a structured TopicExpansion
// with one generative call.
package expand

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/research-brief/internal/llm"
	"github.com/pdiddy/research-brief/pkg/types"
	"go.uber.org/zap"
)

const stage = "topic expansion"

// ErrEmptyTopic is returned before any generative call when the topic is blank.
var ErrEmptyTopic = errors.New("topic must not be empty")

var expandPromptTmpl = template.Must(template.New("expand").Parse(`Expand the research topic '{{.Topic}}' for the reader persona '{{.Persona}}'.

Return ONLY a JSON object with these fields:
- original: the topic restated in canonical form
- subtopics: 3 to 6 narrower angles on the topic
- feed_keywords: 2 to 5 short search phrases for news feeds
- social_keywords: 2 to 5 hashtags or short phrases for social search

Example:
{"original": "solid-state batteries", "subtopics": ["manufacturing"], "feed_keywords": ["solid state battery"], "social_keywords": ["#solidstatebattery"]}
`))

// expansionSchema mirrors the wire shape. The keyword fields are pointers so
// a missing array is distinguishable from an empty one.
type expansionSchema struct {
	Original       string    `json:"original"`
	Subtopics      []string  `json:"subtopics"`
	FeedKeywords   *[]string `json:"feed_keywords"`
	SocialKeywords *[]string `json:"social_keywords"`
}

// UnmarshalJSON folds the legacy rss_keywords / twitter_keywords names into
// the canonical fields.
func (s *expansionSchema) UnmarshalJSON(data []byte) error {
	type plain expansionSchema
	var raw struct {
		plain
		RSSKeywords     *[]string `json:"rss_keywords"`
		TwitterKeywords *[]string `json:"twitter_keywords"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = expansionSchema(raw.plain)
	if s.FeedKeywords == nil {
		s.FeedKeywords = raw.RSSKeywords
	}
	if s.SocialKeywords == nil {
		s.SocialKeywords = raw.TwitterKeywords
	}
	return nil
}

// Validate checks that every required field is present.
func (s *expansionSchema) Validate() error {
	switch {
	case strings.TrimSpace(s.Original) == "":
		return errors.New("missing field original")
	case s.FeedKeywords == nil:
		return errors.New("missing field feed_keywords")
	case s.SocialKeywords == nil:
		return errors.New("missing field social_keywords")
	}
	return nil
}

// Expander produces TopicExpansions.
type Expander struct {
	Generator llm.Generator
	Persona   string
	Logger    *zap.Logger
}

// New returns an Expander. A nil logger discards output.
func New(gen llm.Generator, persona string, logger *zap.Logger) *Expander {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Expander{Generator: gen, Persona: persona, Logger: logger}
}

// Expand runs the expansion prompt at temperature 0 and decodes the result.
// Malformed output is returned as an *llm.SchemaError; there is no retry.
func (e *Expander) Expand(ctx context.Context, topic string) (types.TopicExpansion, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return types.TopicExpansion{}, ErrEmptyTopic
	}

	prompt, err := llm.Render(expandPromptTmpl, struct{ Topic, Persona string }{topic, e.Persona})
	if err != nil {
		return types.TopicExpansion{}, err
	}

	raw, err := e.Generator.Generate(ctx, llm.Request{Prompt: prompt, Temperature: 0})
	if err != nil {
		return types.TopicExpansion{}, fmt.Errorf("expanding topic %q: %w", topic, err)
	}

	var s expansionSchema
	if err := llm.DecodeObject(stage, raw, &s); err != nil {
		e.Logger.Warn("topic expansion output rejected", zap.String("raw", raw), zap.Error(err))
		return types.TopicExpansion{}, err
	}

	exp := types.TopicExpansion{
		Original:       strings.TrimSpace(s.Original),
		Subtopics:      nonNil(s.Subtopics),
		FeedKeywords:   nonNil(*s.FeedKeywords),
		SocialKeywords: nonNil(*s.SocialKeywords),
	}
	e.Logger.Info("expanded topic",
		zap.String("topic", exp.Original),
		zap.Int("subtopics", len(exp.Subtopics)),
		zap.Int("feed_keywords", len(exp.FeedKeywords)),
		zap.Int("social_keywords", len(exp.SocialKeywords)))
	return exp, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
