// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package brief wires the pipeline stages into one run: topic expansion,
// source discovery, budgeted acquisition, relevance scoring, and theme
// clustering. Every run is recorded in the ledger, failed runs included.
package brief

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-brief/internal/acquire"
	"github.com/pdiddy/research-brief/internal/cluster"
	"github.com/pdiddy/research-brief/internal/discover"
	"github.com/pdiddy/research-brief/internal/embedding"
	"github.com/pdiddy/research-brief/internal/expand"
	"github.com/pdiddy/research-brief/internal/ledger"
	"github.com/pdiddy/research-brief/internal/llm"
	"github.com/pdiddy/research-brief/internal/metrics"
	"github.com/pdiddy/research-brief/internal/relevance"
	"github.com/pdiddy/research-brief/pkg/types"
)

// Output locations under Config.OutputDir.
const (
	RelevanceDir = "relevance"
	ClusterFile  = "clusters.yaml"
)

// Recorder stores run summaries. *ledger.Ledger implements it.
type Recorder interface {
	Record(ctx context.Context, run ledger.Run) (string, error)
}

// Options are the per-run knobs the CLI exposes.
type Options struct {
	// Budget is the acquisition budget parameter (see types.NewBudget).
	Budget    int
	Mode      types.ScoringMode
	Threshold float64
}

// DefaultOptions returns the options implied by cfg.
func DefaultOptions(cfg types.PipelineConfig) Options {
	return Options{
		Budget:    cfg.Acquisition.Budget,
		Mode:      cfg.Relevance.Mode,
		Threshold: cfg.Relevance.Threshold,
	}
}

// Report is everything one run produced.
type Report struct {
	RunID       string
	Topic       string
	Expansion   types.TopicExpansion
	Sources     types.SourceSet
	Acquisition acquire.Result
	Scoring     relevance.Outcome
	Clusters    cluster.Result
	Audit       relevance.AuditFiles
	ClusterFile string

	// Degraded is true when a stage erred or lost a feed or social query,
	// when an embedding batch was replaced by zero vectors, or when relevance
	// scoring fell back to generative mode.
	Degraded bool

	Duration time.Duration
}

// Runner holds the long-lived collaborators of the pipeline. Stage
// components are built per run because they carry the persona.
type Runner struct {
	Generator llm.Generator
	Embedder  embedding.Embedder
	Feeds     acquire.FeedSource
	Social    acquire.SocialSource
	Config    types.PipelineConfig

	// Ledger may be nil, in which case runs are not recorded.
	Ledger Recorder

	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Out     io.Writer

	now func() time.Time
}

// New returns a Runner. A nil logger discards log output and a nil w
// discards progress output.
func New(gen llm.Generator, emb embedding.Embedder, feeds acquire.FeedSource, social acquire.SocialSource,
	cfg types.PipelineConfig, rec Recorder, logger *zap.Logger, m *metrics.Metrics, w io.Writer) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if w == nil {
		w = io.Discard
	}
	return &Runner{
		Generator: gen,
		Embedder:  emb,
		Feeds:     feeds,
		Social:    social,
		Config:    cfg,
		Ledger:    rec,
		Logger:    logger,
		Metrics:   m,
		Out:       w,
		now:       time.Now,
	}
}

// Expand runs only the topic expansion stage.
func (r *Runner) Expand(ctx context.Context, topic string, persona types.PersonaContext) (types.TopicExpansion, error) {
	return expand.New(r.Generator, persona.Persona, r.Logger).Expand(ctx, topic)
}

// Sources runs topic expansion and source discovery.
func (r *Runner) Sources(ctx context.Context, topic string, persona types.PersonaContext) (types.TopicExpansion, types.SourceSet, error) {
	exp, err := r.Expand(ctx, topic, persona)
	if err != nil {
		return types.TopicExpansion{}, types.SourceSet{}, err
	}
	sources := discover.New(r.Generator, r.Config.Discovery, r.Logger).Discover(ctx, exp, persona)
	return exp, sources, nil
}

// Run executes the full pipeline for topic. Only expansion failures, invalid
// scoring options, and output write failures end a run early; every other
// stage degrades in place. The run is recorded in the ledger either way.
func (r *Runner) Run(ctx context.Context, topic string, persona types.PersonaContext, opts Options) (Report, error) {
	start := r.now()
	rep := Report{Topic: topic}

	err := r.run(ctx, topic, persona, opts, &rep)
	rep.Duration = r.now().Sub(start)
	r.Metrics.ObserveRun(rep.Duration.Seconds())

	rep.RunID = r.record(ctx, start, opts, rep, err)
	if r.Config.MetricsFile != "" {
		if werr := r.Metrics.WriteTextfile(r.Config.MetricsFile); werr != nil {
			r.Logger.Warn("writing metrics textfile failed", zap.String("path", r.Config.MetricsFile), zap.Error(werr))
		}
	}
	return rep, err
}

func (r *Runner) run(ctx context.Context, topic string, persona types.PersonaContext, opts Options, rep *Report) error {
	exp, sources, err := r.Sources(ctx, topic, persona)
	if err != nil {
		return fmt.Errorf("brief: expanding topic: %w", err)
	}
	rep.Expansion = exp
	rep.Sources = sources
	fmt.Fprintf(r.Out, "Topic: %s (%d feeds, %d social queries, %d websites)\n",
		exp.Original, len(sources.Feeds), len(sources.SocialQueries), len(sources.Websites))

	coord := acquire.New(r.Feeds, r.Social, r.Config.Acquisition, r.Logger, r.Metrics, r.Out)
	rep.Acquisition = coord.Acquire(ctx, exp, sources, opts.Budget)

	filter := relevance.New(r.Embedder, r.Generator, persona, r.Config.Relevance, r.Logger, r.Metrics)
	out, err := filter.Score(ctx, exp.Original, rep.Acquisition.Items, opts.Mode, opts.Threshold)
	if err != nil {
		return fmt.Errorf("brief: scoring relevance: %w", err)
	}
	rep.Scoring = out
	rep.Degraded = rep.Acquisition.HasFailures() || out.FellBack || out.DegradedBatches > 0
	fmt.Fprintf(r.Out, "Relevance: %d of %d accepted (method: %s, threshold: %.2f)\n",
		len(out.Accepted), len(out.Records), out.Mode, out.Threshold)

	rep.Clusters = cluster.New(r.Generator, r.Config.Clustering, r.Logger).Cluster(ctx, exp.Original, out.Accepted)

	outDir := r.Config.OutputDir
	if outDir == "" {
		outDir = types.DefaultConfig().OutputDir
	}
	auditDir := r.Config.Relevance.AuditDir
	if auditDir == "" {
		auditDir = filepath.Join(outDir, RelevanceDir)
	}
	audit := &relevance.AuditWriter{Dir: auditDir, Now: r.now}
	rep.Audit, err = audit.Write(exp.Original, persona.Persona, out)
	if err != nil {
		return fmt.Errorf("brief: writing relevance audit: %w", err)
	}

	rep.ClusterFile = filepath.Join(outDir, ClusterFile)
	if err := cluster.WriteResult(rep.ClusterFile, rep.Clusters); err != nil {
		return fmt.Errorf("brief: writing clusters: %w", err)
	}
	fmt.Fprintf(r.Out, "Themes: %d, key facts: %d -> %s\n", len(rep.Clusters.Themes), len(rep.Clusters.KeyFacts), rep.ClusterFile)
	return nil
}

// record stores the run summary and returns its id, or "" when there is no
// ledger or the write failed. A ledger failure never fails the run.
func (r *Runner) record(ctx context.Context, start time.Time, opts Options, rep Report, runErr error) string {
	if r.Ledger == nil {
		return ""
	}
	run := ledger.Run{
		Topic:         rep.Topic,
		StartedAt:     start,
		FinishedAt:    start.Add(rep.Duration),
		ItemsAcquired: rep.Acquisition.Total(),
		ItemsScored:   len(rep.Scoring.Records),
		ItemsAccepted: len(rep.Scoring.Accepted),
		Method:        string(rep.Scoring.Mode),
		FellBack:      rep.Scoring.FellBack,
		Degraded:      rep.Degraded,
	}
	if b := types.NewBudget(opts.Budget); !b.Unlimited() {
		run.BudgetLimit = *b.Limit
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	for _, s := range rep.Acquisition.Stages {
		sr := ledger.StageRecord{Stage: s.Stage, Fetched: s.Fetched, Kept: s.Kept, Failed: s.Failed, Skipped: s.Skipped}
		if s.Err != nil {
			sr.Error = s.Err.Error()
		}
		run.Stages = append(run.Stages, sr)
	}

	// The run context may already be cancelled; the summary is still worth keeping.
	id, err := r.Ledger.Record(context.WithoutCancel(ctx), run)
	if err != nil {
		r.Logger.Warn("recording run failed", zap.Error(err))
		return ""
	}
	return id
}
