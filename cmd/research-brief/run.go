// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/research-brief/internal/brief"
	"github.com/pdiddy/research-brief/internal/feed"
	"github.com/pdiddy/research-brief/internal/ledger"
	"github.com/pdiddy/research-brief/internal/metrics"
	"github.com/pdiddy/research-brief/internal/secrets"
	"github.com/pdiddy/research-brief/internal/social"
	"github.com/pdiddy/research-brief/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run <topic>",
	Short: "Run the full pipeline for a topic",
	Long: `Run expands the topic, discovers sources, acquires content under the
budget, scores it for relevance, and clusters the accepted items into themes.

Audit files go to <output-dir>/relevance, the cluster result to
<output-dir>/clusters.yaml, and a run summary to <output-dir>/runs.db.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.Int("budget", 0, "global item budget (0 or >= 1000 means unlimited; default from config)")
	f.Float64("threshold", -1, "relevance threshold in [0, 1] (default from config)")
	f.String("mode", "", "relevance scoring mode: vector or generative (default from config)")
	addPersonaFlags(runCmd)
	f.String("output-dir", "", "directory for audit files, clusters, and the run ledger")
	f.StringSlice("feed", nil, "additional base feed URL (repeatable)")
	f.StringSlice("social", nil, "additional base social query (repeatable)")
	f.String("provider", "", "generative provider: claude or gemini")
	f.String("embedder", "", "embedding provider: openai or gemini")
	f.String("redis-addr", "", "Redis address for the shared embedding cache")
	f.String("metrics-file", "", "write Prometheus metrics to this textfile after the run")
	f.Bool("json", false, "print the run report as JSON")

	rootCmd.AddCommand(runCmd)
}

func addPersonaFlags(cmd *cobra.Command) {
	cmd.Flags().String("persona", "", "reader persona name")
	cmd.Flags().String("persona-file", "", "YAML file with persona, interests, and preferences")
}

func personaFromFlags(cmd *cobra.Command) (types.PersonaContext, error) {
	name, _ := cmd.Flags().GetString("persona")
	path, _ := cmd.Flags().GetString("persona-file")
	return loadPersona(path, name)
}

// runConfig applies run flags over the loaded configuration.
func runConfig(cmd *cobra.Command) (types.PipelineConfig, brief.Options, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, brief.Options{}, err
	}
	f := cmd.Flags()

	if v, _ := f.GetString("output-dir"); v != "" {
		cfg.OutputDir = v
	}
	if v, _ := f.GetStringSlice("feed"); len(v) > 0 {
		cfg.Discovery.BaseFeeds = append(cfg.Discovery.BaseFeeds, v...)
	}
	if v, _ := f.GetStringSlice("social"); len(v) > 0 {
		cfg.Discovery.BaseSocial = append(cfg.Discovery.BaseSocial, v...)
	}
	if v, _ := f.GetString("provider"); v != "" {
		cfg.AI.Provider = v
	}
	if v, _ := f.GetString("embedder"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v, _ := f.GetString("redis-addr"); v != "" {
		cfg.Embedding.RedisAddr = v
	}
	if v, _ := f.GetString("metrics-file"); v != "" {
		cfg.MetricsFile = v
	}

	opts := brief.DefaultOptions(cfg)
	if f.Changed("budget") {
		opts.Budget, _ = f.GetInt("budget")
	}
	if f.Changed("threshold") {
		opts.Threshold, _ = f.GetFloat64("threshold")
	}
	if v, _ := f.GetString("mode"); v != "" {
		opts.Mode = types.ScoringMode(v)
	}
	if !opts.Mode.Valid() {
		return cfg, opts, fmt.Errorf("invalid --mode %q (want vector or generative)", opts.Mode)
	}
	return cfg, opts, nil
}

// newRunner assembles a Runner from cfg. The returned cleanup releases the
// ledger and cache connections.
func newRunner(ctx context.Context, cfg types.PipelineConfig, m *metrics.Metrics, w io.Writer, withLedger bool) (*brief.Runner, func(), error) {
	gen, err := newGenerator(ctx, cfg.AI, cfg.Acquisition.HTTPConfig)
	if err != nil {
		return nil, nil, err
	}
	emb, res, err := newEmbedder(ctx, cfg.Embedding)
	if err != nil {
		return nil, nil, err
	}

	var rec brief.Recorder
	var l *ledger.Ledger
	if withLedger {
		l, err = ledger.Open(cfg.OutputDir)
		if err != nil {
			res.Close()
			return nil, nil, err
		}
		rec = l
	}

	token := secretDefault(secrets.SocialBearerToken, cfg.Acquisition.SocialBearerToken)
	feeds := feed.New(cfg.Acquisition.HTTPConfig, logger, m)
	posts := social.New(token, cfg.Acquisition.HTTPConfig, cfg.Acquisition.SocialRequestsPerSecond, logger)

	cleanup := func() {
		if l != nil {
			l.Close()
		}
		res.Close()
	}
	return brief.New(gen, emb, feeds, posts, cfg, rec, logger, m, w), cleanup, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, opts, err := runConfig(cmd)
	if err != nil {
		return err
	}
	persona, err := personaFromFlags(cmd)
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var progress io.Writer = os.Stdout
	if asJSON {
		progress = os.Stderr
	}
	runner, cleanup, err := newRunner(ctx, cfg, metrics.New(), progress, true)
	if err != nil {
		return err
	}
	defer cleanup()

	rep, err := runner.Run(ctx, args[0], persona, opts)
	if err != nil {
		return err
	}
	if rep.Degraded {
		logger.Warn("run completed in degraded mode",
			zap.Bool("stage_failures", rep.Acquisition.HasFailures()),
			zap.Int("failed_sources", rep.Acquisition.FailedSources()),
			zap.Bool("fell_back", rep.Scoring.FellBack),
			zap.Int("degraded_batches", rep.Scoring.DegradedBatches))
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reportJSON(rep))
	}
	printReport(os.Stdout, rep)
	return nil
}

type runReportJSON struct {
	RunID       string               `json:"run_id,omitempty"`
	Topic       string               `json:"topic"`
	Expansion   types.TopicExpansion `json:"expansion"`
	Sources     types.SourceSet      `json:"sources"`
	Acquired    int                  `json:"items_acquired"`
	Failed      int                  `json:"failed_sources"`
	Accepted    int                  `json:"items_accepted"`
	Method      types.ScoringMode    `json:"method"`
	FellBack    bool                 `json:"fell_back"`
	Degraded    bool                 `json:"degraded"`
	Themes      []themeJSON          `json:"themes"`
	KeyFacts    []string             `json:"key_facts"`
	ScoresFile  string               `json:"scores_file"`
	ClusterFile string               `json:"cluster_file"`
	Seconds     float64              `json:"duration_seconds"`
}

type themeJSON struct {
	Name  string `json:"name"`
	Items int    `json:"items"`
}

func reportJSON(rep brief.Report) runReportJSON {
	out := runReportJSON{
		RunID:       rep.RunID,
		Topic:       rep.Topic,
		Expansion:   rep.Expansion,
		Sources:     rep.Sources,
		Acquired:    rep.Acquisition.Total(),
		Failed:      rep.Acquisition.FailedSources(),
		Accepted:    len(rep.Scoring.Accepted),
		Method:      rep.Scoring.Mode,
		FellBack:    rep.Scoring.FellBack,
		Degraded:    rep.Degraded,
		KeyFacts:    rep.Clusters.KeyFacts,
		ScoresFile:  rep.Audit.Scores,
		ClusterFile: rep.ClusterFile,
		Seconds:     rep.Duration.Seconds(),
	}
	for _, th := range rep.Clusters.Themes {
		out.Themes = append(out.Themes, themeJSON{Name: th.Name, Items: len(th.Members)})
	}
	return out
}

func printReport(w io.Writer, rep brief.Report) {
	fmt.Fprintf(w, "\nRun %s: %d acquired, %d accepted in %s\n",
		rep.RunID, rep.Acquisition.Total(), len(rep.Scoring.Accepted), rep.Duration.Round(time.Millisecond))
	if n := rep.Acquisition.FailedSources(); n > 0 {
		fmt.Fprintf(w, "  %d feed(s) or social queries failed\n", n)
	}
	for _, th := range rep.Clusters.Themes {
		fmt.Fprintf(w, "  %-40s %d items\n", th.Name, len(th.Members))
	}
	if len(rep.Clusters.KeyFacts) > 0 {
		fmt.Fprintln(w, "\nKey facts:")
		for _, f := range rep.Clusters.KeyFacts {
			fmt.Fprintf(w, "  - %s\n", f)
		}
	}
}
