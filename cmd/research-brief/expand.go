// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-brief/internal/brief"
	"github.com/pdiddy/research-brief/internal/metrics"
)

var expandCmd = &cobra.Command{
	Use:   "expand <topic>",
	Short: "Expand a topic into subtopics and search keywords",
	Long: `Expand runs only the topic expansion stage and prints the resulting
expansion as JSON. Malformed model output is reported as a schema error.`,
	Args: cobra.ExactArgs(1),
	RunE: runExpand,
}

var sourcesCmd = &cobra.Command{
	Use:   "sources <topic>",
	Short: "Expand a topic and print the discovered sources",
	Long: `Sources runs topic expansion and source discovery and prints the source
set as JSON: feeds, social queries, websites, and communities.`,
	Args: cobra.ExactArgs(1),
	RunE: runSources,
}

func init() {
	addPersonaFlags(expandCmd)
	addPersonaFlags(sourcesCmd)
	sourcesCmd.Flags().String("provider", "", "generative provider: claude or gemini")
	expandCmd.Flags().String("provider", "", "generative provider: claude or gemini")

	rootCmd.AddCommand(expandCmd)
	rootCmd.AddCommand(sourcesCmd)
}

// stageRunner builds a Runner with only the generator wired, for the
// single-stage subcommands.
func stageRunner(ctx context.Context, cmd *cobra.Command) (*brief.Runner, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("provider"); v != "" {
		cfg.AI.Provider = v
	}
	gen, err := newGenerator(ctx, cfg.AI, cfg.Acquisition.HTTPConfig)
	if err != nil {
		return nil, err
	}
	return brief.New(gen, nil, nil, nil, cfg, nil, logger, metrics.New(), os.Stderr), nil
}

func runExpand(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	persona, err := personaFromFlags(cmd)
	if err != nil {
		return err
	}
	r, err := stageRunner(ctx, cmd)
	if err != nil {
		return err
	}
	exp, err := r.Expand(ctx, args[0], persona)
	if err != nil {
		return err
	}
	return printJSON(exp)
}

func runSources(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	persona, err := personaFromFlags(cmd)
	if err != nil {
		return err
	}
	r, err := stageRunner(ctx, cmd)
	if err != nil {
		return err
	}
	_, sources, err := r.Sources(ctx, args[0], persona)
	if err != nil {
		return err
	}
	return printJSON(sources)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
