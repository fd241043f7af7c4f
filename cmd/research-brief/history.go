// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-brief/internal/ledger"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs from the run ledger",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().String("output-dir", "", "directory holding runs.db (default from config)")
	historyCmd.Flags().IntP("limit", "n", 10, "number of runs to list")
	historyCmd.Flags().Bool("stages", false, "include per-stage acquisition counts")
	historyCmd.Flags().Bool("json", false, "print runs as JSON")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("output-dir"); v != "" {
		cfg.OutputDir = v
	}
	n, _ := cmd.Flags().GetInt("limit")
	withStages, _ := cmd.Flags().GetBool("stages")
	asJSON, _ := cmd.Flags().GetBool("json")

	l, err := ledger.Open(cfg.OutputDir)
	if err != nil {
		return err
	}
	defer l.Close()

	runs, err := l.Recent(context.Background(), n)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}
	return printRuns(os.Stdout, runs, withStages)
}

func printRuns(w io.Writer, runs []ledger.Run, withStages bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tTOPIC\tBUDGET\tACQUIRED\tACCEPTED\tMETHOD\tDURATION\tSTATUS")
	for _, r := range runs {
		budget := "unlimited"
		if r.BudgetLimit > 0 {
			budget = fmt.Sprint(r.BudgetLimit)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"), r.Topic, budget,
			r.ItemsAcquired, r.ItemsAccepted, r.Method, r.Duration().Round(time.Second), runStatus(r))
		if withStages {
			for _, s := range r.Stages {
				state := fmt.Sprintf("%d fetched, %d kept", s.Fetched, s.Kept)
				if s.Failed > 0 {
					state += fmt.Sprintf(", %d failed", s.Failed)
				}
				switch {
				case s.Skipped:
					state = "skipped"
				case s.Error != "":
					state = "failed: " + s.Error
				}
				fmt.Fprintf(tw, "\t  %s\t\t\t\t\t\t%s\n", s.Stage, state)
			}
		}
	}
	return tw.Flush()
}

func runStatus(r ledger.Run) string {
	switch {
	case r.Error != "":
		return "failed"
	case r.FellBack:
		return "degraded (fell back)"
	case r.Degraded:
		return "degraded"
	}
	return "ok"
}
