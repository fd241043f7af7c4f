// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package relevance

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pdiddy/research-brief/pkg/types"
)

// TimestampLayout names audit files: scores_<ts>.json and accepted_<ts>.json.
// A second write within the same second gets scores_<ts>_2.json and so on.
const TimestampLayout = "20060102_150405"

// maxAuditSuffix bounds the search for a free file name pair.
const maxAuditSuffix = 1000

const auditContentLimit = 500

// AuditWriter persists scoring outcomes for inspection.
type AuditWriter struct {
	Dir string

	// Now defaults to time.Now; tests override it.
	Now func() time.Time
}

// AuditFiles are the paths written by one AuditWriter.Write call.
type AuditFiles struct {
	Scores   string
	Accepted string
}

type auditStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

type auditSummary struct {
	Topic           string     `json:"topic"`
	Persona         string     `json:"persona"`
	Timestamp       string     `json:"timestamp"`
	Method          string     `json:"method"`
	Threshold       float64    `json:"threshold"`
	TotalItems      int        `json:"total_items"`
	AcceptedItems   int        `json:"accepted_items"`
	AcceptanceRate  float64    `json:"acceptance_rate"`
	ScoreStats      auditStats `json:"score_stats"`
	FellBack        bool       `json:"fell_back"`
	DegradedBatches int        `json:"degraded_batches"`
}

type acceptedEntry struct {
	Title   string  `json:"title"`
	Source  string  `json:"source"`
	Link    string  `json:"link"`
	Score   float64 `json:"score"`
	Content string  `json:"content"`
}

// Write stores the outcome as two JSON files in Dir, creating it if needed.
func (a *AuditWriter) Write(topic, persona string, out Outcome) (AuditFiles, error) {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	ts := now().Format(TimestampLayout)

	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return AuditFiles{}, fmt.Errorf("creating audit directory %s: %w", a.Dir, err)
	}

	rate := 0.0
	if len(out.Records) > 0 {
		rate = round(float64(len(out.Accepted))/float64(len(out.Records))*100, 2)
	}
	summary := auditSummary{
		Topic:          topic,
		Persona:        persona,
		Timestamp:      ts,
		Method:         string(out.Mode),
		Threshold:      out.Threshold,
		TotalItems:     len(out.Records),
		AcceptedItems:  len(out.Accepted),
		AcceptanceRate: rate,
		ScoreStats: auditStats{
			Mean:   round(out.Stats.Mean, 4),
			Median: round(out.Stats.Median, 4),
			Min:    round(out.Stats.Min, 4),
			Max:    round(out.Stats.Max, 4),
		},
		FellBack:        out.FellBack,
		DegradedBatches: out.DegradedBatches,
	}

	records := make([]types.ScoreRecord, len(out.Records))
	for i, r := range out.Records {
		r.Score = round(r.Score, 4)
		records[i] = r
	}

	accepted := make([]acceptedEntry, len(out.Accepted))
	for i, item := range out.Accepted {
		accepted[i] = acceptedEntry{
			Title:   item.Title,
			Source:  item.Source,
			Link:    item.Link,
			Score:   item.Score(),
			Content: types.Truncate(item.Content(), auditContentLimit) + "...",
		}
	}

	files, err := a.reserve(ts)
	if err != nil {
		return AuditFiles{}, err
	}
	if err := writeJSON(files.Scores, struct {
		Summary   auditSummary        `json:"summary"`
		AllScores []types.ScoreRecord `json:"all_scores"`
	}{summary, records}); err != nil {
		return AuditFiles{}, err
	}
	if err := writeJSON(files.Accepted, struct {
		Summary auditSummary    `json:"summary"`
		Items   []acceptedEntry `json:"items"`
	}{summary, accepted}); err != nil {
		return AuditFiles{}, err
	}
	return files, nil
}

// reserve creates an empty scores and accepted file pair named after ts,
// adding a numeric suffix when an earlier run already used the name. Files
// are created exclusively so concurrent writers never share a pair.
func (a *AuditWriter) reserve(ts string) (AuditFiles, error) {
	for n := 1; n <= maxAuditSuffix; n++ {
		stem := ts
		if n > 1 {
			stem = fmt.Sprintf("%s_%d", ts, n)
		}
		files := AuditFiles{
			Scores:   filepath.Join(a.Dir, "scores_"+stem+".json"),
			Accepted: filepath.Join(a.Dir, "accepted_"+stem+".json"),
		}
		ok, err := createExclusive(files.Scores)
		if err != nil {
			return AuditFiles{}, err
		}
		if !ok {
			continue
		}
		ok, err = createExclusive(files.Accepted)
		if err != nil || !ok {
			os.Remove(files.Scores)
			if err != nil {
				return AuditFiles{}, err
			}
			continue
		}
		return files, nil
	}
	return AuditFiles{}, fmt.Errorf("no free audit file name for %s in %s", ts, a.Dir)
}

// createExclusive creates an empty file at path. It reports false when the
// file already exists.
func createExclusive(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("creating %s: %w", path, err)
	}
	return true, f.Close()
}

func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
