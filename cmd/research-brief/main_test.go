// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-brief/internal/ledger"
	"github.com/pdiddy/research-brief/pkg/types"
)

func TestLoadPersona(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`persona: investor
interests:
  - batteries
  - grid
preferences:
  region: EU
`), 0o644))

	p, err := loadPersona(path, "")
	require.NoError(t, err)
	assert.Equal(t, types.PersonaContext{
		Persona:     "investor",
		Interests:   []string{"batteries", "grid"},
		Preferences: map[string]string{"region": "EU"},
	}, p)

	p, err = loadPersona(path, "engineer")
	require.NoError(t, err)
	assert.Equal(t, "engineer", p.Persona, "flag overrides the file")

	p, err = loadPersona("", "analyst")
	require.NoError(t, err)
	assert.Equal(t, types.PersonaContext{Persona: "analyst"}, p)

	_, err = loadPersona(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)
}

func TestPublishedDate(t *testing.T) {
	assert.Equal(t, "2026-03-02", publishedDate("Mon, 02 Mar 2026 10:00:00 +0000"))
	assert.Equal(t, "2026-03-02", publishedDate("2026-03-02T10:00:00Z"))
	assert.Equal(t, "-", publishedDate(""))
	assert.Equal(t, "yesterday", publishedDate("yesterday"))
}

func TestPrintRuns(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	runs := []ledger.Run{
		{
			Topic: "grid storage", StartedAt: start, FinishedAt: start.Add(90 * time.Second),
			BudgetLimit: 50, ItemsAcquired: 50, ItemsAccepted: 9, Method: "vector",
			Stages: []ledger.StageRecord{
				{Stage: "primary_feeds", Fetched: 60, Kept: 50},
				{Stage: "topic_feeds", Fetched: 4, Kept: 0, Failed: 2},
				{Stage: "websites", Skipped: true},
				{Stage: "social", Error: "boom"},
			},
		},
		{Topic: "fusion", StartedAt: start, FinishedAt: start, Error: "brief: expanding topic: x"},
	}

	var buf bytes.Buffer
	require.NoError(t, printRuns(&buf, runs, true))
	out := buf.String()
	assert.Contains(t, out, "grid storage")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "60 fetched, 50 kept\n")
	assert.Contains(t, out, "4 fetched, 0 kept, 2 failed")
	assert.Contains(t, out, "skipped")
	assert.Contains(t, out, "failed: boom")
	assert.Contains(t, out, "unlimited")
	assert.Contains(t, out, "failed")
}

func TestRunStatus(t *testing.T) {
	assert.Equal(t, "ok", runStatus(ledger.Run{}))
	assert.Equal(t, "degraded", runStatus(ledger.Run{Degraded: true}))
	assert.Equal(t, "degraded (fell back)", runStatus(ledger.Run{Degraded: true, FellBack: true}))
	assert.Equal(t, "failed", runStatus(ledger.Run{Error: "x", FellBack: true}))
}

func TestReadVersionInfo(t *testing.T) {
	stamped := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			GoVersion: "go1.25.6",
			Main:      debug.Module{Path: "github.com/pdiddy/research-brief", Version: "v0.4.1"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "0123456789abcdef0123"},
				{Key: "vcs.time", Value: "2026-10-01T08:00:00Z"},
				{Key: "vcs.modified", Value: "true"},
			},
		}, true
	}

	info := readVersionInfo(stamped)
	assert.Equal(t, "v0.4.1", info.Version, "module version replaces the dev default")
	assert.Equal(t, "go1.25.6", info.GoVersion)
	assert.True(t, info.Modified)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)

	var buf bytes.Buffer
	printVersion(&buf, info)
	out := buf.String()
	assert.Contains(t, out, "research-brief v0.4.1\n")
	assert.Contains(t, out, "commit:   0123456789ab (modified)")
	assert.Contains(t, out, "built:    2026-10-01T08:00:00Z")

	bare := readVersionInfo(func() (*debug.BuildInfo, bool) { return nil, false })
	assert.Equal(t, version, bare.Version)
	assert.Empty(t, bare.Revision)
	assert.Equal(t, runtime.Version(), bare.GoVersion)
}

func TestVersionCommandJSON(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	t.Cleanup(func() { versionCmd.SetOut(nil) })
	require.NoError(t, versionCmd.Flags().Set("json", "true"))
	t.Cleanup(func() { versionCmd.Flags().Set("json", "false") })

	require.NoError(t, versionCmd.RunE(versionCmd, nil))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.NotEmpty(t, got["version"])
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, got["platform"])
	assert.NotEmpty(t, got["go_version"])
}
