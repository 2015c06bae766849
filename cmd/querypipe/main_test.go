package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/crossquery/crossquery/pkg/engine/aggregate"
	"github.com/crossquery/crossquery/pkg/engine/plan"
)

const pages = `{"partition": "0", "requestCharge": 1, "Documents": [{"groupByItems": [{"item": "red"}], "payload": {"team": "red", "members": {"item": 2}}}]}
{"partition": "1", "requestCharge": 1, "Documents": [{"groupByItems": [{"item": "red"}], "payload": {"team": "red", "members": {"item": 1}}}, {"groupByItems": [{"item": "blue"}], "payload": {"team": "blue", "members": {"item": 4}}}]}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseConfig(t *testing.T) {
	dir := t.TempDir()
	example, err := os.ReadFile("querypipe-example.yaml")
	require.NoError(t, err)
	cfgFile := writeFile(t, dir, "config.yaml", string(example))
	override := writeFile(t, dir, "override.yaml", "feed:\n  max_concurrency: 2\n")

	cfg, err := parseConfig([]string{"-config.file", cfgFile, "-config.file", override, "-engine.page-size=5"})
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Engine.PageSize, "flags override config files")
	require.Equal(t, 10000, cfg.Engine.MaxGroups)
	require.Equal(t, 2, cfg.Feed.MaxConcurrency, "later files override earlier ones")
	require.Equal(t, "info", cfg.LogLevel.String())
	require.Equal(t, aggregate.EnvironmentPartitioned, cfg.Plan.Environment)
	require.Equal(t, "group_by -> top", cfg.Plan.String())

	t.Run("unknown field", func(t *testing.T) {
		bad := writeFile(t, dir, "bad.yaml", "engine:\n  pagesize: 3\n")
		_, err := parseConfig([]string{"-config.file", bad, "-pages", "x"})
		require.Error(t, err)
	})

	t.Run("missing recording", func(t *testing.T) {
		_, err := parseConfig(nil)
		require.ErrorContains(t, err, "no recording")
	})
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	cfg, err := parseConfig([]string{"-pages", writeFile(t, dir, "pages.jsonl", pages)})
	require.NoError(t, err)
	cfg.Plan = plan.Plan{
		Environment: aggregate.EnvironmentPartitioned,
		Operators: []plan.Operator{{
			Kind:       plan.GroupBy,
			Aliases:    []string{"team", "members"},
			Aggregates: map[string]aggregate.Operator{"members": aggregate.Count},
		}},
	}

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, log.NewNopLogger(), prometheus.NewRegistry(), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.ElementsMatch(t, []string{`{"team":"red","members":3}`, `{"team":"blue","members":4}`}, lines)
}

func TestRun_Resume(t *testing.T) {
	dir := t.TempDir()
	recording := writeFile(t, dir, "pages.jsonl", pages)

	var logs bytes.Buffer
	cfg, err := parseConfig([]string{"-pages", recording, "-engine.page-size=1", "-max-pages=1"})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, log.NewLogfmtLogger(&logs), prometheus.NewRegistry(), &out))
	require.Equal(t, 1, strings.Count(out.String(), "\n"))

	// Extract the continuation token from the summary line.
	var token string
	for _, field := range strings.Fields(logs.String()) {
		if v, ok := strings.CutPrefix(field, "continuation="); ok {
			token = v
		}
	}
	require.NotEmpty(t, token)

	cfg.ContinuationToken = token
	cfg.MaxPages = 0
	require.NoError(t, run(context.Background(), cfg, log.NewNopLogger(), prometheus.NewRegistry(), &out))
	require.Equal(t, 3, strings.Count(out.String(), "\n"))
}
