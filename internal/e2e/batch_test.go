// Package e2e exercises the full batch pipeline: filesystem corpus, config
// load, dispatch, sqlite persistence, and event publication.
package e2e

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/lexstat/internal/batch"
	"github.com/mattjoyce/lexstat/internal/config"
	"github.com/mattjoyce/lexstat/internal/events"
	"github.com/mattjoyce/lexstat/internal/log"
	"github.com/mattjoyce/lexstat/internal/sink"
	"github.com/mattjoyce/lexstat/internal/stats"
	"github.com/mattjoyce/lexstat/internal/storage"
	"github.com/mattjoyce/lexstat/internal/textsource"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

func writeCorpus(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	folders := map[string]map[string]string{
		"essays": {
			"01-intro.txt": "The quick brown fox jumps over the lazy dog.",
			"02-body.txt":  "Short lines. More short lines.",
		},
		"notes": {
			"todo.txt": "one two three",
		},
	}
	for folder, files := range folders {
		dir := filepath.Join(base, folder)
		require.NoError(t, os.Mkdir(dir, 0o755))
		for name, content := range files {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
		}
	}
	return base
}

func TestBatchPipelineAgainstFilesystem(t *testing.T) {
	base := writeCorpus(t)
	dir := t.TempDir()

	configPath := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`
service:
  log_level: error
sources:
  mode: fs
  base_dir: %s
  folders: [essays, notes]
commands: [count, wordfreq]
state:
  path: %s
`, base, filepath.Join(dir, "state.db"))
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := config.Load(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	source, err := textsource.NewFS(cfg.Sources.BaseDir)
	require.NoError(t, err)

	commands, err := stats.ParseCommandTypes(cfg.Commands)
	require.NoError(t, err)

	store := sink.NewStore(db)
	hub := events.NewHub(64)
	runner := batch.NewRunner(store, hub, source, stats.NewBuiltinExecutor())

	runID, err := runner.Run(ctx, cfg.Sources.Folders, commands, "e2e")
	require.NoError(t, err)

	// The run row reflects a completed batch.
	run, err := store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, sink.RunSucceeded, run.Status)
	assert.Equal(t, []string{"essays", "notes"}, run.Folders)
	require.NotNil(t, run.CompletedAt)

	// Results came back folder-major, command-minor, with provenance hashes.
	results, err := store.ResultsByRun(ctx, runID)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	var order []string
	hashes := make(map[string]string)
	for _, res := range results {
		key := res.Folder + "/" + res.Command
		if len(order) == 0 || order[len(order)-1] != key {
			order = append(order, key)
		}
		require.Len(t, res.TextHash, 64)
		if prev, ok := hashes[res.Folder]; ok {
			assert.Equal(t, prev, res.TextHash)
		}
		hashes[res.Folder] = res.TextHash
	}
	assert.Equal(t, []string{
		"essays/count", "essays/wordfreq",
		"notes/count", "notes/wordfreq",
	}, order)
	assert.NotEqual(t, hashes["essays"], hashes["notes"])

	// The two essay files are concatenated before counting: one line each.
	essayCount, err := store.ResultsByFolder(ctx, "essays", 10)
	require.NoError(t, err)
	found := false
	for _, res := range essayCount {
		if res.Command == "count" && res.Result == "lines: 2" {
			found = true
		}
	}
	assert.True(t, found, "expected 'lines: 2' for essays, got %+v", essayCount)

	// Lifecycle events were published in order.
	evs := hub.SnapshotSince(0)
	require.NotEmpty(t, evs)
	assert.Equal(t, events.TypeRunStarted, evs[0].Type)
	assert.Equal(t, events.TypeRunCompleted, evs[len(evs)-1].Type)
}

func TestBatchPipelineFailsFastOnMissingFolder(t *testing.T) {
	base := writeCorpus(t)
	dir := t.TempDir()

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	source, err := textsource.NewFS(base)
	require.NoError(t, err)

	store := sink.NewStore(db)
	runner := batch.NewRunner(store, nil, source, stats.NewBuiltinExecutor())

	runID, err := runner.Run(ctx, []string{"essays", "ghost", "notes"}, []stats.CommandType{stats.CommandCount}, "e2e")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")

	run, gerr := store.GetRun(ctx, runID)
	require.NoError(t, gerr)
	assert.Equal(t, sink.RunFailed, run.Status)
	require.NotNil(t, run.LastError)

	// Work before the failure is preserved; nothing after it ran.
	results, rerr := store.ResultsByRun(ctx, runID)
	require.NoError(t, rerr)
	for _, res := range results {
		assert.Equal(t, "essays", res.Folder)
	}
	require.NotEmpty(t, results)
}
