package batch

import (
	"context"
	"encoding/hex"
	"log/slog"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/lexstat/internal/events"
	"github.com/mattjoyce/lexstat/internal/log"
	"github.com/mattjoyce/lexstat/internal/sink"
	"github.com/mattjoyce/lexstat/internal/stats"
)

// Runner wraps the Dispatcher with run bookkeeping: each call gets a batch_run
// row, lifecycle events on the hub, and per-folder text hashes attached to the
// recorded results. The dispatch pass itself stays fail-fast and sequential.
type Runner struct {
	store    *sink.Store
	hub      *events.Hub
	source   TextSource
	executor CommandExecutor
	logger   *slog.Logger
}

// NewRunner creates a Runner. hub may be nil to disable event publication.
func NewRunner(store *sink.Store, hub *events.Hub, source TextSource, executor CommandExecutor) *Runner {
	return &Runner{
		store:    store,
		hub:      hub,
		source:   source,
		executor: executor,
		logger:   log.WithComponent("runner"),
	}
}

// Run executes one full batch and returns its run ID. The run row is marked
// failed and the dispatch error returned if any (folder, command) pair fails.
func (r *Runner) Run(ctx context.Context, folders []string, commands []stats.CommandType, submittedBy string) (string, error) {
	runID, err := r.store.CreateRun(ctx, folders, commands, submittedBy)
	if err != nil {
		return "", err
	}

	runLogger := log.WithRun(runID)
	runLogger.Info("batch run started", "folders", len(folders), "commands", len(commands))
	r.publish(events.TypeRunStarted, events.RunPayload{
		RunID:    runID,
		Folders:  folders,
		Commands: commandNames(commands),
	})

	hs := newHashingSource(r.source)
	recorder := sink.NewFanout(sink.NewRunSink(r.store, runID, hs.HashFor), r.hub, runID)
	d := New(hs, r.executor, recorder)

	if err := d.ProcessAllFolders(ctx, folders, commands); err != nil {
		msg := err.Error()
		if cerr := r.store.CompleteRun(ctx, runID, sink.RunFailed, &msg); cerr != nil {
			runLogger.Error("failed to mark run failed", "error", cerr)
		}
		runLogger.Error("batch run failed", "error", err)
		r.publish(events.TypeRunFailed, events.RunPayload{
			RunID:  runID,
			Status: string(sink.RunFailed),
			Error:  msg,
		})
		return runID, err
	}

	if err := r.store.CompleteRun(ctx, runID, sink.RunSucceeded, nil); err != nil {
		runLogger.Error("failed to mark run succeeded", "error", err)
		return runID, err
	}
	runLogger.Info("batch run completed")
	r.publish(events.TypeRunCompleted, events.RunPayload{
		RunID:  runID,
		Status: string(sink.RunSucceeded),
	})
	return runID, nil
}

func (r *Runner) publish(eventType string, payload events.RunPayload) {
	if r.hub != nil {
		r.hub.Publish(eventType, payload)
	}
}

func commandNames(commands []stats.CommandType) []string {
	names := make([]string, 0, len(commands))
	for _, c := range commands {
		names = append(names, string(c))
	}
	return names
}

// hashingSource passes resolution through to the wrapped source and remembers
// a BLAKE3 hash of each folder's text for result provenance.
type hashingSource struct {
	src TextSource

	mu     sync.Mutex
	hashes map[string]string
}

func newHashingSource(src TextSource) *hashingSource {
	return &hashingSource{src: src, hashes: make(map[string]string)}
}

func (h *hashingSource) Resolve(ctx context.Context, folder string) (string, error) {
	text, err := h.src.Resolve(ctx, folder)
	if err != nil {
		return "", err
	}

	sum := blake3.Sum256([]byte(text))
	h.mu.Lock()
	h.hashes[folder] = hex.EncodeToString(sum[:])
	h.mu.Unlock()
	return text, nil
}

// HashFor returns the hash of the folder's most recently resolved text, or ""
// if the folder has not been resolved yet.
func (h *hashingSource) HashFor(folder string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hashes[folder]
}
