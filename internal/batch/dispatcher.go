// Package batch drives full (folder x command) passes to completion.
package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/lexstat/internal/log"
	"github.com/mattjoyce/lexstat/internal/stats"
)

// Dispatcher executes one batch pass: for each folder, resolve its text once,
// then run every command against it and hand the results to the sink.
//
// Processing is strictly sequential, folder-major then command-minor, in input
// order. Duplicate entries in either list are processed again, not deduplicated.
type Dispatcher struct {
	source   TextSource
	executor CommandExecutor
	sink     ResultsSink
	logger   *slog.Logger
}

// New creates a Dispatcher over the three injected collaborators.
func New(source TextSource, executor CommandExecutor, sink ResultsSink) *Dispatcher {
	return &Dispatcher{
		source:   source,
		executor: executor,
		sink:     sink,
		logger:   log.WithComponent("batch"),
	}
}

// ProcessAllFolders runs every command against every folder and returns once
// all results have been delivered to the sink.
//
// The first collaborator error aborts the remaining batch and propagates to
// the caller, wrapped with the folder/command in flight. Nothing recorded so
// far is rolled back.
func (d *Dispatcher) ProcessAllFolders(ctx context.Context, folders []string, commands []stats.CommandType) error {
	for _, folder := range folders {
		text, err := d.source.Resolve(ctx, folder)
		if err != nil {
			return fmt.Errorf("resolve folder %q: %w", folder, err)
		}
		d.logger.Debug("folder text resolved", "folder", folder, "bytes", len(text))

		for _, cmd := range commands {
			results, err := d.executor.Execute(ctx, cmd, text)
			if err != nil {
				return fmt.Errorf("execute %s against folder %q: %w", cmd, folder, err)
			}

			if err := d.sink.Record(ctx, folder, cmd, results); err != nil {
				return fmt.Errorf("record %s results for folder %q: %w", cmd, folder, err)
			}
			d.logger.Debug("results recorded", "folder", folder, "command", cmd, "count", len(results))
		}
	}
	return nil
}
