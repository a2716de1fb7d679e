package sink

import (
	"context"

	"github.com/mattjoyce/lexstat/internal/events"
	"github.com/mattjoyce/lexstat/internal/stats"
)

// Recorder accepts one (folder, command) result sequence.
type Recorder interface {
	Record(ctx context.Context, folder string, cmd stats.CommandType, results []string) error
}

// RunSink scopes Store writes to a single batch run. textHash, when non-nil,
// supplies the hash of the folder's source text for provenance.
type RunSink struct {
	store    *Store
	runID    string
	textHash func(folder string) string
}

func NewRunSink(store *Store, runID string, textHash func(folder string) string) *RunSink {
	return &RunSink{store: store, runID: runID, textHash: textHash}
}

func (s *RunSink) Record(ctx context.Context, folder string, cmd stats.CommandType, results []string) error {
	hash := ""
	if s.textHash != nil {
		hash = s.textHash(folder)
	}
	return s.store.InsertResults(ctx, s.runID, folder, cmd, results, hash)
}

// Fanout records through next, then publishes a result.recorded event.
// Publication happens only after the delegate succeeds.
type Fanout struct {
	next  Recorder
	hub   *events.Hub
	runID string
}

func NewFanout(next Recorder, hub *events.Hub, runID string) *Fanout {
	return &Fanout{next: next, hub: hub, runID: runID}
}

func (f *Fanout) Record(ctx context.Context, folder string, cmd stats.CommandType, results []string) error {
	if err := f.next.Record(ctx, folder, cmd, results); err != nil {
		return err
	}
	if f.hub != nil {
		f.hub.Publish(events.TypeResultRecorded, events.ResultPayload{
			RunID:   f.runID,
			Folder:  folder,
			Command: string(cmd),
			Count:   len(results),
		})
	}
	return nil
}
