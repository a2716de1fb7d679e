package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/lexstat/internal/auth"
	"github.com/mattjoyce/lexstat/internal/events"
	"github.com/mattjoyce/lexstat/internal/log"
	"github.com/mattjoyce/lexstat/internal/sink"
	"github.com/mattjoyce/lexstat/internal/stats"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	m.Run()
}

type fakeRunner struct {
	runID    string
	err      error
	folders  []string
	commands []stats.CommandType
}

func (f *fakeRunner) Run(ctx context.Context, folders []string, commands []stats.CommandType, submittedBy string) (string, error) {
	f.folders = folders
	f.commands = commands
	return f.runID, f.err
}

type fakeStore struct {
	runs    map[string]*sink.Run
	results map[string][]*sink.Result
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:    make(map[string]*sink.Run),
		results: make(map[string][]*sink.Result),
	}
}

func (f *fakeStore) GetRun(ctx context.Context, runID string) (*sink.Run, error) {
	run, ok := f.runs[runID]
	if !ok {
		return nil, sink.ErrRunNotFound
	}
	return run, nil
}

func (f *fakeStore) RecentRuns(ctx context.Context, limit int) ([]*sink.Run, error) {
	out := make([]*sink.Run, 0, len(f.runs))
	for _, run := range f.runs {
		out = append(out, run)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ResultsByRun(ctx context.Context, runID string) ([]*sink.Result, error) {
	return f.results[runID], nil
}

func (f *fakeStore) ResultsByFolder(ctx context.Context, folder string, limit int) ([]*sink.Result, error) {
	var out []*sink.Result
	for _, rows := range f.results {
		for _, row := range rows {
			if row.Folder == folder {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func newTestServer(t *testing.T, runner *fakeRunner, store *fakeStore) (*Server, http.Handler) {
	t.Helper()

	if runner == nil {
		runner = &fakeRunner{runID: "run-1"}
	}
	if store == nil {
		store = newFakeStore()
	}

	cfg := Config{
		Listen: "127.0.0.1:0",
		APIKey: "admin-key",
		Tokens: []auth.TokenConfig{
			{Token: "reader", Scopes: []string{"runs:ro", "results:ro", "events:ro"}},
		},
		DefaultFolders:  []string{"essays", "notes"},
		DefaultCommands: []stats.CommandType{stats.CommandCount, stats.CommandAverage},
	}

	srv := New(cfg, runner, store, events.NewHub(16), log.WithComponent("api"))
	return srv, srv.setupRoutes()
}

func doRequest(handler http.Handler, method, path, token string, body []byte) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthzUnauthenticated(t *testing.T) {
	store := newFakeStore()
	store.runs["run-9"] = &sink.Run{ID: "run-9", Status: sink.RunSucceeded}
	_, handler := newTestServer(t, nil, store)

	rec := doRequest(handler, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-9", resp.LastRunID)
	assert.Equal(t, "succeeded", resp.LastRunStatus)
}

func TestProtectedEndpointsRequireAuth(t *testing.T) {
	_, handler := newTestServer(t, nil, nil)

	rec := doRequest(handler, http.MethodGet, "/runs", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(handler, http.MethodGet, "/runs", "wrong-key", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestScopeEnforcement(t *testing.T) {
	_, handler := newTestServer(t, nil, nil)

	// reader has no runs:rw, so triggering is forbidden.
	rec := doRequest(handler, http.MethodPost, "/batch", "reader", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// but reading runs is allowed.
	rec = doRequest(handler, http.MethodGet, "/runs", "reader", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTriggerBatchUsesDefaults(t *testing.T) {
	runner := &fakeRunner{runID: "run-42"}
	_, handler := newTestServer(t, runner, nil)

	rec := doRequest(handler, http.MethodPost, "/batch", "admin-key", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TriggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-42", resp.RunID)
	assert.Equal(t, "succeeded", resp.Status)
	assert.Equal(t, []string{"essays", "notes"}, runner.folders)
	assert.Equal(t, []stats.CommandType{stats.CommandCount, stats.CommandAverage}, runner.commands)
}

func TestTriggerBatchExplicitBody(t *testing.T) {
	runner := &fakeRunner{runID: "run-7"}
	_, handler := newTestServer(t, runner, nil)

	body := []byte(`{"folders":["a"],"commands":["wordfreq"]}`)
	rec := doRequest(handler, http.MethodPost, "/batch", "admin-key", body)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"a"}, runner.folders)
	assert.Equal(t, []stats.CommandType{stats.CommandWordFreq}, runner.commands)
}

func TestTriggerBatchRejectsUnknownCommand(t *testing.T) {
	_, handler := newTestServer(t, nil, nil)

	body := []byte(`{"commands":["sparkle"]}`)
	rec := doRequest(handler, http.MethodPost, "/batch", "admin-key", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerBatchReportsRunFailure(t *testing.T) {
	runner := &fakeRunner{runID: "run-bad", err: errors.New("resolve folder \"a\": boom")}
	_, handler := newTestServer(t, runner, nil)

	rec := doRequest(handler, http.MethodPost, "/batch", "admin-key", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TriggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-bad", resp.RunID)
	assert.Equal(t, "failed", resp.Status)
	assert.Contains(t, resp.Error, "boom")
}

func TestGetRunWithResults(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	store.runs["run-1"] = &sink.Run{
		ID:        "run-1",
		Status:    sink.RunSucceeded,
		Folders:   []string{"a"},
		Commands:  []string{"count"},
		CreatedAt: now,
	}
	store.results["run-1"] = []*sink.Result{
		{RunID: "run-1", Folder: "a", Command: "count", Position: 0, Result: "lines: 1"},
		{RunID: "run-1", Folder: "a", Command: "count", Position: 1, Result: "words: 3"},
	}
	_, handler := newTestServer(t, nil, store)

	rec := doRequest(handler, http.MethodGet, "/run/run-1", "reader", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RunDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.Run.ID)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "lines: 1", resp.Results[0].Result)
}

func TestGetRunNotFound(t *testing.T) {
	_, handler := newTestServer(t, nil, nil)

	rec := doRequest(handler, http.MethodGet, "/run/missing", "reader", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFolderResults(t *testing.T) {
	store := newFakeStore()
	store.results["run-1"] = []*sink.Result{
		{RunID: "run-1", Folder: "essays", Command: "count", Result: "lines: 4"},
		{RunID: "run-1", Folder: "notes", Command: "count", Result: "lines: 2"},
	}
	_, handler := newTestServer(t, nil, store)

	rec := doRequest(handler, http.MethodGet, "/results/essays", "reader", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp FolderResultsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "essays", resp.Folder)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "lines: 4", resp.Results[0].Result)
}

func TestListRunsBadLimit(t *testing.T) {
	_, handler := newTestServer(t, nil, nil)

	rec := doRequest(handler, http.MethodGet, "/runs?limit=zero", "reader", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventsReplayBacklog(t *testing.T) {
	srv, handler := newTestServer(t, nil, nil)

	srv.hub.Publish(events.TypeRunStarted, events.RunPayload{RunID: "run-1"})
	srv.hub.Publish(events.TypeRunCompleted, events.RunPayload{RunID: "run-1", Status: "succeeded"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Stream exits right after backlog replay.

	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer reader")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, "event: run.started")
	assert.Contains(t, body, "event: run.completed")
	assert.Contains(t, body, "id: 1")
	assert.Contains(t, body, "id: 2")
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

func TestEventsLastEventIDSkipsSeen(t *testing.T) {
	srv, handler := newTestServer(t, nil, nil)

	srv.hub.Publish(events.TypeRunStarted, events.RunPayload{RunID: "run-1"})
	srv.hub.Publish(events.TypeRunCompleted, events.RunPayload{RunID: "run-1", Status: "succeeded"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer reader")
	req.Header.Set("Last-Event-ID", "1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.NotContains(t, body, "event: run.started")
	assert.Contains(t, body, "event: run.completed")
}
