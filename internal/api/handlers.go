package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/lexstat/internal/sink"
	"github.com/mattjoyce/lexstat/internal/stats"
)

const defaultListLimit = 50

// respondJSON writes a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}

	if runs, err := s.store.RecentRuns(r.Context(), 1); err == nil && len(runs) > 0 {
		resp.LastRunID = runs[0].ID
		resp.LastRunStatus = string(runs[0].Status)
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// handleTriggerBatch handles POST /batch. The batch runs synchronously;
// the response carries the completed run's ID and final status.
func (s *Server) handleTriggerBatch(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	folders := req.Folders
	if len(folders) == 0 {
		folders = s.config.DefaultFolders
	}

	commands := s.config.DefaultCommands
	if len(req.Commands) > 0 {
		parsed, err := stats.ParseCommandTypes(req.Commands)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		commands = parsed
	}

	runID, err := s.runner.Run(r.Context(), folders, commands, "api")
	if err != nil {
		resp := TriggerResponse{RunID: runID, Status: string(sink.RunFailed), Error: err.Error()}
		if runID == "" {
			s.respondJSON(w, http.StatusInternalServerError, resp)
			return
		}
		// The run row exists and carries the failure detail.
		s.respondJSON(w, http.StatusOK, resp)
		return
	}

	s.respondJSON(w, http.StatusOK, TriggerResponse{RunID: runID, Status: string(sink.RunSucceeded)})
}

// handleListRuns handles GET /runs.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.store.RecentRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	resp := RunListResponse{Runs: make([]RunSummary, 0, len(runs))}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, runSummary(run))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleGetRun handles GET /run/{runID}.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, sink.ErrRunNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("Failed to get run", "run_id", runID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	results, err := s.store.ResultsByRun(r.Context(), runID)
	if err != nil {
		s.logger.Error("Failed to get run results", "run_id", runID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run results")
		return
	}

	resp := RunDetailResponse{Run: runSummary(run), Results: resultRows(results)}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleFolderResults handles GET /results/{folder}.
func (s *Server) handleFolderResults(w http.ResponseWriter, r *http.Request) {
	folder := chi.URLParam(r, "folder")

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	results, err := s.store.ResultsByFolder(r.Context(), folder, limit)
	if err != nil {
		s.logger.Error("Failed to get folder results", "folder", folder, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get folder results")
		return
	}

	s.respondJSON(w, http.StatusOK, FolderResultsResponse{Folder: folder, Results: resultRows(results)})
}

func runSummary(run *sink.Run) RunSummary {
	out := RunSummary{
		ID:          run.ID,
		Status:      string(run.Status),
		Folders:     run.Folders,
		Commands:    run.Commands,
		SubmittedBy: run.SubmittedBy,
		CreatedAt:   run.CreatedAt,
		CompletedAt: run.CompletedAt,
	}
	if run.LastError != nil {
		out.LastError = *run.LastError
	}
	return out
}

func resultRows(results []*sink.Result) []ResultRow {
	out := make([]ResultRow, 0, len(results))
	for _, res := range results {
		out = append(out, ResultRow{
			RunID:     res.RunID,
			Folder:    res.Folder,
			Command:   res.Command,
			Position:  res.Position,
			Result:    res.Result,
			TextHash:  res.TextHash,
			CreatedAt: res.CreatedAt,
		})
	}
	return out
}
