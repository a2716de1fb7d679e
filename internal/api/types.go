package api

import "time"

// HealthzResponse is the response for GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	LastRunID     string `json:"last_run_id,omitempty"`
	LastRunStatus string `json:"last_run_status,omitempty"`
}

// TriggerRequest is the body for POST /batch. Both fields are optional;
// missing fields fall back to the configured defaults.
type TriggerRequest struct {
	Folders  []string `json:"folders,omitempty"`
	Commands []string `json:"commands,omitempty"`
}

// TriggerResponse is returned after a batch run finishes.
type TriggerResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// RunSummary is one run in a listing.
type RunSummary struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Folders     []string   `json:"folders"`
	Commands    []string   `json:"commands"`
	SubmittedBy string     `json:"submitted_by"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// ResultRow is one recorded result line.
type ResultRow struct {
	RunID     string    `json:"run_id"`
	Folder    string    `json:"folder"`
	Command   string    `json:"command"`
	Position  int       `json:"position"`
	Result    string    `json:"result"`
	TextHash  string    `json:"text_hash,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RunDetailResponse is the response for GET /run/{runID}.
type RunDetailResponse struct {
	Run     RunSummary  `json:"run"`
	Results []ResultRow `json:"results"`
}

// RunListResponse is the response for GET /runs.
type RunListResponse struct {
	Runs []RunSummary `json:"runs"`
}

// FolderResultsResponse is the response for GET /results/{folder}.
type FolderResultsResponse struct {
	Folder  string      `json:"folder"`
	Results []ResultRow `json:"results"`
}

// ErrorResponse is the error payload for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}
