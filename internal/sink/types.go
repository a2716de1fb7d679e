package sink

import (
	"errors"
	"time"
)

// RunStatus tracks a batch run through its lifecycle.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

var ErrRunNotFound = errors.New("batch run not found")

// Run is one recorded batch execution.
type Run struct {
	ID          string
	Status      RunStatus
	Folders     []string
	Commands    []string
	SubmittedBy string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	LastError   *string
}

// Result is one recorded result line for a (folder, command) pair.
type Result struct {
	ID        string
	RunID     string
	Folder    string
	Command   string
	Position  int
	Result    string
	TextHash  string
	CreatedAt time.Time
}
