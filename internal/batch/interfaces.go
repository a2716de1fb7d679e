package batch

import (
	"context"

	"github.com/mattjoyce/lexstat/internal/stats"
)

//go:generate mockgen -destination=mocks/mock_collaborators.go -package=mocks github.com/mattjoyce/lexstat/internal/batch TextSource,CommandExecutor,ResultsSink

// TextSource maps a folder identifier to its text content.
type TextSource interface {
	Resolve(ctx context.Context, folder string) (string, error)
}

// CommandExecutor runs one stats command against a text payload.
type CommandExecutor interface {
	Execute(ctx context.Context, cmd stats.CommandType, text string) ([]string, error)
}

// ResultsSink accepts the result sequence of one (folder, command) pair.
type ResultsSink interface {
	Record(ctx context.Context, folder string, cmd stats.CommandType, results []string) error
}
