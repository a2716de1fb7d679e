// Package textsource resolves folder identifiers into text payloads.
package textsource

import (
	"context"
	"fmt"
)

// Source maps a folder identifier to its text content.
type Source interface {
	Resolve(ctx context.Context, folder string) (string, error)
}

// Stub synthesizes a fixed descriptive payload per folder. It stands in for a
// real text source during development and tests.
type Stub struct{}

// NewStub creates a Stub source.
func NewStub() *Stub {
	return &Stub{}
}

// Resolve returns a synthetic payload embedding the folder identifier.
func (s *Stub) Resolve(ctx context.Context, folder string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("Text data from %s", folder), nil
}
