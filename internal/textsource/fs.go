package textsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FS resolves folders against a base directory on local disk. A folder's text
// is the concatenation of its regular files in lexical order.
type FS struct {
	baseDir string
}

// NewFS creates a filesystem-backed source rooted at baseDir.
func NewFS(baseDir string) (*FS, error) {
	trimmed := strings.TrimSpace(baseDir)
	if trimmed == "" {
		return nil, fmt.Errorf("text source base directory is empty")
	}
	return &FS{baseDir: filepath.Clean(trimmed)}, nil
}

// Resolve reads every regular file directly under <baseDir>/<folder> and joins
// their contents with newlines, in lexical filename order.
func (f *FS) Resolve(ctx context.Context, folder string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir, err := f.folderPath(folder)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read folder %q: %w", folder, err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var sb strings.Builder
	for i, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return "", fmt.Errorf("read file %q in folder %q: %w", name, folder, err)
		}
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.Write(data)
	}
	return sb.String(), nil
}

// folderPath validates folder and maps it inside the base directory.
func (f *FS) folderPath(folder string) (string, error) {
	trimmed := strings.TrimSpace(folder)
	if trimmed == "" {
		return "", fmt.Errorf("folder identifier is empty")
	}
	if filepath.IsAbs(trimmed) {
		return "", fmt.Errorf("folder identifier %q must be relative", folder)
	}

	path := filepath.Join(f.baseDir, trimmed)
	rel, err := filepath.Rel(f.baseDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("folder identifier %q escapes base directory", folder)
	}
	return path, nil
}
