package state

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	// SlugMaxLength is the maximum length for filesystem-safe slugs.
	SlugMaxLength = 50

	// SlugMinWordBoundary is the minimum length before trimming at word boundary.
	SlugMinWordBoundary = 30
)

// ArtifactStore persists raw and cleaned content per source per run under
// the artifacts directory, so successive runs can be diffed and audited.
type ArtifactStore struct {
	// BaseDir is the artifacts root (e.g., .featwatch/artifacts).
	BaseDir string
}

// NewArtifactStore creates an artifact store rooted at baseDir.
func NewArtifactStore(baseDir string) *ArtifactStore {
	return &ArtifactStore{BaseDir: baseDir}
}

// Write stores an artifact for a source and run, returning the written path.
// Layout: <base>/<source-slug>/<runID>/<name>.
func (as *ArtifactStore) Write(source, runID, name string, data []byte) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run ID is required")
	}

	path := filepath.Join(as.BaseDir, Slug(source), runID, name)
	if err := atomicWrite(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", name, err)
	}
	return path, nil
}

// Read retrieves a previously written artifact.
func (as *ArtifactStore) Read(source, runID, name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(as.BaseDir, Slug(source), runID, name))
}

// WriteFileAtomic writes data to path via a temp file and rename, so
// readers never observe a partially written file. Used for the matrix
// document and its JSON exports.
func WriteFileAtomic(path string, data []byte) error {
	return atomicWrite(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// atomicWrite writes to a temp file and renames atomically.
func atomicWrite(path string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	// Create temp file in same directory for atomic rename
	tmpFile, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on error
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath) //nolint:errcheck // cleanup in error path
		}
	}()

	if err := writeFunc(tmpFile); err != nil {
		_ = tmpFile.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("write content: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("sync file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename to final: %w", err)
	}

	success = true
	return nil
}

// Slug creates a filesystem-safe slug from text.
func Slug(text string) string {
	if text == "" {
		return "source"
	}

	s := slugify(strings.ToLower(text))
	s = truncateSlug(s)

	if s == "" {
		return "source"
	}
	return s
}

// slugify replaces non-alphanumeric runs with single hyphens and trims leading/trailing hyphens.
func slugify(input string) string {
	var result strings.Builder
	lastHyphen := false
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			result.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			result.WriteRune('-')
			lastHyphen = true
		}
	}
	return strings.Trim(result.String(), "-")
}

// truncateSlug limits the slug to SlugMaxLength, preferring word boundaries.
func truncateSlug(s string) string {
	if len(s) <= SlugMaxLength {
		return s
	}
	s = s[:SlugMaxLength]
	if idx := strings.LastIndex(s, "-"); idx > SlugMinWordBoundary {
		s = s[:idx]
	}
	return s
}
