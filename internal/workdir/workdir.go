// Package workdir manages the on-disk layout of one pipeline run: per
// target a tree of rendered images, per-page JSON results, raw error
// sidecars and assembled final outputs.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default output directory name.
	DefaultDirName = "output"

	imagesDirName = "images"
	jsonDirName   = "json"
	rawDirName    = "raw"
	finalDirName  = "final"
)

// Dir represents the run output directory structure.
type Dir struct {
	path string
}

// New creates a Dir rooted at path. Empty path uses ./output.
func New(path string) (*Dir, error) {
	if path == "" {
		path = DefaultDirName
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory: %w", err)
	}
	return &Dir{path: abs}, nil
}

// Path returns the root path.
func (d *Dir) Path() string {
	return d.path
}

// TargetPath returns the directory for one target ("classes", ...).
func (d *Dir) TargetPath(target string) string {
	return filepath.Join(d.path, target)
}

// ImagesDir returns the rendered-image directory for a document.
func (d *Dir) ImagesDir(target, docID string) string {
	return filepath.Join(d.TargetPath(target), imagesDirName, docID)
}

// PageJSONPath returns the per-page result path. Pages are 1-indexed.
func (d *Dir) PageJSONPath(target, docID string, pageNum int) string {
	return filepath.Join(d.TargetPath(target), jsonDirName, docID, fmt.Sprintf("page%04d.json", pageNum))
}

// PageErrorPath returns the error sidecar path matching a page.
func (d *Dir) PageErrorPath(target, docID string, pageNum int) string {
	return filepath.Join(d.TargetPath(target), rawDirName, docID, fmt.Sprintf("page%04d.error.txt", pageNum))
}

// FinalDir returns the assembled-output directory for a target.
func (d *Dir) FinalDir(target string) string {
	return filepath.Join(d.TargetPath(target), finalDirName)
}

// HashesPath returns the processed-hash store for a target.
func (d *Dir) HashesPath(target string) string {
	return filepath.Join(d.TargetPath(target), "hashes.json")
}

// EnsureExists creates the root directory.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// EnsureDocDirs creates the per-document subdirectories.
func (d *Dir) EnsureDocDirs(target, docID string) error {
	for _, dir := range []string{
		d.ImagesDir(target, docID),
		filepath.Dir(d.PageJSONPath(target, docID, 1)),
		filepath.Dir(d.PageErrorPath(target, docID, 1)),
		d.FinalDir(target),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
