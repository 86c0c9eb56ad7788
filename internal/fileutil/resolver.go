package fileutil

import (
	"fmt"
	"path/filepath"
)

// FileNotFoundError reports that a file could not be located, optionally
// listing the directories that were searched.
type FileNotFoundError struct {
	Path          string
	SearchedPaths []string
}

func (e *FileNotFoundError) Error() string {
	if len(e.SearchedPaths) == 0 {
		return fmt.Sprintf("file not found: %s", e.Path)
	}
	return fmt.Sprintf("file not found: %s (searched in: %v)", e.Path, e.SearchedPaths)
}

// FileResolver locates a file: an absolute path is used as-is, and a
// relative path is tried under each of a list of base directories in order
// (never against the process working directory) — used to resolve a project's
// element-path entries and plugin search paths.
type FileResolver struct {
	relativeTos []string
}

// NewFileResolver returns a FileResolver searching relativeTos in order.
func NewFileResolver(relativeTos []string) *FileResolver {
	return &FileResolver{relativeTos: relativeTos}
}

// ResolveFilePath returns file unchanged if it's an absolute path that
// exists, otherwise the first relativeTos/file combination that exists.
func (r *FileResolver) ResolveFilePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		if FileExists(file) {
			return file, nil
		}
		return "", &FileNotFoundError{Path: file}
	}

	searched := make([]string, 0, len(r.relativeTos))
	for _, base := range r.relativeTos {
		candidate := filepath.Join(base, file)
		searched = append(searched, base)
		if FileExists(candidate) {
			return candidate, nil
		}
	}
	return "", &FileNotFoundError{Path: file, SearchedPaths: searched}
}
