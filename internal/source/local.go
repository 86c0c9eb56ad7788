package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/buildcore-project/buildcore/internal/errs"
)

// LocalKind wraps a host-relative directory as a source. It has no network
// I/O: Track and Fetch both operate purely on the host filesystem, and the
// "ref" is a content digest of the directory tree, so local sources still
// participate deterministically in the cache key.
type LocalKind struct{}

const localKindFormatVersion = 1

func (LocalKind) ID() string         { return "local" }
func (LocalKind) FormatVersion() int { return localKindFormatVersion }

// Track computes a digest over every non-directory entry's relative path
// and content, sorted by path for determinism. File modes are not part of
// the digest.
func (LocalKind) Track(_ context.Context, url, _ string) (string, error) {
	h := sha256.New()
	var entries []string

	err := filepath.WalkDir(url, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(url, path)
		if err != nil {
			return err
		}
		entries = append(entries, rel)
		return nil
	})
	if err != nil {
		return "", errs.Source("", "local-track", false, fmt.Errorf("walk %s: %w", url, err))
	}
	sort.Strings(entries)

	for _, rel := range entries {
		f, err := os.Open(filepath.Join(url, rel))
		if err != nil {
			return "", errs.Source("", "local-track", false, err)
		}
		fmt.Fprintf(h, "%s:", rel)
		if _, err := io.Copy(h, f); err != nil {
			f.Close()
			return "", errs.Source("", "local-track", false, err)
		}
		f.Close()
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Fetch is a no-op: local sources are read in place. Queues still call it so
// the state machine transitions uniformly across source kinds.
func (LocalKind) Fetch(_ context.Context, _, _, _ string) error {
	return nil
}
