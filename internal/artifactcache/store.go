// Package artifactcache implements the content-addressed local object
// store plus an optional remote transport for pull/push.
//
// Local objects live as directory trees under objects/<key>; a small SQLite
// metadata database (modernc.org/sqlite, pure Go, no cgo) tracks size and
// commit time per key so callers can garbage-collect without walking every
// tree. Commits are staged into a temp directory on the same filesystem and
// renamed into place, and a file lock guards the stage/rename sequence so
// two concurrent commits of the same key serialize rather than race; the
// later one simply finds the key already present and becomes a no-op.
package artifactcache

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/buildcore-project/buildcore/internal/cachekey"
	"github.com/buildcore-project/buildcore/internal/errs"
)

// Store is the local content-addressed artifact cache contract.
type Store interface {
	Contains(key cachekey.Key) bool
	Extract(key cachekey.Key) (dir string, err error)
	Commit(key cachekey.Key, dir string) error
	ListKeys() ([]cachekey.Key, error)
}

// Remote is the push/pull transport contract. See remote.go for the
// minio-backed implementation.
type Remote interface {
	Pull(ctx context.Context, key cachekey.Key, store Store) (bool, error)
	Push(ctx context.Context, key cachekey.Key, store Store) (bool, error)
}

// LocalStore is the filesystem + SQLite-metadata implementation of Store.
type LocalStore struct {
	root string // <root>/objects/<key>, <root>/meta.db, <root>/stage/
	db   *sql.DB
}

// Open creates (if needed) the on-disk layout under root and opens the
// metadata database.
func Open(root string) (*LocalStore, error) {
	for _, sub := range []string{"objects", "stage"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, errs.Cache("open", err)
		}
	}

	db, err := sql.Open("sqlite", filepath.Join(root, "meta.db"))
	if err != nil {
		return nil, errs.Cache("open", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS artifacts (
		key TEXT PRIMARY KEY,
		size_bytes INTEGER NOT NULL,
		committed_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, errs.Cache("open", err)
	}

	return &LocalStore{root: root, db: db}, nil
}

func (s *LocalStore) Close() error { return s.db.Close() }

func (s *LocalStore) objectDir(key cachekey.Key) string {
	return filepath.Join(s.root, "objects", string(key))
}

// Contains is a pure existence check. It can only ever observe "fully
// committed" or "absent", never partial, because Commit only makes the
// metadata row visible after the rename succeeds.
func (s *LocalStore) Contains(key cachekey.Key) bool {
	var x int
	err := s.db.QueryRow(`SELECT 1 FROM artifacts WHERE key = ?`, string(key)).Scan(&x)
	return err == nil
}

// Extract returns the root directory of the materialized artifact tree.
func (s *LocalStore) Extract(key cachekey.Key) (string, error) {
	if !s.Contains(key) {
		return "", errs.Cache("extract", fmt.Errorf("key %s not present", key))
	}
	return s.objectDir(key), nil
}

// Commit atomically stages dir's contents under the key's object directory.
// Concurrent commits of the same key serialize on a flock; the later one
// observes the key already Contains()-true and returns nil without
// re-copying.
func (s *LocalStore) Commit(key cachekey.Key, dir string) error {
	lockPath := filepath.Join(s.root, "stage", string(key)+".lock")
	lock := flock.New(lockPath)
	if err := lock.Lock(); err != nil {
		return errs.Cache("commit", err)
	}
	defer lock.Unlock()

	if s.Contains(key) {
		return nil // later commit for an already-present key is a no-op
	}

	stage := filepath.Join(s.root, "stage", string(key))
	if err := os.RemoveAll(stage); err != nil {
		return errs.Cache("commit", err)
	}
	if err := copyTree(dir, stage); err != nil {
		return errs.Cache("commit", err)
	}

	dest := s.objectDir(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errs.Cache("commit", err)
	}
	if err := os.Rename(stage, dest); err != nil {
		return errs.Cache("commit", err)
	}

	size, err := dirSize(dest)
	if err != nil {
		return errs.Cache("commit", err)
	}
	if _, err := s.db.Exec(
		`INSERT OR REPLACE INTO artifacts (key, size_bytes, committed_at) VALUES (?, ?, strftime('%s','now'))`,
		string(key), size,
	); err != nil {
		return errs.Cache("commit", err)
	}
	return nil
}

// ArtifactInfo describes one committed artifact's cache metadata, for
// `buildcore cache ls` and GC age-sorting.
type ArtifactInfo struct {
	Key         cachekey.Key
	SizeBytes   int64
	CommittedAt time.Time
}

// Info returns metadata for every committed artifact, oldest first, so a
// GC pass can evict from the front until it's under budget.
func (s *LocalStore) Info() ([]ArtifactInfo, error) {
	rows, err := s.db.Query(`SELECT key, size_bytes, committed_at FROM artifacts ORDER BY committed_at ASC`)
	if err != nil {
		return nil, errs.Cache("info", err)
	}
	defer rows.Close()

	var out []ArtifactInfo
	for rows.Next() {
		var k string
		var size, committedAt int64
		if err := rows.Scan(&k, &size, &committedAt); err != nil {
			return nil, errs.Cache("info", err)
		}
		out = append(out, ArtifactInfo{
			Key:         cachekey.Key(k),
			SizeBytes:   size,
			CommittedAt: time.Unix(committedAt, 0),
		})
	}
	return out, rows.Err()
}

// Remove deletes a committed artifact's tree and metadata row.
func (s *LocalStore) Remove(key cachekey.Key) error {
	if _, err := s.db.Exec(`DELETE FROM artifacts WHERE key = ?`, string(key)); err != nil {
		return errs.Cache("remove", err)
	}
	if err := os.RemoveAll(s.objectDir(key)); err != nil {
		return errs.Cache("remove", err)
	}
	return nil
}

func (s *LocalStore) ListKeys() ([]cachekey.Key, error) {
	rows, err := s.db.Query(`SELECT key FROM artifacts`)
	if err != nil {
		return nil, errs.Cache("list-keys", err)
	}
	defer rows.Close()

	var keys []cachekey.Key
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errs.Cache("list-keys", err)
		}
		keys = append(keys, cachekey.Key(k))
	}
	return keys, rows.Err()
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
