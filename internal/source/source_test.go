package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsistency_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "inconsistent", Inconsistent.String())
	assert.Equal(t, "resolved", Resolved.String())
	assert.Equal(t, "cached", Cached.String())
}

func TestSource_BumpConsistencyIsMonotonic(t *testing.T) {
	t.Parallel()
	s := New(LocalKind{}, "/tmp/whatever", "")
	require.Equal(t, Inconsistent, s.Consistency())

	s.BumpConsistency(Cached)
	assert.Equal(t, Cached, s.Consistency())

	// Attempting to lower consistency must be a no-op.
	s.BumpConsistency(Resolved)
	assert.Equal(t, Cached, s.Consistency())
}

func TestSource_NewWithRefStartsResolved(t *testing.T) {
	t.Parallel()
	s := New(LocalKind{}, "/tmp/whatever", "deadbeef")
	assert.Equal(t, Resolved, s.Consistency())
	assert.Equal(t, "deadbeef", s.Ref())
}

func TestLocalKind_TrackFetchRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))

	kind := LocalKind{}
	s := New(kind, dir, "")

	require.NoError(t, s.Track(context.Background(), dir))
	assert.Equal(t, Resolved, s.Consistency())
	assert.NotEmpty(t, s.Ref())

	require.NoError(t, s.Fetch(context.Background(), dir, t.TempDir()))
	assert.Equal(t, Cached, s.Consistency())
}

func TestLocalKind_TrackIsDeterministic(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("world"), 0o644))

	kind := LocalKind{}
	ref1, err := kind.Track(context.Background(), dir, "")
	require.NoError(t, err)
	ref2, err := kind.Track(context.Background(), dir, "")
	require.NoError(t, err)
	assert.Equal(t, ref1, ref2)
}

func TestLocalKind_TrackChangesWithContent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))

	kind := LocalKind{}
	before, err := kind.Track(context.Background(), dir, "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello!"), 0o644))
	after, err := kind.Track(context.Background(), dir, "")
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}
