// Package source implements the per-source consistency lattice and the
// concrete source kinds (git, archive, local) that populate it.
package source

import (
	"context"
	"sync"
)

// Consistency is a source's position in the ordered lattice
// INCONSISTENT < RESOLVED < CACHED. Values only ever increase during a
// scheduler run.
type Consistency int

const (
	Inconsistent Consistency = iota
	Resolved
	Cached
)

func (c Consistency) String() string {
	switch c {
	case Inconsistent:
		return "inconsistent"
	case Resolved:
		return "resolved"
	case Cached:
		return "cached"
	default:
		return "unknown"
	}
}

// Kind is the capability set a source-kind plugin implements. Sources
// only need the fetch/track half of the full plugin surface; staging and
// assembly belong to element kinds.
type Kind interface {
	// ID is the plugin identifier recorded in the cache key.
	ID() string
	// FormatVersion is this kind's plugin format version.
	FormatVersion() int
	// Track attempts to pin an immutable ref for url (optionally scoped by
	// the previous ref, for incremental re-resolution). Returns the new ref.
	Track(ctx context.Context, url, previousRef string) (ref string, err error)
	// Fetch stages the content identified by ref into localDir.
	Fetch(ctx context.Context, url, ref, localDir string) error
}

// Source is one fetchable input to an element.
type Source struct {
	mu sync.RWMutex

	kind Kind
	url  string // possibly alias-prefixed, pre-translation
	ref  string // resolved immutable identifier, empty until Track succeeds
	cons Consistency

	localDir string // where Fetch stages content once CACHED
}

// New creates a source in the Inconsistent state. If ref is already known
// (e.g. pinned in project.refs under the project's ref-storage setting)
// the source starts at Resolved instead.
func New(kind Kind, url, ref string) *Source {
	s := &Source{kind: kind, url: url, ref: ref}
	if ref != "" {
		s.cons = Resolved
	}
	return s
}

func (s *Source) Kind() Kind { return s.kind }
func (s *Source) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}

// Ref returns the resolved ref, or "" if not yet resolved.
func (s *Source) Ref() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ref
}

// Consistency returns the source's current lattice position.
func (s *Source) Consistency() Consistency {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cons
}

// LocalDir returns the staged local directory once the source is Cached.
func (s *Source) LocalDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localDir
}

// track attempts to advance INCONSISTENT -> RESOLVED by pinning a ref.
// Exported as Track (capitalized) for queue workers; the queue is
// responsible for calling this off the scheduler thread.
func (s *Source) Track(ctx context.Context, translatedURL string) error {
	s.mu.Lock()
	prevRef := s.ref
	s.mu.Unlock()

	ref, err := s.kind.Track(ctx, translatedURL, prevRef)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ref = ref
	s.bumpLocked(Resolved)
	return nil
}

// Fetch attempts to advance RESOLVED -> CACHED by staging content for the
// resolved ref into localDir.
func (s *Source) Fetch(ctx context.Context, translatedURL, localDir string) error {
	s.mu.RLock()
	ref := s.ref
	s.mu.RUnlock()

	if err := s.kind.Fetch(ctx, translatedURL, ref, localDir); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.localDir = localDir
	s.bumpLocked(Cached)
	return nil
}

// BumpConsistency monotonically raises the source's consistency. A request
// to lower it is a no-op: monotonicity is enforced here, not trusted to
// callers.
func (s *Source) BumpConsistency(c Consistency) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bumpLocked(c)
}

func (s *Source) bumpLocked(c Consistency) {
	if c > s.cons {
		s.cons = c
	}
}
