package source

import (
	"context"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/buildcore-project/buildcore/internal/errs"
)

// GitKind fetches sources from a git remote using go-git, avoiding a shell
// dependency on the system git binary. The "ref" in the cache-key sense is
// always a full commit SHA: Track resolves the remote's HEAD down to one.
type GitKind struct {
	// Auth is optional; nil means anonymous/public access.
	Auth *http.BasicAuth
}

const gitKindFormatVersion = 1

func (GitKind) ID() string         { return "git" }
func (GitKind) FormatVersion() int { return gitKindFormatVersion }

// Track resolves the commit that url's HEAD points at, without a full clone,
// via a bare ls-remote-style listing. A branch, tag or "#ref" suffix in url
// is not interpreted, and previousRef is not consulted.
func (k GitKind) Track(ctx context.Context, url, previousRef string) (string, error) {
	remote := git.NewRemote(nil, &config.RemoteConfig{Name: "origin", URLs: []string{url}})

	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: k.Auth})
	if err != nil {
		return "", errs.Source("", "git-track", true, fmt.Errorf("list-remote %s: %w", url, err))
	}

	var head *plumbing.Reference
	for _, r := range refs {
		if r.Name() == plumbing.HEAD {
			head = r
		}
	}
	if head == nil {
		return "", errs.Source("", "git-track", false, fmt.Errorf("no HEAD for %s", url))
	}

	for _, r := range refs {
		if r.Name() == head.Target() {
			return r.Hash().String(), nil
		}
	}
	return "", errs.Source("", "git-track", false, fmt.Errorf("could not resolve HEAD target for %s", url))
}

// Fetch clones url into localDir and checks out ref. A repository already
// present in localDir is opened and reused as it is, with no fetch from the
// remote, so ref must already be in it.
func (k GitKind) Fetch(ctx context.Context, url, ref, localDir string) error {
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return errs.Source("", "git-fetch", false, err)
	}

	repo, err := git.PlainCloneContext(ctx, localDir, false, &git.CloneOptions{
		URL:  url,
		Auth: k.Auth,
	})
	if err != nil {
		if err == git.ErrRepositoryAlreadyExists {
			repo, err = git.PlainOpen(localDir)
		}
		if err != nil {
			return errs.Source("", "git-fetch", true, fmt.Errorf("clone %s: %w", url, err))
		}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return errs.Source("", "git-fetch", false, err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(ref)}); err != nil {
		return errs.Source("", "git-fetch", false, fmt.Errorf("checkout %s: %w", ref, err))
	}
	return nil
}
