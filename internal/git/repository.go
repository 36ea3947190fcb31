// Package git provides low-level Git operations for the butler core: repository
// access, a commit codec that preserves butler's extra headers, tree
// construction, three-way tree merges, conflict-annotated commits, batched ref
// updates and worktree reconciliation. It wraps go-git and provides a
// higher-level API for the workspace engine's needs.
package git

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"

	butlererrors "github.com/gitbutlerapp/butler/internal/errors"
)

const (
	// WorkspaceRef is the canonical workspace reference name
	WorkspaceRef = "refs/heads/gitbutler/workspace"

	// LegacyWorkspaceRef is accepted on read during the migration window
	LegacyWorkspaceRef = "refs/heads/gitbutler/integration"

	// EditModeRef points at the commit being amended in edit mode
	EditModeRef = "refs/heads/gitbutler/edit"

	// WorkspaceMessage is the literal commit message of every workspace commit
	WorkspaceMessage = "Workspace Head"
)

// Repository wraps a go-git repository together with the paths the butler
// core needs. The zero value is not usable; construct with OpenRepository
// or WrapRepository.
type Repository struct {
	*gogit.Repository
	path   string
	gitDir string
}

// OpenRepository opens a git repository at the given path
func OpenRepository(path string) (*Repository, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	repo, err := gogit.PlainOpenWithOptions(absPath, &gogit.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	return &Repository{
		Repository: repo,
		path:       absPath,
		gitDir:     filepath.Join(absPath, ".git"),
	}, nil
}

// WrapRepository wraps an already-open go-git repository. Used by tests that
// build repositories over in-memory storage; path may be empty for those.
func WrapRepository(repo *gogit.Repository, path string) *Repository {
	gitDir := ""
	if path != "" {
		gitDir = filepath.Join(path, ".git")
	}
	return &Repository{Repository: repo, path: path, gitDir: gitDir}
}

// Root returns the root directory of the repository, or "" for in-memory repositories
func (r *Repository) Root() string {
	return r.path
}

// ButlerDir returns the directory holding butler's repository-scoped state
func (r *Repository) ButlerDir() string {
	if r.gitDir == "" {
		return ""
	}
	return filepath.Join(r.gitDir, "gitbutler")
}

// Store returns the underlying object/ref storage
func (r *Repository) Store() storage.Storer {
	return r.Storer
}

// WorktreeFS returns the worktree filesystem, or nil for bare repositories
func (r *Repository) WorktreeFS() billy.Filesystem {
	wt, err := r.Worktree()
	if err != nil {
		return nil
	}
	return wt.Filesystem
}

// ResolveRef resolves a fully-qualified ref name to a commit id
func (r *Repository) ResolveRef(name string) (plumbing.Hash, error) {
	ref, err := r.Reference(plumbing.ReferenceName(name), true)
	if err != nil {
		return plumbing.ZeroHash, butlererrors.NewRefNotFoundError(name)
	}
	return ref.Hash(), nil
}

// WorkspaceHead resolves the workspace ref, accepting the legacy name on
// read. It returns the resolved ref name alongside the commit id so callers
// know which name is in use.
func (r *Repository) WorkspaceHead() (string, plumbing.Hash, error) {
	for _, name := range []string{WorkspaceRef, LegacyWorkspaceRef} {
		id, err := r.ResolveRef(name)
		if err == nil {
			return name, id, nil
		}
	}
	return "", plumbing.ZeroHash, butlererrors.ErrNoWorkspace
}

// DefaultSignature builds a signature from the repository's configured
// identity. The timestamp is the current time unless a deterministic clock
// was installed with SetClock.
func (r *Repository) DefaultSignature() (object.Signature, error) {
	cfg, err := r.Config()
	if err != nil {
		return object.Signature{}, fmt.Errorf("failed to read config: %w", err)
	}
	name := cfg.User.Name
	email := cfg.User.Email
	if name == "" {
		name = "GitButler"
	}
	if email == "" {
		email = "gitbutler@gitbutler.com"
	}
	return object.Signature{Name: name, Email: email, When: r.now()}, nil
}

// clock is overridable so that workspace commit synthesis can be made
// deterministic in tests.
var clock func() time.Time

// SetClock installs a deterministic clock for new signatures. Passing nil
// restores wall-clock time.
func SetClock(fn func() time.Time) {
	clock = fn
}

func (r *Repository) now() time.Time {
	if clock != nil {
		return clock()
	}
	return time.Now()
}

// ListRefs returns all local branch and remote-tracking refs keyed by the
// commit they point at.
func (r *Repository) ListRefs() (map[plumbing.Hash][]string, error) {
	iter, err := r.References()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate references: %w", err)
	}
	out := make(map[plumbing.Hash][]string)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		name := ref.Name()
		if name.IsBranch() || name.IsRemote() {
			out[ref.Hash()] = append(out[ref.Hash()], name.String())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect references: %w", err)
	}
	return out, nil
}

// IsAncestor reports whether ancestor is reachable from descendant
func (r *Repository) IsAncestor(ancestor, descendant plumbing.Hash) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	desc, err := object.GetCommit(r.Storer, descendant)
	if err != nil {
		return false, fmt.Errorf("failed to load commit %s: %w", descendant, err)
	}
	anc, err := object.GetCommit(r.Storer, ancestor)
	if err != nil {
		return false, fmt.Errorf("failed to load commit %s: %w", ancestor, err)
	}
	return anc.IsAncestor(desc)
}

// MergeBase returns the best common ancestor of the two commits
func (r *Repository) MergeBase(a, b plumbing.Hash) (plumbing.Hash, error) {
	ca, err := object.GetCommit(r.Storer, a)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to load commit %s: %w", a, err)
	}
	cb, err := object.GetCommit(r.Storer, b)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to load commit %s: %w", b, err)
	}
	bases, err := ca.MergeBase(cb)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to find merge base: %w", err)
	}
	if len(bases) == 0 {
		return plumbing.ZeroHash, butlererrors.ErrNotFound
	}
	return bases[0].Hash, nil
}

