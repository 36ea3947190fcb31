package git

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockWorktree takes the exclusive worktree lock guarding mutating
// operations. The returned function releases it; call it on every exit path.
// In-memory repositories have nothing to lock and get a no-op release.
func (r *Repository) LockWorktree() (func(), error) {
	return r.lock(func(fl *flock.Flock) error { return fl.Lock() })
}

// RLockWorktree takes the shared worktree lock used by read-only operations
func (r *Repository) RLockWorktree() (func(), error) {
	return r.lock(func(fl *flock.Flock) error { return fl.RLock() })
}

func (r *Repository) lock(acquire func(*flock.Flock) error) (func(), error) {
	dir := r.ButlerDir()
	if dir == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create butler dir: %w", err)
	}
	fl := flock.New(filepath.Join(dir, "worktree.lock"))
	if err := acquire(fl); err != nil {
		return nil, fmt.Errorf("failed to lock worktree: %w", err)
	}
	return func() {
		_ = fl.Unlock()
	}, nil
}
