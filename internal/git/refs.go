package git

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"

	butlererrors "github.com/gitbutlerapp/butler/internal/errors"
)

// RefUpdate is one planned reference write. A zero Old means the ref is
// expected to be absent; Check controls whether Old is verified at all.
type RefUpdate struct {
	Name  string
	Old   plumbing.Hash
	New   plumbing.Hash
	Check bool
}

// RefTransaction batches reference updates so that observers see either the
// old state or the new state, never a half-applied split. On any failure the
// already-applied updates are rolled back.
type RefTransaction struct {
	repo    *Repository
	updates []RefUpdate
}

// NewRefTransaction creates an empty transaction
func (r *Repository) NewRefTransaction() *RefTransaction {
	return &RefTransaction{repo: r}
}

// Update records a checked ref write: the ref must still point at old when
// the transaction commits.
func (t *RefTransaction) Update(name string, old, new plumbing.Hash) {
	t.updates = append(t.updates, RefUpdate{Name: name, Old: old, New: new, Check: true})
}

// Set records an unchecked ref write
func (t *RefTransaction) Set(name string, new plumbing.Hash) {
	t.updates = append(t.updates, RefUpdate{Name: name, New: new})
}

// Delete records a ref removal
func (t *RefTransaction) Delete(name string) {
	t.updates = append(t.updates, RefUpdate{Name: name, New: plumbing.ZeroHash})
}

// Empty reports whether the transaction has no pending updates
func (t *RefTransaction) Empty() bool {
	return len(t.updates) == 0
}

// Commit verifies every checked precondition, then applies all updates.
// A failed precondition surfaces as ErrStaleWorkspace before anything is
// written; a failed write rolls back the updates already applied.
func (t *RefTransaction) Commit() error {
	// Verify preconditions first so the batch is all-or-nothing.
	previous := make([]*plumbing.Reference, len(t.updates))
	for i, u := range t.updates {
		ref, err := t.repo.Reference(plumbing.ReferenceName(u.Name), false)
		if err == nil {
			previous[i] = ref
		}
		if !u.Check {
			continue
		}
		actual := plumbing.ZeroHash
		if ref != nil {
			actual = ref.Hash()
		}
		if actual != u.Old {
			return &butlererrors.StaleWorkspaceError{Expected: u.Old.String(), Actual: actual.String()}
		}
	}

	for i, u := range t.updates {
		if err := t.apply(u); err != nil {
			t.rollback(previous, i)
			return fmt.Errorf("failed to update ref %s: %w", u.Name, err)
		}
	}
	t.updates = nil
	return nil
}

func (t *RefTransaction) apply(u RefUpdate) error {
	name := plumbing.ReferenceName(u.Name)
	if u.New.IsZero() {
		return t.repo.Storer.RemoveReference(name)
	}
	return t.repo.Storer.SetReference(plumbing.NewHashReference(name, u.New))
}

func (t *RefTransaction) rollback(previous []*plumbing.Reference, applied int) {
	for i := applied - 1; i >= 0; i-- {
		name := plumbing.ReferenceName(t.updates[i].Name)
		if previous[i] == nil {
			_ = t.repo.Storer.RemoveReference(name)
			continue
		}
		_ = t.repo.Storer.SetReference(previous[i])
	}
}
