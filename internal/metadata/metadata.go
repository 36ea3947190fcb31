// Package metadata persists workspace and branch records keyed by full ref
// name. Only refs and this metadata survive across operations; everything
// else the core works with is derived from the commit graph.
package metadata

import (
	"iter"
	"time"
)

// StackMeta is the persisted shape of one stack inside a workspace: the
// ordered sub-branch ref names from tip to base, plus the archived flag.
type StackMeta struct {
	Branches []string `toml:"branches"`
	Archived bool     `toml:"archived,omitempty"`
}

// WorkspaceMeta is the persisted record of a workspace, keyed by the
// workspace ref name. Stacks preserve the user-visible ordering.
type WorkspaceMeta struct {
	Ref        string      `toml:"-"`
	IsDefault  bool        `toml:"-"`
	TargetRef  string      `toml:"target_ref,omitempty"`
	PushRemote string      `toml:"push_remote,omitempty"`
	Stacks     []StackMeta `toml:"stacks,omitempty"`
}

// StackIndexFor returns the position of the stack containing the given
// branch ref, or -1.
func (w *WorkspaceMeta) StackIndexFor(branchRef string) int {
	for i, stack := range w.Stacks {
		for _, b := range stack.Branches {
			if b == branchRef {
				return i
			}
		}
	}
	return -1
}

// RemoveStack deletes the stack containing the branch ref and reports
// whether anything was removed.
func (w *WorkspaceMeta) RemoveStack(branchRef string) bool {
	i := w.StackIndexFor(branchRef)
	if i < 0 {
		return false
	}
	w.Stacks = append(w.Stacks[:i], w.Stacks[i+1:]...)
	return true
}

// BranchMeta carries cosmetic attributes of a branch, keyed by ref name
type BranchMeta struct {
	Ref         string    `toml:"-"`
	IsDefault   bool      `toml:"-"`
	Description string    `toml:"description,omitempty"`
	ReviewID    string    `toml:"review_id,omitempty"`
	PRNumber    int       `toml:"pr_number,omitempty"`
	CIPassed    *bool     `toml:"ci_passed,omitempty"`
	CreatedAt   time.Time `toml:"created_at,omitempty"`
	UpdatedAt   time.Time `toml:"updated_at,omitempty"`
}

// Store is the capability interface over persisted ref metadata. Reads for
// absent refs return default-marked handles rather than errors; writing a
// handle clears its default mark.
type Store interface {
	// Workspace returns the workspace record for the ref, default-marked if absent
	Workspace(ref string) (*WorkspaceMeta, error)
	// Branch returns the branch record for the ref, default-marked if absent
	Branch(ref string) (*BranchMeta, error)
	// SetWorkspace persists a workspace record
	SetWorkspace(meta *WorkspaceMeta) error
	// SetBranch persists a branch record
	SetBranch(meta *BranchMeta) error
	// Remove deletes any record stored under the ref
	Remove(ref string) error
	// Iter yields every stored record as (ref, *WorkspaceMeta or *BranchMeta)
	Iter() iter.Seq2[string, any]
}
