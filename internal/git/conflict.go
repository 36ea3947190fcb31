package git

import (
	"fmt"
	"strconv"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Reserved entries at the root of a conflict-annotated commit's tree
const (
	AutoResolutionDir = ".auto-resolution"
	ConflictBaseDir   = ".conflict-base-0"
	ConflictOursDir   = ".conflict-side-0"
	ConflictTheirsDir = ".conflict-side-1"
)

// ConflictSides identifies the three trees that went into a conflicted merge
// plus the ours-favored auto-resolution.
type ConflictSides struct {
	Base           plumbing.Hash
	Ours           plumbing.Hash
	Theirs         plumbing.Hash
	AutoResolution plumbing.Hash
}

// WriteConflictTree builds the synthetic tree of a conflict-annotated
// commit: four reserved subtrees at the root.
func (r *Repository) WriteConflictTree(sides ConflictSides) (plumbing.Hash, error) {
	entries := []object.TreeEntry{
		{Name: AutoResolutionDir, Mode: filemode.Dir, Hash: sides.AutoResolution},
		{Name: ConflictBaseDir, Mode: filemode.Dir, Hash: sides.Base},
		{Name: ConflictOursDir, Mode: filemode.Dir, Hash: sides.Ours},
		{Name: ConflictTheirsDir, Mode: filemode.Dir, Hash: sides.Theirs},
	}
	return r.WriteTree(entries)
}

// ConflictSidesOf reads the reserved subtrees back from a conflict-annotated
// commit's tree. Returns false when the tree has no conflict layout.
func (r *Repository) ConflictSidesOf(treeID plumbing.Hash) (ConflictSides, bool, error) {
	entries, err := r.treeEntries(treeID)
	if err != nil {
		return ConflictSides{}, false, err
	}
	base, okBase := entries[ConflictBaseDir]
	ours, okOurs := entries[ConflictOursDir]
	theirs, okTheirs := entries[ConflictTheirsDir]
	if !okBase || !okOurs || !okTheirs {
		return ConflictSides{}, false, nil
	}
	sides := ConflictSides{Base: base.Hash, Ours: ours.Hash, Theirs: theirs.Hash}
	if auto, ok := entries[AutoResolutionDir]; ok {
		sides.AutoResolution = auto.Hash
	}
	return sides, true, nil
}

// RealTree returns the tree downstream consumers should see for a commit:
// the auto-resolved view for conflict-annotated commits, the raw tree
// otherwise. Older conflicted commits in the wild lack the auto-resolution
// entry; those fall back to the raw tree.
func (r *Repository) RealTree(commitID plumbing.Hash) (plumbing.Hash, error) {
	data, err := r.ReadCommit(commitID)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if !data.IsConflicted() {
		return data.Tree, nil
	}
	sides, ok, err := r.ConflictSidesOf(data.Tree)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if !ok || sides.AutoResolution.IsZero() {
		return data.Tree, nil
	}
	return sides.AutoResolution, nil
}

// WriteConflictedCommit synthesizes a conflict-annotated commit from a
// conflicted merge. The commit's tree holds the four reserved entries and
// its header records the conflict count.
func (r *Repository) WriteConflictedCommit(template *CommitData, sides ConflictSides, parents []plumbing.Hash, conflictCount int) (plumbing.Hash, error) {
	treeID, err := r.WriteConflictTree(sides)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to write conflict tree: %w", err)
	}
	data := &CommitData{
		Tree:      treeID,
		Parents:   parents,
		Author:    template.Author,
		Committer: template.Committer,
		Message:   template.Message,
		Headers:   append([]Header(nil), template.Headers...),
	}
	data.SetButlerHeaders()
	data.SetHeader(ConflictedKey, strconv.Itoa(conflictCount))
	return r.WriteCommit(data)
}
