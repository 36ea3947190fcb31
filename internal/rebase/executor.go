package rebase

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"

	butlererrors "github.com/gitbutlerapp/butler/internal/errors"
	"github.com/gitbutlerapp/butler/internal/git"
)

// Options tunes an execution of the step graph
type Options struct {
	// DateMode applies to every rewritten commit
	DateMode DateMode
}

// Outcome is a successful rebase: the mapping from picks to their new
// commit ids and the ref updates to write.
type Outcome struct {
	repo *git.Repository

	// NewCommits maps each pick selector to the commit it produced
	NewCommits map[Selector]plumbing.Hash
	// CommitMap maps original commit ids to their rewritten ids, identity
	// for reused commits.
	CommitMap map[plumbing.Hash]plumbing.Hash
	// NewRefs is the planned position of every reference step
	NewRefs map[string]plumbing.Hash
	// OldRefs records where each ref pointed when the rebase ran, for
	// stale-detection at materialize time.
	OldRefs map[string]plumbing.Hash
}

// Rebase executes the planned graph: picks are cherry-picked bottom-up onto
// their resolved parents via three-way tree merges, unmoved picks are reused
// verbatim, and conflicts become conflict-annotated commits unless the pick
// forbids them.
func (sg *StepGraph) Rebase(opts Options) (*Outcome, error) {
	order, err := sg.topoOrder()
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		repo:       sg.repo,
		NewCommits: map[Selector]plumbing.Hash{},
		CommitMap:  map[plumbing.Hash]plumbing.Hash{},
		NewRefs:    map[string]plumbing.Hash{},
		OldRefs:    map[string]plumbing.Hash{},
	}

	newIDOf := func(sel Selector) plumbing.Hash {
		n := sg.nodes[sel]
		if n.step.Kind == stepBase {
			return n.step.CommitID
		}
		return outcome.NewCommits[sel]
	}

	for _, sel := range order {
		n := sg.nodes[sel]
		if n.step.Kind != StepPick {
			continue
		}

		resolved := sg.resolveParentPicks(sel)
		newParents := make([]plumbing.Hash, len(resolved))
		for i, p := range resolved {
			newParents[i] = newIDOf(p)
		}

		if parentsUnmoved(n.step.originalParents, newParents) {
			outcome.NewCommits[sel] = n.step.CommitID
			outcome.CommitMap[n.step.CommitID] = n.step.CommitID
			continue
		}

		newID, err := sg.cherryPick(n.step, newParents, opts)
		if err != nil {
			return nil, err
		}
		outcome.NewCommits[sel] = newID
		outcome.CommitMap[n.step.CommitID] = newID
	}

	// Reference steps record ref updates targeting the pick at their position
	for i, n := range sg.nodes {
		if n.step.Kind != StepReference {
			continue
		}
		picks := sg.resolveParentPicks(Selector(i))
		if len(picks) == 0 {
			continue
		}
		target := newIDOf(picks[0])
		outcome.NewRefs[n.step.RefName] = target
		if old, err := sg.repo.ResolveRef(n.step.RefName); err == nil {
			outcome.OldRefs[n.step.RefName] = old
		}
	}

	return outcome, nil
}

func parentsUnmoved(original, resolved []plumbing.Hash) bool {
	if len(original) != len(resolved) {
		return false
	}
	for i := range original {
		if original[i] != resolved[i] {
			return false
		}
	}
	return true
}

// cherryPick re-creates the pick's commit on top of its new parents through
// a three-way merge of (base: original first parent, ours: new first parent,
// theirs: the pick itself).
func (sg *StepGraph) cherryPick(step Step, newParents []plumbing.Hash, opts Options) (plumbing.Hash, error) {
	repo := sg.repo

	baseTree := git.EmptyTreeID
	if len(step.originalParents) > 0 {
		var err error
		baseTree, err = repo.RealTree(step.originalParents[0])
		if err != nil {
			return plumbing.ZeroHash, err
		}
	}
	oursTree := git.EmptyTreeID
	if len(newParents) > 0 {
		var err error
		oursTree, err = repo.RealTree(newParents[0])
		if err != nil {
			return plumbing.ZeroHash, err
		}
	}
	theirsTree, err := repo.RealTree(step.CommitID)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	merge, err := repo.MergeTrees(baseTree, oursTree, theirsTree, git.MergeOptions{})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("cherry-pick of %s failed: %w", step.CommitID, err)
	}

	original, err := repo.ReadCommit(step.CommitID)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	if !merge.Clean() {
		if !step.Conflictable {
			return plumbing.ZeroHash, butlererrors.NewNotConflictableError(step.CommitID.String())
		}
		template := &git.CommitData{
			Author:    original.Author,
			Committer: original.Committer,
			Message:   original.Message,
			Headers:   append([]git.Header(nil), original.Headers...),
		}
		if err := sg.applyDateMode(template, opts.DateMode); err != nil {
			return plumbing.ZeroHash, err
		}
		sides := git.ConflictSides{
			Base:           baseTree,
			Ours:           oursTree,
			Theirs:         theirsTree,
			AutoResolution: merge.TreeID,
		}
		return repo.WriteConflictedCommit(template, sides, newParents, len(merge.Conflicts))
	}

	data := &git.CommitData{
		Tree:      merge.TreeID,
		Parents:   newParents,
		Author:    original.Author,
		Committer: original.Committer,
		Message:   original.Message,
		Headers:   append([]git.Header(nil), original.Headers...),
	}
	// A clean replay clears any conflict annotation carried by the original
	data.RemoveHeader(git.ConflictedKey)
	data.SetButlerHeaders()
	if err := sg.applyDateMode(data, opts.DateMode); err != nil {
		return plumbing.ZeroHash, err
	}
	return repo.WriteCommit(data)
}

// MaterializeWithoutCheckout writes every recorded ref update as a single
// batch; a ref that moved since the rebase ran aborts the batch untouched.
func (o *Outcome) MaterializeWithoutCheckout() error {
	tx := o.repo.NewRefTransaction()
	for name, newID := range o.NewRefs {
		old, known := o.OldRefs[name]
		if known {
			if old == newID {
				continue
			}
			tx.Update(name, old, newID)
		} else {
			tx.Set(name, newID)
		}
	}
	if tx.Empty() {
		return nil
	}
	return tx.Commit()
}
