package workspace

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"

	butlererrors "github.com/gitbutlerapp/butler/internal/errors"
	"github.com/gitbutlerapp/butler/internal/git"
	"github.com/gitbutlerapp/butler/internal/metadata"
	"github.com/gitbutlerapp/butler/internal/rebase"
)

// ApplyOptions controls installing a stack into the workspace
type ApplyOptions struct {
	// Checkout is forwarded to the worktree reconciliation
	Checkout git.CheckoutOptions
}

// Apply installs the stack at tipRef into the workspace: the stack list
// gains the branch, the workspace commit is re-synthesized with its head,
// and the worktree is reconciled three-way so in-progress edits survive.
// A tip that does not descend from the target is rebased onto it first.
func (ws *Workspace) Apply(tipRef string, opts ApplyOptions) error {
	unlock, err := ws.Repo.LockWorktree()
	if err != nil {
		return err
	}
	defer unlock()

	if ws.TargetID.IsZero() {
		return fmt.Errorf("cannot apply %s: %w", tipRef, butlererrors.ErrNoTarget)
	}

	tipID, err := ws.Repo.ResolveRef(tipRef)
	if err != nil {
		return err
	}

	onTarget, err := ws.Repo.IsAncestor(ws.TargetID, tipID)
	if err != nil {
		return err
	}
	if !onTarget {
		tipID, err = ws.rebaseOntoTarget(tipRef, tipID)
		if err != nil {
			return err
		}
	}

	// Record the stack in the metadata before synthesis so the head order
	// is the declared order.
	if ws.Meta.StackIndexFor(tipRef) < 0 {
		ws.Meta.Stacks = append(ws.Meta.Stacks, metadata.StackMeta{Branches: []string{tipRef}})
		if err := ws.Store.SetWorkspace(ws.Meta); err != nil {
			return err
		}
	}

	heads := ws.headsWith(tipRef, tipID)
	return ws.materialize(heads, opts.Checkout)
}

// headsWith returns the stack heads in metadata order, substituting newTip
// for the stack identified by tipRef.
func (ws *Workspace) headsWith(tipRef string, newTip plumbing.Hash) []plumbing.Hash {
	var heads []plumbing.Hash
	for _, stackMeta := range ws.Meta.Stacks {
		if stackMeta.Archived || len(stackMeta.Branches) == 0 {
			continue
		}
		branch := stackMeta.Branches[0]
		if branch == tipRef {
			heads = append(heads, newTip)
			continue
		}
		if id, err := ws.Repo.ResolveRef(branch); err == nil {
			heads = append(heads, id)
		}
	}
	return heads
}

// rebaseOntoTarget replays the stack commits between the merge base and the
// tip onto the target and moves the tip ref, returning the new tip.
func (ws *Workspace) rebaseOntoTarget(tipRef string, tipID plumbing.Hash) (plumbing.Hash, error) {
	base, err := ws.Repo.MergeBase(tipID, ws.TargetID)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	// Collect first-parent commits tip-down until the merge base
	var chain []plumbing.Hash
	current := tipID
	for current != base {
		data, err := ws.Repo.ReadCommit(current)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		chain = append(chain, current)
		if len(data.Parents) == 0 {
			break
		}
		current = data.Parents[0]
	}

	sg := rebase.New(ws.Repo)
	anchor := sg.AddBase(ws.TargetID)
	parent := anchor
	for i := len(chain) - 1; i >= 0; i-- {
		parent, err = sg.AddPick(chain[i], parent)
		if err != nil {
			return plumbing.ZeroHash, err
		}
	}
	sg.AddReference(tipRef, parent)

	outcome, err := sg.Rebase(rebase.Options{DateMode: rebase.CommitterUpdate})
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if err := outcome.MaterializeWithoutCheckout(); err != nil {
		return plumbing.ZeroHash, err
	}
	newTip, ok := outcome.NewRefs[tipRef]
	if !ok {
		return tipID, nil
	}
	return newTip, nil
}

// materialize re-synthesizes the workspace commit from the given heads,
// updates refs as one batch, and reconciles worktree and index. Ref updates
// land before the checkout; the workspace commit is written after the stack
// refs it merges.
func (ws *Workspace) materialize(heads []plumbing.Hash, checkout git.CheckoutOptions) error {
	synthesis, err := SynthesizeWorkspaceCommit(ws.Repo, ws.TargetID, heads)
	if err != nil {
		return err
	}

	oldWorkspaceTree, err := ws.currentWorkspaceTree()
	if err != nil {
		return err
	}
	worktreeTree, err := ws.Repo.WorktreeTree()
	if err != nil {
		return err
	}

	// Keep in-progress edits: merge the worktree against the workspace
	// switch with ours = the worktree.
	merge, err := ws.Repo.MergeTrees(oldWorkspaceTree, worktreeTree, synthesis.TreeID, git.MergeOptions{})
	if err != nil {
		return err
	}

	tx := ws.Repo.NewRefTransaction()
	ws.updateWorkspaceRef(tx, synthesis.CommitID)
	if err := tx.Commit(); err != nil {
		return err
	}

	return ws.Repo.CheckoutTree(worktreeTree, merge.TreeID, checkout)
}

// UnapplyOptions controls removing a stack from the workspace
type UnapplyOptions struct {
	// CommitWIP first commits the stack's assigned uncommitted changes onto
	// its tip as "WIP Assignments" so they leave the worktree with it.
	// Assignment is per file: a file with any uncommitted hunk locked to the
	// stack is committed whole.
	CommitWIP bool
	// AvoidAnonymousStacks hoists the ref of the segment below when the
	// removal would orphan commits without a named segment.
	AvoidAnonymousStacks bool
	// Checkout is forwarded to the worktree reconciliation
	Checkout git.CheckoutOptions
}

// Unapply removes the stack at tipRef from the workspace: its commits are
// subtracted from the worktree three-way (keeping locked changes), the
// metadata forgets the stack, and the workspace commit is re-synthesized
// without its head.
func (ws *Workspace) Unapply(tipRef string, opts UnapplyOptions) error {
	unlock, err := ws.Repo.LockWorktree()
	if err != nil {
		return err
	}
	defer unlock()

	stack := ws.stackForRef(tipRef)
	if stack == nil {
		return fmt.Errorf("stack %s is not applied", tipRef)
	}

	tipID, err := ws.Repo.ResolveRef(tipRef)
	if err != nil {
		return err
	}

	worktreeTree, err := ws.Repo.WorktreeTree()
	if err != nil {
		return err
	}

	tx := ws.Repo.NewRefTransaction()

	if opts.CommitWIP {
		newTip, committed, err := ws.commitWIPAssignments(stack, tipID, worktreeTree)
		if err != nil {
			return err
		}
		if committed {
			tx.Update(tipRef, tipID, newTip)
			tipID = newTip
		}
	}

	// Subtract the stack from the worktree: base = the stack's content,
	// theirs = the workspace floor, ours = the live worktree. Changes the
	// stack introduced vanish; everything else survives.
	workspaceBase, err := ws.Repo.RealTree(ws.TargetID)
	if err != nil {
		return err
	}
	stackTree, err := ws.Repo.RealTree(tipID)
	if err != nil {
		return err
	}
	merge, err := ws.Repo.MergeTrees(stackTree, worktreeTree, workspaceBase, git.MergeOptions{})
	if err != nil {
		return err
	}

	ws.Meta.RemoveStack(tipRef)
	if err := ws.Store.SetWorkspace(ws.Meta); err != nil {
		return err
	}

	synthesis, err := SynthesizeWorkspaceCommit(ws.Repo, ws.TargetID, ws.headsWith(tipRef, plumbing.ZeroHash))
	if err != nil {
		return err
	}
	ws.updateWorkspaceRef(tx, synthesis.CommitID)
	if err := tx.Commit(); err != nil {
		return err
	}

	if err := ws.Repo.CheckoutTree(worktreeTree, merge.TreeID, opts.Checkout); err != nil {
		return err
	}

	if opts.AvoidAnonymousStacks {
		return ws.hoistAnonymousStacks()
	}
	return nil
}

func (ws *Workspace) stackForRef(tipRef string) *Stack {
	if stack := ws.StackByID(tipRef); stack != nil {
		return stack
	}
	stack, _ := ws.FindSegmentAndStackByRefName(tipRef)
	return stack
}

// commitWIPAssignments commits the worktree files locked to the stack onto
// its tip. Assignment is dependency-driven and per file: a worktree file
// belongs to the stack when one of its uncommitted hunks intersects one of
// the stack's committed hunks, and its whole worktree content is committed,
// hunks that intersect nothing included.
func (ws *Workspace) commitWIPAssignments(stack *Stack, tipID, worktreeTree plumbing.Hash) (plumbing.Hash, bool, error) {
	depsByPath, err := ws.WorktreeDependencies()
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	assigned := map[string]bool{}
	for path, pathDeps := range depsByPath {
		for _, dep := range pathDeps {
			if dep.StackID == stack.ID {
				assigned[path] = true
				break
			}
		}
	}
	if len(assigned) == 0 {
		return tipID, false, nil
	}

	// Build the workspace tree with only the assigned paths taken from the
	// worktree, then graft those changes onto the stack head.
	wsTree, err := ws.currentWorkspaceTree()
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	wsFiles, err := ws.Repo.FlattenTree(wsTree)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	wtFiles, err := ws.Repo.FlattenTree(worktreeTree)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	for path := range assigned {
		if entry, ok := wtFiles[path]; ok {
			wsFiles[path] = entry
		} else {
			delete(wsFiles, path)
		}
	}
	assignedTree, err := ws.Repo.WriteTreeFromPaths(wsFiles)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}

	stackTree, err := ws.Repo.RealTree(tipID)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	merge, err := ws.Repo.MergeTrees(wsTree, stackTree, assignedTree, git.MergeOptions{})
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	if merge.TreeID == stackTree {
		return tipID, false, nil
	}

	identity, err := ws.Repo.DefaultSignature()
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	data := &git.CommitData{
		Tree:      merge.TreeID,
		Parents:   []plumbing.Hash{tipID},
		Author:    identity,
		Committer: identity,
		Message:   "WIP Assignments",
	}
	data.SetButlerHeaders()
	newTip, err := ws.Repo.WriteCommit(data)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	return newTip, true, nil
}

// hoistAnonymousStacks re-projects the workspace and, for any stack whose
// commits lost their named segment, moves the ref of the segment below up to
// cover the orphans.
func (ws *Workspace) hoistAnonymousStacks() error {
	fresh, err := Project(ws.Repo, ws.Store, ws.opts)
	if err != nil {
		return err
	}
	tx := ws.Repo.NewRefTransaction()
	for _, stack := range fresh.Stacks {
		if len(stack.Segments) == 0 {
			continue
		}
		top := stack.Segments[0]
		if top.RefName != "" || len(top.Commits) == 0 {
			continue
		}
		for _, lower := range stack.Segments[1:] {
			if lower.RefName == "" {
				continue
			}
			old, err := ws.Repo.ResolveRef(lower.RefName)
			if err != nil {
				break
			}
			tx.Update(lower.RefName, old, top.Commits[0].ID)
			break
		}
	}
	if tx.Empty() {
		return nil
	}
	return tx.Commit()
}
