package workspace

import (
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/gitbutlerapp/butler/internal/git"
	"github.com/gitbutlerapp/butler/internal/rebase"
)

// PlanRebase builds the step graph covering every applied stack, ready for
// edits. The workspace commit itself is not part of the plan: it is
// re-synthesized from the rewritten stack heads when the outcome is
// materialized.
func (ws *Workspace) PlanRebase() (*rebase.StepGraph, error) {
	if ws.HeadID.IsZero() {
		return rebase.FromGraph(ws.Repo, ws.Graph)
	}
	return rebase.FromGraph(ws.Repo, ws.Graph, ws.HeadID)
}

// MaterializeRebase flushes a rebase outcome: the planned ref updates land
// first as one batch, then the workspace commit is re-synthesized from the
// rewritten stack heads and the worktree is reconciled three-way so
// in-progress edits survive the rewrite.
func (ws *Workspace) MaterializeRebase(outcome *rebase.Outcome, checkout git.CheckoutOptions) error {
	unlock, err := ws.Repo.LockWorktree()
	if err != nil {
		return err
	}
	defer unlock()

	oldWorkspaceTree, err := ws.currentWorkspaceTree()
	if err != nil {
		return err
	}
	worktreeTree, err := ws.Repo.WorktreeTree()
	if err != nil {
		return err
	}

	if err := outcome.MaterializeWithoutCheckout(); err != nil {
		return err
	}

	if ws.TargetID.IsZero() {
		return nil
	}

	// Stack refs have moved; re-resolving them yields the rewritten heads.
	heads := ws.headsWith("", plumbing.ZeroHash)
	synthesis, err := SynthesizeWorkspaceCommit(ws.Repo, ws.TargetID, heads)
	if err != nil {
		return err
	}

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
