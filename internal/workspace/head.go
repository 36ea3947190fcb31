package workspace

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/gitbutlerapp/butler/internal/git"
)

// SynthesisResult is the outcome of (re)creating the workspace commit
type SynthesisResult struct {
	// CommitID is the new workspace commit
	CommitID plumbing.Hash
	// TreeID is its tree: target plus every absorbed stack head
	TreeID plumbing.Hash
	// MergedHeads are the stack heads that became parents, in order
	MergedHeads []plumbing.Hash
	// Unappliable lists heads that could not be absorbed; their stacks stay
	// in the workspace metadata but are not part of the merge.
	Unappliable []plumbing.Hash
}

// SynthesizeWorkspaceCommit merges the given stack heads, in order, on top
// of the target commit and writes the merge commit that backs the worktree.
// Conflicts resolve in favor of what is already absorbed ("ours"); a head
// whose merge fails outright is skipped and reported instead of aborting.
func SynthesizeWorkspaceCommit(repo *git.Repository, targetID plumbing.Hash, heads []plumbing.Hash) (*SynthesisResult, error) {
	if targetID.IsZero() {
		return nil, fmt.Errorf("workspace synthesis needs a target commit")
	}
	targetTree, err := repo.RealTree(targetID)
	if err != nil {
		return nil, err
	}

	result := &SynthesisResult{}
	tree := targetTree
	for _, head := range heads {
		branchTree, err := repo.RealTree(head)
		if err != nil {
			return nil, err
		}
		merge, mergeErr := repo.MergeTrees(targetTree, tree, branchTree, git.MergeOptions{})
		if mergeErr != nil {
			result.Unappliable = append(result.Unappliable, head)
			continue
		}
		tree = merge.TreeID
		result.MergedHeads = append(result.MergedHeads, head)
	}

	parents := result.MergedHeads
	if len(parents) == 0 {
		parents = []plumbing.Hash{targetID}
	}

	identity, err := repo.DefaultSignature()
	if err != nil {
		return nil, err
	}
	data := &git.CommitData{
		Tree:      tree,
		Parents:   parents,
		Author:    identity,
		Committer: identity,
		Message:   git.WorkspaceMessage,
	}
	// No change-id here: re-synthesizing with unchanged inputs and a
	// deterministic clock must reproduce the same commit id.

	commitID, err := repo.WriteCommit(data)
	if err != nil {
		return nil, err
	}
	result.CommitID = commitID
	result.TreeID = tree
	return result, nil
}

// currentWorkspaceTree returns the tree backing the worktree right now: the
// workspace commit's real tree, or the target tree when no workspace commit
// exists yet.
func (ws *Workspace) currentWorkspaceTree() (plumbing.Hash, error) {
	if !ws.HeadID.IsZero() {
		return ws.Repo.RealTree(ws.HeadID)
	}
	if !ws.TargetID.IsZero() {
		return ws.Repo.RealTree(ws.TargetID)
	}
	return git.EmptyTreeID, nil
}

// updateWorkspaceRef plans the canonical workspace ref write into the
// transaction, retiring the legacy name when it is still around.
func (ws *Workspace) updateWorkspaceRef(tx *git.RefTransaction, newHead plumbing.Hash) {
	tx.Update(git.WorkspaceRef, ws.headAtCanonicalRef(), newHead)
	if ws.RefName == git.LegacyWorkspaceRef {
		tx.Delete(git.LegacyWorkspaceRef)
	}
}

func (ws *Workspace) headAtCanonicalRef() plumbing.Hash {
	id, err := ws.Repo.ResolveRef(git.WorkspaceRef)
	if err != nil {
		return plumbing.ZeroHash
	}
	return id
}
