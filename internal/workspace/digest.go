package workspace

import (
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/gitbutlerapp/butler/internal/deps"
	"github.com/gitbutlerapp/butler/internal/git"
)

// BuildDigest turns every stack's committed changes into the raw per-file
// hunk bundles the dependency engine consumes. Commits are emitted oldest
// first; merge commits contribute their first-parent diff.
func (ws *Workspace) BuildDigest() ([]deps.InputStack, error) {
	var out []deps.InputStack
	for _, stack := range ws.Stacks {
		input := deps.InputStack{StackID: stack.ID}

		commits := stack.Commits()
		for i := len(commits) - 1; i >= 0; i-- {
			c := commits[i]
			inputCommit, err := ws.commitDigest(c.ID, c.Parents)
			if err != nil {
				return nil, err
			}
			input.Commits = append(input.Commits, inputCommit)
		}
		out = append(out, input)
	}
	return out, nil
}

func (ws *Workspace) commitDigest(id plumbing.Hash, parents []plumbing.Hash) (deps.InputCommit, error) {
	repo := ws.Repo
	out := deps.InputCommit{CommitID: id}

	newTree, err := repo.RealTree(id)
	if err != nil {
		return out, err
	}
	oldTree := git.EmptyTreeID
	if len(parents) > 0 {
		oldTree, err = repo.RealTree(parents[0])
		if err != nil {
			return out, err
		}
	}

	oldFiles, err := repo.FlattenTree(oldTree)
	if err != nil {
		return out, err
	}
	newFiles, err := repo.FlattenTree(newTree)
	if err != nil {
		return out, err
	}

	paths := map[string]struct{}{}
	for p := range oldFiles {
		paths[p] = struct{}{}
	}
	for p := range newFiles {
		paths[p] = struct{}{}
	}

	for path := range paths {
		oldEntry, hadOld := oldFiles[path]
		newEntry, hasNew := newFiles[path]
		if hadOld && hasNew && oldEntry.Hash == newEntry.Hash {
			continue
		}

		file := deps.InputFile{Path: path}
		switch {
		case !hadOld:
			file.Change = deps.FileAdded
		case !hasNew:
			file.Change = deps.FileDeleted
		default:
			file.Change = deps.FileModified
		}

		if file.Change != deps.FileDeleted {
			oldID := plumbing.ZeroHash
			if hadOld {
				oldID = oldEntry.Hash
			}
			headers, err := repo.DiffBlobHunks(oldID, newEntry.Hash)
			if err != nil {
				return out, err
			}
			for _, h := range headers {
				file.Hunks = append(file.Hunks, deps.InputHunk{
					OldStart: h.OldStart,
					OldLines: h.OldLines,
					NewStart: h.NewStart,
					NewLines: h.NewLines,
				})
			}
		}
		out.Files = append(out.Files, file)
	}
	return out, nil
}

// HunkDependencies rebuilds the workspace hunk ledger. It is ephemeral:
// callers re-run this after any ref change.
func (ws *Workspace) HunkDependencies() (*deps.WorkspaceRanges, error) {
	digest, err := ws.BuildDigest()
	if err != nil {
		return nil, err
	}
	return deps.Calculate(digest), nil
}

// WorktreeDependencies maps every uncommitted hunk of the files present in
// the worktree to the committed hunks it depends on, keyed by path. Files
// deleted from the worktree are not examined.
func (ws *Workspace) WorktreeDependencies() (map[string][]deps.Dependency, error) {
	ranges, err := ws.HunkDependencies()
	if err != nil {
		return nil, err
	}

	wsTree, err := ws.currentWorkspaceTree()
	if err != nil {
		return nil, err
	}
	cwdt, err := ws.Repo.WorktreeTree()
	if err != nil {
		return nil, err
	}
	oldFiles, err := ws.Repo.FlattenTree(wsTree)
	if err != nil {
		return nil, err
	}
	newFiles, err := ws.Repo.FlattenTree(cwdt)
	if err != nil {
		return nil, err
	}

	out := map[string][]deps.Dependency{}
	for path, newEntry := range newFiles {
		oldEntry, hadOld := oldFiles[path]
		if hadOld && oldEntry.Hash == newEntry.Hash {
			continue
		}
		oldID := plumbing.ZeroHash
		if hadOld {
			oldID = oldEntry.Hash
		}
		headers, err := ws.Repo.DiffBlobHunks(oldID, newEntry.Hash)
		if err != nil {
			return nil, err
		}
		// Uncommitted hunks are queried in the coordinates of the committed
		// image, i.e. the old side of the worktree diff.
		for _, h := range headers {
			for _, dep := range ranges.IntersectingCommits(path, h.OldStart, h.OldLines) {
				out[path] = append(out[path], dep)
			}
		}
	}
	return out, nil
}
