package workspace_test

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/require"

	"github.com/gitbutlerapp/butler/internal/git"
	"github.com/gitbutlerapp/butler/internal/graph"
	"github.com/gitbutlerapp/butler/internal/rebase"
	"github.com/gitbutlerapp/butler/internal/workspace"
	"github.com/gitbutlerapp/butler/testhelpers"
)

func project(t *testing.T, scene *testhelpers.Scene) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.Project(scene.Repo, scene.Store, graph.Options{})
	require.NoError(t, err)
	return ws
}

func TestTwoStackWorkspace(t *testing.T) {
	scene := testhelpers.NewScene(t)
	m := scene.CommitTree("M", map[string]string{"f": "base\n"})
	scene.SetTarget(m)

	a1 := scene.CommitTree("a1", map[string]string{"f": "base\n", "a": "a\n"}, m)
	scene.SetRef("refs/heads/a", a1)
	b1 := scene.CommitTree("b1", map[string]string{"f": "base\n", "b": "b\n"}, m)
	scene.SetRef("refs/heads/b", b1)

	synthesis, err := workspace.SynthesizeWorkspaceCommit(scene.Repo, m, []plumbing.Hash{a1, b1})
	require.NoError(t, err)
	require.Empty(t, synthesis.Unappliable)

	t.Run("the workspace commit merges both heads", func(t *testing.T) {
		data, err := scene.Repo.ReadCommit(synthesis.CommitID)
		require.NoError(t, err)
		require.Equal(t, []plumbing.Hash{a1, b1}, data.Parents)
		require.Equal(t, "Workspace Head", data.Message)

		require.Equal(t, "a\n", scene.FileInTree(synthesis.TreeID, "a"))
		require.Equal(t, "b\n", scene.FileInTree(synthesis.TreeID, "b"))
		require.Equal(t, "base\n", scene.FileInTree(synthesis.TreeID, "f"))
	})

	t.Run("status lists both stacks as completely unpushed", func(t *testing.T) {
		scene.SetRef(git.WorkspaceRef, synthesis.CommitID)
		scene.AddStack("refs/heads/a")
		scene.AddStack("refs/heads/b")

		ws := project(t, scene)
		require.Len(t, ws.Stacks, 2)
		for i, stack := range ws.Stacks {
			require.Len(t, stack.Commits(), 1, "stack %d", i)
			require.Equal(t, workspace.StatusCompletelyUnpushed, workspace.SegmentPushStatus(stack.Segments[0]))
		}
		require.Equal(t, m, ws.LowerBound)
	})

	t.Run("re-synthesis with a deterministic clock is bit identical", func(t *testing.T) {
		again, err := workspace.SynthesizeWorkspaceCommit(scene.Repo, m, []plumbing.Hash{a1, b1})
		require.NoError(t, err)
		require.Equal(t, synthesis.CommitID, again.CommitID)
	})

	t.Run("conflicting heads favor the earlier stack", func(t *testing.T) {
		x1 := scene.CommitTree("x1", map[string]string{"f": "from x\n"}, m)
		y1 := scene.CommitTree("y1", map[string]string{"f": "from y\n"}, m)

		res, err := workspace.SynthesizeWorkspaceCommit(scene.Repo, m, []plumbing.Hash{x1, y1})
		require.NoError(t, err)
		require.Equal(t, "from x\n", scene.FileInTree(res.TreeID, "f"))
	})
}

func TestApplyUnapplyInverse(t *testing.T) {
	scene := testhelpers.NewScene(t)
	m := scene.CommitTree("M", map[string]string{"f": "base\n", "g": "g\n"})
	scene.SetTarget(m)
	scene.CheckoutCommit(m)

	s1 := scene.CommitTree("s1", map[string]string{"f": "base\n", "g": "g\n", "s.txt": "stack\n"}, m)
	scene.SetRef("refs/heads/s", s1)

	ws := project(t, scene)
	require.NoError(t, ws.Apply("refs/heads/s", workspace.ApplyOptions{}))

	t.Run("apply installs the stack and its files", func(t *testing.T) {
		require.Equal(t, "stack\n", scene.ReadWorktreeFile("s.txt"))

		head := scene.ResolveRef(git.WorkspaceRef)
		data, err := scene.Repo.ReadCommit(head)
		require.NoError(t, err)
		require.Equal(t, []plumbing.Hash{s1}, data.Parents)

		fresh := project(t, scene)
		require.Len(t, fresh.Stacks, 1)
		require.Equal(t, "refs/heads/s", fresh.Stacks[0].ID)
	})

	t.Run("unapply returns the worktree to its previous contents", func(t *testing.T) {
		fresh := project(t, scene)
		require.NoError(t, fresh.Unapply("refs/heads/s", workspace.UnapplyOptions{}))

		require.False(t, scene.WorktreeFileExists("s.txt"))
		require.Equal(t, "base\n", scene.ReadWorktreeFile("f"))
		require.Equal(t, "g\n", scene.ReadWorktreeFile("g"))

		// The stack is gone from the projection but its ref survives
		after := project(t, scene)
		require.Empty(t, after.Stacks)
		require.Equal(t, s1, scene.ResolveRef("refs/heads/s"))

		// The workspace commit now sits directly on the target
		head := scene.ResolveRef(git.WorkspaceRef)
		data, err := scene.Repo.ReadCommit(head)
		require.NoError(t, err)
		require.Equal(t, []plumbing.Hash{m}, data.Parents)
	})

	t.Run("re-apply restores the stack", func(t *testing.T) {
		fresh := project(t, scene)
		require.NoError(t, fresh.Apply("refs/heads/s", workspace.ApplyOptions{}))
		require.Equal(t, "stack\n", scene.ReadWorktreeFile("s.txt"))
	})
}

func TestUnapplyKeepsLockedWorktreeChange(t *testing.T) {
	scene := testhelpers.NewScene(t)
	m := scene.CommitTree("M", map[string]string{"f": "x\ny\n"})
	scene.SetTarget(m)
	scene.CheckoutCommit(m)

	// The stack adds lines 1-3 on top of f
	s1 := scene.CommitTree("s1", map[string]string{"f": "l1\nl2\nl3\nx\ny\n"}, m)
	scene.SetRef("refs/heads/s", s1)

	ws := project(t, scene)
	require.NoError(t, ws.Apply("refs/heads/s", workspace.ApplyOptions{}))
	require.Equal(t, "l1\nl2\nl3\nx\ny\n", scene.ReadWorktreeFile("f"))

	// The user edits line 2 in the worktree
	scene.WriteWorktreeFile("f", "l1\nl2-edited\nl3\nx\ny\n")

	fresh := project(t, scene)
	require.NoError(t, fresh.Unapply("refs/heads/s", workspace.UnapplyOptions{}))

	// Lines 1 and 3 are gone with the stack; the edited line 2 stays
	require.Equal(t, "l2-edited\nx\ny\n", scene.ReadWorktreeFile("f"))
}

func TestApplyRebasesOntoTarget(t *testing.T) {
	scene := testhelpers.NewScene(t)
	oldTarget := scene.CommitTree("old target", map[string]string{"f": "base\n"})
	s1 := scene.CommitTree("s1", map[string]string{"f": "base\n", "s": "s\n"}, oldTarget)
	scene.SetRef("refs/heads/s", s1)

	// The target has moved ahead since the branch forked
	newTarget := scene.CommitTree("new target", map[string]string{"f": "base\n", "t": "t\n"}, oldTarget)
	scene.SetTarget(newTarget)
	scene.CheckoutCommit(newTarget)

	ws := project(t, scene)
	require.NoError(t, ws.Apply("refs/heads/s", workspace.ApplyOptions{}))

	// The stack tip was rebased onto the target
	newTip := scene.ResolveRef("refs/heads/s")
	require.NotEqual(t, s1, newTip)
	data, err := scene.Repo.ReadCommit(newTip)
	require.NoError(t, err)
	require.Equal(t, []plumbing.Hash{newTarget}, data.Parents)

	// The worktree carries both the target's and the stack's files
	require.Equal(t, "t\n", scene.ReadWorktreeFile("t"))
	require.Equal(t, "s\n", scene.ReadWorktreeFile("s"))
}

func TestWorkspaceDigestAndDependencies(t *testing.T) {
	scene := testhelpers.NewScene(t)
	m := scene.CommitTree("M", map[string]string{"f": "1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n"})
	scene.SetTarget(m)
	scene.CheckoutCommit(m)

	// Stack one changes line 2, stack two changes line 8
	s1 := scene.CommitTree("s1", map[string]string{"f": "1\ntwo\n3\n4\n5\n6\n7\n8\n9\n10\n"}, m)
	scene.SetRef("refs/heads/one", s1)
	s2 := scene.CommitTree("s2", map[string]string{"f": "1\n2\n3\n4\n5\n6\n7\neight\n9\n10\n"}, m)
	scene.SetRef("refs/heads/two", s2)

	ws := project(t, scene)
	require.NoError(t, ws.Apply("refs/heads/one", workspace.ApplyOptions{}))
	fresh := project(t, scene)
	require.NoError(t, fresh.Apply("refs/heads/two", workspace.ApplyOptions{}))

	fresh = project(t, scene)
	require.Len(t, fresh.Stacks, 2)

	ranges, err := fresh.HunkDependencies()
	require.NoError(t, err)
	require.Empty(t, ranges.Errors())

	depsAt2 := ranges.IntersectingCommits("f", 2, 1)
	require.Len(t, depsAt2, 1)
	require.Equal(t, "refs/heads/one", depsAt2[0].StackID)
	require.Equal(t, s1, depsAt2[0].CommitID)

	depsAt8 := ranges.IntersectingCommits("f", 8, 1)
	require.Len(t, depsAt8, 1)
	require.Equal(t, "refs/heads/two", depsAt8[0].StackID)

	require.Empty(t, ranges.IntersectingCommits("f", 5, 1))

	t.Run("a worktree edit on an owned line is locked to its stack", func(t *testing.T) {
		scene.WriteWorktreeFile("f", "1\nTWO\n3\n4\n5\n6\n7\neight\n9\n10\n")
		byPath, err := fresh.WorktreeDependencies()
		require.NoError(t, err)
		require.Len(t, byPath["f"], 1)
		require.Equal(t, "refs/heads/one", byPath["f"][0].StackID)
	})
}

func TestUnapplyCommitsWIPAssignments(t *testing.T) {
	scene := testhelpers.NewScene(t)
	m := scene.CommitTree("M", map[string]string{"f": "1\n2\n3\n4\n5\n"})
	scene.SetTarget(m)
	scene.CheckoutCommit(m)

	s1 := scene.CommitTree("s1", map[string]string{"f": "one\n2\n3\n4\n5\n"}, m)
	scene.SetRef("refs/heads/s", s1)

	ws := project(t, scene)
	require.NoError(t, ws.Apply("refs/heads/s", workspace.ApplyOptions{}))

	// Edit the line the stack owns
	scene.WriteWorktreeFile("f", "one more\n2\n3\n4\n5\n")

	fresh := project(t, scene)
	require.NoError(t, fresh.Unapply("refs/heads/s", workspace.UnapplyOptions{CommitWIP: true}))

	// The edit went with the stack as a WIP commit
	newTip := scene.ResolveRef("refs/heads/s")
	require.NotEqual(t, s1, newTip)
	data, err := scene.Repo.ReadCommit(newTip)
	require.NoError(t, err)
	require.Equal(t, "WIP Assignments", data.Message)
	require.Equal(t, []plumbing.Hash{s1}, data.Parents)

	tipTree, err := scene.Repo.RealTree(newTip)
	require.NoError(t, err)
	require.Equal(t, "one more\n2\n3\n4\n5\n", scene.FileInTree(tipTree, "f"))

	// The worktree dropped back to the target content
	require.Equal(t, "1\n2\n3\n4\n5\n", scene.ReadWorktreeFile("f"))
}

func TestRebaseDropCommitUpdatesWorktree(t *testing.T) {
	scene := testhelpers.NewScene(t)
	m := scene.CommitTree("M", map[string]string{"base.txt": "0\n"})
	scene.SetTarget(m)
	scene.CheckoutCommit(m)

	a := scene.CommitTree("a", map[string]string{"base.txt": "0\n", "fa": "a\n"}, m)
	b := scene.CommitTree("b", map[string]string{"base.txt": "0\n", "fa": "a\n", "fb": "b\n"}, a)
	c := scene.CommitTree("c", map[string]string{"base.txt": "0\n", "fa": "a\n", "fb": "b\n", "fc": "c\n"}, b)
	scene.SetRef("refs/heads/s", c)

	ws := project(t, scene)
	require.NoError(t, ws.Apply("refs/heads/s", workspace.ApplyOptions{}))
	require.Equal(t, "b\n", scene.ReadWorktreeFile("fb"))

	fresh := project(t, scene)
	sg, err := fresh.PlanRebase()
	require.NoError(t, err)

	// The workspace commit is not part of the plan
	_, hasHead := sg.SelectCommit(fresh.HeadID)
	require.False(t, hasHead)

	sel, ok := sg.SelectCommit(b)
	require.True(t, ok)
	sg.Drop(sel)

	outcome, err := sg.Rebase(rebase.Options{})
	require.NoError(t, err)
	require.NoError(t, fresh.MaterializeRebase(outcome, git.CheckoutOptions{}))

	// The stack is now base <- a <- c' and the worktree lost b's file
	newTip := scene.ResolveRef("refs/heads/s")
	require.Equal(t, outcome.CommitMap[c], newTip)
	data, err := scene.Repo.ReadCommit(newTip)
	require.NoError(t, err)
	require.Equal(t, []plumbing.Hash{a}, data.Parents)

	require.False(t, scene.WorktreeFileExists("fb"))
	require.Equal(t, "a\n", scene.ReadWorktreeFile("fa"))
	require.Equal(t, "c\n", scene.ReadWorktreeFile("fc"))

	// The workspace commit was re-synthesized on the rewritten head
	head := scene.ResolveRef(git.WorkspaceRef)
	headData, err := scene.Repo.ReadCommit(head)
	require.NoError(t, err)
	require.Equal(t, []plumbing.Hash{newTip}, headData.Parents)
}

func TestEditModeMetadata(t *testing.T) {
	scene := testhelpers.NewScene(t)
	// In-memory repositories have no state directory: reads report absence
	meta, active, err := workspace.ReadEditMode(scene.Repo)
	require.NoError(t, err)
	require.False(t, active)
	require.Nil(t, meta)
}
