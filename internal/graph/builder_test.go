package graph_test

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/require"

	"github.com/gitbutlerapp/butler/internal/graph"
	"github.com/gitbutlerapp/butler/internal/workspace"
	"github.com/gitbutlerapp/butler/testhelpers"
)

func project(t *testing.T, scene *testhelpers.Scene) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.Project(scene.Repo, scene.Store, graph.Options{})
	require.NoError(t, err)
	return ws
}

func TestBuildLinearStacks(t *testing.T) {
	scene := testhelpers.NewScene(t)
	m := scene.CommitTree("M", map[string]string{"f": "base\n"})
	scene.SetTarget(m)

	a1 := scene.CommitTree("a1", map[string]string{"f": "base\n", "a": "a\n"}, m)
	a2 := scene.CommitTree("a2", map[string]string{"f": "base\n", "a": "aa\n"}, a1)
	scene.SetRef("refs/heads/feat-a", a2)
	scene.AddStack("refs/heads/feat-a")

	b1 := scene.CommitTree("b1", map[string]string{"f": "base\n", "b": "b\n"}, m)
	scene.SetRef("refs/heads/feat-b", b1)
	scene.AddStack("refs/heads/feat-b")

	ws := project(t, scene)
	g := ws.Graph

	t.Run("each named ref gets its own segment", func(t *testing.T) {
		segA := g.SegmentByRef("refs/heads/feat-a")
		require.NotNil(t, segA)
		require.Len(t, segA.Commits, 2)
		require.Equal(t, a2, segA.Commits[0].ID)
		require.Equal(t, a1, segA.Commits[1].ID)

		segB := g.SegmentByRef("refs/heads/feat-b")
		require.NotNil(t, segB)
		require.Len(t, segB.Commits, 1)
		require.Equal(t, b1, segB.Commits[0].ID)
	})

	t.Run("workspace commits carry the in workspace flag", func(t *testing.T) {
		for _, id := range []plumbing.Hash{a1, a2, b1} {
			flags, ok := g.CommitFlagsOf(id)
			require.True(t, ok)
			require.True(t, flags.Has(graph.InWorkspace), "commit %s", id)
			require.False(t, flags.Has(graph.Integrated))
		}
	})

	t.Run("the target commit is integrated and not walked past", func(t *testing.T) {
		flags, ok := g.CommitFlagsOf(m)
		require.True(t, ok)
		require.True(t, flags.Has(graph.Integrated))
	})

	t.Run("segments partition the walked commits", func(t *testing.T) {
		seen := map[plumbing.Hash]int{}
		for _, seg := range g.Segments {
			for _, c := range seg.Commits {
				seen[c.ID]++
			}
		}
		for id, count := range seen {
			require.Equal(t, 1, count, "commit %s appears %d times", id, count)
		}
		for _, id := range []plumbing.Hash{m, a1, a2, b1} {
			require.Contains(t, seen, id)
		}
	})

	t.Run("stacks follow metadata order", func(t *testing.T) {
		require.Len(t, ws.Stacks, 2)
		require.Equal(t, "refs/heads/feat-a", ws.Stacks[0].ID)
		require.Equal(t, "refs/heads/feat-b", ws.Stacks[1].ID)
	})

	t.Run("lower bound is the merge base with the target", func(t *testing.T) {
		require.Equal(t, m, ws.LowerBound)
	})
}

func TestBuildMergeCommit(t *testing.T) {
	scene := testhelpers.NewScene(t)
	m := scene.CommitTree("M", map[string]string{"f": "base\n"})
	scene.SetTarget(m)

	p1 := scene.CommitTree("p1", map[string]string{"f": "base\n", "p1": "1\n"}, m)
	p2 := scene.CommitTree("p2", map[string]string{"f": "base\n", "p2": "2\n"}, m)
	scene.SetRef("refs/heads/feature", p2)

	mergeTree := scene.TreeOf(p1)
	merge := scene.CommitTreeID("merge p2", mergeTree, p1, p2)
	scene.SetRef("refs/heads/dev", merge)
	scene.AddStack("refs/heads/dev")

	ws := project(t, scene)
	g := ws.Graph

	t.Run("merge belongs to the first parent chain segment", func(t *testing.T) {
		segDev := g.SegmentByRef("refs/heads/dev")
		require.NotNil(t, segDev)
		require.Equal(t, merge, segDev.Commits[0].ID)
	})

	t.Run("second parent segment is linked with order one", func(t *testing.T) {
		segDev := g.SegmentByRef("refs/heads/dev")
		segFeature := g.SegmentByRef("refs/heads/feature")
		require.NotNil(t, segFeature)
		require.Equal(t, p2, segFeature.Commits[0].ID)

		var found bool
		for _, e := range g.ParentEdges(segDev.ID) {
			if e.To == segFeature.ID {
				require.Equal(t, 1, e.Order)
				found = true
			}
		}
		require.True(t, found, "expected an order-1 edge from dev to feature")
	})

	t.Run("first parent starts its own segment at the merge boundary", func(t *testing.T) {
		seg, pos := g.SegmentContaining(p1)
		require.NotNil(t, seg)
		require.Equal(t, 0, pos)
		require.NotEqual(t, g.SegmentByRef("refs/heads/dev").ID, seg.ID)
	})
}

func TestWalkMeetsEarlierSegment(t *testing.T) {
	scene := testhelpers.NewScene(t)
	m := scene.CommitTree("M", map[string]string{"f": "base\n"})
	scene.SetTarget(m)

	shared := scene.CommitTree("shared", map[string]string{"s": "1\n"}, m)
	top := scene.CommitTree("top", map[string]string{"s": "1\n", "t": "2\n"}, shared)
	scene.SetRef("refs/heads/long", top)

	// A second ref points into the middle of long's chain
	scene.SetRef("refs/heads/short", shared)

	scene.AddStack("refs/heads/long")
	scene.AddStack("refs/heads/short")

	ws := project(t, scene)
	g := ws.Graph

	// shared carries a ref, so it must head its own segment even though the
	// walk from long reached it first.
	segShort := g.SegmentByRef("refs/heads/short")
	require.NotNil(t, segShort)
	require.Equal(t, shared, segShort.Commits[0].ID)

	segLong := g.SegmentByRef("refs/heads/long")
	require.NotNil(t, segLong)
	require.Len(t, segLong.Commits, 1)
	require.Equal(t, top, segLong.Commits[0].ID)
}

func TestRemoteTracking(t *testing.T) {
	scene := testhelpers.NewScene(t)
	m := scene.CommitTree("M", map[string]string{"f": "base\n"})
	scene.SetTarget(m)

	c1 := scene.CommitTree("c1", map[string]string{"c": "1\n"}, m)
	c2 := scene.CommitTree("c2", map[string]string{"c": "2\n"}, c1)
	scene.SetRef("refs/heads/feat", c2)
	scene.AddStack("refs/heads/feat")

	t.Run("remote behind marks pushed commits", func(t *testing.T) {
		scene.SetRef("refs/remotes/origin/feat", c1)

		ws := project(t, scene)
		flags, ok := ws.Graph.CommitFlagsOf(c1)
		require.True(t, ok)
		require.True(t, flags.Has(graph.ReachableByRemote))

		flags, _ = ws.Graph.CommitFlagsOf(c2)
		require.False(t, flags.Has(graph.ReachableByRemote))

		_, seg := ws.FindSegmentAndStackByRefName("refs/heads/feat")
		require.NotNil(t, seg)
		require.Equal(t, workspace.StatusUnpushedCommits, workspace.SegmentPushStatus(seg))
	})

	t.Run("remote in sync produces an empty sibling segment", func(t *testing.T) {
		scene.SetRef("refs/remotes/origin/feat", c2)

		ws := project(t, scene)
		segFeat := ws.Graph.SegmentByRef("refs/heads/feat")
		require.NotNil(t, segFeat)
		require.GreaterOrEqual(t, segFeat.SiblingID, 0)

		sibling := ws.Graph.Segments[segFeat.SiblingID]
		require.Empty(t, sibling.Commits)
		require.Equal(t, "refs/remotes/origin/feat", sibling.RemoteTrackingRefName)
		require.Equal(t, segFeat.ID, sibling.SiblingID)

		require.Equal(t, workspace.StatusNothingToPush, workspace.SegmentPushStatus(segFeat))
	})
}

func TestHardLimit(t *testing.T) {
	scene := testhelpers.NewScene(t)
	m := scene.CommitTree("M", map[string]string{"f": "base\n"})
	scene.SetTarget(m)

	tip := m
	for i := 0; i < 10; i++ {
		tip = scene.CommitTree("c", map[string]string{"n": string(rune('a' + i))}, tip)
	}
	scene.SetRef("refs/heads/deep", tip)
	scene.AddStack("refs/heads/deep")

	ws, err := workspace.Project(scene.Repo, scene.Store, graph.Options{MaxCommits: 5})
	require.NoError(t, err)
	require.True(t, ws.Graph.HardLimitHit)
	require.LessOrEqual(t, ws.Graph.Stats().Commits, 5)
}

func TestRedoTraversalWithOverlay(t *testing.T) {
	scene := testhelpers.NewScene(t)
	m := scene.CommitTree("M", map[string]string{"f": "base\n"})
	scene.SetTarget(m)

	c1 := scene.CommitTree("c1", map[string]string{"c": "1\n"}, m)
	c2 := scene.CommitTree("c2", map[string]string{"c": "2\n"}, c1)
	scene.SetRef("refs/heads/feat", c1)
	scene.AddStack("refs/heads/feat")

	ws := project(t, scene)
	require.Len(t, ws.Stacks, 1)
	tip, ok := ws.Stacks[0].Tip()
	require.True(t, ok)
	require.Equal(t, c1, tip.ID)

	// Overlay the ref forward without touching the repository
	redone, err := ws.Reproject(map[string]plumbing.Hash{"refs/heads/feat": c2})
	require.NoError(t, err)
	tip, ok = redone.Stacks[0].Tip()
	require.True(t, ok)
	require.Equal(t, c2, tip.ID)

	// The repository itself is untouched
	require.Equal(t, c1, scene.ResolveRef("refs/heads/feat"))
}
