package deps

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/require"
)

func hash(b byte) plumbing.Hash {
	var h plumbing.Hash
	h[0] = b
	return h
}

func TestHunkRangeIntersects(t *testing.T) {
	t.Run("plain ranges intersect when they overlap", func(t *testing.T) {
		r := HunkRange{ChangeType: Modified, Start: 10, Lines: 5}
		require.True(t, r.Intersects(10, 1))
		require.True(t, r.Intersects(14, 1))
		require.True(t, r.Intersects(8, 3))
		require.True(t, r.Intersects(14, 10))
		require.False(t, r.Intersects(15, 1))
		require.False(t, r.Intersects(1, 9))
	})

	t.Run("deleted ranges intersect everything", func(t *testing.T) {
		r := HunkRange{ChangeType: Deleted, Start: 1, Lines: 0}
		require.True(t, r.Intersects(1, 1))
		require.True(t, r.Intersects(9999, 50))
		require.True(t, r.Intersects(7, 0))
	})

	t.Run("zero line query is an insertion point", func(t *testing.T) {
		r := HunkRange{ChangeType: Modified, Start: 10, Lines: 5}
		// Covered positions intersect, inclusive of the start
		require.True(t, r.Intersects(10, 0))
		require.True(t, r.Intersects(14, 0))
		require.False(t, r.Intersects(15, 0))
		require.False(t, r.Intersects(9, 0))
	})

	t.Run("insertion ranges only meet queries that span them", func(t *testing.T) {
		r := HunkRange{ChangeType: Added, Start: 10, Lines: 0}
		require.True(t, r.Intersects(5, 10))
		require.True(t, r.Intersects(10, 5))
		require.False(t, r.Intersects(1, 9))
	})

	t.Run("insertion point meets insertion at the same position", func(t *testing.T) {
		r := HunkRange{ChangeType: Added, Start: 10, Lines: 0}
		require.True(t, r.Intersects(10, 0))
		require.False(t, r.Intersects(11, 0))
	})

	t.Run("intersection is symmetric for non deleted ranges", func(t *testing.T) {
		ranges := []HunkRange{
			{ChangeType: Modified, Start: 5, Lines: 3},
			{ChangeType: Added, Start: 12, Lines: 0},
			{ChangeType: Modified, Start: 20, Lines: 1},
		}
		queries := []struct{ start, lines uint32 }{
			{1, 10}, {5, 1}, {7, 3}, {12, 0}, {11, 2}, {20, 1}, {25, 5},
		}
		for _, r := range ranges {
			for _, q := range queries {
				mirror := HunkRange{ChangeType: r.ChangeType, Start: q.start, Lines: q.lines}
				require.Equal(t, r.Intersects(q.start, q.lines), mirror.Intersects(r.Start, r.Lines),
					"range %+v query %+v", r, q)
			}
		}
	})
}

func TestLedgerShifting(t *testing.T) {
	c1 := hash(1)
	c2 := hash(2)

	t.Run("later insertion shifts earlier ledger entries below it", func(t *testing.T) {
		w := Calculate([]InputStack{{
			StackID: "s1",
			Commits: []InputCommit{
				{CommitID: c1, Files: []InputFile{{
					Path: "f", Change: FileModified,
					Hunks: []InputHunk{{OldStart: 5, OldLines: 2, NewStart: 5, NewLines: 2}},
				}}},
				{CommitID: c2, Files: []InputFile{{
					Path: "f", Change: FileModified,
					Hunks: []InputHunk{{OldStart: 2, OldLines: 0, NewStart: 2, NewLines: 3}},
				}}},
			},
		}})
		require.Empty(t, w.Errors())

		// c1's footprint moved from line 5 to line 8
		deps := w.IntersectingCommits("f", 8, 2)
		require.Equal(t, []Dependency{{StackID: "s1", CommitID: c1}}, deps)
		// c2's insertion lives at lines 2-4
		deps = w.IntersectingCommits("f", 2, 3)
		require.Equal(t, []Dependency{{StackID: "s1", CommitID: c2}}, deps)
		// The old location of c1 is no longer owned
		require.Empty(t, w.IntersectingCommits("f", 5, 1))
	})

	t.Run("overlapping commit takes ownership of the overlap", func(t *testing.T) {
		w := Calculate([]InputStack{{
			StackID: "s1",
			Commits: []InputCommit{
				{CommitID: c1, Files: []InputFile{{
					Path: "f", Change: FileModified,
					Hunks: []InputHunk{{OldStart: 5, OldLines: 4, NewStart: 5, NewLines: 4}},
				}}},
				{CommitID: c2, Files: []InputFile{{
					Path: "f", Change: FileModified,
					Hunks: []InputHunk{{OldStart: 6, OldLines: 2, NewStart: 6, NewLines: 2}},
				}}},
			},
		}})
		require.Empty(t, w.Errors())

		require.Equal(t, []Dependency{{StackID: "s1", CommitID: c2}}, w.IntersectingCommits("f", 6, 2))
		// The truncated head and tail still belong to c1
		require.Equal(t, []Dependency{{StackID: "s1", CommitID: c1}}, w.IntersectingCommits("f", 5, 1))
		require.Equal(t, []Dependency{{StackID: "s1", CommitID: c1}}, w.IntersectingCommits("f", 8, 1))
	})
}

func TestFileTransitions(t *testing.T) {
	c1 := hash(1)
	c2 := hash(2)
	c3 := hash(3)

	t.Run("recreation after deletion re-owns the file", func(t *testing.T) {
		w := Calculate([]InputStack{{
			StackID: "s1",
			Commits: []InputCommit{
				{CommitID: c1, Files: []InputFile{{
					Path: "f", Change: FileModified,
					Hunks: []InputHunk{{OldStart: 1, OldLines: 1, NewStart: 1, NewLines: 1}},
				}}},
				{CommitID: c2, Files: []InputFile{{Path: "f", Change: FileDeleted}}},
				{CommitID: c3, Files: []InputFile{{
					Path: "f", Change: FileAdded,
					Hunks: []InputHunk{{OldStart: 1, OldLines: 0, NewStart: 1, NewLines: 2}},
				}}},
			},
		}})
		require.Empty(t, w.Errors())
		require.Equal(t, []Dependency{{StackID: "s1", CommitID: c3}}, w.IntersectingCommits("f", 1, 1))
	})

	t.Run("double deletion is a calculation error that spares other paths", func(t *testing.T) {
		w := Calculate([]InputStack{{
			StackID: "s1",
			Commits: []InputCommit{
				{CommitID: c1, Files: []InputFile{
					{Path: "f", Change: FileDeleted},
					{Path: "g", Change: FileModified, Hunks: []InputHunk{{OldStart: 3, OldLines: 1, NewStart: 3, NewLines: 1}}},
				}},
				{CommitID: c2, Files: []InputFile{{Path: "f", Change: FileDeleted}}},
			},
		}})
		require.Len(t, w.Errors(), 1)
		require.Contains(t, w.Errors()[0].Error(), "deleted twice")

		// The broken path is dropped, the healthy one still answers
		require.Empty(t, w.IntersectingCommits("f", 1, 1))
		require.Equal(t, []Dependency{{StackID: "s1", CommitID: c1}}, w.IntersectingCommits("g", 3, 1))
	})

	t.Run("deletion intersects any query on the path", func(t *testing.T) {
		w := Calculate([]InputStack{{
			StackID: "s1",
			Commits: []InputCommit{
				{CommitID: c1, Files: []InputFile{{Path: "f", Change: FileDeleted}}},
			},
		}})
		require.Equal(t, []Dependency{{StackID: "s1", CommitID: c1}}, w.IntersectingCommits("f", 500, 3))
	})
}

func TestWorkspaceMerge(t *testing.T) {
	c1 := hash(1)
	c2 := hash(2)

	// The two-stack scenario: stack S1 owns line 2 of f, stack S2 owns
	// lines 10 and 15.
	w := Calculate([]InputStack{
		{
			StackID: "S1",
			Commits: []InputCommit{{CommitID: c1, Files: []InputFile{{
				Path: "f", Change: FileModified,
				Hunks: []InputHunk{{OldStart: 2, OldLines: 1, NewStart: 2, NewLines: 1}},
			}}}},
		},
		{
			StackID: "S2",
			Commits: []InputCommit{{CommitID: c2, Files: []InputFile{{
				Path: "f", Change: FileModified,
				Hunks: []InputHunk{
					{OldStart: 10, OldLines: 1, NewStart: 10, NewLines: 1},
					{OldStart: 15, OldLines: 1, NewStart: 15, NewLines: 1},
				},
			}}}},
		},
	})
	require.Empty(t, w.Errors())

	require.Equal(t, []Dependency{{StackID: "S1", CommitID: c1}}, w.IntersectingCommits("f", 2, 1))
	require.Equal(t, []Dependency{{StackID: "S2", CommitID: c2}}, w.IntersectingCommits("f", 10, 1))
	require.Empty(t, w.IntersectingCommits("f", 20, 1))

	// A hunk spanning both stacks reports each owner once
	all := w.IntersectingCommits("f", 1, 20)
	require.Len(t, all, 2)
	require.Contains(t, all, Dependency{StackID: "S1", CommitID: c1})
	require.Contains(t, all, Dependency{StackID: "S2", CommitID: c2})
}
