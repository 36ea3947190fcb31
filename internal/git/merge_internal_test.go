package git

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiffRegions(t *testing.T) {
	t.Run("replacement yields one region", func(t *testing.T) {
		regions := diffRegions("a\nb\nc\n", "a\nB\nc\n")
		require.Len(t, regions, 1)
		require.Equal(t, 1, regions[0].baseStart)
		require.Equal(t, 2, regions[0].baseEnd)
		require.Equal(t, []string{"B\n"}, regions[0].lines)
	})

	t.Run("pure insertion has an empty base span", func(t *testing.T) {
		regions := diffRegions("a\nb\n", "a\nx\nb\n")
		require.Len(t, regions, 1)
		require.Equal(t, regions[0].baseStart, regions[0].baseEnd)
		require.Equal(t, []string{"x\n"}, regions[0].lines)
	})

	t.Run("deletion carries no lines", func(t *testing.T) {
		regions := diffRegions("a\nb\nc\n", "a\nc\n")
		require.Len(t, regions, 1)
		require.Equal(t, 1, regions[0].baseStart)
		require.Equal(t, 2, regions[0].baseEnd)
		require.Empty(t, regions[0].lines)
	})
}

func TestMergeText(t *testing.T) {
	t.Run("non overlapping edits merge cleanly", func(t *testing.T) {
		base := "a\nb\nc\nd\ne\n"
		merged, clean := mergeText(base, "A\nb\nc\nd\ne\n", "a\nb\nc\nd\nE\n")
		require.True(t, clean)
		require.Equal(t, "A\nb\nc\nd\nE\n", merged)
	})

	t.Run("identical edits collapse", func(t *testing.T) {
		base := "a\nb\nc\n"
		merged, clean := mergeText(base, "a\nX\nc\n", "a\nX\nc\n")
		require.True(t, clean)
		require.Equal(t, "a\nX\nc\n", merged)
	})

	t.Run("conflicting edits favor ours", func(t *testing.T) {
		base := "a\nb\nc\n"
		merged, clean := mergeText(base, "a\nOURS\nc\n", "a\nTHEIRS\nc\n")
		require.False(t, clean)
		require.Equal(t, "a\nOURS\nc\n", merged)
	})

	t.Run("one sided change wins without conflict", func(t *testing.T) {
		base := "a\nb\nc\n"
		merged, clean := mergeText(base, base, "a\nb\nC\n")
		require.True(t, clean)
		require.Equal(t, "a\nb\nC\n", merged)
	})

	t.Run("block deletion spares the line the other side edited", func(t *testing.T) {
		// Theirs removes the three added lines; ours edited the middle one.
		// Only the edited line survives.
		base := "l1\nl2\nl3\nx\ny\n"
		ours := "l1\nl2-edited\nl3\nx\ny\n"
		theirs := "x\ny\n"
		merged, clean := mergeText(base, ours, theirs)
		require.False(t, clean)
		require.Equal(t, "l2-edited\nx\ny\n", merged)
	})

	t.Run("insertions at distinct points both apply", func(t *testing.T) {
		base := "a\nb\nc\n"
		merged, clean := mergeText(base, "top\na\nb\nc\n", "a\nb\nc\nbottom\n")
		require.True(t, clean)
		require.Equal(t, "top\na\nb\nc\nbottom\n", merged)
	})

	t.Run("empty base treats both sides as additions", func(t *testing.T) {
		merged, clean := mergeText("", "same\n", "same\n")
		require.True(t, clean)
		require.Equal(t, "same\n", merged)

		_, clean = mergeText("", "ours\n", "theirs\n")
		require.False(t, clean)
	})
}

func TestDiffHunks(t *testing.T) {
	t.Run("modification maps to matching old and new spans", func(t *testing.T) {
		hunks := DiffHunks([]byte("a\nb\nc\n"), []byte("a\nB\nc\n"))
		require.Len(t, hunks, 1)
		require.Equal(t, HunkHeader{OldStart: 2, OldLines: 1, NewStart: 2, NewLines: 1}, hunks[0])
	})

	t.Run("insertion has zero old lines and shifts later hunks", func(t *testing.T) {
		hunks := DiffHunks([]byte("a\nb\nc\n"), []byte("a\nx\ny\nb\nC\n"))
		require.Len(t, hunks, 2)
		require.Equal(t, HunkHeader{OldStart: 2, OldLines: 0, NewStart: 2, NewLines: 2}, hunks[0])
		require.Equal(t, HunkHeader{OldStart: 3, OldLines: 1, NewStart: 5, NewLines: 1}, hunks[1])
	})

	t.Run("file creation is one insertion", func(t *testing.T) {
		hunks := DiffHunks(nil, []byte("a\nb\n"))
		require.Len(t, hunks, 1)
		require.Equal(t, HunkHeader{OldStart: 1, OldLines: 0, NewStart: 1, NewLines: 2}, hunks[0])
	})
}
