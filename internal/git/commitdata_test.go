package git_test

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/require"

	"github.com/gitbutlerapp/butler/internal/git"
	"github.com/gitbutlerapp/butler/testhelpers"
)

func TestCommitCodec(t *testing.T) {
	t.Run("round trips parents headers and message", func(t *testing.T) {
		scene := testhelpers.NewScene(t)
		base := scene.CommitTree("base", map[string]string{"f": "1\n"})
		tip := scene.CommitTree("tip\n\nbody text\n", map[string]string{"f": "2\n"}, base)

		data, err := scene.Repo.ReadCommit(tip)
		require.NoError(t, err)
		require.Equal(t, tip, data.ID)
		require.Equal(t, []plumbing.Hash{base}, data.Parents)
		require.Equal(t, "tip\n\nbody text\n", data.Message)
		require.Equal(t, "Test Author", data.Author.Name)

		// Re-encoding without changes reproduces the same object id
		rewritten, err := scene.Repo.WriteCommit(data)
		require.NoError(t, err)
		require.Equal(t, tip, rewritten)
	})

	t.Run("extra headers survive a write and read cycle", func(t *testing.T) {
		scene := testhelpers.NewScene(t)
		base := scene.CommitTree("base", map[string]string{"f": "1\n"})

		data, err := scene.Repo.ReadCommit(base)
		require.NoError(t, err)
		data.Parents = nil
		data.SetHeader("change-id", "11111111-2222-3333-4444-555555555555")
		data.SetHeader(git.HeaderVersionKey, git.HeaderVersionValue)
		id, err := scene.Repo.WriteCommit(data)
		require.NoError(t, err)

		reread, err := scene.Repo.ReadCommit(id)
		require.NoError(t, err)
		require.Equal(t, "11111111-2222-3333-4444-555555555555", reread.ChangeID())
		version, ok := reread.Header(git.HeaderVersionKey)
		require.True(t, ok)
		require.Equal(t, "2", version)
	})

	t.Run("multi line header values fold and unfold", func(t *testing.T) {
		scene := testhelpers.NewScene(t)
		base := scene.CommitTree("base", map[string]string{"f": "1\n"})

		data, err := scene.Repo.ReadCommit(base)
		require.NoError(t, err)
		data.SetHeader("gpgsig", "-----BEGIN-----\nline two\n-----END-----")
		id, err := scene.Repo.WriteCommit(data)
		require.NoError(t, err)

		reread, err := scene.Repo.ReadCommit(id)
		require.NoError(t, err)
		sig, ok := reread.Header("gpgsig")
		require.True(t, ok)
		require.Equal(t, "-----BEGIN-----\nline two\n-----END-----", sig)
		require.Equal(t, "base", reread.Message)
	})
}

func TestButlerHeaders(t *testing.T) {
	t.Run("legacy change id is accepted and upgraded", func(t *testing.T) {
		scene := testhelpers.NewScene(t)
		base := scene.CommitTree("base", map[string]string{"f": "1\n"})

		data, err := scene.Repo.ReadCommit(base)
		require.NoError(t, err)
		data.SetHeader(git.LegacyChangeIDKey, "legacy-id")
		require.Equal(t, "legacy-id", data.ChangeID())

		data.SetButlerHeaders()
		require.Equal(t, "legacy-id", data.ChangeID())
		_, hasLegacy := data.Header(git.LegacyChangeIDKey)
		require.False(t, hasLegacy)
		version, _ := data.Header(git.HeaderVersionKey)
		require.Equal(t, git.HeaderVersionValue, version)
	})

	t.Run("fresh commits get a generated change id", func(t *testing.T) {
		data := &git.CommitData{}
		data.SetButlerHeaders()
		require.NotEmpty(t, data.ChangeID())
	})

	t.Run("conflict count comes from the header", func(t *testing.T) {
		data := &git.CommitData{}
		require.False(t, data.IsConflicted())
		data.SetHeader(git.ConflictedKey, "3")
		require.True(t, data.IsConflicted())
		require.Equal(t, 3, data.ConflictCount())
		data.SetHeader(git.ConflictedKey, "0")
		require.False(t, data.IsConflicted())
	})
}
