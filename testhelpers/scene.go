// Package testhelpers builds in-memory repositories for tests: a Scene is a
// go-git repository over memfs with deterministic identities and clocks, plus
// helpers for committing trees and wiring workspace state.
package testhelpers

import (
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"

	"github.com/gitbutlerapp/butler/internal/git"
	"github.com/gitbutlerapp/butler/internal/metadata"
)

// Scene is one in-memory repository under test
type Scene struct {
	T     *testing.T
	Repo  *git.Repository
	Store *metadata.MemStore
	FS    billy.Filesystem

	clock time.Time
}

// NewScene creates an empty in-memory repository with a deterministic clock
func NewScene(t *testing.T) *Scene {
	t.Helper()
	fs := memfs.New()
	repo, err := gogit.Init(memory.NewStorage(), fs)
	require.NoError(t, err)

	scene := &Scene{
		T:     t,
		Repo:  git.WrapRepository(repo, ""),
		Store: metadata.NewMemStore(),
		FS:    fs,
		clock: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	git.SetClock(scene.Now)
	t.Cleanup(func() { git.SetClock(nil) })
	return scene
}

// Now returns the scene clock without advancing it
func (s *Scene) Now() time.Time {
	return s.clock
}

// Tick advances the scene clock by one minute and returns the new time
func (s *Scene) Tick() time.Time {
	s.clock = s.clock.Add(time.Minute)
	return s.clock
}

// Signature returns the test identity at the current clock
func (s *Scene) Signature() object.Signature {
	return object.Signature{Name: "Test Author", Email: "test@example.com", When: s.clock}
}

// CommitTree writes the files as a tree and commits it. Files map paths to
// contents; parents default to none.
func (s *Scene) CommitTree(message string, files map[string]string, parents ...plumbing.Hash) plumbing.Hash {
	s.T.Helper()
	s.Tick()

	entries := map[string]object.TreeEntry{}
	for path, content := range files {
		blobID, err := s.Repo.WriteBlob([]byte(content))
		require.NoError(s.T, err)
		entries[path] = object.TreeEntry{Name: path, Mode: filemode.Regular, Hash: blobID}
	}
	treeID, err := s.Repo.WriteTreeFromPaths(entries)
	require.NoError(s.T, err)

	return s.CommitTreeID(message, treeID, parents...)
}

// CommitTreeID commits an existing tree
func (s *Scene) CommitTreeID(message string, treeID plumbing.Hash, parents ...plumbing.Hash) plumbing.Hash {
	s.T.Helper()
	sig := s.Signature()
	data := &git.CommitData{
		Tree:      treeID,
		Parents:   parents,
		Author:    sig,
		Committer: sig,
		Message:   message,
	}
	id, err := s.Repo.WriteCommit(data)
	require.NoError(s.T, err)
	return id
}

// SetRef points a ref at a commit
func (s *Scene) SetRef(name string, id plumbing.Hash) {
	s.T.Helper()
	err := s.Repo.Storer.SetReference(plumbing.NewHashReference(plumbing.ReferenceName(name), id))
	require.NoError(s.T, err)
}

// RemoveRef deletes a ref
func (s *Scene) RemoveRef(name string) {
	s.T.Helper()
	err := s.Repo.Storer.RemoveReference(plumbing.ReferenceName(name))
	require.NoError(s.T, err)
}

// ResolveRef resolves a ref, failing the test when absent
func (s *Scene) ResolveRef(name string) plumbing.Hash {
	s.T.Helper()
	id, err := s.Repo.ResolveRef(name)
	require.NoError(s.T, err)
	return id
}

// SetTarget records the target ref in the workspace metadata and points the
// remote-tracking ref at the commit.
func (s *Scene) SetTarget(id plumbing.Hash) {
	s.T.Helper()
	s.SetRef("refs/remotes/origin/main", id)
	meta, err := s.Store.Workspace(git.WorkspaceRef)
	require.NoError(s.T, err)
	meta.TargetRef = "refs/remotes/origin/main"
	require.NoError(s.T, s.Store.SetWorkspace(meta))
}

// AddStack records a stack of branch refs (tip first) in the metadata
func (s *Scene) AddStack(branches ...string) {
	s.T.Helper()
	meta, err := s.Store.Workspace(git.WorkspaceRef)
	require.NoError(s.T, err)
	meta.Stacks = append(meta.Stacks, metadata.StackMeta{Branches: branches})
	require.NoError(s.T, s.Store.SetWorkspace(meta))
}

// WriteWorktreeFile writes a file into the worktree filesystem
func (s *Scene) WriteWorktreeFile(path, content string) {
	s.T.Helper()
	require.NoError(s.T, util.WriteFile(s.FS, path, []byte(content), 0644))
}

// ReadWorktreeFile reads a worktree file as a string
func (s *Scene) ReadWorktreeFile(path string) string {
	s.T.Helper()
	data, err := util.ReadFile(s.FS, path)
	require.NoError(s.T, err)
	return string(data)
}

// WorktreeFileExists reports whether the worktree file is present
func (s *Scene) WorktreeFileExists(path string) bool {
	_, err := s.FS.Stat(path)
	return err == nil
}

// CheckoutCommit rewrites the worktree and index to the commit's real tree
func (s *Scene) CheckoutCommit(id plumbing.Hash) {
	s.T.Helper()
	treeID, err := s.Repo.RealTree(id)
	require.NoError(s.T, err)
	require.NoError(s.T, s.Repo.SeedIndexFromTree(treeID))
	require.NoError(s.T, s.Repo.CheckoutTree(git.EmptyTreeID, treeID, git.CheckoutOptions{}))
}

// TreeOf returns the real tree of a commit
func (s *Scene) TreeOf(id plumbing.Hash) plumbing.Hash {
	s.T.Helper()
	treeID, err := s.Repo.RealTree(id)
	require.NoError(s.T, err)
	return treeID
}

// FileInTree returns the content of a file inside a tree, failing when absent
func (s *Scene) FileInTree(treeID plumbing.Hash, path string) string {
	s.T.Helper()
	entry, ok, err := s.Repo.EntryAtPath(treeID, path)
	require.NoError(s.T, err)
	require.True(s.T, ok, "path %s not found in tree %s", path, treeID)
	data, err := s.Repo.ReadBlob(entry.Hash)
	require.NoError(s.T, err)
	return string(data)
}
