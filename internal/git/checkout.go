package git

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"

	butlererrors "github.com/gitbutlerapp/butler/internal/errors"
)

// CheckoutOptions controls worktree reconciliation
type CheckoutOptions struct {
	// ForbidOverwriteDirty aborts instead of clobbering worktree files whose
	// content differs from the tree being switched away from.
	ForbidOverwriteDirty bool
}

// CheckoutTree rewrites the worktree from oldTree to newTree, touching only
// the paths that differ, and applies the same delta to the index: every
// written path gets a fresh stage-zero entry, stat-ed from disk, that replaces
// all previous entries for the path, higher stages included; fields of the
// previous entry are not carried over. Removed paths lose their entries. The
// result is re-sorted and conflict-related extension data is dropped.
func (r *Repository) CheckoutTree(oldTree, newTree plumbing.Hash, opts CheckoutOptions) error {
	if oldTree == newTree {
		return nil
	}
	fs := r.WorktreeFS()
	if fs == nil {
		return fmt.Errorf("repository has no worktree")
	}

	from, err := r.Tree(oldTree)
	if err != nil {
		return err
	}
	to, err := r.Tree(newTree)
	if err != nil {
		return err
	}
	changes, err := object.DiffTree(from, to)
	if err != nil {
		return fmt.Errorf("failed to diff trees: %w", err)
	}

	if opts.ForbidOverwriteDirty {
		var dirty []string
		for _, ch := range changes {
			path, entry := changePath(ch)
			if entry == nil {
				continue
			}
			isDirty, err := r.isWorktreeDirty(path, *entry)
			if err != nil {
				return err
			}
			if isDirty {
				dirty = append(dirty, path)
			}
		}
		if len(dirty) > 0 {
			return &butlererrors.UncommittedChangesError{Paths: dirty}
		}
	}

	idx, err := r.Storer.Index()
	if err != nil || idx == nil {
		idx = &index.Index{Version: 2}
	}

	for _, ch := range changes {
		if ch.To.Name == "" {
			// Deletion
			path := ch.From.Name
			if err := fs.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove %s: %w", path, err)
			}
			removeIndexEntries(idx, path)
			continue
		}

		path := ch.To.Name
		entry := ch.To.TreeEntry
		data, err := r.ReadBlob(entry.Hash)
		if err != nil {
			return err
		}
		perm := os.FileMode(0644)
		if entry.Mode == filemode.Executable {
			perm = 0755
		}
		if err := util.WriteFile(fs, path, data, perm); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}

		removeIndexEntries(idx, path)
		newEntry := &index.Entry{
			Name: path,
			Hash: entry.Hash,
			Mode: entry.Mode,
			Size: uint32(len(data)),
		}
		if info, err := fs.Stat(path); err == nil {
			newEntry.ModifiedAt = info.ModTime()
			newEntry.CreatedAt = info.ModTime()
		}
		idx.Entries = append(idx.Entries, newEntry)
	}

	sortIndex(idx)
	stripConflictExtensions(idx)

	if err := r.Storer.SetIndex(idx); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}

// isWorktreeDirty reports whether the on-disk content at path differs from
// the given tree entry.
func (r *Repository) isWorktreeDirty(path string, entry object.TreeEntry) (bool, error) {
	fs := r.WorktreeFS()
	data, err := util.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return !entry.Hash.IsZero(), nil
		}
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	blobID := plumbing.ComputeHash(plumbing.BlobObject, data)
	return blobID != entry.Hash, nil
}

func changePath(ch *object.Change) (string, *object.TreeEntry) {
	if ch.From.Name != "" {
		entry := ch.From.TreeEntry
		return ch.From.Name, &entry
	}
	return ch.To.Name, nil
}

func removeIndexEntries(idx *index.Index, path string) {
	kept := idx.Entries[:0]
	for _, e := range idx.Entries {
		if e.Name != path {
			kept = append(kept, e)
		}
	}
	idx.Entries = kept
}

func sortIndex(idx *index.Index) {
	sort.Slice(idx.Entries, func(i, j int) bool {
		if idx.Entries[i].Name != idx.Entries[j].Name {
			return idx.Entries[i].Name < idx.Entries[j].Name
		}
		return idx.Entries[i].Stage < idx.Entries[j].Stage
	})
}

func stripConflictExtensions(idx *index.Index) {
	idx.ResolveUndo = nil
	idx.Cache = nil
}

// WorktreeTree snapshots the tracked worktree contents into a tree object:
// every index entry is re-read from disk, missing files drop out, and the
// resulting blobs are assembled into a tree.
func (r *Repository) WorktreeTree() (plumbing.Hash, error) {
	fs := r.WorktreeFS()
	if fs == nil {
		return plumbing.ZeroHash, fmt.Errorf("repository has no worktree")
	}
	idx, err := r.Storer.Index()
	if err != nil || idx == nil {
		idx = &index.Index{Version: 2}
	}

	files := make(map[string]object.TreeEntry)
	for _, e := range idx.Entries {
		if e.Stage > index.Merged {
			// Higher-stage entries are unresolved conflict sides
			continue
		}
		data, err := util.ReadFile(fs, e.Name)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return plumbing.ZeroHash, fmt.Errorf("failed to read %s: %w", e.Name, err)
		}
		blobID, err := r.WriteBlob(data)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		mode := e.Mode
		if !isBlobMode(mode) {
			mode = filemode.Regular
		}
		files[e.Name] = object.TreeEntry{Name: e.Name, Mode: mode, Hash: blobID}
	}

	return r.WriteTreeFromPaths(files)
}

// SeedIndexFromTree fills the index with stage-zero entries for every blob in
// the tree. Used when adopting a repository whose index has never been
// written by butler.
func (r *Repository) SeedIndexFromTree(treeID plumbing.Hash) error {
	flat, err := r.FlattenTree(treeID)
	if err != nil {
		return err
	}
	idx, err := r.Storer.Index()
	if err != nil || idx == nil {
		idx = &index.Index{Version: 2}
	}
	idx.Entries = idx.Entries[:0]
	for path, entry := range flat {
		idx.Entries = append(idx.Entries, &index.Entry{
			Name: path,
			Hash: entry.Hash,
			Mode: entry.Mode,
		})
	}
	sortIndex(idx)
	return r.Storer.SetIndex(idx)
}
