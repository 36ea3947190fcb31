package git

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// EmptyTreeID is the id of the canonical empty tree object
var EmptyTreeID = plumbing.NewHash("4b825dc642cb6eb9a060e54bf8d69288fbee4904")

// Tree returns the tree object for the given id. The empty tree id is
// honored even when the object was never written.
func (r *Repository) Tree(id plumbing.Hash) (*object.Tree, error) {
	if id == EmptyTreeID || id.IsZero() {
		return &object.Tree{}, nil
	}
	tree, err := object.GetTree(r.Storer, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load tree %s: %w", id, err)
	}
	return tree, nil
}

// WriteTree stores a tree built from the given entries, sorting them in
// canonical git order (directories compare as if their name had a trailing
// slash). An empty entry list produces the empty tree.
func (r *Repository) WriteTree(entries []object.TreeEntry) (plumbing.Hash, error) {
	sorted := make([]object.TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return treeEntrySortKey(sorted[i]) < treeEntrySortKey(sorted[j])
	})

	tree := &object.Tree{Entries: sorted}
	obj := r.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to encode tree: %w", err)
	}
	id, err := r.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to store tree: %w", err)
	}
	return id, nil
}

func treeEntrySortKey(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

// WriteBlob stores a blob and returns its id
func (r *Repository) WriteBlob(data []byte) (plumbing.Hash, error) {
	obj := r.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to open blob writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, fmt.Errorf("failed to write blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to finish blob: %w", err)
	}
	id, err := r.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to store blob: %w", err)
	}
	return id, nil
}

// ReadBlob returns the full contents of a blob
func (r *Repository) ReadBlob(id plumbing.Hash) ([]byte, error) {
	blob, err := object.GetBlob(r.Storer, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load blob %s: %w", id, err)
	}
	reader, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", id, err)
	}
	defer func() {
		_ = reader.Close()
	}()
	return io.ReadAll(reader)
}

// treeEntries returns the direct entries of a tree keyed by name
func (r *Repository) treeEntries(id plumbing.Hash) (map[string]object.TreeEntry, error) {
	tree, err := r.Tree(id)
	if err != nil {
		return nil, err
	}
	out := make(map[string]object.TreeEntry, len(tree.Entries))
	for _, e := range tree.Entries {
		out[e.Name] = e
	}
	return out, nil
}

// EntryAtPath resolves a slash-separated path inside the tree
func (r *Repository) EntryAtPath(treeID plumbing.Hash, path string) (object.TreeEntry, bool, error) {
	parts := strings.Split(path, "/")
	current := treeID
	for i, part := range parts {
		entries, err := r.treeEntries(current)
		if err != nil {
			return object.TreeEntry{}, false, err
		}
		entry, ok := entries[part]
		if !ok {
			return object.TreeEntry{}, false, nil
		}
		if i == len(parts)-1 {
			return entry, true, nil
		}
		if entry.Mode != filemode.Dir {
			return object.TreeEntry{}, false, nil
		}
		current = entry.Hash
	}
	return object.TreeEntry{}, false, nil
}

// FlattenTree returns every blob entry in the tree keyed by its full path
func (r *Repository) FlattenTree(treeID plumbing.Hash) (map[string]object.TreeEntry, error) {
	out := make(map[string]object.TreeEntry)
	if err := r.flattenInto(out, "", treeID); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) flattenInto(out map[string]object.TreeEntry, prefix string, treeID plumbing.Hash) error {
	tree, err := r.Tree(treeID)
	if err != nil {
		return err
	}
	for _, e := range tree.Entries {
		path := e.Name
		if prefix != "" {
			path = prefix + "/" + e.Name
		}
		if e.Mode == filemode.Dir {
			if err := r.flattenInto(out, path, e.Hash); err != nil {
				return err
			}
			continue
		}
		out[path] = object.TreeEntry{Name: path, Mode: e.Mode, Hash: e.Hash}
	}
	return nil
}

// WriteTreeFromPaths builds a (possibly nested) tree from blob entries keyed
// by full path. Empty directories are never produced.
func (r *Repository) WriteTreeFromPaths(files map[string]object.TreeEntry) (plumbing.Hash, error) {
	type dir struct {
		files map[string]object.TreeEntry
		dirs  map[string]*dir
	}
	newDir := func() *dir {
		return &dir{files: map[string]object.TreeEntry{}, dirs: map[string]*dir{}}
	}
	root := newDir()

	for path, entry := range files {
		parts := strings.Split(path, "/")
		node := root
		for _, part := range parts[:len(parts)-1] {
			child, ok := node.dirs[part]
			if !ok {
				child = newDir()
				node.dirs[part] = child
			}
			node = child
		}
		name := parts[len(parts)-1]
		node.files[name] = object.TreeEntry{Name: name, Mode: entry.Mode, Hash: entry.Hash}
	}

	var write func(node *dir) (plumbing.Hash, error)
	write = func(node *dir) (plumbing.Hash, error) {
		entries := make([]object.TreeEntry, 0, len(node.files)+len(node.dirs))
		for _, e := range node.files {
			entries = append(entries, e)
		}
		for name, child := range node.dirs {
			id, err := write(child)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: id})
		}
		return r.WriteTree(entries)
	}
	return write(root)
}
