package metadata

import (
	"bytes"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// FileStore persists metadata in a single associative toml file inside the
// repository's butler directory. Writes replace the file atomically via a
// temp file and rename so readers always see a consistent snapshot.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the given file path. The file does
// not have to exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// fileSchema is the on-disk layout of the metadata file
type fileSchema struct {
	Workspaces map[string]WorkspaceMeta `toml:"workspace"`
	Branches   map[string]BranchMeta    `toml:"branch"`
}

func (s *FileStore) load() (*fileSchema, error) {
	schema := &fileSchema{
		Workspaces: map[string]WorkspaceMeta{},
		Branches:   map[string]BranchMeta{},
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return schema, nil
		}
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := toml.Unmarshal(data, schema); err != nil {
		return nil, fmt.Errorf("failed to parse metadata file: %w", err)
	}
	if schema.Workspaces == nil {
		schema.Workspaces = map[string]WorkspaceMeta{}
	}
	if schema.Branches == nil {
		schema.Branches = map[string]BranchMeta{}
	}
	return schema, nil
}

func (s *FileStore) save(schema *fileSchema) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(schema); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create metadata dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".metadata-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create temp metadata file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close metadata file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace metadata file: %w", err)
	}
	return nil
}

// Workspace returns the workspace record for the ref, default-marked if absent
func (s *FileStore) Workspace(ref string) (*WorkspaceMeta, error) {
	schema, err := s.load()
	if err != nil {
		return nil, err
	}
	if meta, ok := schema.Workspaces[ref]; ok {
		meta.Ref = ref
		return &meta, nil
	}
	return &WorkspaceMeta{Ref: ref, IsDefault: true}, nil
}

// Branch returns the branch record for the ref, default-marked if absent
func (s *FileStore) Branch(ref string) (*BranchMeta, error) {
	schema, err := s.load()
	if err != nil {
		return nil, err
	}
	if meta, ok := schema.Branches[ref]; ok {
		meta.Ref = ref
		return &meta, nil
	}
	return &BranchMeta{Ref: ref, IsDefault: true}, nil
}

// SetWorkspace persists a workspace record
func (s *FileStore) SetWorkspace(meta *WorkspaceMeta) error {
	schema, err := s.load()
	if err != nil {
		return err
	}
	record := *meta
	record.IsDefault = false
	schema.Workspaces[meta.Ref] = record
	meta.IsDefault = false
	return s.save(schema)
}

// SetBranch persists a branch record
func (s *FileStore) SetBranch(meta *BranchMeta) error {
	schema, err := s.load()
	if err != nil {
		return err
	}
	record := *meta
	record.IsDefault = false
	schema.Branches[meta.Ref] = record
	meta.IsDefault = false
	return s.save(schema)
}

// Remove deletes any record stored under the ref
func (s *FileStore) Remove(ref string) error {
	schema, err := s.load()
	if err != nil {
		return err
	}
	_, hadWorkspace := schema.Workspaces[ref]
	_, hadBranch := schema.Branches[ref]
	if !hadWorkspace && !hadBranch {
		return nil
	}
	delete(schema.Workspaces, ref)
	delete(schema.Branches, ref)
	return s.save(schema)
}

// Iter yields every stored record in deterministic ref order
func (s *FileStore) Iter() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		schema, err := s.load()
		if err != nil {
			return
		}
		refs := make([]string, 0, len(schema.Workspaces)+len(schema.Branches))
		for ref := range schema.Workspaces {
			refs = append(refs, ref)
		}
		for ref := range schema.Branches {
			refs = append(refs, ref)
		}
		sort.Strings(refs)
		seen := map[string]bool{}
		for _, ref := range refs {
			if seen[ref] {
				continue
			}
			seen[ref] = true
			if meta, ok := schema.Workspaces[ref]; ok {
				m := meta
				m.Ref = ref
				if !yield(ref, &m) {
					return
				}
				continue
			}
			meta := schema.Branches[ref]
			meta.Ref = ref
			if !yield(ref, &meta) {
				return
			}
		}
	}
}

var _ Store = (*FileStore)(nil)
