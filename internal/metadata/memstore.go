package metadata

import (
	"iter"
	"sort"
)

// MemStore is an in-memory Store used by tests and by overlay traversals
// that must not touch disk.
type MemStore struct {
	workspaces map[string]WorkspaceMeta
	branches   map[string]BranchMeta
}

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{
		workspaces: map[string]WorkspaceMeta{},
		branches:   map[string]BranchMeta{},
	}
}

// Workspace returns the workspace record for the ref, default-marked if absent
func (s *MemStore) Workspace(ref string) (*WorkspaceMeta, error) {
	if meta, ok := s.workspaces[ref]; ok {
		meta.Ref = ref
		copyStacks := make([]StackMeta, len(meta.Stacks))
		copy(copyStacks, meta.Stacks)
		meta.Stacks = copyStacks
		return &meta, nil
	}
	return &WorkspaceMeta{Ref: ref, IsDefault: true}, nil
}

// Branch returns the branch record for the ref, default-marked if absent
func (s *MemStore) Branch(ref string) (*BranchMeta, error) {
	if meta, ok := s.branches[ref]; ok {
		meta.Ref = ref
		return &meta, nil
	}
	return &BranchMeta{Ref: ref, IsDefault: true}, nil
}

// SetWorkspace persists a workspace record
func (s *MemStore) SetWorkspace(meta *WorkspaceMeta) error {
	record := *meta
	record.IsDefault = false
	stacks := make([]StackMeta, len(meta.Stacks))
	copy(stacks, meta.Stacks)
	record.Stacks = stacks
	s.workspaces[meta.Ref] = record
	meta.IsDefault = false
	return nil
}

// SetBranch persists a branch record
func (s *MemStore) SetBranch(meta *BranchMeta) error {
	record := *meta
	record.IsDefault = false
	s.branches[meta.Ref] = record
	meta.IsDefault = false
	return nil
}

// Remove deletes any record stored under the ref
func (s *MemStore) Remove(ref string) error {
	delete(s.workspaces, ref)
	delete(s.branches, ref)
	return nil
}

// Iter yields every stored record in deterministic ref order
func (s *MemStore) Iter() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		refs := make([]string, 0, len(s.workspaces)+len(s.branches))
		for ref := range s.workspaces {
			refs = append(refs, ref)
		}
		for ref := range s.branches {
			refs = append(refs, ref)
		}
		sort.Strings(refs)
		seen := map[string]bool{}
		for _, ref := range refs {
			if seen[ref] {
				continue
			}
			seen[ref] = true
			if meta, ok := s.workspaces[ref]; ok {
				m := meta
				m.Ref = ref
				if !yield(ref, &m) {
					return
				}
				continue
			}
			meta := s.branches[ref]
			meta.Ref = ref
			if !yield(ref, &meta) {
				return
			}
		}
	}
}

var _ Store = (*MemStore)(nil)
