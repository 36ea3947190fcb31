// Package errors provides sentinel errors and custom error types for the butler core.
// Use errors.Is() and errors.As() to check for specific error types.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions
var (
	// ErrNotFound indicates that a ref, commit or path is absent
	ErrNotFound = errors.New("not found")

	// ErrBadRef indicates that a recorded ref no longer resolves
	ErrBadRef = errors.New("bad ref")

	// ErrMergeConflict indicates that a three-way merge produced unresolved conflicts
	ErrMergeConflict = errors.New("merge conflict")

	// ErrNotConflictable indicates that a pick marked as not conflictable produced a conflict
	ErrNotConflictable = errors.New("pick is not conflictable")

	// ErrUncommittedChanges indicates that an operation would overwrite dirty worktree paths
	ErrUncommittedChanges = errors.New("uncommitted changes")

	// ErrStaleWorkspace indicates that the workspace ref moved between read and write
	ErrStaleWorkspace = errors.New("workspace is stale")

	// ErrNoWorkspace indicates that no workspace reference exists in the repository
	ErrNoWorkspace = errors.New("no workspace")

	// ErrNoTarget indicates that the workspace has no target branch configured
	ErrNoTarget = errors.New("no target branch configured")
)

// RefNotFoundError represents an error when a ref does not resolve
type RefNotFoundError struct {
	RefName string
}

func (e *RefNotFoundError) Error() string {
	return fmt.Sprintf("reference %s does not exist", e.RefName)
}

// Is returns true if the target error is ErrNotFound or ErrBadRef
func (e *RefNotFoundError) Is(target error) bool {
	return target == ErrNotFound || target == ErrBadRef
}

// NewRefNotFoundError creates a new RefNotFoundError
func NewRefNotFoundError(refName string) *RefNotFoundError {
	return &RefNotFoundError{RefName: refName}
}

// MergeConflictError represents an error when an ours-favored merge still conflicts
type MergeConflictError struct {
	Context string
	Paths   []string
}

func (e *MergeConflictError) Error() string {
	if len(e.Paths) > 0 {
		return fmt.Sprintf("merge conflict in %s: %v", e.Context, e.Paths)
	}
	return fmt.Sprintf("merge conflict in %s", e.Context)
}

// Is returns true if the target error is ErrMergeConflict
func (e *MergeConflictError) Is(target error) bool {
	return target == ErrMergeConflict
}

// NewMergeConflictError creates a new MergeConflictError
func NewMergeConflictError(context string, paths []string) *MergeConflictError {
	return &MergeConflictError{Context: context, Paths: paths}
}

// NotConflictableError reports the pick whose cherry-pick conflicted while
// conflicts were forbidden for it.
type NotConflictableError struct {
	CommitID string
}

func (e *NotConflictableError) Error() string {
	return fmt.Sprintf("commit %s conflicted but is marked as not conflictable", e.CommitID)
}

// Is returns true if the target error is ErrNotConflictable
func (e *NotConflictableError) Is(target error) bool {
	return target == ErrNotConflictable
}

// NewNotConflictableError creates a new NotConflictableError
func NewNotConflictableError(commitID string) *NotConflictableError {
	return &NotConflictableError{CommitID: commitID}
}

// StaleWorkspaceError reports the expected and actual workspace head when a
// concurrent change is detected; callers must re-read and retry.
type StaleWorkspaceError struct {
	Expected string
	Actual   string
}

func (e *StaleWorkspaceError) Error() string {
	return fmt.Sprintf("workspace head moved from %s to %s", e.Expected, e.Actual)
}

// Is returns true if the target error is ErrStaleWorkspace
func (e *StaleWorkspaceError) Is(target error) bool {
	return target == ErrStaleWorkspace
}

// UncommittedChangesError lists the dirty paths that blocked an operation
type UncommittedChangesError struct {
	Paths []string
}

func (e *UncommittedChangesError) Error() string {
	return fmt.Sprintf("operation would overwrite uncommitted changes: %v", e.Paths)
}

// Is returns true if the target error is ErrUncommittedChanges
func (e *UncommittedChangesError) Is(target error) bool {
	return target == ErrUncommittedChanges
}
