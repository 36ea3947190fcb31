// Package deps computes which committed hunks an uncommitted hunk depends
// on. For every path touched by any commit in the workspace it keeps an
// ordered ledger of HunkRange records describing each committed hunk's
// footprint on the current image of the file, then answers intersection
// queries against uncommitted hunks.
package deps

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
)

// ChangeType classifies a committed hunk's effect on its file
type ChangeType uint8

const (
	// Added marks a hunk that introduced lines (or the whole file)
	Added ChangeType = iota
	// Deleted marks a removal; deleted ranges intersect every query
	Deleted
	// Modified marks an in-place change
	Modified
)

func (c ChangeType) String() string {
	switch c {
	case Added:
		return "added"
	case Deleted:
		return "deleted"
	default:
		return "modified"
	}
}

// HunkRange is the footprint of one committed hunk projected onto the
// current image of its file, after all preceding commits of the same stack.
// Start is 1-based; Lines == 0 denotes an insertion point before Start.
type HunkRange struct {
	ChangeType ChangeType
	StackID    string
	CommitID   plumbing.Hash
	Start      uint32
	Lines      uint32
	LineShift  int32
}

// Intersects reports whether the range touches the uncommitted hunk
// (start, lines). lines == 0 denotes an insertion point before start: it
// intersects a range that covers start, or an insertion at the same
// position. Deleted ranges intersect everything.
func (r HunkRange) Intersects(start, lines uint32) bool {
	if r.ChangeType == Deleted {
		return true
	}
	if lines == 0 {
		if r.Lines == 0 {
			return r.Start == start
		}
		return start >= r.Start && start < r.Start+r.Lines
	}
	if r.Lines == 0 {
		return r.Start >= start && r.Start < start+lines
	}
	return r.Start < start+lines && start < r.Start+r.Lines
}

// Covers reports whether the range covers the given line
func (r HunkRange) Covers(line uint32) bool {
	return r.Lines > 0 && line >= r.Start && line < r.Start+r.Lines
}

// CalculationError records a per-path dependency computation failure. It is
// collected alongside results and never aborts the engine; the affected
// path's ledger for that stack is dropped so other paths stay queryable.
type CalculationError struct {
	Path     string
	StackID  string
	CommitID plumbing.Hash
	Message  string
}

func (e CalculationError) Error() string {
	return fmt.Sprintf("%s (stack %s, commit %s): %s", e.Path, e.StackID, e.CommitID, e.Message)
}

// InputHunk is one raw hunk header from a committed diff
type InputHunk struct {
	OldStart uint32
	OldLines uint32
	NewStart uint32
	NewLines uint32
}

// FileChangeKind classifies a per-commit file change
type FileChangeKind uint8

const (
	// FileModified is an in-place change to an existing file
	FileModified FileChangeKind = iota
	// FileAdded introduces the file
	FileAdded
	// FileDeleted removes the file
	FileDeleted
)

// InputFile bundles the hunks one commit applied to one path
type InputFile struct {
	Path   string
	Change FileChangeKind
	Hunks  []InputHunk
}

// InputCommit is one commit's worth of file changes, oldest commits first
// within their InputStack.
type InputCommit struct {
	CommitID plumbing.Hash
	Files    []InputFile
}

// InputStack is the raw material for one stack's ledger: commits ordered
// oldest to newest.
type InputStack struct {
	StackID string
	Commits []InputCommit
}

// fileLedger is the evolving range list for one path within one stack
type fileLedger struct {
	ranges  []HunkRange
	deleted bool
	broken  bool
}

// addHunk folds one committed hunk into the ledger. Existing ranges are in
// the coordinates of the file image before the commit, i.e. the hunk's old
// coordinates.
func (f *fileLedger) addHunk(stackID string, commitID plumbing.Hash, h InputHunk) {
	delta := int32(h.NewLines) - int32(h.OldLines)
	oldStart := h.OldStart
	oldEnd := h.OldStart + h.OldLines

	var out []HunkRange
	for _, r := range f.ranges {
		rEnd := r.Start + r.Lines
		switch {
		case r.Lines == 0 && r.Start >= oldEnd:
			// Insertion point at or past the edit shifts with it
			r.Start = shifted(r.Start, delta)
			out = append(out, r)
		case rEnd <= oldStart:
			// Entirely before the edit
			out = append(out, r)
		case r.Start >= oldEnd:
			// Entirely after the edit
			r.Start = shifted(r.Start, delta)
			out = append(out, r)
		case r.Start >= oldStart && rEnd <= oldEnd:
			// Fully contained: superseded by the new hunk's range
		default:
			// Partial overlap: keep the parts outside the edit
			if r.Start < oldStart {
				head := r
				head.Lines = oldStart - r.Start
				out = append(out, head)
			}
			if rEnd > oldEnd {
				tail := r
				tail.Start = shifted(oldEnd, delta)
				tail.Lines = rEnd - oldEnd
				out = append(out, tail)
			}
		}
	}

	changeType := Modified
	switch {
	case h.OldLines == 0 && h.NewLines > 0:
		changeType = Added
	case h.NewLines == 0:
		changeType = Deleted
	}
	out = append(out, HunkRange{
		ChangeType: changeType,
		StackID:    stackID,
		CommitID:   commitID,
		Start:      h.NewStart,
		Lines:      h.NewLines,
		LineShift:  delta,
	})

	sortRanges(out)
	f.ranges = out
}

func shifted(start uint32, delta int32) uint32 {
	v := int64(start) + int64(delta)
	if v < 1 {
		return 1
	}
	return uint32(v)
}

func sortRanges(ranges []HunkRange) {
	for i := 1; i < len(ranges); i++ {
		for j := i; j > 0 && ranges[j].Start < ranges[j-1].Start; j-- {
			ranges[j], ranges[j-1] = ranges[j-1], ranges[j]
		}
	}
}
