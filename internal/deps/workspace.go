package deps

import (
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
)

// Dependency identifies one committed hunk an uncommitted hunk depends on
type Dependency struct {
	StackID  string
	CommitID plumbing.Hash
}

// WorkspaceRanges is the merged hunk ledger across every stack in the
// workspace. It is ephemeral: rebuilt per request from committed diffs.
type WorkspaceRanges struct {
	paths  map[string][]HunkRange
	errors []CalculationError
}

// Calculate builds the workspace ledger from per-stack inputs. Per-path
// failures are recorded and isolated: a malformed file history drops only
// that path's ranges for the affected stack.
func Calculate(stacks []InputStack) *WorkspaceRanges {
	w := &WorkspaceRanges{paths: map[string][]HunkRange{}}

	for _, stack := range stacks {
		ledgers := map[string]*fileLedger{}

		for _, commit := range stack.Commits {
			for _, file := range commit.Files {
				ledger := ledgers[file.Path]
				if ledger == nil {
					ledger = &fileLedger{}
					ledgers[file.Path] = ledger
				}
				if ledger.broken {
					continue
				}

				switch file.Change {
				case FileDeleted:
					if ledger.deleted {
						w.errors = append(w.errors, CalculationError{
							Path:     file.Path,
							StackID:  stack.StackID,
							CommitID: commit.CommitID,
							Message:  "file deleted twice without recreation",
						})
						ledger.broken = true
						continue
					}
					// A deletion owns the whole file: one range that
					// intersects every query.
					ledger.deleted = true
					ledger.ranges = []HunkRange{{
						ChangeType: Deleted,
						StackID:    stack.StackID,
						CommitID:   commit.CommitID,
						Start:      1,
						Lines:      0,
					}}
				case FileAdded:
					if len(ledger.ranges) > 0 && !ledger.deleted {
						w.errors = append(w.errors, CalculationError{
							Path:     file.Path,
							StackID:  stack.StackID,
							CommitID: commit.CommitID,
							Message:  "file added while it already exists",
						})
						ledger.broken = true
						continue
					}
					// Recreation re-owns the file: earlier ranges are gone.
					ledger.deleted = false
					ledger.ranges = nil
					for _, h := range file.Hunks {
						ledger.addHunk(stack.StackID, commit.CommitID, h)
					}
				default:
					if ledger.deleted {
						w.errors = append(w.errors, CalculationError{
							Path:     file.Path,
							StackID:  stack.StackID,
							CommitID: commit.CommitID,
							Message:  "file modified after deletion",
						})
						ledger.broken = true
						continue
					}
					for _, h := range file.Hunks {
						ledger.addHunk(stack.StackID, commit.CommitID, h)
					}
				}
			}
		}

		for path, ledger := range ledgers {
			if ledger.broken {
				continue
			}
			w.paths[path] = append(w.paths[path], ledger.ranges...)
		}
	}

	for path := range w.paths {
		sortRanges(w.paths[path])
	}
	return w
}

// Errors returns the calculation errors collected during construction
func (w *WorkspaceRanges) Errors() []CalculationError {
	return w.errors
}

// RangesFor returns the merged ranges of one path, in line order
func (w *WorkspaceRanges) RangesFor(path string) []HunkRange {
	return w.paths[path]
}

// Paths returns every path with at least one committed range, sorted
func (w *WorkspaceRanges) Paths() []string {
	out := make([]string, 0, len(w.paths))
	for path := range w.paths {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// IntersectingCommits returns the committed hunks the uncommitted hunk
// (path, start, lines) touches, de-duplicated by (stack, commit) in ledger
// order. lines == 0 denotes an insertion point before start.
func (w *WorkspaceRanges) IntersectingCommits(path string, start, lines uint32) []Dependency {
	var out []Dependency
	seen := map[Dependency]bool{}
	for _, r := range w.paths[path] {
		if !r.Intersects(start, lines) {
			continue
		}
		dep := Dependency{StackID: r.StackID, CommitID: r.CommitID}
		if seen[dep] {
			continue
		}
		seen[dep] = true
		out = append(out, dep)
	}
	return out
}
