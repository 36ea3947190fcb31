// Package graph projects the commit graph into an arena of segments: maximal
// first-parent chains carrying at most one named local ref and at most one
// remote-tracking ref. The graph is ephemeral and rebuilt after any ref
// change; edges carry parent indices only, so there are no owning cycles.
package graph

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/gitbutlerapp/butler/internal/metadata"
)

// CommitFlags annotates each commit with its relation to the workspace
type CommitFlags uint8

const (
	// InWorkspace marks commits reachable from a workspace stack tip and not from the target
	InWorkspace CommitFlags = 1 << iota
	// Integrated marks commits reachable from the target
	Integrated
	// ReachableByRemote marks commits reachable from the segment's remote tracking ref
	ReachableByRemote
)

// Has reports whether all given flags are set
func (f CommitFlags) Has(flags CommitFlags) bool {
	return f&flags == flags
}

// Commit is one commit inside a segment, annotated with flags
type Commit struct {
	ID         plumbing.Hash
	Parents    []plumbing.Hash
	Flags      CommitFlags
	Message    string
	ChangeID   string
	Conflicted bool
}

// Edge links a segment to one of its parent segments. Order reproduces the
// parent order of the merge commit that created the boundary.
type Edge struct {
	To    int
	Order int
}

// Segment is a maximal chain of first-parent commits in tip-first order
type Segment struct {
	// ID is the arena index of the segment
	ID int
	// RefName is the full local ref sitting on the top commit, if any
	RefName string
	// RemoteTrackingRefName is the matching remote-tracking ref, if any
	RemoteTrackingRefName string
	// Commits in tip-first order; may be empty for an in-sync remote segment
	Commits []Commit
	// Generation is the distance from the workspace tip
	Generation int
	// SiblingID links an empty remote segment to the local segment holding
	// the shared commit, and vice versa. -1 when unset.
	SiblingID int
	// Metadata is the branch record for RefName, nil when absent or default
	Metadata *metadata.BranchMeta

	parentEdges []Edge
}

// ShortName strips the ref namespace prefix
func (s *Segment) ShortName() string {
	return ShortRefName(s.RefName)
}

// ShortRefName strips refs/heads/ or refs/remotes/ from a full ref name
func ShortRefName(name string) string {
	for _, prefix := range []string{"refs/heads/", "refs/remotes/"} {
		if len(name) > len(prefix) && name[:len(prefix)] == prefix {
			return name[len(prefix):]
		}
	}
	return name
}

// IsIntegrated reports whether every commit of the segment is integrated.
// Empty segments are not integrated.
func (s *Segment) IsIntegrated() bool {
	if len(s.Commits) == 0 {
		return false
	}
	for _, c := range s.Commits {
		if !c.Flags.Has(Integrated) {
			return false
		}
	}
	return true
}

// Graph is the segment arena plus lookup state
type Graph struct {
	Segments []*Segment
	// HardLimitHit is set when the traversal stopped at the commit cap
	HardLimitHit bool

	assignment map[plumbing.Hash]location
}

// location addresses one commit inside the arena
type location struct {
	seg int
	pos int
}

// ParentEdges returns the outgoing edges of a segment in ascending order
func (g *Graph) ParentEdges(id int) []Edge {
	return g.Segments[id].parentEdges
}

// SegmentByRef returns the segment carrying the given local or
// remote-tracking ref name, or nil.
func (g *Graph) SegmentByRef(name string) *Segment {
	for _, s := range g.Segments {
		if s.RefName == name || (s.RemoteTrackingRefName == name && s.RefName == "") {
			return s
		}
	}
	return nil
}

// SegmentContaining returns the segment holding the commit and the commit's
// position inside it, or (nil, -1).
func (g *Graph) SegmentContaining(id plumbing.Hash) (*Segment, int) {
	loc, ok := g.assignment[id]
	if !ok {
		return nil, -1
	}
	return g.Segments[loc.seg], loc.pos
}

// CommitFlagsOf returns the flags of a commit in the graph
func (g *Graph) CommitFlagsOf(id plumbing.Hash) (CommitFlags, bool) {
	loc, ok := g.assignment[id]
	if !ok {
		return 0, false
	}
	return g.Segments[loc.seg].Commits[loc.pos].Flags, true
}

// Statistics summarizes the graph for debugging and status output
type Statistics struct {
	Segments     int
	Commits      int
	InWorkspace  int
	Integrated   int
	HardLimitHit bool
}

// Stats computes summary counts over the arena
func (g *Graph) Stats() Statistics {
	st := Statistics{Segments: len(g.Segments), HardLimitHit: g.HardLimitHit}
	for _, s := range g.Segments {
		st.Commits += len(s.Commits)
		for _, c := range s.Commits {
			if c.Flags.Has(InWorkspace) {
				st.InWorkspace++
			}
			if c.Flags.Has(Integrated) {
				st.Integrated++
			}
		}
	}
	return st
}

func (st Statistics) String() string {
	return fmt.Sprintf("%d segments, %d commits (%d in workspace, %d integrated)",
		st.Segments, st.Commits, st.InWorkspace, st.Integrated)
}
