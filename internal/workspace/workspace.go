// Package workspace derives the user-visible shape of a repository, stacks
// of segments over a shared target, and implements the operations that
// mutate it: workspace commit synthesis, apply and unapply. The worktree at
// any moment reflects the merge of every applied stack on top of the target.
package workspace

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"

	butlererrors "github.com/gitbutlerapp/butler/internal/errors"
	"github.com/gitbutlerapp/butler/internal/git"
	"github.com/gitbutlerapp/butler/internal/graph"
	"github.com/gitbutlerapp/butler/internal/metadata"
)

// PushStatus summarizes a segment's relation to its remote
type PushStatus uint8

const (
	// StatusUnknown means the segment has no commits to judge
	StatusUnknown PushStatus = iota
	// StatusIntegrated means every commit is reachable from the target
	StatusIntegrated
	// StatusNothingToPush means the remote has every commit
	StatusNothingToPush
	// StatusCompletelyUnpushed means no remote tracking ref exists
	StatusCompletelyUnpushed
	// StatusUnpushedCommits means some commits are missing on the remote
	StatusUnpushedCommits
)

func (s PushStatus) String() string {
	switch s {
	case StatusIntegrated:
		return "integrated"
	case StatusNothingToPush:
		return "nothingToPush"
	case StatusCompletelyUnpushed:
		return "completelyUnpushed"
	case StatusUnpushedCommits:
		return "unpushedCommits"
	default:
		return "unknown"
	}
}

// Stack is an ordered sequence of segments from tip down to (but excluding)
// the target.
type Stack struct {
	// ID is the full ref name of the stack tip, or a synthetic name for
	// anonymous stacks.
	ID string
	// Segments from tip to base
	Segments []*graph.Segment
}

// Tip returns the first commit that actually exists walking downward from
// the top segment, skipping empty segments.
func (s *Stack) Tip() (graph.Commit, bool) {
	for _, seg := range s.Segments {
		if len(seg.Commits) > 0 {
			return seg.Commits[0], true
		}
	}
	return graph.Commit{}, false
}

// Commits returns every commit of the stack, tip-first
func (s *Stack) Commits() []graph.Commit {
	var out []graph.Commit
	for _, seg := range s.Segments {
		out = append(out, seg.Commits...)
	}
	return out
}

// Workspace is the projection of a repository's graph into stacks
type Workspace struct {
	Repo  *git.Repository
	Store metadata.Store
	Meta  *metadata.WorkspaceMeta
	Graph *graph.Graph

	// RefName is the workspace ref actually found on read (canonical or legacy)
	RefName string
	// HeadID is the workspace commit, zero when no workspace ref exists
	HeadID plumbing.Hash
	// TargetRef and TargetID locate the integration branch
	TargetRef string
	TargetID  plumbing.Hash
	// LowerBound is the commit every stack sits on top of
	LowerBound plumbing.Hash
	// Stacks in the order declared by the metadata, new stacks appended
	Stacks []*Stack

	opts graph.Options
}

// Project builds the workspace projection from the repository, the metadata
// store and the commit graph.
func Project(repo *git.Repository, store metadata.Store, opts graph.Options) (*Workspace, error) {
	meta, err := store.Workspace(git.WorkspaceRef)
	if err != nil {
		return nil, err
	}

	ws := &Workspace{
		Repo:      repo,
		Store:     store,
		Meta:      meta,
		TargetRef: meta.TargetRef,
		opts:      opts,
	}

	refName, headID, err := repo.WorkspaceHead()
	if err == nil {
		ws.RefName = refName
		ws.HeadID = headID
	} else if !errors.Is(err, butlererrors.ErrNoWorkspace) {
		return nil, err
	}
	if overlay := opts.RefOverlay; overlay != nil {
		if id, ok := overlay[git.WorkspaceRef]; ok {
			ws.RefName = git.WorkspaceRef
			ws.HeadID = id
		}
	}

	if meta.TargetRef != "" {
		if id, resolveErr := repo.ResolveRef(meta.TargetRef); resolveErr == nil {
			ws.TargetID = id
		}
		if overlay := opts.RefOverlay; overlay != nil {
			if id, ok := overlay[meta.TargetRef]; ok {
				ws.TargetID = id
			}
		}
	}

	g, err := graph.Build(repo, store, meta, opts)
	if err != nil {
		return nil, err
	}
	ws.Graph = g

	ws.buildStacks()
	ws.computeLowerBound()
	return ws, nil
}

// Reproject re-runs the traversal after an in-memory ref change described by
// the overlay, without touching the repository.
func (ws *Workspace) Reproject(overlay map[string]plumbing.Hash) (*Workspace, error) {
	opts := ws.opts
	opts.RefOverlay = overlay
	return Project(ws.Repo, ws.Store, opts)
}

// buildStacks assembles stacks in metadata order, then appends stacks the
// metadata does not know about (parents of the workspace commit).
func (ws *Workspace) buildStacks() {
	claimed := map[int]bool{}

	for _, stackMeta := range ws.Meta.Stacks {
		if stackMeta.Archived || len(stackMeta.Branches) == 0 {
			continue
		}
		seg := ws.Graph.SegmentByRef(stackMeta.Branches[0])
		if seg == nil {
			// Recorded ref no longer resolves: skipped, not fatal
			continue
		}
		stack := ws.collectStack(stackMeta.Branches[0], seg, claimed)
		if stack != nil {
			ws.Stacks = append(ws.Stacks, stack)
		}
	}

	// New stacks appended: parents of the workspace commit not yet claimed
	if ws.HeadID.IsZero() {
		return
	}
	headSeg, pos := ws.Graph.SegmentContaining(ws.HeadID)
	if headSeg == nil || pos != 0 {
		return
	}
	for _, e := range ws.Graph.ParentEdges(headSeg.ID) {
		seg := ws.Graph.Segments[e.To]
		if claimed[seg.ID] || seg.IsIntegrated() || len(seg.Commits) == 0 {
			continue
		}
		id := seg.RefName
		if id == "" {
			id = fmt.Sprintf("anonymous-%d", seg.ID)
		}
		stack := ws.collectStack(id, seg, claimed)
		if stack != nil {
			ws.Stacks = append(ws.Stacks, stack)
		}
	}
}

// collectStack follows first-parent edges from the tip segment downward
// until the chain reaches integrated territory or another stack's segments.
func (ws *Workspace) collectStack(id string, tip *graph.Segment, claimed map[int]bool) *Stack {
	if claimed[tip.ID] {
		return nil
	}
	stack := &Stack{ID: id}
	current := tip
	for current != nil && !claimed[current.ID] && !current.IsIntegrated() {
		claimed[current.ID] = true
		stack.Segments = append(stack.Segments, current)

		edges := ws.Graph.ParentEdges(current.ID)
		current = nil
		for _, e := range edges {
			next := ws.Graph.Segments[e.To]
			if e.Order == 0 && !next.IsIntegrated() && !claimed[next.ID] && next.RefName == "" {
				current = next
				break
			}
			if e.Order == 0 && !next.IsIntegrated() && !claimed[next.ID] && next.RefName != "" && ws.refBelongsToStack(id, next.RefName) {
				current = next
				break
			}
		}
	}
	if len(stack.Segments) == 0 {
		return nil
	}
	return stack
}

// refBelongsToStack reports whether the ref is recorded as a sub-branch of
// the stack identified by its tip ref.
func (ws *Workspace) refBelongsToStack(stackID, refName string) bool {
	idx := ws.Meta.StackIndexFor(stackID)
	if idx < 0 {
		return false
	}
	for _, branch := range ws.Meta.Stacks[idx].Branches {
		if branch == refName {
			return true
		}
	}
	return false
}

func (ws *Workspace) computeLowerBound() {
	if ws.TargetID.IsZero() {
		return
	}
	from := ws.HeadID
	if from.IsZero() {
		if len(ws.Stacks) == 0 {
			ws.LowerBound = ws.TargetID
			return
		}
		tip, ok := ws.Stacks[0].Tip()
		if !ok {
			ws.LowerBound = ws.TargetID
			return
		}
		from = tip.ID
	}
	base, err := ws.Repo.MergeBase(from, ws.TargetID)
	if err != nil {
		ws.LowerBound = ws.TargetID
		return
	}
	ws.LowerBound = base
}

// FindSegmentAndStackByRefName answers "where does ref X live?"
func (ws *Workspace) FindSegmentAndStackByRefName(refName string) (*Stack, *graph.Segment) {
	for _, stack := range ws.Stacks {
		for _, seg := range stack.Segments {
			if seg.RefName == refName || seg.RemoteTrackingRefName == refName {
				return stack, seg
			}
		}
	}
	return nil, nil
}

// StackByID returns the stack with the given id, or nil
func (ws *Workspace) StackByID(id string) *Stack {
	for _, stack := range ws.Stacks {
		if stack.ID == id {
			return stack
		}
	}
	return nil
}

// TipSkipEmpty returns the first commit that exists at or below the given
// segment of the stack.
func (ws *Workspace) TipSkipEmpty(stack *Stack, segmentIdx int) (graph.Commit, bool) {
	for i := segmentIdx; i < len(stack.Segments); i++ {
		if len(stack.Segments[i].Commits) > 0 {
			return stack.Segments[i].Commits[0], true
		}
	}
	return graph.Commit{}, false
}

// SegmentPushStatus classifies the segment against its remote tracking ref
func SegmentPushStatus(seg *graph.Segment) PushStatus {
	if len(seg.Commits) == 0 {
		return StatusUnknown
	}
	if seg.IsIntegrated() {
		return StatusIntegrated
	}
	if seg.RemoteTrackingRefName == "" {
		return StatusCompletelyUnpushed
	}
	for _, c := range seg.Commits {
		if !c.Flags.Has(graph.ReachableByRemote) {
			return StatusUnpushedCommits
		}
	}
	return StatusNothingToPush
}

// StackTips returns the current head commit of every stack, in stack order
func (ws *Workspace) StackTips() []plumbing.Hash {
	var out []plumbing.Hash
	for _, stack := range ws.Stacks {
		if tip, ok := stack.Tip(); ok {
			out = append(out, tip.ID)
		}
	}
	return out
}
