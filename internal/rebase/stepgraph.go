// Package rebase plans and executes in-memory rebases. A StepGraph is a DAG
// of steps mirroring the commit graph of the workspace; edits to it (drop,
// reorder, insert, replace) are materialized by the executor through
// three-way tree merges, preserving conflicts as conflict-annotated commits.
package rebase

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/gitbutlerapp/butler/internal/git"
	"github.com/gitbutlerapp/butler/internal/graph"
)

// StepKind discriminates the step variants
type StepKind uint8

const (
	// StepPick produces a commit equivalent to the original, possibly re-parented
	StepPick StepKind = iota
	// StepReference is a ref update written after the rebase
	StepReference
	// StepNone is a drop marker used during edits
	StepNone
	// stepBase anchors the graph on a commit that is never rewritten
	stepBase
)

// Step is one node payload in the planned rebase
type Step struct {
	Kind StepKind

	// CommitID is set for picks and base anchors
	CommitID plumbing.Hash
	// Conflictable picks may produce conflict-annotated commits; a conflict
	// on a non-conflictable pick fails the whole rebase.
	Conflictable bool
	// originalParents snapshots the commit's parent ids at construction time
	originalParents []plumbing.Hash

	// RefName is set for reference steps
	RefName string
}

// Pick builds a conflictable pick step for the commit
func Pick(id plumbing.Hash) Step {
	return Step{Kind: StepPick, CommitID: id, Conflictable: true}
}

// Reference builds a ref-update step
func Reference(refName string) Step {
	return Step{Kind: StepReference, RefName: refName}
}

// None builds a drop marker
func None() Step {
	return Step{Kind: StepNone}
}

// Selector is a stable identifier for a step; it survives insertion and
// removal of other steps.
type Selector int

// edge points from a step to one of its parents; Order reproduces merge
// parent order.
type edge struct {
	to    Selector
	order int
}

type node struct {
	step  Step
	edges []edge
}

// StepGraph is the planned rebase: nodes are steps, edges point from a
// commit to each of its parents.
type StepGraph struct {
	repo  *git.Repository
	nodes []*node

	byCommit map[plumbing.Hash]Selector
	byRef    map[string]Selector
}

// New creates an empty step graph bound to a repository
func New(repo *git.Repository) *StepGraph {
	return &StepGraph{
		repo:     repo,
		byCommit: map[plumbing.Hash]Selector{},
		byRef:    map[string]Selector{},
	}
}

// FromGraph builds the step graph for every in-workspace commit of the
// projection: each commit becomes a pick, each named segment ref a reference
// step on its top commit, and edges reproduce the commit graph. Parents
// outside the workspace become fixed base anchors. Commits listed in exclude
// (typically the workspace commit, which is re-synthesized rather than
// rebased) get no pick.
func FromGraph(repo *git.Repository, g *graph.Graph, exclude ...plumbing.Hash) (*StepGraph, error) {
	sg := New(repo)

	excluded := map[plumbing.Hash]bool{}
	for _, id := range exclude {
		excluded[id] = true
	}

	// First pass: a pick for every workspace commit
	type commitInfo struct {
		sel     Selector
		parents []plumbing.Hash
	}
	picks := map[plumbing.Hash]commitInfo{}
	for _, seg := range g.Segments {
		for _, c := range seg.Commits {
			if !c.Flags.Has(graph.InWorkspace) || c.Flags.Has(graph.Integrated) || excluded[c.ID] {
				continue
			}
			step := Pick(c.ID)
			step.originalParents = append([]plumbing.Hash(nil), c.Parents...)
			sel := sg.add(step)
			sg.byCommit[c.ID] = sel
			picks[c.ID] = commitInfo{sel: sel, parents: c.Parents}
		}
	}

	// Reference steps wrap the top commit of each named segment so that
	// children resolve through them and ref moves follow edits.
	entry := map[plumbing.Hash]Selector{}
	for id, info := range picks {
		entry[id] = info.sel
	}
	for _, seg := range g.Segments {
		if seg.RefName == "" || len(seg.Commits) == 0 {
			continue
		}
		top := seg.Commits[0].ID
		info, ok := picks[top]
		if !ok {
			continue
		}
		refSel := sg.add(Reference(seg.RefName))
		sg.nodes[refSel].edges = []edge{{to: info.sel, order: 0}}
		sg.byRef[seg.RefName] = refSel
		entry[top] = refSel
	}

	// Second pass: edges towards parents, through reference entries
	bases := map[plumbing.Hash]Selector{}
	for _, info := range picks {
		for i, parent := range info.parents {
			target, ok := entry[parent]
			if !ok {
				base, seen := bases[parent]
				if !seen {
					base = sg.add(Step{Kind: stepBase, CommitID: parent})
					bases[parent] = base
				}
				target = base
			}
			sg.nodes[info.sel].edges = append(sg.nodes[info.sel].edges, edge{to: target, order: i})
		}
		sortEdges(sg.nodes[info.sel].edges)
	}

	return sg, nil
}

func sortEdges(edges []edge) {
	for i := 1; i < len(edges); i++ {
		for j := i; j > 0 && edges[j].order < edges[j-1].order; j-- {
			edges[j], edges[j-1] = edges[j-1], edges[j]
		}
	}
}

func (sg *StepGraph) add(step Step) Selector {
	sg.nodes = append(sg.nodes, &node{step: step})
	return Selector(len(sg.nodes) - 1)
}

// AddPick appends a pick anchored on the given parent selectors. Used when
// assembling a rebase plan by hand (e.g. re-basing a stack onto the target).
func (sg *StepGraph) AddPick(id plumbing.Hash, parents ...Selector) (Selector, error) {
	data, err := sg.repo.ReadCommit(id)
	if err != nil {
		return -1, err
	}
	step := Pick(id)
	step.originalParents = data.Parents
	sel := sg.add(step)
	for i, p := range parents {
		sg.nodes[sel].edges = append(sg.nodes[sel].edges, edge{to: p, order: i})
	}
	sg.byCommit[id] = sel
	return sel, nil
}

// AddBase anchors the graph on a commit that will not be rewritten
func (sg *StepGraph) AddBase(id plumbing.Hash) Selector {
	return sg.add(Step{Kind: stepBase, CommitID: id})
}

// AddReference places a ref-update step on top of the given selector
func (sg *StepGraph) AddReference(refName string, on Selector) Selector {
	sel := sg.add(Reference(refName))
	sg.nodes[sel].edges = []edge{{to: on, order: 0}}
	sg.byRef[refName] = sel
	return sel
}

// SelectCommit returns the selector of the pick for the given commit
func (sg *StepGraph) SelectCommit(id plumbing.Hash) (Selector, bool) {
	sel, ok := sg.byCommit[id]
	return sel, ok
}

// SelectSegment returns the selector of the reference step for the ref
func (sg *StepGraph) SelectSegment(refName string) (Selector, bool) {
	sel, ok := sg.byRef[refName]
	return sel, ok
}

// Step returns a copy of the step at the selector
func (sg *StepGraph) Step(sel Selector) Step {
	return sg.nodes[sel].step
}

// Replace swaps a node's content, preserving its edges
func (sg *StepGraph) Replace(sel Selector, step Step) {
	old := sg.nodes[sel].step
	if old.Kind == StepPick {
		delete(sg.byCommit, old.CommitID)
	}
	if old.Kind == StepReference {
		delete(sg.byRef, old.RefName)
	}
	if step.Kind == StepPick {
		if step.originalParents == nil {
			if data, err := sg.repo.ReadCommit(step.CommitID); err == nil {
				step.originalParents = data.Parents
			}
		}
		sg.byCommit[step.CommitID] = sel
	}
	if step.Kind == StepReference {
		sg.byRef[step.RefName] = sel
	}
	sg.nodes[sel].step = step
}

// Drop replaces the step with a drop marker, keeping the node as a
// transparent connector.
func (sg *StepGraph) Drop(sel Selector) {
	sg.Replace(sel, None())
}

// InsertPosition picks the side of the target an insertion lands on
type InsertPosition uint8

const (
	// Above splices the new step between the target and its descendants
	Above InsertPosition = iota
	// Below splices the new step between the target and its parents
	Below
)

// Insert splices a new step next to the target and returns its selector.
// Above re-parents every descendant of the target onto the new step; Below
// re-parents the target onto the new step, which inherits all of the
// target's parents and their orders.
func (sg *StepGraph) Insert(sel Selector, step Step, pos InsertPosition) Selector {
	if step.Kind == StepPick && step.originalParents == nil {
		if data, err := sg.repo.ReadCommit(step.CommitID); err == nil {
			step.originalParents = data.Parents
		}
	}
	newSel := sg.add(step)
	if step.Kind == StepPick {
		sg.byCommit[step.CommitID] = newSel
	}
	if step.Kind == StepReference {
		sg.byRef[step.RefName] = newSel
	}

	switch pos {
	case Above:
		for _, n := range sg.nodes {
			for i, e := range n.edges {
				if e.to == sel {
					n.edges[i].to = newSel
				}
			}
		}
		sg.nodes[newSel].edges = []edge{{to: sel, order: 0}}
	case Below:
		sg.nodes[newSel].edges = sg.nodes[sel].edges
		sg.nodes[sel].edges = []edge{{to: newSel, order: 0}}
	}
	return newSel
}

// DateMode controls authorship timestamps on rewritten commits
type DateMode uint8

const (
	// DatesKeep keeps both author and committer untouched
	DatesKeep DateMode = iota
	// CommitterUpdate refreshes the committer, keeping the author
	CommitterUpdate
	// CommitterAndAuthorUpdate refreshes both identities
	CommitterAndAuthorUpdate
)

// applyDateMode rewrites the signatures of data per the mode, using the
// repository identity for refreshed fields.
func (sg *StepGraph) applyDateMode(data *git.CommitData, mode DateMode) error {
	if mode == DatesKeep {
		return nil
	}
	identity, err := sg.repo.DefaultSignature()
	if err != nil {
		return err
	}
	data.Committer = identity
	if mode == CommitterAndAuthorUpdate {
		data.Author = identity
	}
	return nil
}

// NewCommit writes a commit object honoring the date mode and returns its
// id. Tree reuse is allowed: the payload may point at any existing tree.
func (sg *StepGraph) NewCommit(data *git.CommitData, mode DateMode) (plumbing.Hash, error) {
	if err := sg.applyDateMode(data, mode); err != nil {
		return plumbing.ZeroHash, err
	}
	data.SetButlerHeaders()
	return sg.repo.WriteCommit(data)
}

// EmptyCommit returns a commit skeleton inheriting the editor's configured
// identity and an empty tree.
func (sg *StepGraph) EmptyCommit() (*git.CommitData, error) {
	identity, err := sg.repo.DefaultSignature()
	if err != nil {
		return nil, err
	}
	return &git.CommitData{
		Tree:      git.EmptyTreeID,
		Author:    identity,
		Committer: identity,
	}, nil
}

// resolveParentPicks walks outgoing edges in ascending order, treating
// reference and drop nodes as transparent connectors, and returns the first
// pick or base anchor along each branch.
func (sg *StepGraph) resolveParentPicks(sel Selector) []Selector {
	var out []Selector
	seen := map[Selector]bool{}
	var visit func(Selector)
	visit = func(s Selector) {
		n := sg.nodes[s]
		switch n.step.Kind {
		case StepPick, stepBase:
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		default:
			for _, e := range n.edges {
				visit(e.to)
			}
		}
	}
	for _, e := range sg.nodes[sel].edges {
		visit(e.to)
	}
	return out
}

// topoOrder returns every node bottom-up: parents before children
func (sg *StepGraph) topoOrder() ([]Selector, error) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make([]uint8, len(sg.nodes))
	var order []Selector

	var visit func(Selector) error
	visit = func(s Selector) error {
		switch state[s] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("step graph contains a cycle at node %d", s)
		}
		state[s] = visiting
		for _, e := range sg.nodes[s].edges {
			if err := visit(e.to); err != nil {
				return err
			}
		}
		state[s] = done
		order = append(order, s)
		return nil
	}

	for i := range sg.nodes {
		if err := visit(Selector(i)); err != nil {
			return nil, err
		}
	}
	return order, nil
}
