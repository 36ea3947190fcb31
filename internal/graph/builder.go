package graph

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/gitbutlerapp/butler/internal/git"
	"github.com/gitbutlerapp/butler/internal/metadata"
)

// Options bounds the traversal
type Options struct {
	// MaxCommits is the hard cap on commits walked; hitting it sets
	// HardLimitHit on the graph.
	MaxCommits int
	// CommitsPastBound limits how far a remote-only walk continues past the
	// nearest workspace commit.
	CommitsPastBound int
	// RefOverlay re-points refs in memory without touching the repository,
	// used to re-run a traversal over a planned state.
	RefOverlay map[string]plumbing.Hash
}

const (
	defaultMaxCommits       = 2000
	defaultCommitsPastBound = 100
)

func (o Options) withDefaults() Options {
	if o.MaxCommits <= 0 {
		o.MaxCommits = defaultMaxCommits
	}
	if o.CommitsPastBound <= 0 {
		o.CommitsPastBound = defaultCommitsPastBound
	}
	return o
}

type builder struct {
	repo  *git.Repository
	store metadata.Store
	opts  Options

	graph       *Graph
	integrated  map[plumbing.Hash]bool
	localRefAt  map[plumbing.Hash][]string
	remoteRefAt map[plumbing.Hash][]string
	commits     map[plumbing.Hash]*git.CommitData
	count       int
}

// Build walks the commit graph from the workspace tips, the stack tips
// recorded in the workspace metadata, and the target, producing the segment
// arena. Refs recorded in metadata that no longer resolve are skipped, not
// fatal.
func Build(repo *git.Repository, store metadata.Store, ws *metadata.WorkspaceMeta, opts Options) (*Graph, error) {
	b := &builder{
		repo:  repo,
		store: store,
		opts:  opts.withDefaults(),
		graph: &Graph{assignment: map[plumbing.Hash]location{}},
		localRefAt:  map[plumbing.Hash][]string{},
		remoteRefAt: map[plumbing.Hash][]string{},
		commits:     map[plumbing.Hash]*git.CommitData{},
	}

	if err := b.indexRefs(); err != nil {
		return nil, err
	}
	if err := b.markIntegrated(ws); err != nil {
		return nil, err
	}

	// Tips drive segment ordering: the workspace head first, then every
	// stack tip in metadata order, then the target.
	type tip struct {
		id    plumbing.Hash
		flags CommitFlags
	}
	var tips []tip
	if id, ok := b.resolve(git.WorkspaceRef); ok {
		tips = append(tips, tip{id, InWorkspace})
	} else if id, ok := b.resolve(git.LegacyWorkspaceRef); ok {
		tips = append(tips, tip{id, InWorkspace})
	}
	if ws != nil {
		for _, stack := range ws.Stacks {
			if stack.Archived {
				continue
			}
			for _, branch := range stack.Branches {
				if id, ok := b.resolve(branch); ok {
					tips = append(tips, tip{id, InWorkspace})
				}
			}
		}
		if ws.TargetRef != "" {
			if id, ok := b.resolve(ws.TargetRef); ok {
				tips = append(tips, tip{id, Integrated})
			}
		}
	}

	for _, t := range tips {
		b.walk(t.id, t.flags)
	}
	b.walkRemotes(ws)
	b.computeGenerations()
	b.attachMetadata()

	return b.graph, nil
}

func (b *builder) resolve(name string) (plumbing.Hash, bool) {
	if b.opts.RefOverlay != nil {
		if id, ok := b.opts.RefOverlay[name]; ok {
			return id, !id.IsZero()
		}
	}
	id, err := b.repo.ResolveRef(name)
	if err != nil {
		return plumbing.ZeroHash, false
	}
	return id, true
}

func (b *builder) indexRefs() error {
	refs, err := b.repo.ListRefs()
	if err != nil {
		return err
	}
	for id, names := range refs {
		for _, name := range names {
			if strings.HasPrefix(name, "refs/heads/gitbutler/") {
				// The workspace and edit refs never name user segments
				continue
			}
			if strings.HasPrefix(name, "refs/heads/") {
				b.localRefAt[id] = append(b.localRefAt[id], name)
			} else if strings.HasPrefix(name, "refs/remotes/") {
				b.remoteRefAt[id] = append(b.remoteRefAt[id], name)
			}
		}
	}
	// Overlay refs replace what the repository reports
	for name, id := range b.opts.RefOverlay {
		if !strings.HasPrefix(name, "refs/heads/") || strings.HasPrefix(name, "refs/heads/gitbutler/") {
			continue
		}
		for at, names := range b.localRefAt {
			kept := names[:0]
			for _, n := range names {
				if n != name {
					kept = append(kept, n)
				}
			}
			b.localRefAt[at] = kept
		}
		if !id.IsZero() {
			b.localRefAt[id] = append(b.localRefAt[id], name)
		}
	}
	return nil
}

func (b *builder) markIntegrated(ws *metadata.WorkspaceMeta) error {
	b.integrated = map[plumbing.Hash]bool{}
	if ws == nil || ws.TargetRef == "" {
		return nil
	}
	targetID, ok := b.resolve(ws.TargetRef)
	if !ok {
		return nil
	}
	queue := []plumbing.Hash{targetID}
	for len(queue) > 0 && len(b.integrated) < b.opts.MaxCommits {
		id := queue[0]
		queue = queue[1:]
		if b.integrated[id] {
			continue
		}
		b.integrated[id] = true
		data, err := b.commit(id)
		if err != nil {
			continue
		}
		queue = append(queue, data.Parents...)
	}
	return nil
}

func (b *builder) commit(id plumbing.Hash) (*git.CommitData, error) {
	if data, ok := b.commits[id]; ok {
		return data, nil
	}
	data, err := b.repo.ReadCommit(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load commit %s: %w", id, err)
	}
	b.commits[id] = data
	return data, nil
}

// frame is one pending step of the segment walk
type frame struct {
	id       plumbing.Hash
	fromSeg  int
	order    int
	startNew bool
	flags    CommitFlags
}

// walk claims commits for segments depth-first along first parents. Commits
// seen by an earlier walk keep their assignment; later walks only contribute
// edges.
func (b *builder) walk(tipID plumbing.Hash, flags CommitFlags) {
	stack := []frame{{id: tipID, fromSeg: -1, startNew: true, flags: flags}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if loc, ok := b.graph.assignment[f.id]; ok {
			segIdx := b.meet(loc)
			if f.fromSeg >= 0 {
				b.addEdge(f.fromSeg, segIdx, f.order)
			}
			continue
		}

		if b.count >= b.opts.MaxCommits {
			b.graph.HardLimitHit = true
			continue
		}

		data, err := b.commit(f.id)
		if err != nil {
			// Unreadable object: drop this branch of the walk
			continue
		}

		localRef := b.firstLocalRef(f.id)
		remoteRef := b.firstRemoteRef(f.id)

		segIdx := f.fromSeg
		if f.startNew || f.fromSeg < 0 || localRef != "" || remoteRef != "" {
			segIdx = b.newSegment(localRef, remoteRef)
			if f.fromSeg >= 0 {
				b.addEdge(f.fromSeg, segIdx, f.order)
			}
			if localRef != "" && remoteRef != "" {
				// Local and remote exactly in sync: the commit belongs to
				// the local segment and the remote becomes an empty sibling.
				sibling := b.newSegment("", remoteRef)
				b.graph.Segments[sibling].SiblingID = segIdx
				b.graph.Segments[segIdx].SiblingID = sibling
				b.addEdge(sibling, segIdx, 0)
			}
		}

		commitFlags := f.flags
		if b.integrated[f.id] {
			commitFlags = (commitFlags &^ InWorkspace) | Integrated
		}
		b.appendCommit(segIdx, data, commitFlags)

		if b.integrated[f.id] {
			// Integrated commits are emitted but their ancestors are not walked
			continue
		}

		isMerge := len(data.Parents) > 1
		for i := len(data.Parents) - 1; i >= 0; i-- {
			stack = append(stack, frame{
				id:       data.Parents[i],
				fromSeg:  segIdx,
				order:    i,
				startNew: isMerge,
				flags:    f.flags,
			})
		}
	}
}

func (b *builder) firstLocalRef(id plumbing.Hash) string {
	refs := b.localRefAt[id]
	if len(refs) == 0 {
		return ""
	}
	return refs[0]
}

func (b *builder) firstRemoteRef(id plumbing.Hash) string {
	refs := b.remoteRefAt[id]
	if len(refs) == 0 {
		return ""
	}
	return refs[0]
}

func (b *builder) newSegment(refName, remoteRef string) int {
	seg := &Segment{
		ID:                    len(b.graph.Segments),
		RefName:               refName,
		RemoteTrackingRefName: remoteRef,
		SiblingID:             -1,
	}
	if refName == "" && remoteRef != "" {
		// Remote-only segment
		seg.RefName = ""
	}
	b.graph.Segments = append(b.graph.Segments, seg)
	return seg.ID
}

func (b *builder) appendCommit(segIdx int, data *git.CommitData, flags CommitFlags) {
	seg := b.graph.Segments[segIdx]
	b.graph.assignment[data.ID] = location{seg: segIdx, pos: len(seg.Commits)}
	seg.Commits = append(seg.Commits, Commit{
		ID:         data.ID,
		Parents:    append([]plumbing.Hash(nil), data.Parents...),
		Flags:      flags,
		Message:    data.Message,
		ChangeID:   data.ChangeID(),
		Conflicted: data.IsConflicted(),
	})
	b.count++
}

// meet resolves a walk arriving at an already-assigned commit: a mid-segment
// hit splits the segment so the meeting point becomes a segment top.
func (b *builder) meet(loc location) int {
	if loc.pos == 0 {
		return loc.seg
	}
	return b.split(loc.seg, loc.pos)
}

// split cuts the segment before pos; the lower part becomes a new anonymous
// segment inheriting the original's outgoing edges.
func (b *builder) split(segIdx, pos int) int {
	upper := b.graph.Segments[segIdx]
	lower := &Segment{
		ID:          len(b.graph.Segments),
		SiblingID:   -1,
		Commits:     append([]Commit(nil), upper.Commits[pos:]...),
		parentEdges: upper.parentEdges,
	}
	b.graph.Segments = append(b.graph.Segments, lower)

	upper.Commits = upper.Commits[:pos]
	upper.parentEdges = []Edge{{To: lower.ID, Order: 0}}

	for i, c := range lower.Commits {
		b.graph.assignment[c.ID] = location{seg: lower.ID, pos: i}
	}
	return lower.ID
}

func (b *builder) addEdge(from, to, order int) {
	seg := b.graph.Segments[from]
	for _, e := range seg.parentEdges {
		if e.To == to && e.Order == order {
			return
		}
	}
	seg.parentEdges = append(seg.parentEdges, Edge{To: to, Order: order})
	// Keep edges in ascending parent order
	for i := len(seg.parentEdges) - 1; i > 0; i-- {
		if seg.parentEdges[i].Order < seg.parentEdges[i-1].Order {
			seg.parentEdges[i], seg.parentEdges[i-1] = seg.parentEdges[i-1], seg.parentEdges[i]
		}
	}
}

// walkRemotes marks reachability from each named segment's remote tracking
// ref and materializes remote-only segments for commits the workspace walks
// never saw, bounded past the meeting point.
func (b *builder) walkRemotes(ws *metadata.WorkspaceMeta) {
	for _, seg := range append([]*Segment(nil), b.graph.Segments...) {
		remoteRef := seg.RemoteTrackingRefName
		if remoteRef == "" && seg.RefName != "" {
			remoteRef = b.remoteTrackingFor(ws, seg.RefName)
			if remoteRef == "" {
				continue
			}
			seg.RemoteTrackingRefName = remoteRef
		}
		if remoteRef == "" || len(seg.Commits) == 0 {
			continue
		}
		remoteTip, ok := b.resolve(remoteRef)
		if !ok {
			continue
		}
		b.walkRemote(remoteTip, remoteRef)
	}
}

func (b *builder) remoteTrackingFor(ws *metadata.WorkspaceMeta, localRef string) string {
	remote := "origin"
	if ws != nil && ws.PushRemote != "" {
		remote = ws.PushRemote
	}
	name := "refs/remotes/" + remote + "/" + ShortRefName(localRef)
	if _, ok := b.resolve(name); !ok {
		return ""
	}
	return name
}

func (b *builder) walkRemote(tipID plumbing.Hash, remoteRef string) {
	type remoteFrame struct {
		id      plumbing.Hash
		fromSeg int
		order   int
		cont    int
	}
	stack := []remoteFrame{{id: tipID, fromSeg: -1, cont: -1}}
	pastBound := 0

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if loc, ok := b.graph.assignment[f.id]; ok {
			// Meeting the workspace: flag the reachable chain downward
			segIdx := b.meet(loc)
			if f.fromSeg >= 0 {
				b.addEdge(f.fromSeg, segIdx, f.order)
			}
			b.flagReachable(f.id)
			continue
		}

		if pastBound >= b.opts.CommitsPastBound || b.count >= b.opts.MaxCommits {
			b.graph.HardLimitHit = b.count >= b.opts.MaxCommits || b.graph.HardLimitHit
			continue
		}

		data, err := b.commit(f.id)
		if err != nil {
			continue
		}

		segIdx := f.cont
		if segIdx < 0 {
			segIdx = b.newSegment("", remoteRef)
			if f.fromSeg >= 0 {
				b.addEdge(f.fromSeg, segIdx, f.order)
			}
		}

		flags := ReachableByRemote
		if b.integrated[f.id] {
			flags |= Integrated
		}
		b.appendCommit(segIdx, data, flags)
		pastBound++

		if b.integrated[f.id] {
			continue
		}
		for i := len(data.Parents) - 1; i >= 0; i-- {
			cont := -1
			if i == 0 && len(data.Parents) == 1 {
				cont = segIdx
			}
			stack = append(stack, remoteFrame{id: data.Parents[i], fromSeg: segIdx, order: i, cont: cont})
		}
	}
}

// flagReachable sets ReachableByRemote on the commit and its already-walked
// ancestors, stopping where the flag is already present.
func (b *builder) flagReachable(id plumbing.Hash) {
	queue := []plumbing.Hash{id}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		loc, ok := b.graph.assignment[current]
		if !ok {
			continue
		}
		commit := &b.graph.Segments[loc.seg].Commits[loc.pos]
		if commit.Flags.Has(ReachableByRemote) {
			continue
		}
		commit.Flags |= ReachableByRemote
		queue = append(queue, commit.Parents...)
	}
}

// computeGenerations assigns each segment its BFS depth from the entry segments
func (b *builder) computeGenerations() {
	incoming := make([]int, len(b.graph.Segments))
	for _, seg := range b.graph.Segments {
		for _, e := range seg.parentEdges {
			incoming[e.To]++
		}
	}
	var queue []int
	for i := range b.graph.Segments {
		if incoming[i] == 0 {
			queue = append(queue, i)
			b.graph.Segments[i].Generation = 0
		}
	}
	seen := make([]bool, len(b.graph.Segments))
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		if seen[idx] {
			continue
		}
		seen[idx] = true
		for _, e := range b.graph.Segments[idx].parentEdges {
			child := b.graph.Segments[e.To]
			gen := b.graph.Segments[idx].Generation + 1
			if !seen[e.To] {
				if child.Generation == 0 || gen < child.Generation {
					child.Generation = gen
				}
				queue = append(queue, e.To)
			}
		}
	}
}

func (b *builder) attachMetadata() {
	if b.store == nil {
		return
	}
	for _, seg := range b.graph.Segments {
		if seg.RefName == "" {
			continue
		}
		meta, err := b.store.Branch(seg.RefName)
		if err != nil || meta.IsDefault {
			continue
		}
		seg.Metadata = meta
	}
}
