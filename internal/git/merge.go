package git

import (
	"bytes"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// MergeOptions tunes a three-way tree merge
type MergeOptions struct {
	// FailOnFirstConflict stops the merge at the first conflicting path.
	// Used where fast rejection is cheaper than a full conflict listing.
	FailOnFirstConflict bool
}

// MergeConflict records one path whose base/ours/theirs entries could not be
// merged textually. The resolution tree carries the ours side for it.
type MergeConflict struct {
	Path   string
	Base   plumbing.Hash
	Ours   plumbing.Hash
	Theirs plumbing.Hash
}

// MergeResult is the outcome of a three-way tree merge. TreeID is a complete
// tree: conflicting paths are resolved in favor of ours, and Conflicts lists
// every path where that happened. When FailOnFirstConflict stops the merge,
// TreeID is zero and Conflicts holds only the first conflict.
type MergeResult struct {
	TreeID    plumbing.Hash
	Conflicts []MergeConflict
}

// Clean reports whether the merge finished without conflicts
func (m *MergeResult) Clean() bool {
	return len(m.Conflicts) == 0
}

// errFirstConflict aborts the tree walk when FailOnFirstConflict is set
type errFirstConflict struct{ conflict MergeConflict }

func (e errFirstConflict) Error() string { return "conflict at " + e.conflict.Path }

// MergeTrees performs an in-memory three-way merge of the trees identified by
// base, ours and theirs. File-level merges are attempted line by line; what
// cannot be merged is resolved toward ours and reported in Conflicts.
func (r *Repository) MergeTrees(base, ours, theirs plumbing.Hash, opts MergeOptions) (*MergeResult, error) {
	result := &MergeResult{}
	treeID, err := r.mergeTreeLevel(base, ours, theirs, "", opts, result)
	if err != nil {
		if first, ok := err.(errFirstConflict); ok {
			result.Conflicts = []MergeConflict{first.conflict}
			return result, nil
		}
		return nil, err
	}
	result.TreeID = treeID
	return result, nil
}

func (r *Repository) mergeTreeLevel(base, ours, theirs plumbing.Hash, prefix string, opts MergeOptions, result *MergeResult) (plumbing.Hash, error) {
	baseEntries, err := r.treeEntries(base)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	ourEntries, err := r.treeEntries(ours)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	theirEntries, err := r.treeEntries(theirs)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	names := make(map[string]struct{})
	for name := range baseEntries {
		names[name] = struct{}{}
	}
	for name := range ourEntries {
		names[name] = struct{}{}
	}
	for name := range theirEntries {
		names[name] = struct{}{}
	}

	var merged []object.TreeEntry
	for name := range names {
		b, hasBase := baseEntries[name]
		o, hasOurs := ourEntries[name]
		t, hasTheirs := theirEntries[name]

		path := name
		if prefix != "" {
			path = prefix + "/" + name
		}

		entry, keep, err := r.mergeEntry(path, b, hasBase, o, hasOurs, t, hasTheirs, opts, result)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		if keep {
			merged = append(merged, entry)
		}
	}

	return r.WriteTree(merged)
}

func (r *Repository) mergeEntry(
	path string,
	b object.TreeEntry, hasBase bool,
	o object.TreeEntry, hasOurs bool,
	t object.TreeEntry, hasTheirs bool,
	opts MergeOptions,
	result *MergeResult,
) (object.TreeEntry, bool, error) {
	sameEntry := func(a object.TreeEntry, hasA bool, b object.TreeEntry, hasB bool) bool {
		if hasA != hasB {
			return false
		}
		if !hasA {
			return true
		}
		return a.Hash == b.Hash && a.Mode == b.Mode
	}

	// Unchanged on at least one side
	if sameEntry(o, hasOurs, t, hasTheirs) {
		return o, hasOurs, nil
	}
	if sameEntry(o, hasOurs, b, hasBase) {
		return t, hasTheirs, nil
	}
	if sameEntry(t, hasTheirs, b, hasBase) {
		return o, hasOurs, nil
	}

	// Both sides changed. Recurse into matching directories.
	if hasOurs && hasTheirs && o.Mode == filemode.Dir && t.Mode == filemode.Dir {
		baseSub := EmptyTreeID
		if hasBase && b.Mode == filemode.Dir {
			baseSub = b.Hash
		}
		subID, err := r.mergeTreeLevel(baseSub, o.Hash, t.Hash, path, opts, result)
		if err != nil {
			return object.TreeEntry{}, false, err
		}
		sub, err := r.Tree(subID)
		if err != nil {
			return object.TreeEntry{}, false, err
		}
		if len(sub.Entries) == 0 {
			return object.TreeEntry{}, false, nil
		}
		return object.TreeEntry{Name: lastSegment(path), Mode: filemode.Dir, Hash: subID}, true, nil
	}

	conflict := MergeConflict{Path: path}
	if hasBase {
		conflict.Base = b.Hash
	}
	if hasOurs {
		conflict.Ours = o.Hash
	}
	if hasTheirs {
		conflict.Theirs = t.Hash
	}

	// Both sides hold blobs: try a line-level merge. A textual conflict
	// still yields content, with the ours side winning the disputed chunks.
	if hasOurs && hasTheirs && isBlobMode(o.Mode) && isBlobMode(t.Mode) {
		var baseID plumbing.Hash
		if hasBase && isBlobMode(b.Mode) {
			baseID = b.Hash
		}
		content, clean, err := r.mergeBlobs(baseID, o.Hash, t.Hash)
		if err != nil {
			return object.TreeEntry{}, false, err
		}
		if o.Mode != t.Mode {
			// Mode conflict resolves toward ours
			clean = false
		}
		if content != nil {
			if !clean {
				if opts.FailOnFirstConflict {
					return object.TreeEntry{}, false, errFirstConflict{conflict}
				}
				result.Conflicts = append(result.Conflicts, conflict)
			}
			blobID, err := r.WriteBlob(content)
			if err != nil {
				return object.TreeEntry{}, false, err
			}
			return object.TreeEntry{Name: lastSegment(path), Mode: o.Mode, Hash: blobID}, true, nil
		}
	}

	// Anything else (delete/modify, type clash, binary conflict) resolves
	// toward ours and is recorded.
	if opts.FailOnFirstConflict {
		return object.TreeEntry{}, false, errFirstConflict{conflict}
	}
	result.Conflicts = append(result.Conflicts, conflict)
	return o, hasOurs, nil
}

func isBlobMode(m filemode.FileMode) bool {
	return m == filemode.Regular || m == filemode.Executable
}

func lastSegment(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// mergeBlobs merges ours and theirs relative to base at line granularity.
// A zero base id means the file did not exist in the base. When any side is
// binary no textual merge is tried and the content is nil; otherwise, when
// clean is false, the content has the conflicting regions resolved toward ours.
func (r *Repository) mergeBlobs(base, ours, theirs plumbing.Hash) ([]byte, bool, error) {
	var baseText, oursText, theirsText []byte
	var err error
	if !base.IsZero() {
		baseText, err = r.ReadBlob(base)
		if err != nil {
			return nil, false, err
		}
	}
	oursText, err = r.ReadBlob(ours)
	if err != nil {
		return nil, false, err
	}
	theirsText, err = r.ReadBlob(theirs)
	if err != nil {
		return nil, false, err
	}

	if isBinary(baseText) || isBinary(oursText) || isBinary(theirsText) {
		return nil, false, nil
	}

	merged, clean := mergeText(string(baseText), string(oursText), string(theirsText))
	return []byte(merged), clean, nil
}

func isBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0
}

// region is one contiguous edit relative to the base: base lines
// [baseStart, baseEnd) are replaced by lines.
type region struct {
	baseStart int
	baseEnd   int
	lines     []string
}

// diffRegions computes the edit script from base to side as base-anchored regions
func diffRegions(base, side string) []region {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(base, side)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineArray)

	var regions []region
	baseLine := 0
	for _, d := range diffs {
		lines := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			baseLine += len(lines)
		case diffmatchpatch.DiffDelete:
			regions = appendRegion(regions, region{baseStart: baseLine, baseEnd: baseLine + len(lines)})
			baseLine += len(lines)
		case diffmatchpatch.DiffInsert:
			regions = appendRegion(regions, region{baseStart: baseLine, baseEnd: baseLine, lines: lines})
		}
	}
	return regions
}

// appendRegion coalesces edits that touch the same base position
func appendRegion(regions []region, next region) []region {
	if n := len(regions); n > 0 && regions[n-1].baseEnd == next.baseStart {
		regions[n-1].baseEnd = next.baseEnd
		regions[n-1].lines = append(regions[n-1].lines, next.lines...)
		return regions
	}
	return append(regions, next)
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// mergeText merges two edit scripts over a shared base. Overlapping edits
// that disagree make the merge unclean; content is still assembled with the
// ours side winning so callers can use it as an auto-resolution.
func mergeText(base, ours, theirs string) (string, bool) {
	baseLines := splitLines(base)
	oursRegions := diffRegions(base, ours)
	theirsRegions := diffRegions(base, theirs)

	// Pure deletions split at the other side's edit boundaries so that a
	// block removal only conflicts with the lines the other side actually
	// touched, not with the whole block.
	oursRegions = splitDeletionsAt(oursRegions, theirsRegions)
	theirsRegions = splitDeletionsAt(theirsRegions, oursRegions)

	var out []string
	clean := true
	baseLine := 0
	i, j := 0, 0

	copyBaseTo := func(end int) {
		for baseLine < end {
			out = append(out, baseLines[baseLine])
			baseLine++
		}
	}

	for i < len(oursRegions) || j < len(theirsRegions) {
		var cluster []region
		var fromOurs []region
		var fromTheirs []region

		// Seed the cluster with whichever side edits the earliest base line
		takeOurs := j >= len(theirsRegions) ||
			(i < len(oursRegions) && oursRegions[i].baseStart <= theirsRegions[j].baseStart)
		if takeOurs {
			cluster = append(cluster, oursRegions[i])
			fromOurs = append(fromOurs, oursRegions[i])
			i++
		} else {
			cluster = append(cluster, theirsRegions[j])
			fromTheirs = append(fromTheirs, theirsRegions[j])
			j++
		}

		// Grow the cluster while regions from either side overlap it
		grown := true
		for grown {
			grown = false
			span := clusterSpan(cluster)
			if i < len(oursRegions) && regionsOverlap(span, oursRegions[i]) {
				cluster = append(cluster, oursRegions[i])
				fromOurs = append(fromOurs, oursRegions[i])
				i++
				grown = true
			}
			if j < len(theirsRegions) && regionsOverlap(span, theirsRegions[j]) {
				cluster = append(cluster, theirsRegions[j])
				fromTheirs = append(fromTheirs, theirsRegions[j])
				j++
				grown = true
			}
		}

		span := clusterSpan(cluster)
		copyBaseTo(span.baseStart)

		switch {
		case len(fromTheirs) == 0:
			out = append(out, applyRegions(baseLines, span, fromOurs)...)
		case len(fromOurs) == 0:
			out = append(out, applyRegions(baseLines, span, fromTheirs)...)
		default:
			oursChunk := applyRegions(baseLines, span, fromOurs)
			theirsChunk := applyRegions(baseLines, span, fromTheirs)
			if linesEqual(oursChunk, theirsChunk) {
				out = append(out, oursChunk...)
			} else {
				// Conflicting edits: ours wins, merge is unclean
				out = append(out, oursChunk...)
				clean = false
			}
		}
		baseLine = span.baseEnd
	}

	copyBaseTo(len(baseLines))
	return strings.Join(out, ""), clean
}

// splitDeletionsAt cuts replacement-free regions at the boundary lines of
// the other side's regions. Regions with replacement content cannot be cut
// because their lines have no per-base-line mapping.
func splitDeletionsAt(regions, other []region) []region {
	boundaries := make(map[int]struct{})
	for _, reg := range other {
		boundaries[reg.baseStart] = struct{}{}
		boundaries[reg.baseEnd] = struct{}{}
	}

	var out []region
	for _, reg := range regions {
		if len(reg.lines) > 0 || reg.baseEnd-reg.baseStart <= 1 {
			out = append(out, reg)
			continue
		}
		start := reg.baseStart
		for line := reg.baseStart + 1; line < reg.baseEnd; line++ {
			if _, ok := boundaries[line]; ok {
				out = append(out, region{baseStart: start, baseEnd: line})
				start = line
			}
		}
		out = append(out, region{baseStart: start, baseEnd: reg.baseEnd})
	}
	return out
}

func clusterSpan(cluster []region) region {
	span := region{baseStart: cluster[0].baseStart, baseEnd: cluster[0].baseEnd}
	for _, reg := range cluster[1:] {
		if reg.baseStart < span.baseStart {
			span.baseStart = reg.baseStart
		}
		if reg.baseEnd > span.baseEnd {
			span.baseEnd = reg.baseEnd
		}
	}
	return span
}

func regionsOverlap(span, next region) bool {
	if next.baseStart == next.baseEnd {
		// Insertion points collide with any span they touch, so identical
		// insertions from both sides coalesce instead of duplicating.
		return next.baseStart >= span.baseStart && next.baseStart <= span.baseEnd
	}
	return span.baseStart < next.baseEnd && next.baseStart < span.baseEnd
}

// applyRegions renders base lines [span.baseStart, span.baseEnd) with one
// side's regions applied. Regions are disjoint and sorted.
func applyRegions(baseLines []string, span region, regions []region) []string {
	var out []string
	pos := span.baseStart
	for _, reg := range regions {
		for pos < reg.baseStart {
			out = append(out, baseLines[pos])
			pos++
		}
		out = append(out, reg.lines...)
		if reg.baseEnd > pos {
			pos = reg.baseEnd
		}
	}
	for pos < span.baseEnd {
		out = append(out, baseLines[pos])
		pos++
	}
	return out
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
