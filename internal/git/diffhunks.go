package git

import (
	"github.com/go-git/go-git/v5/plumbing"
)

// HunkHeader is one edit between two file images in hunk-header form.
// Starts are 1-based; zero OldLines means an insertion before OldStart and
// zero NewLines means a deletion at NewStart.
type HunkHeader struct {
	OldStart uint32
	OldLines uint32
	NewStart uint32
	NewLines uint32
}

// DiffHunks computes the line-level edits turning oldText into newText
func DiffHunks(oldText, newText []byte) []HunkHeader {
	regions := diffRegions(string(oldText), string(newText))
	var out []HunkHeader
	delta := int64(0)
	for _, reg := range regions {
		oldLines := uint32(reg.baseEnd - reg.baseStart)
		newLines := uint32(len(reg.lines))
		out = append(out, HunkHeader{
			OldStart: uint32(reg.baseStart + 1),
			OldLines: oldLines,
			NewStart: uint32(int64(reg.baseStart+1) + delta),
			NewLines: newLines,
		})
		delta += int64(newLines) - int64(oldLines)
	}
	return out
}

// DiffBlobHunks diffs two blobs by id; a zero id stands for an absent file
func (r *Repository) DiffBlobHunks(oldID, newID plumbing.Hash) ([]HunkHeader, error) {
	var oldText, newText []byte
	var err error
	if !oldID.IsZero() {
		oldText, err = r.ReadBlob(oldID)
		if err != nil {
			return nil, err
		}
	}
	if !newID.IsZero() {
		newText, err = r.ReadBlob(newID)
		if err != nil {
			return nil, err
		}
	}
	return DiffHunks(oldText, newText), nil
}
