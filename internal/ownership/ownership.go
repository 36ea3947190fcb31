// Package ownership models claims of uncommitted hunks by stacks: which
// line ranges of which files belong to whom. Claims form a small algebra
// with union and difference used when hunks move between stacks.
package ownership

import (
	"fmt"
	"strconv"
	"strings"
)

// Hunk is one claimed line range, 1-based and inclusive on both ends
type Hunk struct {
	Start uint32
	End   uint32
}

// String renders the hunk in claim notation
func (h Hunk) String() string {
	if h.Start == h.End {
		return strconv.FormatUint(uint64(h.Start), 10)
	}
	return fmt.Sprintf("%d-%d", h.Start, h.End)
}

// ParseHunk parses "15" or "10-20"
func ParseHunk(s string) (Hunk, error) {
	start, end, found := strings.Cut(s, "-")
	a, err := strconv.ParseUint(start, 10, 32)
	if err != nil {
		return Hunk{}, fmt.Errorf("invalid hunk %q: %w", s, err)
	}
	if !found {
		return Hunk{Start: uint32(a), End: uint32(a)}, nil
	}
	b, err := strconv.ParseUint(end, 10, 32)
	if err != nil {
		return Hunk{}, fmt.Errorf("invalid hunk %q: %w", s, err)
	}
	if b < a {
		return Hunk{}, fmt.Errorf("invalid hunk %q: end before start", s)
	}
	return Hunk{Start: uint32(a), End: uint32(b)}, nil
}

// Claim is the set of hunks of one file owned by a stack. Empty Hunks
// means the whole file is claimed.
type Claim struct {
	FilePath string
	Hunks    []Hunk
}

// Parse parses claim notation: "path:10-20,30-40" or just "path" for a
// whole-file claim.
func Parse(s string) (*Claim, error) {
	if s == "" {
		return nil, fmt.Errorf("empty ownership claim")
	}
	path, ranges, found := strings.Cut(s, ":")
	if path == "" {
		return nil, fmt.Errorf("ownership claim %q has no file path", s)
	}
	claim := &Claim{FilePath: path}
	if !found || ranges == "" {
		return claim, nil
	}
	for _, part := range strings.Split(ranges, ",") {
		hunk, err := ParseHunk(part)
		if err != nil {
			return nil, err
		}
		claim.Hunks = append(claim.Hunks, hunk)
	}
	return claim, nil
}

// String renders the claim back into the parseable notation
func (c *Claim) String() string {
	if len(c.Hunks) == 0 {
		return c.FilePath
	}
	parts := make([]string, len(c.Hunks))
	for i, h := range c.Hunks {
		parts[i] = h.String()
	}
	return c.FilePath + ":" + strings.Join(parts, ",")
}

// Contains reports whether the claim includes the given hunk. A whole-file
// claim contains every hunk.
func (c *Claim) Contains(h Hunk) bool {
	if len(c.Hunks) == 0 {
		return true
	}
	for _, own := range c.Hunks {
		if own == h {
			return true
		}
	}
	return false
}

// Plus unions another claim of the same file into this one and returns the
// result. Hunks already present are not duplicated; claims of different
// files do not combine.
func (c *Claim) Plus(other *Claim) *Claim {
	if other == nil || other.FilePath != c.FilePath {
		return c
	}
	out := &Claim{FilePath: c.FilePath, Hunks: append([]Hunk(nil), c.Hunks...)}
	for _, h := range other.Hunks {
		if !containsHunk(out.Hunks, h) {
			out.Hunks = append(out.Hunks, h)
		}
	}
	return out
}

// Minus removes another claim's hunks from this one. It returns the taken
// part (the intersection) and the remaining part; either may be nil when
// empty. Subtracting a whole-file claim takes everything.
func (c *Claim) Minus(other *Claim) (*Claim, *Claim) {
	if other == nil || other.FilePath != c.FilePath {
		return nil, c
	}
	if len(other.Hunks) == 0 {
		// Whole-file subtraction takes the entire claim
		return c, nil
	}
	var taken, remaining []Hunk
	for _, h := range c.Hunks {
		if containsHunk(other.Hunks, h) {
			taken = append(taken, h)
		} else {
			remaining = append(remaining, h)
		}
	}
	var takenClaim, remainingClaim *Claim
	if len(taken) > 0 {
		takenClaim = &Claim{FilePath: c.FilePath, Hunks: taken}
	}
	if len(remaining) > 0 {
		remainingClaim = &Claim{FilePath: c.FilePath, Hunks: remaining}
	}
	return takenClaim, remainingClaim
}

func containsHunk(hunks []Hunk, h Hunk) bool {
	for _, own := range hunks {
		if own == h {
			return true
		}
	}
	return false
}

// Ownership is an ordered collection of claims across files
type Ownership struct {
	Claims []*Claim
}

// ParseOwnership parses newline-separated claims
func ParseOwnership(s string) (*Ownership, error) {
	own := &Ownership{}
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		claim, err := Parse(line)
		if err != nil {
			return nil, err
		}
		own.Claims = append(own.Claims, claim)
	}
	return own, nil
}

// String renders all claims, one per line
func (o *Ownership) String() string {
	parts := make([]string, len(o.Claims))
	for i, c := range o.Claims {
		parts[i] = c.String()
	}
	return strings.Join(parts, "\n")
}

// Take removes the given claim from the ownership, returning what was
// actually taken. Files not claimed are untouched.
func (o *Ownership) Take(target *Claim) *Claim {
	for i, c := range o.Claims {
		if c.FilePath != target.FilePath {
			continue
		}
		taken, remaining := c.Minus(target)
		if remaining == nil {
			o.Claims = append(o.Claims[:i], o.Claims[i+1:]...)
		} else {
			o.Claims[i] = remaining
		}
		return taken
	}
	return nil
}
