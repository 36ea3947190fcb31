package git

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/uuid"
)

// Extra header names carried on butler commits. Version 1 used the
// gitbutler-change-id name; it is accepted on read and rewritten as
// change-id.
const (
	HeaderVersionKey   = "gitbutler-headers-version"
	HeaderVersionValue = "2"
	ChangeIDKey        = "change-id"
	LegacyChangeIDKey  = "gitbutler-change-id"
	ConflictedKey      = "gitbutler-conflicted"
)

// Header is one extra commit header in writing order
type Header struct {
	Key   string
	Value string
}

// CommitData is the raw content of a commit object, including the extra
// headers that go-git's object.Commit does not round-trip. All butler-made
// commits go through this codec.
type CommitData struct {
	ID        plumbing.Hash
	Tree      plumbing.Hash
	Parents   []plumbing.Hash
	Author    object.Signature
	Committer object.Signature
	Headers   []Header
	Message   string
}

// Header returns the value of the named extra header, if present
func (c *CommitData) Header(key string) (string, bool) {
	for _, h := range c.Headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

// SetHeader replaces or appends the named extra header
func (c *CommitData) SetHeader(key, value string) {
	for i, h := range c.Headers {
		if h.Key == key {
			c.Headers[i].Value = value
			return
		}
	}
	c.Headers = append(c.Headers, Header{Key: key, Value: value})
}

// RemoveHeader deletes the named extra header if present
func (c *CommitData) RemoveHeader(key string) {
	for i, h := range c.Headers {
		if h.Key == key {
			c.Headers = append(c.Headers[:i], c.Headers[i+1:]...)
			return
		}
	}
}

// ChangeID returns the stable change identity of the commit, upgrading the
// v1 header name transparently. Empty if the commit carries neither.
func (c *CommitData) ChangeID() string {
	if v, ok := c.Header(ChangeIDKey); ok {
		return v
	}
	if v, ok := c.Header(LegacyChangeIDKey); ok {
		return v
	}
	return ""
}

// ConflictCount returns the number of unresolved conflicts recorded on the
// commit. Zero means the commit is not conflicted.
func (c *CommitData) ConflictCount() int {
	v, ok := c.Header(ConflictedKey)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return n
}

// IsConflicted reports whether the commit is conflict-annotated
func (c *CommitData) IsConflicted() bool {
	return c.ConflictCount() > 0
}

// SetButlerHeaders stamps the version header and a change id, generating a
// fresh id when the commit has none. The legacy v1 name is dropped.
func (c *CommitData) SetButlerHeaders() {
	changeID := c.ChangeID()
	if changeID == "" {
		changeID = uuid.NewString()
	}
	c.RemoveHeader(LegacyChangeIDKey)
	c.SetHeader(HeaderVersionKey, HeaderVersionValue)
	c.SetHeader(ChangeIDKey, changeID)
}

// ReadCommit loads and decodes a commit object including extra headers
func (r *Repository) ReadCommit(id plumbing.Hash) (*CommitData, error) {
	obj, err := r.Storer.EncodedObject(plumbing.CommitObject, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load commit %s: %w", id, err)
	}
	reader, err := obj.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", id, err)
	}
	defer func() {
		_ = reader.Close()
	}()

	data, err := decodeCommit(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode commit %s: %w", id, err)
	}
	data.ID = id
	return data, nil
}

// WriteCommit encodes the commit into the object database and returns its id
func (r *Repository) WriteCommit(data *CommitData) (plumbing.Hash, error) {
	obj := r.Storer.NewEncodedObject()
	obj.SetType(plumbing.CommitObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to open object writer: %w", err)
	}
	if err := encodeCommit(w, data); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, fmt.Errorf("failed to encode commit: %w", err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to finish commit object: %w", err)
	}
	id, err := r.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to store commit: %w", err)
	}
	data.ID = id
	return id, nil
}

func decodeCommit(r io.Reader) (*CommitData, error) {
	br := bufio.NewReader(r)
	data := &CommitData{}

	var lastKey string
	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		trimmed := strings.TrimSuffix(line, "\n")
		if trimmed == "" {
			// Header section ends at the first blank line
			break
		}

		if strings.HasPrefix(trimmed, " ") {
			// Continuation of the previous header (e.g. gpgsig)
			if lastKey == "" {
				return nil, fmt.Errorf("continuation line without header")
			}
			appendContinuation(data, lastKey, trimmed[1:])
			continue
		}

		key, value, found := strings.Cut(trimmed, " ")
		if !found {
			key = trimmed
		}
		lastKey = key

		switch key {
		case "tree":
			data.Tree = plumbing.NewHash(value)
		case "parent":
			data.Parents = append(data.Parents, plumbing.NewHash(value))
		case "author":
			data.Author.Decode([]byte(value))
		case "committer":
			data.Committer.Decode([]byte(value))
		default:
			data.Headers = append(data.Headers, Header{Key: key, Value: value})
		}

		if err == io.EOF {
			return data, nil
		}
	}

	msg, err := io.ReadAll(br)
	if err != nil {
		return nil, err
	}
	data.Message = string(msg)
	return data, nil
}

func appendContinuation(data *CommitData, key, value string) {
	for i := len(data.Headers) - 1; i >= 0; i-- {
		if data.Headers[i].Key == key {
			data.Headers[i].Value += "\n" + value
			return
		}
	}
}

func encodeCommit(w io.Writer, data *CommitData) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", data.Tree.String())
	for _, p := range data.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p.String())
	}
	fmt.Fprintf(&buf, "author %s\n", encodeSignature(data.Author))
	fmt.Fprintf(&buf, "committer %s\n", encodeSignature(data.Committer))
	for _, h := range data.Headers {
		// Multi-line values fold with a leading space per line
		value := strings.ReplaceAll(h.Value, "\n", "\n ")
		fmt.Fprintf(&buf, "%s %s\n", h.Key, value)
	}
	buf.WriteByte('\n')
	buf.WriteString(data.Message)
	_, err := w.Write(buf.Bytes())
	return err
}

func encodeSignature(sig object.Signature) string {
	return fmt.Sprintf("%s <%s> %d %s", sig.Name, sig.Email, sig.When.Unix(), sig.When.Format("-0700"))
}
