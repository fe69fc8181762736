package gitcore

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// looseObjectPath returns the loose store path for an object hash.
func (r *Repository) looseObjectPath(id Hash) string {
	return filepath.Join(r.gitDir, "objects", string(id)[:2], string(id)[2:])
}

// HasObject reports whether the object exists in the repository, loose or
// packed.
func (r *Repository) HasObject(id Hash) bool {
	if _, err := os.Stat(r.looseObjectPath(id)); err == nil {
		return true
	}
	for _, idx := range r.packIndices {
		if _, found := idx.FindObject(id); found {
			return true
		}
	}
	return false
}

// ReadObject returns the type and decompressed body of an object, checking
// the loose store first and falling back to pack files.
func (r *Repository) ReadObject(id Hash) (ObjectType, []byte, error) {
	data, err := readLooseObject(r.looseObjectPath(id))
	if err == nil {
		return splitObjectHeader(data)
	}
	if !os.IsNotExist(err) {
		return NoneObject, nil, fmt.Errorf("failed to read object %s: %w", id.Short(), err)
	}

	for _, idx := range r.packIndices {
		offset, found := idx.FindObject(id)
		if !found {
			continue
		}
		return r.readPackedObject(idx, offset)
	}

	return NoneObject, nil, fmt.Errorf("object %s not found", id.Short())
}

// readLooseObject reads and decompresses a loose object file.
func readLooseObject(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	zr, err := zlib.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open zlib stream: %w", err)
	}
	defer zr.Close()

	return io.ReadAll(zr)
}

// splitObjectHeader splits "<type> <size>\x00<body>" into type and body.
func splitObjectHeader(data []byte) (ObjectType, []byte, error) {
	nullIdx := bytes.IndexByte(data, 0)
	if nullIdx == -1 {
		return NoneObject, nil, fmt.Errorf("invalid object format")
	}

	header := string(data[:nullIdx])
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return NoneObject, nil, fmt.Errorf("invalid object header: %q", header)
	}
	objType, err := ParseObjectType(parts[0])
	if err != nil {
		return NoneObject, nil, err
	}

	return objType, data[nullIdx+1:], nil
}

// loadCommits walks every ref and caches all reachable commits, peeling
// annotated tags along the way. Refs that point at blobs or trees have
// nothing to walk and are left alone.
func (r *Repository) loadCommits() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := make([]Hash, 0, len(r.refs)+1)
	for _, hash := range r.refs {
		pending = append(pending, hash)
	}
	if r.headDetached && r.head != "" {
		pending = append(pending, r.head)
	}

	for len(pending) > 0 {
		id := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		if _, ok := r.commits[id]; ok {
			continue
		}
		if _, ok := r.tags[id]; ok {
			continue
		}

		objType, body, err := r.ReadObject(id)
		if err != nil {
			return err
		}

		switch objType {
		case CommitObject:
			commit, err := r.parseCommitBody(body, id)
			if err != nil {
				return err
			}
			r.commits[id] = commit
			pending = append(pending, commit.Parents...)
		case TagObject:
			tag, err := r.parseTagBody(body, id)
			if err != nil {
				return err
			}
			r.tags[id] = tag
			pending = append(pending, tag.Object)
		}
	}

	return nil
}

// parseCommitBody parses a raw commit body into a Commit, retaining every
// header line and the message bytes exactly as stored.
func (r *Repository) parseCommitBody(body []byte, id Hash) (*Commit, error) {
	headers, rawMessage, err := splitHeaders(body)
	if err != nil {
		return nil, fmt.Errorf("malformed commit %s: %w", id.Short(), err)
	}

	commit := &Commit{
		ID:         id,
		Message:    strings.TrimSpace(string(rawMessage)),
		headers:    headers,
		rawMessage: rawMessage,
	}

	for _, h := range headers {
		switch h.key {
		case "tree":
			hash, err := NewHash(h.value)
			if err != nil {
				return nil, fmt.Errorf("commit %s: invalid tree: %w", id.Short(), err)
			}
			commit.Tree = hash
		case "parent":
			hash, err := NewHash(h.value)
			if err != nil {
				return nil, fmt.Errorf("commit %s: invalid parent: %w", id.Short(), err)
			}
			commit.Parents = append(commit.Parents, hash)
		case "author":
			sig, err := parseSignature(h.value)
			if err != nil {
				return nil, fmt.Errorf("commit %s: %w", id.Short(), err)
			}
			commit.Author = sig
		case "committer":
			sig, err := parseSignature(h.value)
			if err != nil {
				return nil, fmt.Errorf("commit %s: %w", id.Short(), err)
			}
			commit.Committer = sig
		}
	}

	if commit.Tree == "" {
		return nil, fmt.Errorf("commit %s has no tree", id.Short())
	}
	if commit.Author == (Signature{}) || commit.Committer == (Signature{}) {
		return nil, fmt.Errorf("commit %s missing author or committer", id.Short())
	}

	return commit, nil
}

// parseTagBody parses a raw annotated tag body into a Tag.
func (r *Repository) parseTagBody(body []byte, id Hash) (*Tag, error) {
	headers, rawMessage, err := splitHeaders(body)
	if err != nil {
		return nil, fmt.Errorf("malformed tag %s: %w", id.Short(), err)
	}

	tag := &Tag{
		ID:         id,
		Message:    strings.TrimSpace(string(rawMessage)),
		headers:    headers,
		rawMessage: rawMessage,
	}

	for _, h := range headers {
		switch h.key {
		case "object":
			hash, err := NewHash(h.value)
			if err != nil {
				return nil, fmt.Errorf("tag %s: invalid object: %w", id.Short(), err)
			}
			tag.Object = hash
		case "type":
			objType, err := ParseObjectType(h.value)
			if err != nil {
				return nil, fmt.Errorf("tag %s: %w", id.Short(), err)
			}
			tag.ObjType = objType
		case "tag":
			tag.Name = h.value
		case "tagger":
			sig, err := parseSignature(h.value)
			if err != nil {
				return nil, fmt.Errorf("tag %s: %w", id.Short(), err)
			}
			tag.Tagger = sig
		}
	}

	if tag.Object == "" || tag.ObjType == NoneObject {
		return nil, fmt.Errorf("tag %s missing object or type", id.Short())
	}

	return tag, nil
}

// splitHeaders splits an object body into its raw header lines and the
// message bytes that follow the blank separator line. Continuation lines
// (a leading space) are folded into the preceding header's value.
func splitHeaders(body []byte) ([]headerLine, []byte, error) {
	var headers []headerLine
	rest := body

	for {
		nl := bytes.IndexByte(rest, '\n')
		if nl == -1 {
			return nil, nil, fmt.Errorf("truncated header section")
		}
		line := string(rest[:nl])
		rest = rest[nl+1:]

		if line == "" {
			return headers, rest, nil
		}

		if strings.HasPrefix(line, " ") {
			if len(headers) == 0 {
				return nil, nil, fmt.Errorf("continuation line with no header")
			}
			headers[len(headers)-1].value += "\n" + line[1:]
			continue
		}

		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			return nil, nil, fmt.Errorf("malformed header line: %q", line)
		}
		headers = append(headers, headerLine{key: parts[0], value: parts[1]})
	}
}
