package gitcore

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// CommitEdit describes the substitutions to apply when re-encoding a commit.
type CommitEdit struct {
	// Parents replaces the commit's parent hashes positionally. It must
	// carry exactly one hash per original parent.
	Parents []Hash
	// When replaces both the author and committer timestamps, including
	// the recorded zone offset.
	When time.Time
}

// Encode serializes the commit back to its canonical body. With a nil edit
// the result is byte-identical to the parsed object. With an edit, parent
// hashes are remapped, both timestamps are set to edit.When, and embedded
// signature headers are dropped since they sign the old bytes.
func (c *Commit) Encode(edit *CommitEdit) ([]byte, error) {
	var buf bytes.Buffer
	parentIdx := 0

	for _, h := range c.headers {
		key, value := h.key, h.value

		if edit != nil {
			switch key {
			case "parent":
				if parentIdx >= len(edit.Parents) {
					return nil, fmt.Errorf("commit %s: edit supplies %d parents, object has more", c.ID.Short(), len(edit.Parents))
				}
				value = string(edit.Parents[parentIdx])
				parentIdx++
			case "author", "committer":
				patched, err := patchSignatureTime(value, edit.When)
				if err != nil {
					return nil, fmt.Errorf("commit %s: %w", c.ID.Short(), err)
				}
				value = patched
			case "gpgsig", "gpgsig-sha256":
				continue
			}
		}

		writeHeaderLine(&buf, key, value)
	}

	if edit != nil && parentIdx != len(edit.Parents) {
		return nil, fmt.Errorf("commit %s: edit supplies %d parents, object has %d", c.ID.Short(), len(edit.Parents), parentIdx)
	}

	buf.WriteByte('\n')
	buf.Write(c.rawMessage)
	return buf.Bytes(), nil
}

// TagEdit describes the substitutions to apply when re-encoding a tag.
type TagEdit struct {
	// Object replaces the hash the tag points at.
	Object Hash
}

// Encode serializes the tag back to its canonical body. With a nil edit the
// result is byte-identical to the parsed object.
func (t *Tag) Encode(edit *TagEdit) ([]byte, error) {
	var buf bytes.Buffer

	for _, h := range t.headers {
		key, value := h.key, h.value

		if edit != nil && key == "object" {
			value = string(edit.Object)
		}

		writeHeaderLine(&buf, key, value)
	}

	buf.WriteByte('\n')
	buf.Write(t.rawMessage)
	return buf.Bytes(), nil
}

// writeHeaderLine emits one header in git's on-disk form, re-expanding any
// folded continuation lines with their leading space.
func writeHeaderLine(buf *bytes.Buffer, key, value string) {
	lines := strings.Split(value, "\n")
	buf.WriteString(key)
	buf.WriteByte(' ')
	buf.WriteString(lines[0])
	buf.WriteByte('\n')
	for _, cont := range lines[1:] {
		buf.WriteByte(' ')
		buf.WriteString(cont)
		buf.WriteByte('\n')
	}
}

// patchSignatureTime replaces the epoch and zone that follow the closing
// email bracket, leaving the name and email bytes untouched.
func patchSignatureTime(raw string, when time.Time) (string, error) {
	gt := strings.LastIndex(raw, ">")
	if gt == -1 {
		return "", fmt.Errorf("malformed signature: %q", raw)
	}
	return fmt.Sprintf("%s %d %s", raw[:gt+1], when.Unix(), when.Format("-0700")), nil
}
