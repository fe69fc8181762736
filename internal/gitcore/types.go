package gitcore

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Hash represents a Git object hash.
type Hash string

// NewHash creates a Hash from a hexadecimal string, validating its format.
func NewHash(s string) (Hash, error) {
	if len(s) != 40 {
		return "", fmt.Errorf("invalid hash length: %d", len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("invalid hash: %w", err)
	}
	return Hash(s), nil
}

// NewHashFromBytes creates a Hash from a 20-byte array.
func NewHashFromBytes(b [20]byte) (Hash, error) {
	return NewHash(hex.EncodeToString(b[:]))
}

// IsValid checks if the hash has a valid format (40 hex characters for SHA-1).
func (h Hash) IsValid() bool {
	if len(string(h)) != 40 {
		return false
	}
	_, err := hex.DecodeString(string(h))
	return err == nil
}

// Short returns the abbreviated form of the hash used in human-facing output.
func (h Hash) Short() string {
	if len(h) < 7 {
		return string(h)
	}
	return string(h[:7])
}

// ObjectType denotes the type of a Git object. The numeric values match the
// type codes used in pack files.
type ObjectType int

const (
	NoneObject   ObjectType = 0
	CommitObject ObjectType = 1
	TreeObject   ObjectType = 2
	BlobObject   ObjectType = 3
	TagObject    ObjectType = 4
)

func (t ObjectType) String() string {
	switch t {
	case CommitObject:
		return "commit"
	case TreeObject:
		return "tree"
	case BlobObject:
		return "blob"
	case TagObject:
		return "tag"
	default:
		return "none"
	}
}

// ParseObjectType converts an object header name ("commit", "tree", ...) to
// its ObjectType.
func ParseObjectType(s string) (ObjectType, error) {
	switch s {
	case "commit":
		return CommitObject, nil
	case "tree":
		return TreeObject, nil
	case "blob":
		return BlobObject, nil
	case "tag":
		return TagObject, nil
	default:
		return NoneObject, fmt.Errorf("unknown object type: %q", s)
	}
}

// Object represents a generic Git object.
type Object interface {
	Type() ObjectType
}

// headerLine is one raw header of a commit or tag object. Multi-line values
// (git's continuation encoding, lines starting with a space) are stored in
// value joined with "\n" so the original bytes can be reproduced exactly.
type headerLine struct {
	key   string
	value string
}

// Commit represents a Git commit object with its metadata and relationships.
// The original header lines and message bytes are retained so the commit can
// be re-encoded without disturbing anything but what the caller edits.
// Message is trimmed for display; rawMessage keeps the stored bytes.
type Commit struct {
	ID        Hash
	Tree      Hash
	Parents   []Hash
	Author    Signature
	Committer Signature
	Message   string

	headers    []headerLine
	rawMessage []byte
}

func (c *Commit) Type() ObjectType {
	return CommitObject
}

// Tag represents an annotated Git tag with metadata and a message.
type Tag struct {
	ID      Hash
	Object  Hash
	ObjType ObjectType
	Name    string
	Tagger  Signature
	Message string

	headers    []headerLine
	rawMessage []byte
}

func (t *Tag) Type() ObjectType {
	return TagObject
}

// Signature represents a Git author or committer signature with name, email,
// and timestamp. When carries the zone offset recorded in the object.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// parseSignature parses a raw signature value in the format
// "Name <email> epoch zone". The email markers are located from the right so
// names containing angle brackets survive.
func parseSignature(raw string) (Signature, error) {
	gt := strings.LastIndex(raw, ">")
	if gt == -1 {
		return Signature{}, fmt.Errorf("invalid signature line: %q", raw)
	}
	lt := strings.LastIndex(raw[:gt], "<")
	if lt == -1 {
		return Signature{}, fmt.Errorf("invalid signature line: %q", raw)
	}

	name := strings.TrimSpace(raw[:lt])
	email := raw[lt+1 : gt]

	fields := strings.Fields(raw[gt+1:])
	if len(fields) != 2 {
		return Signature{}, fmt.Errorf("invalid signature timestamp: %q", raw)
	}
	epoch, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Signature{}, fmt.Errorf("invalid signature timestamp: %q", raw)
	}
	zone, err := parseZoneOffset(fields[1])
	if err != nil {
		return Signature{}, fmt.Errorf("invalid signature zone: %q", raw)
	}

	return Signature{
		Name:  name,
		Email: email,
		When:  time.Unix(epoch, 0).In(zone),
	}, nil
}

// parseZoneOffset converts a git zone string like "+0200" or "-0730" to a
// fixed time.Location.
func parseZoneOffset(s string) (*time.Location, error) {
	if len(s) != 5 || (s[0] != '+' && s[0] != '-') {
		return nil, fmt.Errorf("malformed zone offset: %q", s)
	}
	hours, err := strconv.Atoi(s[1:3])
	if err != nil {
		return nil, err
	}
	minutes, err := strconv.Atoi(s[3:5])
	if err != nil {
		return nil, err
	}
	offset := (hours*60 + minutes) * 60
	if s[0] == '-' {
		offset = -offset
	}
	return time.FixedZone(s, offset), nil
}

// PackIndex represents a Git pack index file that maps object hashes to their
// locations within pack files.
type PackIndex struct {
	path       string
	packPath   string
	version    uint32
	numObjects uint32
	fanout     [256]uint32
	offsets    map[Hash]int64
}

// FindObject looks up the offset of an object in the pack file by its hash.
// Returns the offset and true if found, otherwise returns 0 and false.
func (p *PackIndex) FindObject(id Hash) (int64, bool) {
	offset, found := p.offsets[id]
	return offset, found
}

// PackFile returns the path to the pack file associated with this index.
func (p *PackIndex) PackFile() string {
	return p.packPath
}
