package gitcore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Index is the parsed staging area.
type Index struct {
	Version int
	Entries []IndexEntry
}

// IndexEntry is one staged path with the stat fields needed to decide
// whether the working copy may have drifted.
type IndexEntry struct {
	Path  string
	Mode  uint32
	Size  uint32
	MTime time.Time
	Hash  Hash
}

const indexExtendedFlag = 0x4000

// ReadIndex parses the repository's index file. A missing index means an
// empty staging area, which is what a fresh or bare repository has.
//
// See: https://git-scm.com/docs/index-format
func (r *Repository) ReadIndex() (*Index, error) {
	data, err := os.ReadFile(filepath.Join(r.gitDir, "index"))
	if os.IsNotExist(err) {
		return &Index{Version: 2}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	if len(data) < 12 {
		return nil, fmt.Errorf("index too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "DIRC" {
		return nil, fmt.Errorf("invalid index signature: %q", string(data[0:4]))
	}

	version := binary.BigEndian.Uint32(data[4:8])
	if version != 2 && version != 3 {
		// Version 4 compresses path names and is only written when
		// feature.manyFiles is enabled.
		return nil, fmt.Errorf("unsupported index version: %d", version)
	}
	numEntries := binary.BigEndian.Uint32(data[8:12])

	index := &Index{
		Version: int(version),
		Entries: make([]IndexEntry, 0, numEntries),
	}

	pos := 12
	for i := uint32(0); i < numEntries; i++ {
		entry, next, err := parseIndexEntry(data, pos, version)
		if err != nil {
			// One bad read corrupts every subsequent offset, hence early return.
			return nil, fmt.Errorf("failed to parse index entry %d: %w", i, err)
		}
		index.Entries = append(index.Entries, entry)
		pos = next
	}

	return index, nil
}

// parseIndexEntry decodes the entry starting at pos and returns the offset
// of the next entry, accounting for the 1-8 byte NUL padding that keeps
// entries 8-byte aligned.
func parseIndexEntry(data []byte, pos int, version uint32) (IndexEntry, int, error) {
	var entry IndexEntry
	entryStart := pos

	if len(data)-pos < 62 {
		return entry, 0, fmt.Errorf("truncated entry at offset %d", pos)
	}

	mtimeSec := binary.BigEndian.Uint32(data[pos+8 : pos+12])
	mtimeNano := binary.BigEndian.Uint32(data[pos+12 : pos+16])
	entry.MTime = time.Unix(int64(mtimeSec), int64(mtimeNano))
	entry.Mode = binary.BigEndian.Uint32(data[pos+24 : pos+28])
	entry.Size = binary.BigEndian.Uint32(data[pos+36 : pos+40])

	var raw [20]byte
	copy(raw[:], data[pos+40:pos+60])
	hash, err := NewHashFromBytes(raw)
	if err != nil {
		return entry, 0, err
	}
	entry.Hash = hash

	flags := binary.BigEndian.Uint16(data[pos+60 : pos+62])
	pos += 62

	if version >= 3 && flags&indexExtendedFlag != 0 {
		if len(data)-pos < 2 {
			return entry, 0, fmt.Errorf("truncated extended flags at offset %d", pos)
		}
		pos += 2
	}

	nameLen := int(flags & 0x0FFF)
	if nameLen < 0x0FFF {
		if len(data)-pos < nameLen {
			return entry, 0, fmt.Errorf("truncated path at offset %d", pos)
		}
		entry.Path = string(data[pos : pos+nameLen])
		pos += nameLen
	} else {
		// Path length overflowed the flags field; scan to the terminator.
		nul := bytes.IndexByte(data[pos:], 0)
		if nul == -1 {
			return entry, 0, fmt.Errorf("unterminated path at offset %d", pos)
		}
		entry.Path = string(data[pos : pos+nul])
		pos += nul
	}

	entryLen := pos - entryStart
	padding := 8 - entryLen%8
	if len(data)-pos < padding {
		return entry, 0, fmt.Errorf("truncated padding at offset %d", pos)
	}
	pos += padding

	return entry, pos, nil
}
