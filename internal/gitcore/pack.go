package gitcore

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// loadPackIndices scans the objects/pack directory and loads all pack index files.
func (r *Repository) loadPackIndices() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	packDir := filepath.Join(r.gitDir, "objects", "pack")
	if _, err := os.Stat(packDir); os.IsNotExist(err) {
		// No packs yet, this is ok.
		return nil
	} else if err != nil {
		return err
	}

	entries, err := os.ReadDir(packDir)
	if err != nil {
		return fmt.Errorf("failed to read pack directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), ".idx") {
			continue
		}

		idxPath := filepath.Join(packDir, entry.Name())
		idx, err := loadPackIndex(idxPath)
		if err != nil {
			// Log error but continue with other indices
			log.Printf("Failed to load pack index %s: %v", entry.Name(), err)
			continue
		}

		r.packIndices = append(r.packIndices, idx)
	}

	return nil
}

// loadPackIndex loads a single pack index file, detecting its version automatically.
func loadPackIndex(idxPath string) (*PackIndex, error) {
	file, err := os.Open(idxPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var header [4]byte
	if _, err := io.ReadFull(file, header[:]); err != nil {
		return nil, fmt.Errorf("failed to read index header: %w", err)
	}

	if header[0] == 0xFF && header[1] == 0x74 && header[2] == 0x4F && header[3] == 0x63 {
		return loadPackIndexV2(file, idxPath)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return loadPackIndexV1(file, idxPath)
}

// loadPackIndexV2 loads a version 2 pack index file.
func loadPackIndexV2(file *os.File, idxPath string) (*PackIndex, error) {
	idx := &PackIndex{
		path:     idxPath,
		packPath: strings.Replace(idxPath, ".idx", ".pack", 1),
		version:  2,
		offsets:  make(map[Hash]int64),
	}

	var version uint32
	if err := binary.Read(file, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	if version != 2 {
		return nil, fmt.Errorf("expected version 2, got %d", version)
	}

	for i := 0; i < 256; i++ {
		if err := binary.Read(file, binary.BigEndian, &idx.fanout[i]); err != nil {
			return nil, fmt.Errorf("failed to read fanout[%d]: %w", i, err)
		}
	}
	idx.numObjects = idx.fanout[255]

	objectNames := make([][20]byte, idx.numObjects)
	for i := uint32(0); i < idx.numObjects; i++ {
		if _, err := io.ReadFull(file, objectNames[i][:]); err != nil {
			return nil, fmt.Errorf("failed to read object name %d: %w", i, err)
		}
	}

	if _, err := file.Seek(int64(idx.numObjects)*4, io.SeekCurrent); err != nil {
		return nil, fmt.Errorf("failed to skip CRCs: %w", err)
	}

	offsets := make([]uint32, idx.numObjects)
	for i := uint32(0); i < idx.numObjects; i++ {
		if err := binary.Read(file, binary.BigEndian, &offsets[i]); err != nil {
			return nil, fmt.Errorf("failed to read offset %d: %w", i, err)
		}
	}

	// Offsets with the high bit set index into the 8-byte table that sits
	// between the 4-byte offsets and the trailing checksums. Read exactly
	// as many entries as are referenced so the checksums are not consumed.
	largeCount := 0
	for _, offset := range offsets {
		if offset&0x80000000 != 0 {
			largeCount++
		}
	}
	largeOffsets := make([]uint64, largeCount)
	for i := range largeOffsets {
		if err := binary.Read(file, binary.BigEndian, &largeOffsets[i]); err != nil {
			return nil, fmt.Errorf("failed to read large offset %d: %w", i, err)
		}
	}

	for i := uint32(0); i < idx.numObjects; i++ {
		hash, err := NewHashFromBytes(objectNames[i])
		if err != nil {
			return nil, err
		}

		offset := offsets[i]
		if offset&0x80000000 != 0 {
			largeIdx := offset & 0x7fffffff
			if largeIdx >= uint32(len(largeOffsets)) {
				return nil, fmt.Errorf("large offset index %d out of range", largeIdx)
			}
			idx.offsets[hash] = int64(largeOffsets[largeIdx])
		} else {
			idx.offsets[hash] = int64(offset)
		}
	}

	return idx, nil
}

// loadPackIndexV1 loads a version 1 pack index file.
func loadPackIndexV1(file *os.File, idxPath string) (*PackIndex, error) {
	idx := &PackIndex{
		path:     idxPath,
		packPath: strings.Replace(idxPath, ".idx", ".pack", 1),
		version:  1,
		offsets:  make(map[Hash]int64),
	}

	for i := 0; i < 256; i++ {
		if err := binary.Read(file, binary.BigEndian, &idx.fanout[i]); err != nil {
			return nil, fmt.Errorf("failed to read fanout[%d]: %w", i, err)
		}
	}
	idx.numObjects = idx.fanout[255]

	for i := uint32(0); i < idx.numObjects; i++ {
		var offset uint32
		if err := binary.Read(file, binary.BigEndian, &offset); err != nil {
			return nil, fmt.Errorf("failed to read offset %d: %w", i, err)
		}

		var nameBytes [20]byte
		if _, err := io.ReadFull(file, nameBytes[:]); err != nil {
			return nil, fmt.Errorf("failed to read object name %d: %w", i, err)
		}

		hash, err := NewHashFromBytes(nameBytes)
		if err != nil {
			return nil, err
		}
		idx.offsets[hash] = int64(offset)
	}

	return idx, nil
}

// readPackedObject reads the object at the given offset in the pack behind
// idx, resolving any delta chain.
func (r *Repository) readPackedObject(idx *PackIndex, offset int64) (ObjectType, []byte, error) {
	file, err := os.Open(idx.PackFile())
	if err != nil {
		return NoneObject, nil, fmt.Errorf("failed to open pack file: %w", err)
	}
	defer file.Close()

	typeCode, data, err := r.readPackObjectAt(file, offset)
	if err != nil {
		return NoneObject, nil, err
	}

	objType := ObjectType(typeCode)
	switch objType {
	case CommitObject, TreeObject, BlobObject, TagObject:
		return objType, data, nil
	default:
		return NoneObject, nil, fmt.Errorf("unsupported pack object type: %d", typeCode)
	}
}

// readPackObjectAt reads one pack entry starting at objStart. Offset deltas
// resolve against objStart, so the position is threaded through explicitly
// rather than derived from the file cursor.
func (r *Repository) readPackObjectAt(file *os.File, objStart int64) (byte, []byte, error) {
	if _, err := file.Seek(objStart, io.SeekStart); err != nil {
		return 0, nil, err
	}

	typeCode, size, err := readPackObjectHeader(file)
	if err != nil {
		return 0, nil, err
	}

	switch typeCode {
	case 1, 2, 3, 4:
		data, err := readCompressedData(file, size)
		return typeCode, data, err

	case 6:
		distance, err := readOfsDeltaDistance(file)
		if err != nil {
			return 0, nil, err
		}
		basePos := objStart - distance
		if distance <= 0 || basePos < 0 {
			return 0, nil, fmt.Errorf("delta base offset %d out of range", basePos)
		}

		deltaData, err := readCompressedData(file, size)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to read delta data: %w", err)
		}

		baseType, baseData, err := r.readPackObjectAt(file, basePos)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to read base object at %d: %w", basePos, err)
		}

		result, err := applyDelta(baseData, deltaData)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to apply delta: %w", err)
		}
		return baseType, result, nil

	case 7:
		var baseBytes [20]byte
		if _, err := io.ReadFull(file, baseBytes[:]); err != nil {
			return 0, nil, fmt.Errorf("failed to read base hash: %w", err)
		}
		baseHash, err := NewHashFromBytes(baseBytes)
		if err != nil {
			return 0, nil, err
		}

		deltaData, err := readCompressedData(file, size)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to read delta data: %w", err)
		}

		baseType, baseData, err := r.ReadObject(baseHash)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to read base object %s: %w", baseHash.Short(), err)
		}

		result, err := applyDelta(baseData, deltaData)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to apply delta: %w", err)
		}
		return byte(baseType), result, nil

	default:
		return 0, nil, fmt.Errorf("unsupported object type: %d", typeCode)
	}
}

// readPackObjectHeader reads the variable-length header of a pack entry.
// Returns the type code and uncompressed size.
func readPackObjectHeader(src io.Reader) (typeCode byte, size int64, err error) {
	var b [1]byte
	if _, err := io.ReadFull(src, b[:]); err != nil {
		return 0, 0, err
	}

	typeCode = (b[0] >> 4) & 0x07
	size = int64(b[0] & 0x0F)
	shift := 4

	for b[0]&0x80 != 0 {
		if _, err := io.ReadFull(src, b[:]); err != nil {
			return 0, 0, err
		}
		size |= int64(b[0]&0x7F) << shift
		shift += 7
	}

	return typeCode, size, nil
}

// readOfsDeltaDistance reads the backward distance of an offset delta. Each
// continuation folds in a +1 so short distances cannot be encoded two ways.
func readOfsDeltaDistance(src io.Reader) (int64, error) {
	var b [1]byte
	if _, err := io.ReadFull(src, b[:]); err != nil {
		return 0, err
	}

	distance := int64(b[0] & 0x7F)
	for b[0]&0x80 != 0 {
		if _, err := io.ReadFull(src, b[:]); err != nil {
			return 0, err
		}
		distance = ((distance + 1) << 7) | int64(b[0]&0x7F)
	}

	return distance, nil
}

// readCompressedData decompresses a zlib stream at the current file position.
func readCompressedData(file *os.File, expectedSize int64) ([]byte, error) {
	zr, err := zlib.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create zlib reader: %w", err)
	}
	defer zr.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, zr); err != nil {
		return nil, fmt.Errorf("failed to decompress data: %w", err)
	}
	data := buf.Bytes()

	if int64(len(data)) != expectedSize {
		return nil, fmt.Errorf("size mismatch: expected %d, got %d", expectedSize, len(data))
	}
	return data, nil
}

// applyDelta applies a delta to a base object.
func applyDelta(base []byte, delta []byte) ([]byte, error) {
	src := bytes.NewReader(delta)

	baseSize, err := readDeltaSize(src)
	if err != nil {
		return nil, err
	}
	if baseSize != int64(len(base)) {
		return nil, fmt.Errorf("base size mismatch: expected %d, got %d", baseSize, len(base))
	}

	targetSize, err := readDeltaSize(src)
	if err != nil {
		return nil, err
	}

	result := make([]byte, 0, targetSize)

	for {
		cmd, err := src.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch {
		case cmd&0x80 != 0:
			// Copy command: flag bits select which offset and size bytes follow.
			var offset, size int64
			for i := 0; i < 4; i++ {
				if cmd&(1<<i) != 0 {
					b, err := src.ReadByte()
					if err != nil {
						return nil, err
					}
					offset |= int64(b) << (8 * i)
				}
			}
			for i := 0; i < 3; i++ {
				if cmd&(0x10<<i) != 0 {
					b, err := src.ReadByte()
					if err != nil {
						return nil, err
					}
					size |= int64(b) << (8 * i)
				}
			}
			if size == 0 {
				size = 0x10000
			}

			if offset+size > int64(len(base)) {
				return nil, fmt.Errorf("copy exceeds base size")
			}
			result = append(result, base[offset:offset+size]...)

		case cmd != 0:
			// Insert command: the low bits give the literal length.
			data := make([]byte, int(cmd))
			if _, err := io.ReadFull(src, data); err != nil {
				return nil, err
			}
			result = append(result, data...)

		default:
			return nil, fmt.Errorf("invalid delta command: 0")
		}
	}

	if int64(len(result)) != targetSize {
		return nil, fmt.Errorf("result size mismatch: expected %d, got %d", targetSize, len(result))
	}

	return result, nil
}

// readDeltaSize reads the little-endian 7-bit varint used for delta sizes.
func readDeltaSize(src io.ByteReader) (int64, error) {
	var result int64
	var shift uint

	for {
		b, err := src.ReadByte()
		if err != nil {
			return 0, err
		}

		result |= int64(b&0x7f) << shift
		shift += 7

		if b&0x80 == 0 {
			break
		}
	}

	return result, nil
}
