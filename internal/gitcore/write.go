package gitcore

import (
	"bytes"
	"compress/zlib"
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// HashObject computes the object id git would assign to a body of the given
// type: sha1 over "<type> <len>\x00" followed by the body.
func HashObject(objType ObjectType, body []byte) Hash {
	h := sha1.New()
	h.Write([]byte(objType.String()))
	h.Write([]byte(" "))
	h.Write([]byte(strconv.Itoa(len(body))))
	h.Write([]byte{0})
	h.Write(body)

	var sum [20]byte
	copy(sum[:], h.Sum(nil))
	hash, _ := NewHashFromBytes(sum)
	return hash
}

// WriteLooseObject stores the object in the loose store and returns its hash.
// Objects are immutable, so one that already exists (loose or packed) needs
// no write.
func (r *Repository) WriteLooseObject(objType ObjectType, body []byte) (Hash, error) {
	id := HashObject(objType, body)

	if r.HasObject(id) {
		return id, nil
	}

	path := r.looseObjectPath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write([]byte(fmt.Sprintf("%s %d\x00", objType, len(body)))); err != nil {
		return "", fmt.Errorf("failed to compress object header: %w", err)
	}
	if _, err := zw.Write(body); err != nil {
		return "", fmt.Errorf("failed to compress object body: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish object stream: %w", err)
	}

	if err := writeFileAtomic(path, compressed.Bytes(), 0o444); err != nil {
		return "", fmt.Errorf("failed to write object %s: %w", id.Short(), err)
	}
	return id, nil
}

// writeFileAtomic writes data to a temporary file in the target's directory,
// syncs it, then renames it into place so readers never observe a partial
// write.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
