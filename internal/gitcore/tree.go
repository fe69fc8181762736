package gitcore

import (
	"bytes"
	"fmt"
)

// ReadTree flattens a tree object into a map of slash-separated paths to
// entry hashes, recursing through subtrees.
func (r *Repository) ReadTree(treeHash Hash) (map[string]Hash, error) {
	return r.readTreeRecursive(treeHash, "")
}

func (r *Repository) readTreeRecursive(treeHash Hash, prefix string) (map[string]Hash, error) {
	result := make(map[string]Hash)

	objType, content, err := r.ReadObject(treeHash)
	if err != nil {
		return nil, err
	}
	if objType != TreeObject {
		return nil, fmt.Errorf("object %s is a %s, not a tree", treeHash.Short(), objType)
	}

	for len(content) > 0 {
		spaceIdx := bytes.IndexByte(content, ' ')
		if spaceIdx == -1 {
			return nil, fmt.Errorf("malformed tree entry in %s", treeHash.Short())
		}
		mode := string(content[:spaceIdx])
		content = content[spaceIdx+1:]

		nullIdx := bytes.IndexByte(content, 0)
		if nullIdx == -1 {
			return nil, fmt.Errorf("malformed tree entry in %s", treeHash.Short())
		}
		name := string(content[:nullIdx])
		content = content[nullIdx+1:]

		if len(content) < 20 {
			return nil, fmt.Errorf("truncated tree entry in %s", treeHash.Short())
		}
		var raw [20]byte
		copy(raw[:], content[:20])
		hash, err := NewHashFromBytes(raw)
		if err != nil {
			return nil, err
		}
		content = content[20:]

		fullPath := name
		if prefix != "" {
			fullPath = prefix + "/" + name
		}

		if mode == "40000" {
			subTree, err := r.readTreeRecursive(hash, fullPath)
			if err != nil {
				return nil, err
			}
			for subPath, subHash := range subTree {
				result[subPath] = subHash
			}
		} else {
			// Blobs, symlinks, and gitlinks all map path to hash.
			result[fullPath] = hash
		}
	}

	return result, nil
}
