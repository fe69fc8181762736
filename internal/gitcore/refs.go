package gitcore

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// loadRefs loads every Git reference (branches, tags, remotes) into the refs
// map. Packed refs are loaded first so that loose refs override them.
func (r *Repository) loadRefs() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	packed, err := readPackedRefsFile(r.gitDir)
	if err != nil {
		return fmt.Errorf("failed to load packed refs: %w", err)
	}
	r.packedRefs = packed
	for name, hash := range packed {
		r.refs[name] = hash
	}

	if err := r.loadLooseRefs(); err != nil {
		return fmt.Errorf("failed to load loose refs: %w", err)
	}
	if err := r.loadHEAD(); err != nil {
		return fmt.Errorf("failed to load head: %w", err)
	}

	return nil
}

// loadLooseRefs recursively loads all loose refs under the refs/ directory.
func (r *Repository) loadLooseRefs() error {
	refsDir := filepath.Join(r.gitDir, "refs")

	if _, err := os.Stat(refsDir); os.IsNotExist(err) {
		// No loose refs yet (e.g., a freshly packed clone), this is ok.
		return nil
	} else if err != nil {
		return err
	}

	return filepath.Walk(refsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(r.gitDir, path)
		if err != nil {
			return err
		}

		refName := filepath.ToSlash(relPath)
		if target, ok := readSymbolicRefFile(path); ok {
			r.symrefs[refName] = target
		}

		hash, err := r.resolveRef(path)
		if err != nil {
			// Log the error but continue with other potentially valid refs.
			log.Printf("error resolving ref: %v", err)
			return nil
		}

		r.refs[refName] = hash
		return nil
	})
}

// readPackedRefsFile parses the packed-refs file if present. Peeled lines
// ("^hash") are skipped; annotated tags are peeled on demand instead.
func readPackedRefsFile(gitDir string) (map[string]Hash, error) {
	refs := make(map[string]Hash)

	content, err := os.ReadFile(filepath.Join(gitDir, "packed-refs"))
	if os.IsNotExist(err) {
		return refs, nil
	}
	if err != nil {
		return nil, err
	}

	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "^") {
			continue
		}

		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed packed-refs line: %q", line)
		}
		hash, err := NewHash(parts[0])
		if err != nil {
			return nil, fmt.Errorf("malformed packed-refs line %q: %w", line, err)
		}
		refs[parts[1]] = hash
	}

	return refs, nil
}

// readSymbolicRefFile reports whether the file at path holds a symbolic ref,
// and if so returns its target ref name.
func readSymbolicRefFile(path string) (string, bool) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	line := strings.TrimSpace(string(content))
	if !strings.HasPrefix(line, "ref: ") {
		return "", false
	}
	return strings.TrimPrefix(line, "ref: "), true
}

// loadHEAD reads and caches HEAD information
func (r *Repository) loadHEAD() error {
	headPath := filepath.Join(r.gitDir, "HEAD")
	content, err := os.ReadFile(headPath)
	if err != nil {
		return fmt.Errorf("failed to read HEAD: %w", err)
	}

	line := strings.TrimSpace(string(content))

	if strings.HasPrefix(line, "ref: ") {
		r.headRef = strings.TrimPrefix(line, "ref: ")
		r.headDetached = false

		if hash, exists := r.refs[r.headRef]; exists {
			r.head = hash
		} else {
			r.head = "" // New repository with no commits, this is ok.
		}
	} else {
		r.headDetached = true
		r.headRef = ""

		hash, err := NewHash(line)
		if err != nil {
			return fmt.Errorf("invalid HEAD: %w", err)
		}
		r.head = hash
	}

	return nil
}

// resolveRef reads a single ref file and returns its hash.
// Handles both direct hashes and symbolic refs.
func (r *Repository) resolveRef(path string) (Hash, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	line := strings.TrimSpace(string(content))

	if strings.HasPrefix(line, "ref: ") {
		targetRef := strings.TrimPrefix(line, "ref: ")
		targetPath := filepath.Join(r.gitDir, targetRef)
		return r.resolveRef(targetPath)
	}

	hash, err := NewHash(line)
	if err != nil {
		return "", fmt.Errorf("invalid hash in ref file %s: %w", path, err)
	}
	return hash, nil
}

// refFilePath maps a full ref name (or "HEAD") to its loose file path.
func (r *Repository) refFilePath(name string) string {
	return filepath.Join(r.gitDir, filepath.FromSlash(name))
}

// ErrSymbolicRef marks a ref whose loose file holds a "ref: ..." target
// rather than a hash.
var ErrSymbolicRef = errors.New("ref is symbolic")

// CurrentRefValue reads the ref's value as stored on disk right now, checking
// the loose file first and falling back to packed-refs. The second return
// value reports whether the ref exists at all.
func (r *Repository) CurrentRefValue(name string) (Hash, bool, error) {
	content, err := os.ReadFile(r.refFilePath(name))
	if err == nil {
		line := strings.TrimSpace(string(content))
		if strings.HasPrefix(line, "ref: ") {
			return "", true, fmt.Errorf("ref %s: %w", name, ErrSymbolicRef)
		}
		hash, err := NewHash(line)
		if err != nil {
			return "", true, fmt.Errorf("invalid hash in ref %s: %w", name, err)
		}
		return hash, true, nil
	}
	if !os.IsNotExist(err) {
		return "", false, err
	}

	packed, err := readPackedRefsFile(r.gitDir)
	if err != nil {
		return "", false, err
	}
	if hash, ok := packed[name]; ok {
		return hash, true, nil
	}
	return "", false, nil
}

// refExists reports whether any ref of the given name is present on disk,
// loose (hash or symbolic) or packed.
func (r *Repository) refExists(name string) (bool, error) {
	if _, err := os.Lstat(r.refFilePath(name)); err == nil {
		return true, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}

	packed, err := readPackedRefsFile(r.gitDir)
	if err != nil {
		return false, err
	}
	_, ok := packed[name]
	return ok, nil
}

// UpdateRef atomically points the named ref at newHash, but only if the ref
// still holds oldHash on disk. The loose ref file wins over any packed entry,
// so writing the loose file is sufficient even for packed refs.
func (r *Repository) UpdateRef(name string, oldHash, newHash Hash) error {
	current, exists, err := r.CurrentRefValue(name)
	if err != nil {
		return fmt.Errorf("failed to read ref %s: %w", name, err)
	}
	if !exists {
		return fmt.Errorf("ref %s vanished (expected %s)", name, oldHash.Short())
	}
	if current != oldHash {
		return fmt.Errorf("ref %s moved: expected %s, found %s", name, oldHash.Short(), current.Short())
	}

	path := r.refFilePath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create ref directory: %w", err)
	}
	if err := writeFileAtomic(path, []byte(string(newHash)+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write ref %s: %w", name, err)
	}
	return nil
}

// CreateRef writes a brand-new ref pointing at hash. It refuses to clobber an
// existing ref of the same name, loose or packed.
func (r *Repository) CreateRef(name string, hash Hash) error {
	return r.createRefFile(name, string(hash)+"\n")
}

// CreateSymbolicRef writes a brand-new symbolic ref pointing at target, such
// as "refs/heads/main". It refuses to clobber an existing ref.
func (r *Repository) CreateSymbolicRef(name string, target string) error {
	return r.createRefFile(name, "ref: "+target+"\n")
}

func (r *Repository) createRefFile(name, content string) error {
	exists, err := r.refExists(name)
	if err != nil {
		return fmt.Errorf("failed to read ref %s: %w", name, err)
	}
	if exists {
		return fmt.Errorf("ref %s already exists", name)
	}

	path := r.refFilePath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create ref directory: %w", err)
	}
	if err := writeFileAtomic(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write ref %s: %w", name, err)
	}
	return nil
}
