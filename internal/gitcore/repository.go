package gitcore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Repository represents a Git repository with its metadata and object storage.
type Repository struct {
	gitDir  string
	workDir string // empty for bare repositories

	packIndices []*PackIndex
	refs        map[string]Hash
	packedRefs  map[string]Hash
	symrefs     map[string]string
	commits     map[Hash]*Commit
	tags        map[Hash]*Tag

	head         Hash
	headRef      string
	headDetached bool

	mu sync.RWMutex
}

// NewRepository creates and initializes a new Repository instance.
// path can be either:
//   - The working directory (will find .git within)
//   - The .git directory itself, or a bare repository directory
//   - A parent directory containing a .git directory
func NewRepository(path string) (*Repository, error) {
	gitDir, workDir, err := findGitDirectory(path)
	if err != nil {
		return nil, err
	}

	if err := validateGitDirectory(gitDir); err != nil {
		return nil, err
	}

	repo := &Repository{
		gitDir:     gitDir,
		workDir:    workDir,
		refs:       make(map[string]Hash),
		packedRefs: make(map[string]Hash),
		symrefs:    make(map[string]string),
		commits:    make(map[Hash]*Commit),
		tags:       make(map[Hash]*Tag),
	}

	if err := repo.loadPackIndices(); err != nil {
		return nil, fmt.Errorf("failed to load pack indices: %w", err)
	}
	if err := repo.loadRefs(); err != nil {
		return nil, fmt.Errorf("failed to load refs: %w", err)
	}
	if err := repo.loadCommits(); err != nil {
		return nil, fmt.Errorf("failed to load commits: %w", err)
	}

	return repo, nil
}

// GitDir returns the path of the repository's git directory.
func (r *Repository) GitDir() string {
	return r.gitDir
}

// WorkDir returns the working directory, or "" for a bare repository.
func (r *Repository) WorkDir() string {
	return r.workDir
}

// IsBare reports whether the repository has no working directory.
func (r *Repository) IsBare() bool {
	return r.workDir == ""
}

// Name returns the repository's directory name.
func (r *Repository) Name() string {
	if r.workDir == "" {
		return filepath.Base(r.gitDir)
	}
	return filepath.Base(r.workDir)
}

// Branches returns a copy of all branch references.
func (r *Repository) Branches() map[string]Hash {
	r.mu.RLock()
	defer r.mu.RUnlock()

	branches := make(map[string]Hash)
	for ref, hash := range r.refs {
		if strings.HasPrefix(ref, "refs/heads/") {
			branches[ref] = hash
		}
	}
	return branches
}

// Refs returns a copy of every reference loaded from the repository,
// loose and packed, keyed by full ref name.
func (r *Repository) Refs() map[string]Hash {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := make(map[string]Hash, len(r.refs))
	for ref, hash := range r.refs {
		refs[ref] = hash
	}
	return refs
}

// Commits returns the cache of all commits reachable from any ref, keyed by
// hash. Callers must not mutate the returned map.
func (r *Repository) Commits() map[Hash]*Commit {
	return r.commits
}

// Tags returns the cache of annotated tag objects encountered while walking
// refs, keyed by the tag object's own hash.
func (r *Repository) Tags() map[Hash]*Tag {
	return r.tags
}

// GetHEAD returns the commit HEAD resolves to, or "" on an unborn branch.
func (r *Repository) GetHEAD() Hash {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.head
}

// GetHEADRef returns the ref HEAD points at, or "" when HEAD is detached.
func (r *Repository) GetHEADRef() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.headRef
}

// HEADDetached reports whether HEAD holds a raw commit hash instead of a ref.
func (r *Repository) HEADDetached() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.headDetached
}

// IsSymbolicRef reports whether the named ref was loaded from a symbolic ref
// file ("ref: ..."), such as refs/remotes/origin/HEAD.
func (r *Repository) IsSymbolicRef(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.symrefs[name]
	return ok
}

// findGitDirectory locates the .git directory starting from the given path.
// Returns both the .git directory and the working directory. A directory
// that is itself laid out like a git directory is treated as a bare
// repository with no working directory.
func findGitDirectory(startPath string) (gitDir string, workDir string, err error) {
	absPath, err := filepath.Abs(startPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve path: %w", err)
	}

	if filepath.Base(absPath) == ".git" {
		info, err := os.Stat(absPath)
		if err == nil && info.IsDir() {
			return absPath, filepath.Dir(absPath), nil
		}
	}

	currentPath := absPath
	for {
		gitPath := filepath.Join(currentPath, ".git")

		info, err := os.Stat(gitPath)
		if err == nil {
			if info.IsDir() {
				return gitPath, currentPath, nil
			}
			return handleGitFile(gitPath, currentPath)
		}

		parentPath := filepath.Dir(currentPath)
		if parentPath == currentPath {
			break
		}
		currentPath = parentPath
	}

	if validateGitDirectory(absPath) == nil {
		return absPath, "", nil
	}

	return "", "", fmt.Errorf("not a git repository (or any parent up to mount point): %s", startPath)
}

// handleGitFile handles the case where .git is a file (worktrees, submodules).
// .git file format: "gitdir: /path/to/actual/.git"
func handleGitFile(gitFilePath string, workDir string) (string, string, error) {
	content, err := os.ReadFile(gitFilePath)
	if err != nil {
		return "", "", fmt.Errorf("failed to read .git file: %w", err)
	}

	line := strings.TrimSpace(string(content))
	if !strings.HasPrefix(line, "gitdir: ") {
		return "", "", fmt.Errorf("invalid .git file format: %s", gitFilePath)
	}

	gitDir := strings.TrimPrefix(line, "gitdir: ")
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(filepath.Dir(gitFilePath), gitDir)
	}
	gitDir = filepath.Clean(gitDir)

	if _, err := os.Stat(gitDir); err != nil {
		return "", "", fmt.Errorf("gitdir points to non-existent directory: %s", gitDir)
	}

	return gitDir, workDir, nil
}

// validateGitDirectory checks if the directory is a valid Git repository.
func validateGitDirectory(gitDir string) error {
	info, err := os.Stat(gitDir)
	if err != nil {
		return fmt.Errorf("git directory does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("git path is not a directory: %s", gitDir)
	}

	requiredPaths := []string{"objects", "refs", "HEAD"}
	for _, required := range requiredPaths {
		path := filepath.Join(gitDir, required)
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("invalid git repository, missing: %s", required)
		}
	}

	return nil
}
