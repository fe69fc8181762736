package gitcore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Status summarizes how far the staging area and working files have drifted
// from HEAD.
type Status struct {
	Staged   []string // paths that differ between HEAD and the index
	Modified []string // paths that differ between the index and the worktree
}

// Clean reports whether nothing is staged and nothing is modified.
func (s *Status) Clean() bool {
	return len(s.Staged) == 0 && len(s.Modified) == 0
}

// GetStatus compares HEAD, the index, and the working files. Untracked files
// are not reported; they belong to no commit and survive a history rewrite
// untouched. Bare repositories have neither index nor worktree and always
// report clean.
func (r *Repository) GetStatus() (*Status, error) {
	if r.IsBare() {
		return &Status{}, nil
	}

	index, err := r.ReadIndex()
	if err != nil {
		return nil, err
	}

	headTree, err := r.headTree()
	if err != nil {
		return nil, err
	}

	status := &Status{
		Staged: compareIndexWithHead(index, headTree),
	}
	status.Modified, err = r.compareWorktreeWithIndex(index)
	if err != nil {
		return nil, err
	}

	return status, nil
}

// headTree flattens the tree of the commit HEAD resolves to. An unborn HEAD
// has no tree; everything staged counts as drift.
func (r *Repository) headTree() (map[string]Hash, error) {
	head := r.GetHEAD()
	if head == "" {
		return map[string]Hash{}, nil
	}

	commit, ok := r.commits[head]
	if !ok {
		return nil, fmt.Errorf("HEAD commit %s not in cache", head.Short())
	}
	return r.ReadTree(commit.Tree)
}

func compareIndexWithHead(index *Index, headTree map[string]Hash) []string {
	var staged []string

	indexPaths := make(map[string]Hash, len(index.Entries))
	for _, entry := range index.Entries {
		indexPaths[entry.Path] = entry.Hash
	}

	for path, hash := range indexPaths {
		headHash, inHead := headTree[path]
		if !inHead || headHash != hash {
			staged = append(staged, path)
		}
	}
	for path := range headTree {
		if _, inIndex := indexPaths[path]; !inIndex {
			staged = append(staged, path)
		}
	}

	sort.Strings(staged)
	return staged
}

func (r *Repository) compareWorktreeWithIndex(index *Index) ([]string, error) {
	var modified []string

	for _, entry := range index.Entries {
		workingPath := filepath.Join(r.workDir, entry.Path)

		switch entry.Mode & 0o170000 {
		case 0o160000:
			// Submodule pointers are tracked by the submodule itself.
			continue
		case 0o120000:
			target, err := os.Readlink(workingPath)
			if err != nil {
				modified = append(modified, entry.Path)
				continue
			}
			if HashObject(BlobObject, []byte(target)) != entry.Hash {
				modified = append(modified, entry.Path)
			}
			continue
		}

		info, err := os.Stat(workingPath)
		if err != nil {
			modified = append(modified, entry.Path)
			continue
		}
		if info.ModTime().Equal(entry.MTime) && uint32(info.Size()) == entry.Size {
			// Stat matches the index snapshot; content is unchanged.
			continue
		}

		content, err := os.ReadFile(workingPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Path, err)
		}
		if HashObject(BlobObject, content) != entry.Hash {
			modified = append(modified, entry.Path)
		}
	}

	return modified, nil
}

// operationMarkers map files or directories inside the git directory to the
// operation whose in-flight state they record.
var operationMarkers = []struct {
	marker string
	op     string
}{
	{"MERGE_HEAD", "merge"},
	{"CHERRY_PICK_HEAD", "cherry-pick"},
	{"REVERT_HEAD", "revert"},
	{"BISECT_LOG", "bisect"},
	{"rebase-merge", "rebase"},
	{"rebase-apply", "rebase"},
}

// OperationInProgress reports the name of any merge, rebase, or similar
// operation currently underway.
func (r *Repository) OperationInProgress() (string, bool) {
	for _, m := range operationMarkers {
		if _, err := os.Stat(filepath.Join(r.gitDir, m.marker)); err == nil {
			return m.op, true
		}
	}
	return "", false
}

// IsShallow reports whether the repository is a shallow clone.
func (r *Repository) IsShallow() bool {
	_, err := os.Stat(filepath.Join(r.gitDir, "shallow"))
	return err == nil
}
