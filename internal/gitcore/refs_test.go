package gitcore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	dir := t.TempDir()
	scaffoldGitDir(t, dir)
	return &Repository{
		gitDir:     dir,
		refs:       make(map[string]Hash),
		packedRefs: make(map[string]Hash),
		symrefs:    make(map[string]string),
		commits:    make(map[Hash]*Commit),
		tags:       make(map[Hash]*Tag),
	}
}

func writePackedRefs(t *testing.T, gitDir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(gitDir, "packed-refs"), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write packed-refs: %v", err)
	}
}

func TestReadPackedRefsFile(t *testing.T) {
	dir := t.TempDir()
	writePackedRefs(t, dir,
		"# pack-refs with: peeled fully-peeled sorted \n"+
			"1111111111111111111111111111111111111111 refs/heads/main\n"+
			"2222222222222222222222222222222222222222 refs/tags/v1.0.0\n"+
			"^3333333333333333333333333333333333333333\n")

	refs, err := readPackedRefsFile(dir)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 refs, got %d", len(refs))
	}
	if refs["refs/heads/main"] != Hash("1111111111111111111111111111111111111111") {
		t.Fatalf("unexpected main: %s", refs["refs/heads/main"])
	}
	if refs["refs/tags/v1.0.0"] != Hash("2222222222222222222222222222222222222222") {
		t.Fatalf("unexpected tag: %s", refs["refs/tags/v1.0.0"])
	}
}

func TestReadPackedRefsFileMissing(t *testing.T) {
	refs, err := readPackedRefsFile(t.TempDir())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(refs) != 0 {
		t.Fatalf("expected no refs, got %d", len(refs))
	}
}

func TestLoadRefsLooseOverridesPacked(t *testing.T) {
	repo := newTestRepo(t)
	writePackedRefs(t, repo.gitDir,
		"1111111111111111111111111111111111111111 refs/heads/main\n"+
			"2222222222222222222222222222222222222222 refs/heads/packed-only\n")

	loose := filepath.Join(repo.gitDir, "refs", "heads", "main")
	if err := os.WriteFile(loose, []byte("3333333333333333333333333333333333333333\n"), 0o644); err != nil {
		t.Fatalf("failed to write loose ref: %v", err)
	}

	if err := repo.loadRefs(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	refs := repo.Refs()
	if refs["refs/heads/main"] != Hash("3333333333333333333333333333333333333333") {
		t.Fatalf("loose ref must win: %s", refs["refs/heads/main"])
	}
	if refs["refs/heads/packed-only"] != Hash("2222222222222222222222222222222222222222") {
		t.Fatalf("packed-only ref missing: %#v", refs)
	}
}

func TestCurrentRefValuePrefersLoose(t *testing.T) {
	repo := newTestRepo(t)
	writePackedRefs(t, repo.gitDir, "1111111111111111111111111111111111111111 refs/heads/main\n")

	hash, exists, err := repo.CurrentRefValue("refs/heads/main")
	if err != nil || !exists {
		t.Fatalf("expected packed ref, got exists=%v err=%v", exists, err)
	}
	if hash != Hash("1111111111111111111111111111111111111111") {
		t.Fatalf("unexpected packed value: %s", hash)
	}

	loose := filepath.Join(repo.gitDir, "refs", "heads", "main")
	if err := os.WriteFile(loose, []byte("2222222222222222222222222222222222222222\n"), 0o644); err != nil {
		t.Fatalf("failed to write loose ref: %v", err)
	}

	hash, exists, err = repo.CurrentRefValue("refs/heads/main")
	if err != nil || !exists {
		t.Fatalf("expected loose ref, got exists=%v err=%v", exists, err)
	}
	if hash != Hash("2222222222222222222222222222222222222222") {
		t.Fatalf("loose value must win: %s", hash)
	}
}

func TestUpdateRefCAS(t *testing.T) {
	repo := newTestRepo(t)
	oldHash := Hash("1111111111111111111111111111111111111111")
	newHash := Hash("2222222222222222222222222222222222222222")

	loose := filepath.Join(repo.gitDir, "refs", "heads", "main")
	if err := os.WriteFile(loose, []byte(string(oldHash)+"\n"), 0o644); err != nil {
		t.Fatalf("failed to write ref: %v", err)
	}

	if err := repo.UpdateRef("refs/heads/main", oldHash, newHash); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	content, err := os.ReadFile(loose)
	if err != nil {
		t.Fatalf("failed to read ref: %v", err)
	}
	if strings.TrimSpace(string(content)) != string(newHash) {
		t.Fatalf("unexpected ref content: %q", content)
	}
}

func TestUpdateRefCASMismatch(t *testing.T) {
	repo := newTestRepo(t)
	loose := filepath.Join(repo.gitDir, "refs", "heads", "main")
	if err := os.WriteFile(loose, []byte("3333333333333333333333333333333333333333\n"), 0o644); err != nil {
		t.Fatalf("failed to write ref: %v", err)
	}

	err := repo.UpdateRef("refs/heads/main",
		"1111111111111111111111111111111111111111",
		"2222222222222222222222222222222222222222")
	if err == nil {
		t.Fatalf("expected error when ref moved under us")
	}

	content, _ := os.ReadFile(loose)
	if strings.TrimSpace(string(content)) != "3333333333333333333333333333333333333333" {
		t.Fatalf("failed CAS must not modify the ref: %q", content)
	}
}

func TestUpdateRefVanished(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.UpdateRef("refs/heads/gone",
		"1111111111111111111111111111111111111111",
		"2222222222222222222222222222222222222222")
	if err == nil {
		t.Fatalf("expected error for missing ref")
	}
}

func TestUpdateRefPackedSource(t *testing.T) {
	repo := newTestRepo(t)
	writePackedRefs(t, repo.gitDir, "1111111111111111111111111111111111111111 refs/heads/main\n")

	err := repo.UpdateRef("refs/heads/main",
		"1111111111111111111111111111111111111111",
		"2222222222222222222222222222222222222222")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// The packed entry stays; the new loose file shadows it.
	hash, _, err := repo.CurrentRefValue("refs/heads/main")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if hash != Hash("2222222222222222222222222222222222222222") {
		t.Fatalf("unexpected ref value: %s", hash)
	}
}

func TestUpdateRefDetachedHEAD(t *testing.T) {
	repo := newTestRepo(t)
	oldHash := Hash("1111111111111111111111111111111111111111")
	newHash := Hash("2222222222222222222222222222222222222222")
	if err := os.WriteFile(filepath.Join(repo.gitDir, "HEAD"), []byte(string(oldHash)+"\n"), 0o644); err != nil {
		t.Fatalf("failed to write HEAD: %v", err)
	}

	if err := repo.UpdateRef("HEAD", oldHash, newHash); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	content, _ := os.ReadFile(filepath.Join(repo.gitDir, "HEAD"))
	if strings.TrimSpace(string(content)) != string(newHash) {
		t.Fatalf("unexpected HEAD content: %q", content)
	}
}

func TestCreateRefRefusesExisting(t *testing.T) {
	repo := newTestRepo(t)
	hash := Hash("1111111111111111111111111111111111111111")

	if err := repo.CreateRef("refs/heads/backup-1", hash); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := repo.CreateRef("refs/heads/backup-1", hash); err == nil {
		t.Fatalf("expected error for existing loose ref")
	}

	writePackedRefs(t, repo.gitDir, "2222222222222222222222222222222222222222 refs/heads/backup-2\n")
	if err := repo.CreateRef("refs/heads/backup-2", hash); err == nil {
		t.Fatalf("expected error for existing packed ref")
	}
}

func TestCreateSymbolicRef(t *testing.T) {
	repo := newTestRepo(t)

	if err := repo.CreateSymbolicRef("refs/heads/backup-1", "refs/heads/main"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	content, err := os.ReadFile(filepath.Join(repo.gitDir, "refs", "heads", "backup-1"))
	if err != nil {
		t.Fatalf("failed to read symbolic ref: %v", err)
	}
	if strings.TrimSpace(string(content)) != "ref: refs/heads/main" {
		t.Fatalf("unexpected symbolic ref content: %q", content)
	}

	if err := repo.CreateSymbolicRef("refs/heads/backup-1", "refs/heads/main"); err == nil {
		t.Fatalf("expected error for existing ref")
	}
}
