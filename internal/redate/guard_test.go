package redate

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startTestGuard(t *testing.T) (*refGuard, string) {
	t.Helper()
	dir := scaffoldRepo(t)
	gitDir := filepath.Join(dir, ".git")
	guard := startRefGuard(gitDir)
	if guard == nil {
		t.Skip("filesystem watching unavailable")
	}
	t.Cleanup(guard.stop)
	return guard, gitDir
}

func TestRefGuardSeesRefChanges(t *testing.T) {
	guard, gitDir := startTestGuard(t)

	path := filepath.Join(gitDir, "refs", "heads", "main")
	if err := os.WriteFile(path, []byte("0123456789012345678901234567890123456789\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "main to be flagged", func() bool {
		return guard.sawRef("refs/heads/main")
	})
	if guard.sawRef("refs/heads/other") {
		t.Error("untouched ref flagged")
	}
	if guard.packedChanged() {
		t.Error("packed-refs flagged without being written")
	}
}

func TestRefGuardIgnoresLockFiles(t *testing.T) {
	guard, gitDir := startTestGuard(t)

	lock := filepath.Join(gitDir, "refs", "heads", "main.lock")
	if err := os.WriteFile(lock, []byte("0123456789012345678901234567890123456789\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ref := filepath.Join(gitDir, "refs", "heads", "main")
	if err := os.WriteFile(ref, []byte("0123456789012345678901234567890123456789\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Events arrive in write order, so once the ref itself shows up the
	// lock file's events have already been processed.
	waitFor(t, "main to be flagged", func() bool {
		return guard.sawRef("refs/heads/main")
	})
	if guard.sawRef("refs/heads/main.lock") {
		t.Error("lock file was flagged")
	}
}

func TestRefGuardSeesPackedRefs(t *testing.T) {
	guard, gitDir := startTestGuard(t)

	packed := filepath.Join(gitDir, "packed-refs")
	if err := os.WriteFile(packed, []byte("# pack-refs with: peeled fully-peeled sorted\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "packed-refs to be flagged", func() bool {
		return guard.packedChanged()
	})
	if guard.sawRef("packed-refs") {
		t.Error("packed-refs recorded as an ordinary ref")
	}
}
