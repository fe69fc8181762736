package redate

import (
	"io/fs"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// refGuard watches the ref store while a rewrite runs. It provides
// detection, not protection: the compare-and-swap on each ref update is
// what keeps moves safe. The guard records which ref files someone else
// touched mid-run so failures can name them.
type refGuard struct {
	watcher *fsnotify.Watcher
	gitDir  string

	mu      sync.Mutex
	touched map[string]bool
	packed  bool

	done chan struct{}
}

// startRefGuard begins watching the git directory and the refs tree. A
// failure to set up the watch is logged and returns nil; the rewrite
// proceeds on compare-and-swap protection alone.
func startRefGuard(gitDir string) *refGuard {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("Ref guard unavailable: %v", err)
		return nil
	}

	g := &refGuard{
		watcher: watcher,
		gitDir:  gitDir,
		touched: make(map[string]bool),
		done:    make(chan struct{}),
	}

	// The git dir itself covers HEAD and packed-refs. The watch does not
	// recurse, so every directory under refs/ is added separately.
	paths := []string{gitDir}
	filepath.WalkDir(filepath.Join(gitDir, "refs"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})

	for _, path := range paths {
		if err := watcher.Add(path); err != nil {
			log.Printf("Ref guard cannot watch %s: %v", path, err)
		}
	}

	go g.loop()
	return g
}

func (g *refGuard) loop() {
	defer close(g.done)

	for {
		select {
		case event, ok := <-g.watcher.Events:
			if !ok {
				return
			}
			g.record(event)

		case err, ok := <-g.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Ref guard error: %v", err)
		}
	}
}

func (g *refGuard) record(event fsnotify.Event) {
	if shouldIgnoreRefEvent(event) {
		return
	}
	rel, err := filepath.Rel(g.gitDir, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	g.mu.Lock()
	defer g.mu.Unlock()
	if rel == "packed-refs" {
		g.packed = true
		return
	}
	g.touched[rel] = true
}

func shouldIgnoreRefEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return true
	}
	// Lock files are how updates start, not where they land.
	if strings.HasSuffix(filepath.Base(event.Name), ".lock") {
		return true
	}
	return false
}

// sawRef reports whether the named ref's file changed since the guard
// started. Names are git-dir relative, slash-separated ("refs/heads/main",
// "HEAD").
func (g *refGuard) sawRef(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.touched[name]
}

// packedChanged reports whether the packed-refs file was rewritten. The
// per-ref compare-and-swap re-reads packed-refs, so this is diagnostic
// only.
func (g *refGuard) packedChanged() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.packed
}

func (g *refGuard) stop() {
	g.watcher.Close()
	<-g.done
}
