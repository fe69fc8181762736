package redate

import (
	"fmt"
	"sort"
	"time"

	"github.com/gitredate/gitredate/internal/gitcore"
)

// Phase tracks how far a run has progressed.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseBackedUp
	PhaseRewriting
	PhaseDone
	PhaseAborted
)

// Options adjust a run. The zero value is usable.
type Options struct {
	// BackupPrefix names the safety branch <prefix>-<timestamp>;
	// "backup" when empty.
	BackupPrefix string

	// Now supplies the clock used for the backup name; time.Now when
	// nil.
	Now func() time.Time

	// Progressf receives human-readable progress lines; discarded when
	// nil.
	Progressf func(format string, args ...any)
}

// RefOutcome reports what happened to one ref.
type RefOutcome struct {
	Name string
	Old  gitcore.Hash
	New  gitcore.Hash
	Err  error
}

// Result summarizes a run that got past the backup step.
type Result struct {
	// Backup is the full name of the safety ref.
	Backup string

	// Commits is the number of commit objects rewritten.
	Commits int

	// Tags is the number of annotated tag objects re-created to follow
	// their rewritten targets.
	Tags int

	// Refs reports each attempted ref move in name order.
	Refs []RefOutcome

	// Skipped lists refs left alone because nothing they point at was
	// rewritten (blob or tree tags).
	Skipped []string
}

// Failed returns the outcomes whose ref could not be moved.
func (r *Result) Failed() []RefOutcome {
	var failed []RefOutcome
	for _, ref := range r.Refs {
		if ref.Err != nil {
			failed = append(failed, ref)
		}
	}
	return failed
}

// Redater applies a plan to a repository: it writes replacement commit
// objects for the whole graph, then moves every ref to its rewritten
// tip. Original objects are never deleted; recovery is always possible
// through the backup ref.
type Redater struct {
	repo  *gitcore.Repository
	plan  *Plan
	table *Table
	opts  Options

	phase  Phase
	objMap map[gitcore.Hash]gitcore.Hash
	tags   int
}

func NewRedater(repo *gitcore.Repository, plan *Plan, table *Table, opts Options) *Redater {
	if opts.BackupPrefix == "" {
		opts.BackupPrefix = "backup"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Progressf == nil {
		opts.Progressf = func(string, ...any) {}
	}
	return &Redater{
		repo:  repo,
		plan:  plan,
		table: table,
		opts:  opts,
		phase: PhaseNotStarted,
	}
}

func (rd *Redater) Phase() Phase {
	return rd.phase
}

// Run executes the rewrite. It returns an error only for failures that
// stop the run as a whole (unrewritable state, backup failure, an object
// that cannot be written); individual ref failures are carried in the
// Result and leave those refs exactly as they were.
func (rd *Redater) Run() (*Result, error) {
	if err := rd.checkState(); err != nil {
		rd.phase = PhaseAborted
		return nil, err
	}

	backup, err := rd.createBackup()
	if err != nil {
		rd.phase = PhaseAborted
		return nil, err
	}
	rd.phase = PhaseBackedUp
	rd.opts.Progressf("[+] Created backup ref %s", backup)

	guard := startRefGuard(rd.repo.GitDir())
	if guard != nil {
		defer guard.stop()
	}

	rd.phase = PhaseRewriting
	if err := rd.rewriteCommits(); err != nil {
		rd.phase = PhaseAborted
		return nil, err
	}
	rd.opts.Progressf("[+] Rewrote %d commits", len(rd.plan.Order))

	result := rd.updateRefs(guard, backup)
	result.Backup = backup
	result.Commits = len(rd.plan.Order)
	result.Tags = rd.tags

	rd.phase = PhaseDone
	return result, nil
}

// checkState refuses to start unless the repository can absorb a full
// history rewrite.
func (rd *Redater) checkState() error {
	cfg, err := rd.repo.ReadConfig()
	if err != nil {
		return stateErrf("failed to read config: %v", err)
	}
	if cfg.ObjectFormat != "" && cfg.ObjectFormat != "sha1" {
		return stateErrf("object format %q is not supported", cfg.ObjectFormat)
	}
	if rd.repo.IsShallow() {
		return stateErrf("shallow repository; fetch the full history first")
	}
	if op, ok := rd.repo.OperationInProgress(); ok {
		return stateErrf("%s in progress", op)
	}

	status, err := rd.repo.GetStatus()
	if err != nil {
		return stateErrf("failed to read status: %v", err)
	}
	if !status.Clean() {
		return stateErrf("uncommitted changes present (%d staged, %d modified)",
			len(status.Staged), len(status.Modified))
	}
	return nil
}

// createBackup records the current HEAD commit under a fresh backup ref
// before anything else happens. On an unborn branch there is no commit to
// point at, so the backup mirrors the unborn branch symbolically.
func (rd *Redater) createBackup() (string, error) {
	name := "refs/heads/" + rd.opts.BackupPrefix + "-" + rd.opts.Now().Format("20060102-150405")

	head := rd.repo.GetHEAD()
	if head == "" {
		target := rd.repo.GetHEADRef()
		if target == "" {
			return "", backupErr(name, fmt.Errorf("HEAD resolves to nothing"))
		}
		if err := rd.repo.CreateSymbolicRef(name, target); err != nil {
			return "", backupErr(name, err)
		}
		return name, nil
	}

	if err := rd.repo.CreateRef(name, head); err != nil {
		return "", backupErr(name, err)
	}
	return name, nil
}

// rewriteCommits writes a replacement object for every commit in plan
// order. Parents always come first in that order, so each commit's
// rewritten parent hashes are known by the time it is encoded.
func (rd *Redater) rewriteCommits() error {
	commits := rd.repo.Commits()
	rd.objMap = make(map[gitcore.Hash]gitcore.Hash, len(rd.plan.Order))

	for _, id := range rd.plan.Order {
		commit := commits[id]

		parents := make([]gitcore.Hash, len(commit.Parents))
		for i, parent := range commit.Parents {
			mapped, ok := rd.objMap[parent]
			if !ok {
				return fmt.Errorf("commit %s ordered before its parent %s", id.Short(), parent.Short())
			}
			parents[i] = mapped
		}

		body, err := commit.Encode(&gitcore.CommitEdit{Parents: parents, When: rd.plan.When[id]})
		if err != nil {
			return fmt.Errorf("failed to encode commit %s: %w", id.Short(), err)
		}
		newID, err := rd.repo.WriteLooseObject(gitcore.CommitObject, body)
		if err != nil {
			return fmt.Errorf("failed to write commit %s: %w", id.Short(), err)
		}
		rd.objMap[id] = newID
	}
	return nil
}

// updateRefs moves every planned ref to its rewritten target. Failures
// are per-ref: a ref that cannot move is reported and left untouched
// while the rest proceed.
func (rd *Redater) updateRefs(guard *refGuard, backup string) *Result {
	result := &Result{}

	if guard != nil && guard.packedChanged() {
		rd.opts.Progressf("[!] packed-refs changed during rewrite, verifying each ref against disk")
	}

	names := make([]string, 0, len(rd.plan.Refs))
	for name := range rd.plan.Refs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == backup {
			continue
		}
		if rd.repo.IsSymbolicRef(name) {
			// Follows whatever its target becomes; nothing to move.
			continue
		}

		oldTip := rd.plan.Refs[name]
		newTip, moved, err := rd.mapObject(oldTip)
		if err != nil {
			result.Refs = append(result.Refs, RefOutcome{Name: name, Old: oldTip, Err: refErr(name, err)})
			continue
		}
		if !moved {
			result.Skipped = append(result.Skipped, name)
			continue
		}

		outcome := RefOutcome{Name: name, Old: oldTip, New: newTip}
		switch {
		case guard != nil && guard.sawRef(name):
			outcome.Err = refErrf(name, "ref file changed during rewrite")
		default:
			if err := rd.repo.UpdateRef(name, oldTip, newTip); err != nil {
				outcome.Err = refErr(name, err)
			} else {
				rd.opts.Progressf("[+] Updated %s", name)
			}
		}
		result.Refs = append(result.Refs, outcome)
	}

	// A detached HEAD pins a commit directly and moves like a ref.
	if rd.repo.HEADDetached() {
		oldHead := rd.repo.GetHEAD()
		if newHead, ok := rd.objMap[oldHead]; ok {
			outcome := RefOutcome{Name: "HEAD", Old: oldHead, New: newHead}
			switch {
			case guard != nil && guard.sawRef("HEAD"):
				outcome.Err = refErrf("HEAD", "changed during rewrite")
			default:
				if err := rd.repo.UpdateRef("HEAD", oldHead, newHead); err != nil {
					outcome.Err = refErr("HEAD", err)
				} else {
					rd.opts.Progressf("[+] Updated detached HEAD")
				}
			}
			result.Refs = append(result.Refs, outcome)
		}
	}

	return result
}

// mapObject resolves the rewritten identity of a ref target: commits map
// through the rewrite table, annotated tags are re-created on first use
// when the object they point at moved, and anything else keeps its
// identity (moved returns false).
func (rd *Redater) mapObject(id gitcore.Hash) (newID gitcore.Hash, moved bool, err error) {
	if newID, ok := rd.objMap[id]; ok {
		return newID, true, nil
	}

	tag, ok := rd.repo.Tags()[id]
	if !ok {
		return "", false, nil
	}
	newTarget, moved, err := rd.mapObject(tag.Object)
	if err != nil || !moved {
		return "", false, err
	}

	body, err := tag.Encode(&gitcore.TagEdit{Object: newTarget})
	if err != nil {
		return "", false, fmt.Errorf("failed to encode tag %s: %w", tag.ID.Short(), err)
	}
	written, err := rd.repo.WriteLooseObject(gitcore.TagObject, body)
	if err != nil {
		return "", false, fmt.Errorf("failed to write tag %s: %w", tag.ID.Short(), err)
	}
	rd.objMap[id] = written
	rd.tags++
	return written, true, nil
}
