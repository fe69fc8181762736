package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
)

const (
	ExitSuccess           = 0
	ExitFailure           = 1
	ExitInvalidInvocation = 2
)

const usage = `usage: gitredate [flags]

Rewrites the author and committer timestamps of every commit reachable
from every ref, assigning dates from an ordered table by history
position. A backup branch pointing at the original HEAD is created
before anything changes.

Flags:
  -repo path           repository to redate (default ".", or GITREDATE_REPO)
  -table file          replacement timestamps, one per line (GITREDATE_TABLE)
  -dry-run             print the planned assignment and exit (GITREDATE_DRY_RUN)
  -yes                 skip the confirmation prompt (GITREDATE_YES)
  -remote name         remote named in the push guidance (default "origin", GITREDATE_REMOTE)
  -backup-prefix name  backup branch name prefix (default "backup", GITREDATE_BACKUP_PREFIX)`

// Config describes one invocation. Environment variables supply the
// defaults; flags override them.
type Config struct {
	RepoPath     string `env:"GITREDATE_REPO" envDefault:"."`
	TableFile    string `env:"GITREDATE_TABLE"`
	DryRun       bool   `env:"GITREDATE_DRY_RUN"`
	AssumeYes    bool   `env:"GITREDATE_YES"`
	Remote       string `env:"GITREDATE_REMOTE" envDefault:"origin"`
	BackupPrefix string `env:"GITREDATE_BACKUP_PREFIX" envDefault:"backup"`

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// InvocationError marks a problem with how the tool was called, as
// opposed to a failure while redating.
type InvocationError struct {
	Message string
}

func (e *InvocationError) Error() string { return e.Message }

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{Message: fmt.Sprintf(format, args...)}
}

// ParseConfig resolves an invocation from the environment and the given
// flag arguments.
func ParseConfig(args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, invalidInvocationf("failed to parse environment: %v", err)
	}

	fs := flag.NewFlagSet("gitredate", flag.ContinueOnError)
	fs.SetOutput(io.Discard) // parsing errors are returned, not printed

	fs.StringVar(&cfg.RepoPath, "repo", cfg.RepoPath, "repository to redate")
	fs.StringVar(&cfg.TableFile, "table", cfg.TableFile, "file with one replacement timestamp per line")
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "print the planned assignment and exit")
	fs.BoolVar(&cfg.AssumeYes, "yes", cfg.AssumeYes, "skip the confirmation prompt")
	fs.StringVar(&cfg.Remote, "remote", cfg.Remote, "remote named in the push guidance")
	fs.StringVar(&cfg.BackupPrefix, "backup-prefix", cfg.BackupPrefix, "backup branch name prefix")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return Config{}, &InvocationError{Message: usage}
		}
		return Config{}, invalidInvocationf("%v", err)
	}
	if fs.NArg() != 0 {
		return Config{}, invalidInvocationf("unexpected positional arguments: %q", strings.Join(fs.Args(), " "))
	}

	cfg.Stdin = os.Stdin
	cfg.Stdout = os.Stdout
	cfg.Stderr = os.Stderr
	return cfg, nil
}
