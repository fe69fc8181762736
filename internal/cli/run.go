package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gitredate/gitredate/internal/gitcore"
	"github.com/gitredate/gitredate/internal/redate"
)

// Run executes one invocation against the configured repository and
// returns the process exit code.
func Run(cfg Config) int {
	table, err := loadTable(cfg)
	if err != nil {
		fmt.Fprintf(cfg.Stderr, "gitredate: %v\n", err)
		return ExitInvalidInvocation
	}

	repo, err := gitcore.NewRepository(cfg.RepoPath)
	if err != nil {
		fmt.Fprintf(cfg.Stderr, "gitredate: %v\n", err)
		return ExitFailure
	}

	plan, err := redate.BuildPlan(repo, table)
	if err != nil {
		fmt.Fprintf(cfg.Stderr, "gitredate: %v\n", err)
		return ExitFailure
	}

	fmt.Fprintf(cfg.Stdout, "Redating %d commits across %d refs in %s\n",
		len(plan.Order), len(plan.Refs), repo.Name())

	if cfg.DryRun {
		plan.Render(cfg.Stdout, repo)
		return ExitSuccess
	}

	fmt.Fprintln(cfg.Stdout, "[!] This rewrites every commit reachable from every ref.")
	fmt.Fprintln(cfg.Stdout, "[!] Every commit and tag ID will change; anyone sharing this history must re-clone or reset.")
	if !cfg.AssumeYes {
		if err := confirm(cfg.Stdin, cfg.Stdout); err != nil {
			fmt.Fprintf(cfg.Stderr, "gitredate: %v\n", err)
			return ExitFailure
		}
	}

	redater := redate.NewRedater(repo, plan, table, redate.Options{
		BackupPrefix: cfg.BackupPrefix,
		Progressf: func(format string, args ...any) {
			fmt.Fprintf(cfg.Stdout, format+"\n", args...)
		},
	})
	result, err := redater.Run()
	if err != nil {
		fmt.Fprintf(cfg.Stderr, "gitredate: %v\n", err)
		return ExitFailure
	}

	failed := result.Failed()
	for _, ref := range failed {
		fmt.Fprintf(cfg.Stderr, "gitredate: %v\n", ref.Err)
	}
	for _, name := range result.Skipped {
		fmt.Fprintf(cfg.Stdout, "[+] Left %s alone: it points at no rewritten object\n", name)
	}

	printGuidance(cfg, repo, result)

	if len(failed) > 0 {
		return ExitFailure
	}
	return ExitSuccess
}

func loadTable(cfg Config) (*redate.Table, error) {
	if cfg.TableFile == "" {
		return redate.DefaultTable(), nil
	}
	return redate.LoadTableFile(cfg.TableFile)
}

// printGuidance tells the caller how to undo the rewrite and how to
// publish it.
func printGuidance(cfg Config, repo *gitcore.Repository, result *redate.Result) {
	backup := strings.TrimPrefix(result.Backup, "refs/heads/")

	fmt.Fprintln(cfg.Stdout)
	fmt.Fprintf(cfg.Stdout, "The previous history is preserved on %s.\n", backup)
	fmt.Fprintf(cfg.Stdout, "To restore it:  git reset --hard %s\n", backup)

	gitConfig, err := repo.ReadConfig()
	if err != nil || !slices.Contains(gitConfig.Remotes, cfg.Remote) {
		fmt.Fprintf(cfg.Stdout, "No remote named %q is configured; nothing needs force-pushing.\n", cfg.Remote)
		return
	}

	fmt.Fprintf(cfg.Stdout, "To publish it:  git push %s --force --all", cfg.Remote)
	if result.Tags > 0 {
		fmt.Fprint(cfg.Stdout, " --tags")
	}
	fmt.Fprintln(cfg.Stdout)
}
