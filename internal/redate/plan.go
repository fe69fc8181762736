package redate

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gitredate/gitredate/internal/gitcore"
)

// Plan is the precomputed assignment of replacement timestamps. It is
// built once from the original graph before anything is rewritten, so
// positions stay fixed even as identifiers change during the rewrite.
type Plan struct {
	// Order lists every commit oldest-first, ancestors before
	// descendants.
	Order []gitcore.Hash
	// Position is each commit's 0-based index in Order.
	Position map[gitcore.Hash]int
	// When is the timestamp assigned to each commit.
	When map[gitcore.Hash]time.Time
	// Refs snapshots every ref at planning time, keyed by full name.
	Refs map[string]gitcore.Hash
}

// BuildPlan orders the repository's commits and assigns each one a
// timestamp from the table by position.
func BuildPlan(repo *gitcore.Repository, table *Table) (*Plan, error) {
	order, err := ComputeOrder(repo.Commits())
	if err != nil {
		return nil, fmt.Errorf("failed to order commits: %w", err)
	}

	plan := &Plan{
		Order:    order,
		Position: make(map[gitcore.Hash]int, len(order)),
		When:     make(map[gitcore.Hash]time.Time, len(order)),
		Refs:     repo.Refs(),
	}
	for i, id := range order {
		plan.Position[id] = i
		plan.When[id] = table.Assign(i)
	}
	return plan, nil
}

// Render writes the planned assignment oldest-first, one commit per line,
// without mutating anything. This is the dry-run output.
func (p *Plan) Render(w io.Writer, repo *gitcore.Repository) {
	commits := repo.Commits()
	for i, id := range p.Order {
		commit := commits[id]
		fmt.Fprintf(w, "%4d  %s  %s -> %s  %s\n",
			i,
			id.Short(),
			commit.Committer.When.Format(stampLayout),
			p.When[id].Format(stampLayout),
			commitSubject(commit),
		)
	}
}

func commitSubject(c *gitcore.Commit) string {
	subject, _, _ := strings.Cut(c.Message, "\n")
	return subject
}
