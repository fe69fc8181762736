package redate

import (
	"container/heap"
	"fmt"

	"github.com/gitredate/gitredate/internal/gitcore"
)

// readyHeap holds commits whose parents have all been emitted, ordered by
// committer time, then by ID. Both keys together form a total order, so
// the pop sequence does not depend on insertion order.
type readyHeap []readyCommit

type readyCommit struct {
	when int64
	id   gitcore.Hash
}

func (h readyHeap) Len() int { return len(h) }

func (h readyHeap) Less(i, j int) bool {
	if h[i].when != h[j].when {
		return h[i].when < h[j].when
	}
	return h[i].id < h[j].id
}

func (h readyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *readyHeap) Push(x any) { *h = append(*h, x.(readyCommit)) }

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// ComputeOrder linearizes every commit oldest-first using Kahn's
// algorithm: ancestors always precede descendants, and commits with no
// ancestry relation order by committer time, then ID. The result is
// reproducible for a given graph, so positions assigned from it are
// stable across runs.
func ComputeOrder(commits map[gitcore.Hash]*gitcore.Commit) ([]gitcore.Hash, error) {
	indeg := make(map[gitcore.Hash]int, len(commits))
	children := make(map[gitcore.Hash][]gitcore.Hash, len(commits))

	for id, commit := range commits {
		indeg[id] = len(commit.Parents)
		for _, parent := range commit.Parents {
			if _, ok := commits[parent]; !ok {
				return nil, fmt.Errorf("commit %s references unknown parent %s", id, parent)
			}
			children[parent] = append(children[parent], id)
		}
	}

	ready := &readyHeap{}
	for id, n := range indeg {
		if n == 0 {
			heap.Push(ready, readyCommit{when: commits[id].Committer.When.Unix(), id: id})
		}
	}

	order := make([]gitcore.Hash, 0, len(commits))
	for ready.Len() > 0 {
		next := heap.Pop(ready).(readyCommit)
		order = append(order, next.id)

		for _, child := range children[next.id] {
			indeg[child]--
			if indeg[child] == 0 {
				heap.Push(ready, readyCommit{when: commits[child].Committer.When.Unix(), id: child})
			}
		}
	}

	if len(order) != len(commits) {
		return nil, fmt.Errorf("commit graph contains a cycle")
	}
	return order, nil
}
