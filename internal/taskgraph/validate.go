package taskgraph

import (
	"container/heap"
	"strings"

	"github.com/conneroisu/staticpress/internal/errors"
)

// validateAcyclic runs Kahn's algorithm over the declared tasks and, when
// some task never becomes ready, extracts one cycle for the error message.
// Callers hold g.mu.
func (g *Graph) validateAcyclic() error {
	index := make(map[string]int, len(g.names))
	for i, name := range g.names {
		index[name] = i
	}

	// Edges point from a prerequisite to the tasks that need it.
	outgoing := make([][]int, len(g.names))
	indeg := make([]int, len(g.names))
	for i, name := range g.names {
		for _, dep := range g.tasks[name].Deps {
			d := index[dep]
			outgoing[d] = append(outgoing[d], i)
			indeg[i]++
		}
	}

	ready := &intMinHeap{}
	for i, n := range indeg {
		if n == 0 {
			heap.Push(ready, i)
		}
	}
	visited := 0
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		visited++
		for _, m := range outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	if visited == len(g.names) {
		return nil
	}

	cycle := g.findCycle(index)
	return errors.NewGraphError(errors.ErrCodeGraphCycle,
		"cycle detected: "+strings.Join(cycle, " -> "))
}

// findCycle walks prerequisites depth-first in declaration order and returns
// the first cycle found, starting and ending with the same task.
func (g *Graph) findCycle(index map[string]int) []string {
	const (
		white = iota
		gray
		black
	)

	color := make([]int, len(g.names))
	var stack []int
	var cycle []string

	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		stack = append(stack, u)
		for _, dep := range g.tasks[g.names[u]].Deps {
			v := index[dep]
			switch color[v] {
			case white:
				if dfs(v) {
					return true
				}
			case gray:
				start := 0
				for i, s := range stack {
					if s == v {
						start = i
						break
					}
				}
				for _, s := range stack[start:] {
					cycle = append(cycle, g.names[s])
				}
				cycle = append(cycle, g.names[v])
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[u] = black
		return false
	}

	for i := range g.names {
		if color[i] == white && dfs(i) {
			break
		}
	}
	return cycle
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
