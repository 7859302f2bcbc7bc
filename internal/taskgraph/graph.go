// Package taskgraph declares named build tasks with ordered prerequisites and
// runs them so that a task never starts before every prerequisite has
// signalled completion.
package taskgraph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/conneroisu/staticpress/internal/errors"
)

// Action is the body of a task. A task completes when its action returns.
type Action func(ctx context.Context) error

// Task is a static task declaration.
type Task struct {
	Name        string
	Description string
	// Deps are prerequisite task names, run in this order before Action.
	Deps   []string
	Action Action
}

// Graph holds task declarations in the order they were added.
type Graph struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	names []string
	dupes []string

	// OnStart is called before a task's action runs.
	OnStart func(ctx context.Context, name string)
	// OnFinish is called after a task's action returns.
	OnFinish func(ctx context.Context, name string, err error)
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{tasks: make(map[string]*Task)}
}

// Add declares a task. Duplicate names are reported by Validate.
func (g *Graph) Add(t Task) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.tasks[t.Name]; exists {
		g.dupes = append(g.dupes, t.Name)
		return
	}
	task := t
	task.Deps = append([]string(nil), t.Deps...)
	g.tasks[t.Name] = &task
	g.names = append(g.names, t.Name)
}

// Tasks returns the declared tasks in declaration order.
func (g *Graph) Tasks() []Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Task, 0, len(g.names))
	for _, name := range g.names {
		out = append(out, *g.tasks[name])
	}
	return out
}

// Lookup returns the named task.
func (g *Graph) Lookup(name string) (Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	t, ok := g.tasks[name]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Validate rejects empty or duplicate names, prerequisites that are not
// declared and any dependency cycle.
func (g *Graph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.dupes) > 0 {
		return errors.NewGraphError(errors.ErrCodeDuplicateTask,
			fmt.Sprintf("duplicate task name: %q", g.dupes[0]))
	}

	for _, name := range g.names {
		if name == "" {
			return errors.NewGraphError(errors.ErrCodeUnknownTask, "task name is required")
		}
		for _, dep := range g.tasks[name].Deps {
			if _, ok := g.tasks[dep]; !ok {
				return errors.NewGraphError(errors.ErrCodeUnknownTask,
					fmt.Sprintf("task %q depends on unknown task %q", name, dep))
			}
		}
	}

	return g.validateAcyclic()
}

// Order returns the tasks Run would execute for names, in execution order.
func (g *Graph) Order(names ...string) ([]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if err := g.checkKnown(names); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]bool)
	var order []string
	var visit func(name string)
	visit = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		for _, dep := range g.tasks[name].Deps {
			visit(dep)
		}
		order = append(order, name)
	}
	for _, name := range names {
		visit(name)
	}
	return order, nil
}

// Run executes the named tasks in order. Each task first runs its
// prerequisites depth-first in declared order, each to completion, and then
// its own action. Within one call a task runs at most once; the first
// failure stops the run.
func (g *Graph) Run(ctx context.Context, names ...string) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if err := g.checkKnown(names); err != nil {
		return err
	}

	r := &run{graph: g, futures: make(map[string]*future)}
	for _, name := range names {
		if err := r.execute(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) checkKnown(names []string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, name := range names {
		if _, ok := g.tasks[name]; !ok {
			return errors.NewGraphError(errors.ErrCodeUnknownTask,
				fmt.Sprintf("task %q is not defined (available: %s)", name, strings.Join(g.sortedNames(), ", ")))
		}
	}
	return nil
}

func (g *Graph) sortedNames() []string {
	names := append([]string(nil), g.names...)
	sort.Strings(names)
	return names
}
