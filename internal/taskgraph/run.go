package taskgraph

import (
	"context"
	"sync"

	"github.com/conneroisu/staticpress/internal/errors"
)

// future is the completion signal of one task within a run. done is closed
// once err is final.
type future struct {
	done chan struct{}
	err  error
}

func (f *future) wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type run struct {
	graph *Graph

	mu      sync.Mutex
	futures map[string]*future
}

// futureFor returns the task's future and whether the caller owns it and
// must execute the task.
func (r *run) futureFor(name string) (*future, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.futures[name]; ok {
		return f, false
	}
	f := &future{done: make(chan struct{})}
	r.futures[name] = f
	return f, true
}

func (r *run) execute(ctx context.Context, name string) error {
	f, owner := r.futureFor(name)
	if !owner {
		return f.wait(ctx)
	}
	defer close(f.done)

	task, _ := r.graph.Lookup(name)

	for _, dep := range task.Deps {
		if err := r.execute(ctx, dep); err != nil {
			f.err = err
			return err
		}
	}

	// An alias completes with its prerequisites, even when the last of them
	// returned because ctx was cancelled.
	if task.Action == nil {
		return nil
	}

	if err := ctx.Err(); err != nil {
		f.err = err
		return err
	}

	if r.graph.OnStart != nil {
		r.graph.OnStart(ctx, name)
	}
	err := task.Action(ctx)
	if r.graph.OnFinish != nil {
		r.graph.OnFinish(ctx, name, err)
	}

	if err != nil {
		f.err = errors.NewTaskError(name, err)
		return f.err
	}
	return nil
}
