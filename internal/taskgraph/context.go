// internal/taskgraph/context.go
package taskgraph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Func is the unit of build work. It receives the execution record for this
// invocation and the inputs it was registered (or re-registered) with.
// Dependencies and sub-tasks are declared through tc during the call.
type Func func(ctx context.Context, tc *Context, inputs []string) error

// Context is one execution record of a task. The runner owns top-level
// contexts; every context exclusively owns its sub-task contexts, forming a
// tree that is torn down and rebuilt from scratch each time the context runs.
type Context struct {
	id     string
	name   string
	fn     Func
	seq    uint64
	parent *Context
	runner *Runner

	inputs []string
	deps   map[string]struct{}
	subs   []*Context
}

func (tc *Context) ID() string   { return tc.id }
func (tc *Context) Name() string { return tc.name }

// DependOn declares a runtime dependency on path. Idempotent; calling it twice
// with the same path is fine. Only meaningful while the task is executing.
func (tc *Context) DependOn(path string) {
	tc.deps[path] = struct{}{}
}

// Do spawns a sub-task and runs it immediately, inline, as part of the current
// task's own execution. The child context is owned by the receiver and lives
// until the receiver's next run discards it.
func (tc *Context) Do(ctx context.Context, name string, fn Func, inputs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	child := newContext(tc.runner, name, fn, inputs)
	child.parent = tc
	tc.subs = append(tc.subs, child)

	if err := fn(ctx, child, child.inputs); err != nil {
		return &TaskExecutionError{Task: name, Err: err}
	}
	return nil
}

func newContext(r *Runner, name string, fn Func, inputs []string) *Context {
	r.seq++
	return &Context{
		id:     uuid.NewString(),
		name:   name,
		fn:     fn,
		seq:    r.seq,
		runner: r,
		inputs: append([]string(nil), inputs...),
		deps:   make(map[string]struct{}),
	}
}

// isDescendantOf reports whether tc sits strictly below anc in the ownership
// tree.
func (tc *Context) isDescendantOf(anc *Context) bool {
	for cur := tc.parent; cur != nil; cur = cur.parent {
		if cur == anc {
			return true
		}
	}
	return false
}

func (tc *Context) String() string {
	return fmt.Sprintf("%s(%s)", tc.name, tc.id[:8])
}
