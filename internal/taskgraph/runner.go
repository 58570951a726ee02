// internal/taskgraph/runner.go
package taskgraph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"go.uber.org/zap"
)

// ChangeKind classifies a file-change event fed into InvalidatePath.
type ChangeKind int

const (
	ChangeAdd ChangeKind = iota
	ChangeModify
	ChangeDelete
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdd:
		return "add"
	case ChangeModify:
		return "change"
	case ChangeDelete:
		return "delete"
	}
	return fmt.Sprintf("ChangeKind(%d)", int(k))
}

// ErrUpdateInFlight is returned when Update is called while a previous Update
// on the same runner has not finished. The runner is single-threaded by
// contract; callers must serialize.
var ErrUpdateInFlight = errors.New("taskgraph: update already in progress")

// ErrUnknownTask is returned for operations addressing a task id the runner
// does not know.
var ErrUnknownTask = errors.New("taskgraph: unknown task")

// TaskExecutionError wraps a failure raised by a task callback. The offending
// context stays invalid, so the next Update retries it.
type TaskExecutionError struct {
	Task string
	Err  error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.Task, e.Err)
}

func (e *TaskExecutionError) Unwrap() error { return e.Err }

// Runner is the incremental engine: it tracks tasks, their inputs and
// runtime-declared dependencies, computes the minimal set of contexts to
// re-run after an invalidation, and executes them in order.
//
// All state is owned by one logical thread of control. There are no locks;
// overlapping Update calls are rejected, and mutating the runner from a task
// callback other than through the provided Context is a caller bug.
type Runner struct {
	logger *zap.Logger
	seq    uint64

	tasks map[string]*Context // top-level contexts by id
	order []string            // registration order of top-level ids

	// index maps a path to every context (at any depth) whose inputs or
	// declared dependencies include it. Kept exactly in sync with the live
	// context tree; no empty sets are left behind.
	index map[string]map[*Context]struct{}

	// invalid holds contexts pending re-execution, in invalidation order. It
	// never contains both a context and one of its descendants.
	invalid []*Context

	updating bool
}

func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		logger: logger.Named("taskgraph"),
		tasks:  make(map[string]*Context),
		index:  make(map[string]map[*Context]struct{}),
	}
}

// Add registers a new top-level task with its initial inputs and marks it
// pending. Returns the task's id.
func (r *Runner) Add(name string, fn Func, inputs []string) string {
	tc := newContext(r, name, fn, inputs)
	r.tasks[tc.id] = tc
	r.order = append(r.order, tc.id)
	r.markInvalid(tc)
	r.logger.Debug("Registered task", zap.String("task", tc.String()), zap.Strings("inputs", inputs))
	return tc.id
}

// Inputs returns a copy of a top-level task's current input list.
func (r *Runner) Inputs(id string) ([]string, error) {
	tc, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	return append([]string(nil), tc.inputs...), nil
}

// SetInputs replaces a top-level task's input list and marks it pending.
func (r *Runner) SetInputs(id string, inputs []string) error {
	tc, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	tc.inputs = append([]string(nil), inputs...)
	r.markInvalid(tc)
	return nil
}

// Remove prunes the task's whole context subtree from the dependency index and
// the invalid set, then forgets it.
func (r *Runner) Remove(id string) error {
	tc, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	r.pruneSubtree(tc)
	r.dropInvalid(tc)
	delete(r.tasks, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	r.logger.Debug("Removed task", zap.String("task", tc.String()))
	return nil
}

// InvalidatePath marks every context keyed by path as pending. For a delete
// change the path is first stripped from matching input lists, since the input
// no longer exists and must not be passed to the task again.
func (r *Runner) InvalidatePath(path string, kind ChangeKind) {
	set, ok := r.index[path]
	if !ok {
		return
	}

	// Map iteration order is random; invalidation order should not be.
	matched := make([]*Context, 0, len(set))
	for tc := range set {
		matched = append(matched, tc)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })

	r.logger.Debug("Invalidating path",
		zap.String("path", path),
		zap.Stringer("kind", kind),
		zap.Int("contexts", len(matched)))

	for _, tc := range matched {
		if kind == ChangeDelete {
			tc.inputs = slices.DeleteFunc(tc.inputs, func(s string) bool { return s == path })
			if _, stillDep := tc.deps[path]; !stillDep {
				r.unindex(path, tc)
			}
		}
		r.markInvalid(tc)
	}
}

// NeedsUpdate reports whether any context is pending re-execution.
func (r *Runner) NeedsUpdate() bool { return len(r.invalid) > 0 }

// TrackedPaths returns how many distinct paths the dependency index currently
// maps. Diagnostic only.
func (r *Runner) TrackedPaths() int { return len(r.index) }

// Update executes every context that was pending when it was called, in
// invalidation order. Per context: the stale sub-tree is pruned, the callback
// runs (declaring dependencies and sub-tasks through its Context), and the
// fresh dependency set is re-gathered into the index.
//
// The first callback failure aborts the pass; the failed context and any not
// yet executed stay pending for the next call. Completed contexts keep their
// validity; nothing rolls back.
func (r *Runner) Update(ctx context.Context) error {
	if r.updating {
		return ErrUpdateInFlight
	}
	r.updating = true
	defer func() { r.updating = false }()

	pending := append([]*Context(nil), r.invalid...)
	r.logger.Debug("Update pass starting", zap.Int("pending", len(pending)))

	for _, tc := range pending {
		// A context executed or removed earlier in this pass (say, rebuilt as
		// part of an ancestor's run) may have left the invalid set already.
		if !slices.Contains(r.invalid, tc) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.execute(ctx, tc); err != nil {
			return err
		}
	}
	return nil
}

// execute runs one context to completion and re-registers its dependency set.
func (r *Runner) execute(ctx context.Context, tc *Context) error {
	r.logger.Debug("Executing task", zap.String("task", tc.String()), zap.Strings("inputs", tc.inputs))

	// The sub-task tree and declared dependencies are rebuilt from scratch on
	// every run; stale state must not outlive the previous execution.
	r.pruneSubtree(tc)

	if err := tc.fn(ctx, tc, tc.inputs); err != nil {
		var tee *TaskExecutionError
		if errors.As(err, &tee) {
			return err
		}
		return &TaskExecutionError{Task: tc.name, Err: err}
	}

	r.gather(tc)
	r.dropInvalid(tc)
	return nil
}

// markInvalid inserts tc into the invalid set under the dominance rule: an
// ancestor already pending subsumes tc, and tc subsumes any pending
// descendants of its own.
func (r *Runner) markInvalid(tc *Context) {
	for _, m := range r.invalid {
		if m == tc || tc.isDescendantOf(m) {
			return
		}
	}
	r.invalid = slices.DeleteFunc(r.invalid, func(m *Context) bool {
		return m.isDescendantOf(tc)
	})
	r.invalid = append(r.invalid, tc)
}

// dropInvalid removes tc and all its descendants from the invalid set.
func (r *Runner) dropInvalid(tc *Context) {
	r.invalid = slices.DeleteFunc(r.invalid, func(m *Context) bool {
		return m == tc || m.isDescendantOf(tc)
	})
}

// pruneSubtree removes the contributions of tc's descendants and tc's own
// dependency set from the index, discards the sub-task tree, and resets the
// declared dependencies. Inputs persist between runs and are not touched.
func (r *Runner) pruneSubtree(tc *Context) {
	for _, sub := range tc.subs {
		r.pruneSubtree(sub)
		r.dropInvalid(sub)
	}
	tc.subs = nil

	for _, p := range tc.inputs {
		r.unindex(p, tc)
	}
	for p := range tc.deps {
		r.unindex(p, tc)
	}
	tc.deps = make(map[string]struct{})
}

// gather registers tc's inputs, declared dependencies, and (recursively) its
// fresh sub-tasks' sets into the index.
func (r *Runner) gather(tc *Context) {
	for _, p := range tc.inputs {
		r.addIndex(p, tc)
	}
	for p := range tc.deps {
		r.addIndex(p, tc)
	}
	for _, sub := range tc.subs {
		r.gather(sub)
	}
}

func (r *Runner) addIndex(path string, tc *Context) {
	set, ok := r.index[path]
	if !ok {
		set = make(map[*Context]struct{})
		r.index[path] = set
	}
	set[tc] = struct{}{}
}

func (r *Runner) unindex(path string, tc *Context) {
	set, ok := r.index[path]
	if !ok {
		return
	}
	delete(set, tc)
	if len(set) == 0 {
		delete(r.index, path)
	}
}
