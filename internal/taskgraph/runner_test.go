// internal/taskgraph/runner_test.go
package taskgraph

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counter is a task body that just tallies executions and remembers the inputs
// it last received.
type counter struct {
	runs       int
	lastInputs []string
}

func (c *counter) fn(ctx context.Context, tc *Context, inputs []string) error {
	c.runs++
	c.lastInputs = append([]string(nil), inputs...)
	return nil
}

func TestRunner_UpdateIdempotent(t *testing.T) {
	r := NewRunner(nil)
	a, b := &counter{}, &counter{}
	r.Add("a", a.fn, []string{"/site/a.html"})
	r.Add("b", b.fn, []string{"/site/b.html"})

	require.True(t, r.NeedsUpdate(), "freshly added tasks are pending")
	require.NoError(t, r.Update(context.Background()))
	assert.Equal(t, 1, a.runs)
	assert.Equal(t, 1, b.runs)
	assert.False(t, r.NeedsUpdate())

	// A second pass with nothing invalidated runs nothing.
	require.NoError(t, r.Update(context.Background()))
	assert.Equal(t, 1, a.runs)
	assert.Equal(t, 1, b.runs)
}

func TestRunner_InvalidatePath_MinimalRerun(t *testing.T) {
	r := NewRunner(nil)
	a, b := &counter{}, &counter{}
	r.Add("a", a.fn, []string{"/site/a.html"})
	r.Add("b", b.fn, []string{"/site/b.html"})
	require.NoError(t, r.Update(context.Background()))

	r.InvalidatePath("/site/a.html", ChangeModify)
	require.True(t, r.NeedsUpdate())
	require.NoError(t, r.Update(context.Background()))

	assert.Equal(t, 2, a.runs, "only the task keyed by the path re-runs")
	assert.Equal(t, 1, b.runs)
}

func TestRunner_InvalidatePath_UntrackedIsNoop(t *testing.T) {
	r := NewRunner(nil)
	a := &counter{}
	r.Add("a", a.fn, []string{"/site/a.html"})
	require.NoError(t, r.Update(context.Background()))

	r.InvalidatePath("/site/never-seen.css", ChangeModify)
	assert.False(t, r.NeedsUpdate())
}

func TestRunner_DeclaredDependencyRerun(t *testing.T) {
	r := NewRunner(nil)

	page := &counter{}
	pageFn := func(ctx context.Context, tc *Context, inputs []string) error {
		tc.DependOn("/site/data.csv")
		return page.fn(ctx, tc, inputs)
	}
	other := &counter{}
	r.Add("page", pageFn, []string{"/site/index.html"})
	r.Add("other", other.fn, []string{"/site/about.html"})
	require.NoError(t, r.Update(context.Background()))

	// Changing a runtime-declared dependency re-executes exactly the task that
	// declared it, with its inputs untouched.
	r.InvalidatePath("/site/data.csv", ChangeModify)
	require.NoError(t, r.Update(context.Background()))

	assert.Equal(t, 2, page.runs)
	assert.Equal(t, []string{"/site/index.html"}, page.lastInputs)
	assert.Equal(t, 1, other.runs)
}

func TestRunner_InvalidatePath_DeleteStripsInput(t *testing.T) {
	r := NewRunner(nil)
	a := &counter{}
	r.Add("a", a.fn, []string{"/site/a.html", "/site/b.html"})
	require.NoError(t, r.Update(context.Background()))
	assert.Equal(t, 2, r.TrackedPaths())

	r.InvalidatePath("/site/a.html", ChangeDelete)
	require.NoError(t, r.Update(context.Background()))

	assert.Equal(t, []string{"/site/b.html"}, a.lastInputs, "the deleted path is not handed to the task again")
	assert.Equal(t, 1, r.TrackedPaths())

	// The deleted path left the index; touching it again changes nothing.
	r.InvalidatePath("/site/a.html", ChangeModify)
	assert.False(t, r.NeedsUpdate())
}

func TestRunner_RegatherReplacesStaleDeps(t *testing.T) {
	r := NewRunner(nil)

	// First run depends on old.csv, every later run on new.csv. The index must
	// follow the latest execution, not accumulate history.
	runs := 0
	id := r.Add("page", func(ctx context.Context, tc *Context, inputs []string) error {
		runs++
		if runs == 1 {
			tc.DependOn("/site/old.csv")
		} else {
			tc.DependOn("/site/new.csv")
		}
		return nil
	}, []string{"/site/index.html"})
	require.NoError(t, r.Update(context.Background()))

	require.NoError(t, r.SetInputs(id, []string{"/site/index.html"}))
	require.NoError(t, r.Update(context.Background()))
	require.Equal(t, 2, runs)

	r.InvalidatePath("/site/old.csv", ChangeModify)
	assert.False(t, r.NeedsUpdate(), "stale dependencies are forgotten on re-run")

	r.InvalidatePath("/site/new.csv", ChangeModify)
	assert.True(t, r.NeedsUpdate())
}

func TestRunner_SubtaskGranularity(t *testing.T) {
	r := NewRunner(nil)

	parent, child := &counter{}, &counter{}
	parentFn := func(ctx context.Context, tc *Context, inputs []string) error {
		if err := parent.fn(ctx, tc, inputs); err != nil {
			return err
		}
		return tc.Do(ctx, "copy", child.fn, []string{"/site/logo.png"})
	}
	r.Add("page", parentFn, []string{"/site/index.html"})
	require.NoError(t, r.Update(context.Background()))
	require.Equal(t, 1, parent.runs)
	require.Equal(t, 1, child.runs)

	// A change to the sub-task's input re-runs just the sub-task.
	r.InvalidatePath("/site/logo.png", ChangeModify)
	require.NoError(t, r.Update(context.Background()))
	assert.Equal(t, 1, parent.runs)
	assert.Equal(t, 2, child.runs)
	assert.False(t, r.NeedsUpdate())
}

func TestRunner_AncestorDominance(t *testing.T) {
	orders := map[string][2]string{
		"child first":  {"/site/logo.png", "/site/index.html"},
		"parent first": {"/site/index.html", "/site/logo.png"},
	}

	for name, paths := range orders {
		t.Run(name, func(t *testing.T) {
			r := NewRunner(nil)
			parent, child := &counter{}, &counter{}
			parentFn := func(ctx context.Context, tc *Context, inputs []string) error {
				if err := parent.fn(ctx, tc, inputs); err != nil {
					return err
				}
				return tc.Do(ctx, "copy", child.fn, []string{"/site/logo.png"})
			}
			r.Add("page", parentFn, []string{"/site/index.html"})
			require.NoError(t, r.Update(context.Background()))

			// Invalidate both the parent's input and the sub-task's input, in
			// either order: the pending ancestor subsumes the descendant, so
			// the parent runs once and the child once (as part of the parent).
			r.InvalidatePath(paths[0], ChangeModify)
			r.InvalidatePath(paths[1], ChangeModify)
			require.NoError(t, r.Update(context.Background()))

			assert.Equal(t, 2, parent.runs)
			assert.Equal(t, 2, child.runs)
			assert.False(t, r.NeedsUpdate())
		})
	}
}

func TestRunner_FailureKeepsTaskPending(t *testing.T) {
	r := NewRunner(nil)

	broken := true
	fixed := &counter{}
	r.Add("broken", func(ctx context.Context, tc *Context, inputs []string) error {
		if broken {
			return errors.New("cannot render")
		}
		return nil
	}, []string{"/site/a.html"})
	r.Add("healthy", fixed.fn, []string{"/site/b.html"})

	err := r.Update(context.Background())
	require.Error(t, err)
	var tee *TaskExecutionError
	require.True(t, errors.As(err, &tee))
	assert.Equal(t, "broken", tee.Task)

	// Fail fast: the pass aborts, the failed task and everything after it stay
	// pending.
	assert.Equal(t, 0, fixed.runs)
	assert.True(t, r.NeedsUpdate())

	broken = false
	require.NoError(t, r.Update(context.Background()))
	assert.Equal(t, 1, fixed.runs)
	assert.False(t, r.NeedsUpdate())
}

func TestRunner_UpdateReentry(t *testing.T) {
	r := NewRunner(nil)
	r.Add("reentrant", func(ctx context.Context, tc *Context, inputs []string) error {
		return r.Update(ctx)
	}, nil)

	err := r.Update(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpdateInFlight)
}

func TestRunner_Remove(t *testing.T) {
	r := NewRunner(nil)
	a := &counter{}
	id := r.Add("a", a.fn, []string{"/site/a.html"})
	require.NoError(t, r.Update(context.Background()))

	require.NoError(t, r.Remove(id))
	assert.Equal(t, 0, r.TrackedPaths())

	r.InvalidatePath("/site/a.html", ChangeModify)
	assert.False(t, r.NeedsUpdate())
	require.NoError(t, r.Update(context.Background()))
	assert.Equal(t, 1, a.runs)

	assert.ErrorIs(t, r.Remove(id), ErrUnknownTask)
}

func TestRunner_RemovePending(t *testing.T) {
	r := NewRunner(nil)
	a := &counter{}
	id := r.Add("a", a.fn, []string{"/site/a.html"})

	// Removing a never-run task also clears it from the pending set.
	require.NoError(t, r.Remove(id))
	assert.False(t, r.NeedsUpdate())
	require.NoError(t, r.Update(context.Background()))
	assert.Equal(t, 0, a.runs)
}

func TestRunner_InputsAccessors(t *testing.T) {
	r := NewRunner(nil)
	a := &counter{}
	id := r.Add("a", a.fn, []string{"/site/a.html"})

	got, err := r.Inputs(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"/site/a.html"}, got)

	// The returned slice is a copy.
	got[0] = "mutated"
	again, err := r.Inputs(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"/site/a.html"}, again)

	require.NoError(t, r.Update(context.Background()))
	require.NoError(t, r.SetInputs(id, []string{"/site/b.html"}))
	assert.True(t, r.NeedsUpdate())
	require.NoError(t, r.Update(context.Background()))
	assert.Equal(t, []string{"/site/b.html"}, a.lastInputs)

	_, err = r.Inputs("nope")
	assert.ErrorIs(t, err, ErrUnknownTask)
	assert.ErrorIs(t, r.SetInputs("nope", nil), ErrUnknownTask)
}

func TestRunner_ContextCancelled(t *testing.T) {
	r := NewRunner(nil)
	a := &counter{}
	r.Add("a", a.fn, []string{"/site/a.html"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Update(ctx), context.Canceled)
	assert.Equal(t, 0, a.runs)
	assert.True(t, r.NeedsUpdate(), "nothing executed, everything stays pending")
}

func TestRunner_SubtaskFailurePropagates(t *testing.T) {
	r := NewRunner(nil)
	r.Add("page", func(ctx context.Context, tc *Context, inputs []string) error {
		return tc.Do(ctx, "copy", func(ctx context.Context, tc *Context, inputs []string) error {
			return fmt.Errorf("disk full")
		}, []string{"/site/logo.png"})
	}, []string{"/site/index.html"})

	err := r.Update(context.Background())
	require.Error(t, err)
	var tee *TaskExecutionError
	require.True(t, errors.As(err, &tee))
	assert.Equal(t, "copy", tee.Task, "the innermost failing task is named")
	assert.True(t, r.NeedsUpdate())
}

func TestChangeKind_String(t *testing.T) {
	assert.Equal(t, "add", ChangeAdd.String())
	assert.Equal(t, "change", ChangeModify.String())
	assert.Equal(t, "delete", ChangeDelete.String())
	assert.Equal(t, "ChangeKind(9)", ChangeKind(9).String())
}
