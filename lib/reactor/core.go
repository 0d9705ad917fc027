// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reactor

// core is the bookkeeping shared by Loop and Fake: task ids, the table
// of pending operations, and the queue of completions awaiting
// dispatch.
type core struct {
	nextID  uint64
	pending map[uint64]*Task
	ready   []readyCompletion

	// outstanding counts tasks submitted but not yet dispatched,
	// whether pending or ready.
	outstanding int
}

type readyCompletion struct {
	task       *Task
	completion Completion
}

func newCore() core {
	return core{pending: make(map[uint64]*Task)}
}

// newTask registers a submitted operation as pending.
func (c *core) newTask(kind OpKind, fd int, context Context) *Task {
	c.nextID++
	task := &Task{id: c.nextID, kind: kind, fd: fd, context: context}
	c.pending[task.id] = task
	c.outstanding++
	return task
}

// complete moves task from pending to the ready queue. A task
// completes at most once.
func (c *core) complete(task *Task, newFD, n int, err error) {
	if task.done {
		return
	}
	task.done = true
	delete(c.pending, task.id)
	c.ready = append(c.ready, readyCompletion{
		task: task,
		completion: Completion{
			Kind:  task.kind,
			Tag:   task.context.Tag,
			FD:    task.fd,
			NewFD: newFD,
			N:     n,
			Err:   err,
		},
	})
}

func (c *core) succeed(task *Task) {
	c.complete(task, NoFD, 0, nil)
}

func (c *core) fail(task *Task, err error) {
	c.complete(task, NoFD, 0, err)
}

// cancel implements Cancel for both reactors once the target has been
// detached from any per-descriptor queue.
func (c *core) cancel(cancelTask, target *Task) {
	if target == nil || target.done {
		c.fail(cancelTask, ErrTaskDone)
		return
	}
	c.fail(target, ErrCanceled)
	c.succeed(cancelTask)
}

// dispatchOne runs the handler of the oldest ready completion. It
// reports false when the ready queue is empty.
func (c *core) dispatchOne() bool {
	if len(c.ready) == 0 {
		return false
	}
	next := c.ready[0]
	c.ready[0] = readyCompletion{}
	c.ready = c.ready[1:]
	if len(c.ready) == 0 {
		c.ready = nil
	}
	c.outstanding--
	next.task.buffer = nil
	if next.task.context.Handler != nil {
		next.task.context.Handler.HandleCompletion(next.completion)
	}
	return true
}

// Outstanding returns the number of submitted operations not yet
// dispatched.
func (c *core) Outstanding() int { return c.outstanding }
