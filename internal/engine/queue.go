package engine

import "sync"

// taskQueue holds the tasks waiting for the engine loop, oldest first.
// Other goroutines add to it through Factory.Post; the loop itself adds
// request deliveries and job starts.
//
// It never blocks a producer: the loop is its own biggest producer, so a
// bound would deadlock it. Run sleeps on the wake channel in a select next
// to ctx.Done.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	signal chan struct{} // wake channel; one pending token at most
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]func(), 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends task. It reports false, leaving the task unqueued, once
// Close was called. Safe from any goroutine.
func (q *taskQueue) Enqueue(task func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.tasks = append(q.tasks, task)

	// A token already waiting covers this task too.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue pops the oldest task, or reports false when there is none.
func (q *taskQueue) TryDequeue() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil, false
	}
	task := q.tasks[0]
	q.tasks[0] = nil // do not pin the task's captures
	if len(q.tasks) == 1 {
		// Empty again: restart at the front of the backing array.
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}
	return task, true
}

// Wait returns the wake channel. A receive means tasks may be waiting; the
// channel is closed by Close.
func (q *taskQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of waiting tasks.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Closed reports whether Close was called.
func (q *taskQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close refuses further tasks and wakes the loop. Tasks already queued stay
// available to TryDequeue. Calling it again does nothing.
func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
