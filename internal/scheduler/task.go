package scheduler

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

type State int

const (
	StateIdle State = iota
	StateRunning
	StateCancelling
	StateFinished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCancelling:
		return "cancelling"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal states never emit again.
func (s State) Terminal() bool {
	return s == StateIdle || s == StateFinished || s == StateFailed
}

type Status struct {
	State    State
	Book     string
	Position int
	Err      error
}

// Task is a single delivery run. The registry keeps finished tasks around only
// to report how they ended.
type Task struct {
	id     string
	job    Job
	cancel context.CancelCauseFunc
	done   chan struct{}

	mu       *sync.Mutex
	state    State
	position int
	cause    error
	err      error
}

func newTask(job Job, cancel context.CancelCauseFunc) *Task {
	return &Task{
		id:       newTaskID(),
		job:      job,
		cancel:   cancel,
		done:     make(chan struct{}),
		mu:       &sync.Mutex{},
		state:    StateRunning,
		position: job.Position,
	}
}

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Position is the task's working cursor.
func (t *Task) Position() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position
}

func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{
		State:    t.state,
		Book:     t.job.Book,
		Position: t.position,
		Err:      t.err,
	}
}

// Done is closed once the task has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) setPosition(pos int) {
	t.mu.Lock()
	t.position = pos
	t.mu.Unlock()
}

func (t *Task) setState(state State) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
}

// finish moves the task to a terminal state. cause is the cancellation cause,
// if the task was cancelled.
func (t *Task) finish(state State, cause, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
	t.cause = cause
	t.err = err
	// releases the context, the cause of an earlier cancel wins
	t.cancel(nil)
}

func (t *Task) stoppedByUser() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateIdle && errors.Is(t.cause, ErrStopped)
}
