package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pechorka/pace-reader/internal/storage"
	"github.com/pechorka/pace-reader/pkg/textspliter"
	"github.com/pkg/errors"
)

var (
	ErrAlreadyRunning = errors.New("delivery is already running")
	ErrFinished       = errors.New("book is finished")
	ErrInvalidJob     = errors.New("invalid delivery job")
)

// Cancellation causes. Only ErrStopped rewinds the bookmark.
var (
	ErrStopped  = errors.New("stopped by user")
	ErrReplaced = errors.New("book replaced")
	ErrShutdown = errors.New("shutting down")
)

// DefaultRollbackWords is how far the bookmark is rewound on stop, so the
// reader gets some context back on resume.
const DefaultRollbackWords = 30

// Transport delivers messages to a chat.
type Transport interface {
	SendChunk(ctx context.Context, chatID int64, text string) error
	NotifyFinished(ctx context.Context, chatID int64, book string) error
}

type Store interface {
	Update(userID int64, updFunc storage.UpdateFunc) (storage.ReadingState, error)
}

// Job is everything a task needs. Rate and Interval are fixed for the
// lifetime of the task.
type Job struct {
	UserID   int64
	ChatID   int64
	Book     string
	Words    []string
	Position int
	Rate     int
	Interval int // in IntervalUnit
}

type Config struct {
	Store        Store
	Transport    Transport
	Logger       *slog.Logger
	IntervalUnit time.Duration
	StartDelay   time.Duration
	// RollbackWords defaults to DefaultRollbackWords, negative disables rollback.
	RollbackWords int
}

// Registry owns the delivery tasks of all users, at most one live task per user.
type Registry struct {
	store         Store
	transport     Transport
	log           *slog.Logger
	intervalUnit  time.Duration
	startDelay    time.Duration
	rollbackWords int

	mu    *sync.Mutex
	tasks map[int64]*Task
	wg    *sync.WaitGroup
}

func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is nil")
	}
	if cfg.Transport == nil {
		return nil, errors.New("transport is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IntervalUnit == 0 {
		cfg.IntervalUnit = time.Second
	}
	switch {
	case cfg.RollbackWords == 0:
		cfg.RollbackWords = DefaultRollbackWords
	case cfg.RollbackWords < 0:
		cfg.RollbackWords = 0
	}
	return &Registry{
		store:         cfg.Store,
		transport:     cfg.Transport,
		log:           cfg.Logger.With("component", "scheduler"),
		intervalUnit:  cfg.IntervalUnit,
		startDelay:    cfg.StartDelay,
		rollbackWords: cfg.RollbackWords,
		mu:            &sync.Mutex{},
		tasks:         make(map[int64]*Task),
		wg:            &sync.WaitGroup{},
	}, nil
}

// Start spawns a delivery task for the job's user.
func (r *Registry) Start(job Job) error {
	if job.Rate <= 0 || job.Interval < 0 || job.Position < 0 {
		return errors.Wrapf(ErrInvalidJob, "rate %d, interval %d, position %d", job.Rate, job.Interval, job.Position)
	}
	if job.Position >= len(job.Words) {
		return ErrFinished
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[job.UserID]; ok && !t.State().Terminal() {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	t := newTask(job, cancel)
	r.tasks[job.UserID] = t
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx, t)
	}()
	return nil
}

// Stop cancels the user's task and rewinds the bookmark. found is false when
// no task was ever started for the user. A task that already ended gets the
// rewind applied directly.
func (r *Registry) Stop(userID int64) (found bool, err error) {
	t, ok := r.task(userID)
	if !ok {
		return false, nil
	}
	if !t.State().Terminal() {
		t.cancel(ErrStopped)
		<-t.done
		if t.stoppedByUser() {
			return true, t.Err()
		}
	}
	// the task ended on its own before it saw the stop request
	_, err = r.rollback(userID)
	return true, err
}

// Cancel ends the user's task without touching the bookmark and waits for it.
func (r *Registry) Cancel(userID int64) bool {
	t, ok := r.task(userID)
	if !ok || t.State().Terminal() {
		return false
	}
	t.cancel(ErrReplaced)
	<-t.done
	return true
}

func (r *Registry) IsRunning(userID int64) bool {
	t, ok := r.task(userID)
	return ok && !t.State().Terminal()
}

// Status reports the last known task of the user.
func (r *Registry) Status(userID int64) (Status, bool) {
	t, ok := r.task(userID)
	if !ok {
		return Status{State: StateIdle}, false
	}
	return t.Status(), true
}

// Shutdown cancels every live task, keeping the persisted bookmarks as they are.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for _, t := range r.tasks {
		if !t.State().Terminal() {
			t.cancel(ErrShutdown)
		}
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "delivery tasks did not stop in time")
	}
}

func (r *Registry) task(userID int64) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[userID]
	return t, ok
}

func (r *Registry) run(ctx context.Context, t *Task) {
	defer close(t.done)
	job := t.job
	log := r.log.With("user_id", job.UserID, "book", job.Book, "task_id", t.id)
	log.Info("delivery started", "position", job.Position, "rate", job.Rate, "interval", job.Interval)

	if !wait(ctx, r.startDelay) {
		r.onCancel(ctx, t, log)
		return
	}

	pos := job.Position
	total := len(job.Words)
	interval := time.Duration(job.Interval) * r.intervalUnit
	for {
		if ctx.Err() != nil {
			r.onCancel(ctx, t, log)
			return
		}
		end := ChunkEnd(pos, job.Rate, total)
		chunk := textspliter.JoinWords(job.Words[pos:end])
		if err := r.transport.SendChunk(ctx, job.ChatID, chunk); err != nil {
			if ctx.Err() != nil {
				r.onCancel(ctx, t, log)
				return
			}
			// the previous chunk is already persisted, nothing is lost
			log.Error("chunk delivery failed, delivery halted", "position", pos, "err", err)
			t.finish(StateFailed, nil, errors.Wrap(err, "failed to send chunk"))
			return
		}
		_, err := r.store.Update(job.UserID, func(st *storage.ReadingState) error {
			st.Position = end
			return nil
		})
		if err != nil {
			log.Error("failed to persist position", "position", end, "err", err)
			t.finish(StateFailed, nil, errors.Wrap(err, "failed to persist position"))
			return
		}
		pos = end
		t.setPosition(pos)
		log.Debug("chunk delivered", "position", pos, "total", total)

		if pos >= total {
			if err := r.transport.NotifyFinished(context.WithoutCancel(ctx), job.ChatID, job.Book); err != nil {
				log.Warn("failed to notify about finished book", "err", err)
			}
			log.Info("book finished")
			t.finish(StateFinished, nil, nil)
			return
		}
		if !wait(ctx, interval) {
			r.onCancel(ctx, t, log)
			return
		}
	}
}

func (r *Registry) onCancel(ctx context.Context, t *Task, log *slog.Logger) {
	cause := context.Cause(ctx)
	t.setState(StateCancelling)
	if !errors.Is(cause, ErrStopped) {
		log.Info("delivery cancelled", "cause", cause, "position", t.Position())
		t.finish(StateIdle, cause, nil)
		return
	}
	st, err := r.rollback(t.job.UserID)
	if err != nil {
		log.Error("failed to rewind bookmark", "err", err)
		t.finish(StateIdle, cause, errors.Wrap(err, "failed to rewind bookmark"))
		return
	}
	log.Info("delivery stopped", "position", st.Position)
	t.finish(StateIdle, cause, nil)
}

func (r *Registry) rollback(userID int64) (storage.ReadingState, error) {
	return r.store.Update(userID, func(st *storage.ReadingState) error {
		st.Position = Rollback(st.Position, r.rollbackWords)
		return nil
	})
}

// wait sleeps for d unless ctx is cancelled first.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// ChunkEnd is the exclusive end of the chunk that starts at pos.
func ChunkEnd(pos, rate, total int) int {
	return min(pos+rate, total)
}

// Rollback rewinds pos by n words, never below zero.
func Rollback(pos, n int) int {
	return max(0, pos-n)
}

func newTaskID() string {
	return uuid.NewString()
}
