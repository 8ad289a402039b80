package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pechorka/pace-reader/internal/library"
	"github.com/pechorka/pace-reader/internal/scheduler"
	"github.com/pechorka/pace-reader/internal/storage"
	"github.com/pechorka/pace-reader/internal/storage/jsonfile"
	"github.com/stretchr/testify/require"
)

const (
	testUser = int64(1)
	testChat = int64(1)
)

func Test_completionPercent(t *testing.T) {
	tests := []struct {
		name     string
		position int
		total    int
		want     int
	}{
		{name: "empty book", position: 0, total: 0, want: 0},
		{name: "not started", position: 0, total: 8, want: 0},
		{name: "one third", position: 3, total: 9, want: 33},
		{name: "half", position: 4, total: 8, want: 50},
		{name: "finished", position: 8, total: 8, want: 100},
		{name: "past the end", position: 10, total: 8, want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, completionPercent(tt.position, tt.total))
		})
	}
}

func Test_parsePositive(t *testing.T) {
	tests := []struct {
		raw    string
		want   int
		wantOk bool
	}{
		{raw: "15", want: 15, wantOk: true},
		{raw: " 7 ", want: 7, wantOk: true},
		{raw: "3 words", want: 3, wantOk: true},
		{raw: "100", want: 100, wantOk: true},
		{raw: "101", wantOk: false},
		{raw: "abc", wantOk: false},
		{raw: "", wantOk: false},
		{raw: "0", wantOk: false},
		{raw: "-5", wantOk: false},
		{raw: "2.5", wantOk: false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := parsePositive(tt.raw, 100)
			require.Equal(t, tt.wantOk, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestService_SelectBook(t *testing.T) {
	so := require.New(t)
	env := newTestEnv(t, time.Millisecond)

	_, err := env.svc.SelectBook(testUser, "missing.txt")
	so.ErrorIs(err, ErrBookNotFound)

	st, err := env.svc.SelectBook(testUser, "abc.txt")
	so.NoError(err)
	so.Equal(storage.ReadingState{Book: "abc.txt", Rate: DefaultRate, Interval: DefaultInterval}, st)

	_, err = env.svc.SetRate(testUser, "3")
	so.NoError(err)
	_, err = env.store.Update(testUser, func(st *storage.ReadingState) error {
		st.Position = 5
		return nil
	})
	so.NoError(err)

	// selecting again starts over with defaults
	st, err = env.svc.SelectBook(testUser, "abc.txt")
	so.NoError(err)
	so.Equal(0, st.Position)
	so.Equal(DefaultRate, st.Rate)
}

func TestService_SetRate(t *testing.T) {
	so := require.New(t)
	env := newTestEnv(t, time.Millisecond)

	_, err := env.svc.SetRate(testUser, "5")
	so.ErrorIs(err, ErrBookNotSelected)

	_, err = env.svc.SelectBook(testUser, "abc.txt")
	so.NoError(err)

	rate, err := env.svc.SetRate(testUser, "5")
	so.NoError(err)
	so.Equal(5, rate)

	_, err = env.svc.SetRate(testUser, "abc")
	so.ErrorIs(err, ErrInvalidRate)

	st, err := env.store.Get(testUser)
	so.NoError(err)
	so.Equal(5, st.Rate, "rejected rate must not change the state")
}

func TestService_SetInterval(t *testing.T) {
	so := require.New(t)
	env := newTestEnv(t, time.Millisecond)

	_, err := env.svc.SetInterval(testUser, "5")
	so.ErrorIs(err, ErrBookNotSelected)

	_, err = env.svc.SelectBook(testUser, "abc.txt")
	so.NoError(err)

	for _, raw := range []string{"", "0", "-1", "x", "86401"} {
		_, err = env.svc.SetInterval(testUser, raw)
		so.ErrorIs(err, ErrInvalidInterval, raw)
	}

	interval, err := env.svc.SetInterval(testUser, "30")
	so.NoError(err)
	so.Equal(30, interval)

	st, err := env.store.Get(testUser)
	so.NoError(err)
	so.Equal(30, st.Interval)
}

func TestService_StartReading(t *testing.T) {
	t.Run("no book selected", func(t *testing.T) {
		env := newTestEnv(t, time.Millisecond)
		_, err := env.svc.StartReading(context.Background(), testUser, testChat)
		require.ErrorIs(t, err, ErrBookNotSelected)
		require.False(t, env.registry.IsRunning(testUser))
	})

	t.Run("reads the whole book", func(t *testing.T) {
		so := require.New(t)
		env := newTestEnv(t, time.Millisecond)
		env.selectBook(t, "abc.txt", 3, 1)

		st, err := env.svc.StartReading(context.Background(), testUser, testChat)
		so.NoError(err)
		so.Equal("abc.txt", st.Book)
		env.transport.waitFinished(t)
		env.waitIdle(t)

		so.Equal([]string{"a b c", "d e f", "g h"}, env.transport.Chunks())
		p, err := env.svc.Progress(testUser)
		so.NoError(err)
		so.Equal(8, p.State.Position)
		so.Equal(8, p.TotalWords)
		so.Equal(100, p.CompletionPercent)
		so.Equal(scheduler.StateFinished, p.Delivery)

		_, err = env.svc.StartReading(context.Background(), testUser, testChat)
		so.ErrorIs(err, ErrBookFinished)
	})

	t.Run("already reading", func(t *testing.T) {
		so := require.New(t)
		env := newTestEnv(t, time.Hour)
		env.selectBook(t, "abc.txt", 3, 1)

		_, err := env.svc.StartReading(context.Background(), testUser, testChat)
		so.NoError(err)
		_, err = env.svc.StartReading(context.Background(), testUser, testChat)
		so.ErrorIs(err, ErrAlreadyReading)
		so.True(env.registry.IsRunning(testUser))
	})

	t.Run("book removed after selection", func(t *testing.T) {
		so := require.New(t)
		env := newTestEnv(t, time.Millisecond)
		env.selectBook(t, "abc.txt", 3, 1)
		so.NoError(os.Remove(filepath.Join(env.dir, "abc.txt")))

		_, err := env.svc.StartReading(context.Background(), testUser, testChat)
		so.ErrorIs(err, ErrBookNotFound)
		so.False(env.registry.IsRunning(testUser))
	})
}

func TestService_StopReading(t *testing.T) {
	t.Run("nothing selected", func(t *testing.T) {
		env := newTestEnv(t, time.Millisecond)
		_, err := env.svc.StopReading(testUser)
		require.ErrorIs(t, err, ErrNothingToStop)
	})

	t.Run("never started", func(t *testing.T) {
		env := newTestEnv(t, time.Millisecond)
		env.selectBook(t, "abc.txt", 3, 1)
		_, err := env.svc.StopReading(testUser)
		require.ErrorIs(t, err, ErrNothingToStop)
	})

	t.Run("mid stream stop rewinds the bookmark", func(t *testing.T) {
		so := require.New(t)
		env := newTestEnv(t, time.Hour)
		env.selectBook(t, "abc.txt", 3, 1)

		_, err := env.svc.StartReading(context.Background(), testUser, testChat)
		so.NoError(err)
		env.transport.waitChunks(t, 1)

		st, err := env.svc.StopReading(testUser)
		so.NoError(err)
		so.Equal(0, st.Position)
		so.False(env.registry.IsRunning(testUser))
		so.Equal([]string{"a b c"}, env.transport.Chunks())
	})
}

func TestService_Reread(t *testing.T) {
	so := require.New(t)
	env := newTestEnv(t, time.Millisecond)

	_, err := env.svc.Reread(testUser)
	so.ErrorIs(err, ErrBookNotSelected)

	env.selectBook(t, "abc.txt", 3, 1)
	_, err = env.store.Update(testUser, func(st *storage.ReadingState) error {
		st.Position = 8
		return nil
	})
	so.NoError(err)

	first, err := env.svc.Reread(testUser)
	so.NoError(err)
	second, err := env.svc.Reread(testUser)
	so.NoError(err)
	so.Equal(0, first.Position)
	so.Equal(first.Book, second.Book)
	so.Equal(first.Position, second.Position)
	so.Equal(first.Rate, second.Rate)
	so.Equal(first.Interval, second.Interval)

	_, err = env.svc.StartReading(context.Background(), testUser, testChat)
	so.NoError(err)
	env.transport.waitFinished(t)
	env.waitIdle(t)
	so.Equal([]string{"a b c", "d e f", "g h"}, env.transport.Chunks())
}

func TestService_ListBooks(t *testing.T) {
	so := require.New(t)
	env := newTestEnv(t, time.Millisecond)

	books, err := env.svc.ListBooks(testUser)
	so.NoError(err)
	so.Equal([]Book{{Name: "abc.txt"}, {Name: "long.txt"}}, books)

	env.selectBook(t, "abc.txt", 3, 1)
	_, err = env.store.Update(testUser, func(st *storage.ReadingState) error {
		st.Position = 4
		return nil
	})
	so.NoError(err)

	books, err = env.svc.ListBooks(testUser)
	so.NoError(err)
	so.Equal([]Book{{Name: "abc.txt", Selected: true, CompletionPercent: 50}, {Name: "long.txt"}}, books)
}

func TestService_AddBook(t *testing.T) {
	so := require.New(t)
	env := newTestEnv(t, time.Millisecond)

	words, err := env.svc.AddBook("new.txt", []byte("x y z"))
	so.NoError(err)
	so.Equal(3, words)
	books, err := env.svc.ListBooks(testUser)
	so.NoError(err)
	so.Equal([]Book{{Name: "abc.txt"}, {Name: "long.txt"}, {Name: "new.txt"}}, books)

	st, err := env.svc.SelectBook(testUser, "new.txt")
	so.NoError(err)
	so.Equal("new.txt", st.Book)

	so.Equal([]string{".epub", ".fb2", ".txt"}, env.svc.BookFormats())
	_, err = env.svc.AddBook("new.pdf", []byte("x"))
	so.ErrorIs(err, ErrInvalidBook)
}

func TestService_SelectBookCancelsDelivery(t *testing.T) {
	so := require.New(t)
	env := newTestEnv(t, time.Hour)
	env.selectBook(t, "long.txt", 5, 1)

	_, err := env.svc.StartReading(context.Background(), testUser, testChat)
	so.NoError(err)
	env.transport.waitChunks(t, 1)

	st, err := env.svc.SelectBook(testUser, "abc.txt")
	so.NoError(err)
	so.False(env.registry.IsRunning(testUser))

	stored, err := env.store.Get(testUser)
	so.NoError(err)
	so.Equal(st.Book, stored.Book)
	so.Equal(0, stored.Position)
}

type testEnv struct {
	dir       string
	store     *jsonfile.Storage
	registry  *scheduler.Registry
	transport *fakeTransport
	svc       *Service
}

func newTestEnv(t *testing.T, unit time.Duration) *testEnv {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc.txt"), []byte("a b c d e f g h"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "long.txt"), []byte(longText), 0o600))

	lib, err := library.New(library.Config{Dir: dir})
	require.NoError(t, err)
	store, err := jsonfile.NewStorage(filepath.Join(t.TempDir(), "user_data.json"))
	require.NoError(t, err)
	transport := newFakeTransport()
	registry, err := scheduler.NewRegistry(scheduler.Config{
		Store:        store,
		Transport:    transport,
		IntervalUnit: unit,
	})
	require.NoError(t, err)
	svc, err := NewService(Config{
		Store:     store,
		Library:   lib,
		Scheduler: registry,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, registry.Shutdown(ctx))
	})
	return &testEnv{dir: dir, store: store, registry: registry, transport: transport, svc: svc}
}

func (e *testEnv) selectBook(t *testing.T, book string, rate, interval int) {
	t.Helper()
	_, err := e.svc.SelectBook(testUser, book)
	require.NoError(t, err)
	_, err = e.store.Update(testUser, func(st *storage.ReadingState) error {
		st.Rate = rate
		st.Interval = interval
		return nil
	})
	require.NoError(t, err)
}

func (e *testEnv) waitIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return !e.registry.IsRunning(testUser)
	}, 5*time.Second, time.Millisecond)
}

const longText = `It is a truth universally acknowledged, that a single man in possession
of a good fortune, must be in want of a wife. However little known the feelings
or views of such a man may be on his first entering a neighbourhood, this truth
is so well fixed in the minds of the surrounding families, that he is considered
the rightful property of some one or other of their daughters.`

type fakeTransport struct {
	mu       sync.Mutex
	chunks   []string
	finished []string
	events   chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan struct{}, 1000)}
}

func (f *fakeTransport) SendChunk(_ context.Context, _ int64, text string) error {
	f.mu.Lock()
	f.chunks = append(f.chunks, text)
	f.mu.Unlock()
	f.events <- struct{}{}
	return nil
}

func (f *fakeTransport) NotifyFinished(_ context.Context, _ int64, book string) error {
	f.mu.Lock()
	f.finished = append(f.finished, book)
	f.mu.Unlock()
	f.events <- struct{}{}
	return nil
}

func (f *fakeTransport) Chunks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.chunks...)
}

func (f *fakeTransport) finishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.finished)
}

func (f *fakeTransport) waitChunks(t *testing.T, n int) {
	t.Helper()
	f.waitFor(t, func() bool { return len(f.Chunks()) >= n })
}

func (f *fakeTransport) waitFinished(t *testing.T) {
	t.Helper()
	f.waitFor(t, func() bool { return f.finishedCount() > 0 })
}

func (f *fakeTransport) waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-f.events:
		case <-deadline:
			t.Fatal("timed out waiting for delivery")
		}
	}
}
