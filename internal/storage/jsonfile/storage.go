package jsonfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pechorka/pace-reader/internal/storage"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
)

// Storage keeps every reading state in memory and rewrites the whole file
// on each mutation.
type Storage struct {
	path      string
	mu        *sync.RWMutex
	states    map[int64]storage.ReadingState
	now       func() time.Time
	closeFunc func() error
}

// NewStorage loads the mapping from path. A missing file yields an empty
// mapping, an unreadable one yields storage.ErrCorrupt.
func NewStorage(path string) (*Storage, error) {
	states, err := load(path)
	if err != nil {
		return nil, err
	}
	return &Storage{
		path:      path,
		mu:        &sync.RWMutex{},
		states:    states,
		now:       time.Now,
		closeFunc: func() error { return nil },
	}, nil
}

func NewTempStorage() (*Storage, error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("pace-reader-%s.json", uuid.New().String()))
	s, err := NewStorage(path)
	if err != nil {
		return nil, err
	}
	s.closeFunc = func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return s, nil
}

func load(path string) (map[int64]storage.ReadingState, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return make(map[int64]storage.ReadingState), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	states := make(map[int64]storage.ReadingState)
	if len(bytes.TrimSpace(data)) == 0 {
		return states, nil
	}
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, &storage.CorruptError{Err: err}
	}
	if err := storage.Validate(states); err != nil {
		return nil, err
	}
	return states, nil
}

func (s *Storage) Close() error {
	return s.closeFunc()
}

func (s *Storage) Get(userID int64) (storage.ReadingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[userID]
	if !ok {
		return storage.ReadingState{}, storage.ErrNotFound
	}
	return st, nil
}

func (s *Storage) Set(userID int64, state storage.ReadingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.UpdatedAt = s.now()
	return s.put(userID, state)
}

func (s *Storage) Update(userID int64, updFunc storage.UpdateFunc) (storage.ReadingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[userID]
	if !ok {
		return storage.ReadingState{}, storage.ErrNotFound
	}
	if err := updFunc(&st); err != nil {
		return storage.ReadingState{}, err
	}
	st.UpdatedAt = s.now()
	if err := s.put(userID, st); err != nil {
		return storage.ReadingState{}, err
	}
	return st, nil
}

func (s *Storage) All() (map[int64]storage.ReadingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.states), nil
}

// put must be called with the write lock held. The in-memory mapping is only
// changed once the file is replaced.
func (s *Storage) put(userID int64, state storage.ReadingState) error {
	next := maps.Clone(s.states)
	if next == nil {
		next = make(map[int64]storage.ReadingState, 1)
	}
	next[userID] = state
	if err := s.flush(next); err != nil {
		return err
	}
	s.states = next
	return nil
}

func (s *Storage) flush(states map[int64]storage.ReadingState) error {
	data, err := json.MarshalIndent(states, "", "    ")
	if err != nil {
		return errors.Wrap(err, "failed to encode reading states")
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to sync temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to close temp file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to replace state file")
	}
	return nil
}
