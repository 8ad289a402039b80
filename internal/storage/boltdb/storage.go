package boltdb

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pechorka/pace-reader/internal/storage"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var bktReadingState = []byte("reading_state")

// Storage is a wrapper around bolt.DB
type Storage struct {
	db        *bolt.DB
	now       func() time.Time
	closeFunc func() error
}

// NewStorage opens the database and checks every stored state.
func NewStorage(path string) (*Storage, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if errors.Is(err, bolt.ErrInvalid) || errors.Is(err, bolt.ErrVersionMismatch) || errors.Is(err, bolt.ErrChecksum) {
		return nil, &storage.CorruptError{Err: errors.Wrapf(err, "failed to open bolt db %s", path)}
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to open bolt db")
	}
	s := &Storage{
		db:        db,
		now:       time.Now,
		closeFunc: db.Close,
	}
	if err := s.check(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func NewTempStorage() (*Storage, error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("pace-reader-%s.db", uuid.New().String()))
	storage, err := NewStorage(path)
	if err != nil {
		return nil, err
	}
	originalCloseFunc := storage.closeFunc
	storage.closeFunc = func() error {
		if err := originalCloseFunc(); err != nil {
			return err
		}
		return os.Remove(path)
	}
	return storage, nil
}

// Close closes the storage
func (s *Storage) Close() error {
	return s.closeFunc()
}

func (s *Storage) check() error {
	_, err := s.All()
	return err
}

func (s *Storage) Get(userID int64) (storage.ReadingState, error) {
	var st storage.ReadingState
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bktReadingState)
		if b == nil {
			return storage.ErrNotFound
		}
		var err error
		st, err = getState(b, userID)
		return err
	})
	return st, err
}

func (s *Storage) Set(userID int64, state storage.ReadingState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bktReadingState)
		if err != nil {
			return err
		}
		state.UpdatedAt = s.now()
		return putState(b, userID, state)
	})
}

func (s *Storage) Update(userID int64, updFunc storage.UpdateFunc) (storage.ReadingState, error) {
	var st storage.ReadingState
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bktReadingState)
		if b == nil {
			return storage.ErrNotFound
		}
		var err error
		st, err = getState(b, userID)
		if err != nil {
			return err
		}
		if err = updFunc(&st); err != nil {
			return err
		}
		st.UpdatedAt = s.now()
		return putState(b, userID, st)
	})
	if err != nil {
		return storage.ReadingState{}, err
	}
	return st, nil
}

func (s *Storage) All() (map[int64]storage.ReadingState, error) {
	result := make(map[int64]storage.ReadingState)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bktReadingState)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if len(k) != 8 {
				return &storage.CorruptError{Key: fmt.Sprintf("%x", k), Err: errors.New("unexpected key length")}
			}
			userID := bytesToInt64(k)
			st, err := unmarshalState(userID, v)
			if err != nil {
				return err
			}
			result[userID] = st
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if err := storage.Validate(result); err != nil {
		return nil, err
	}
	return result, nil
}

func getState(b *bolt.Bucket, userID int64) (storage.ReadingState, error) {
	v := b.Get(int64ToBytes(userID))
	if v == nil {
		return storage.ReadingState{}, storage.ErrNotFound
	}
	return unmarshalState(userID, v)
}

func putState(b *bolt.Bucket, userID int64, st storage.ReadingState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "failed to marshal reading state")
	}
	return b.Put(int64ToBytes(userID), data)
}

func unmarshalState(userID int64, v []byte) (storage.ReadingState, error) {
	var st storage.ReadingState
	if err := json.Unmarshal(v, &st); err != nil {
		return storage.ReadingState{}, &storage.CorruptError{Key: strconv.FormatInt(userID, 10), Err: err}
	}
	return st, nil
}

// helper functions

func int64ToBytes(i int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(i))
	return b
}

func bytesToInt64(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}
