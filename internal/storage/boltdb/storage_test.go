package boltdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pechorka/pace-reader/internal/storage"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func TestStorage(t *testing.T) {
	t.Run("set -> reopen -> get", func(t *testing.T) {
		so := require.New(t)
		path := filepath.Join(t.TempDir(), "state.db")

		s, err := NewStorage(path)
		so.NoError(err)
		want := storage.ReadingState{Book: "a.txt", Position: 3, Rate: 3, Interval: 1}
		so.NoError(s.Set(7, want))
		so.NoError(s.Close())

		s, err = NewStorage(path)
		so.NoError(err)
		t.Cleanup(func() { so.NoError(s.Close()) })

		got, err := s.Get(7)
		so.NoError(err)
		so.Equal(want.Book, got.Book)
		so.Equal(want.Position, got.Position)
		so.Equal(want.Rate, got.Rate)
		so.Equal(want.Interval, got.Interval)

		_, err = s.Get(8)
		so.ErrorIs(err, storage.ErrNotFound)
	})

	t.Run("update", func(t *testing.T) {
		so := require.New(t)
		s := testStorage(t)

		_, err := s.Update(1, func(*storage.ReadingState) error { return nil })
		so.ErrorIs(err, storage.ErrNotFound)

		so.NoError(s.Set(1, storage.ReadingState{Book: "a.txt", Position: 40, Rate: 3, Interval: 1}))
		st, err := s.Update(1, func(st *storage.ReadingState) error {
			st.Position -= 30
			return nil
		})
		so.NoError(err)
		so.Equal(10, st.Position)

		all, err := s.All()
		so.NoError(err)
		so.Equal(10, all[1].Position)
	})

	t.Run("corrupt value is fatal on open", func(t *testing.T) {
		so := require.New(t)
		path := filepath.Join(t.TempDir(), "state.db")

		db, err := bolt.Open(path, 0600, nil)
		so.NoError(err)
		err = db.Update(func(tx *bolt.Tx) error {
			b, err := tx.CreateBucketIfNotExists(bktReadingState)
			if err != nil {
				return err
			}
			return b.Put(int64ToBytes(1), []byte("{broken"))
		})
		so.NoError(err)
		so.NoError(db.Close())

		_, err = NewStorage(path)
		so.ErrorIs(err, storage.ErrCorrupt)
	})

	t.Run("corrupt file", func(t *testing.T) {
		so := require.New(t)
		path := filepath.Join(t.TempDir(), "state.db")
		so.NoError(os.WriteFile(path, []byte(`{"1": {"book": "abc.txt"}}`), 0o600))

		_, err := NewStorage(path)
		so.ErrorIs(err, storage.ErrCorrupt)
		so.ErrorIs(err, bolt.ErrInvalid)
	})
}

func TestInt64Bytes(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 373512635, -1001234567890} {
		require.Equal(t, v, bytesToInt64(int64ToBytes(v)))
	}
}

func testStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := NewTempStorage()
	require.NoError(t, err)

	t.Cleanup(func() {
		err := s.Close()
		require.NoError(t, err)
	})

	return s
}
