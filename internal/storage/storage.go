package storage

import (
	"strconv"

	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("not found")
	ErrCorrupt  = errors.New("storage is corrupt")
)

// UpdateFunc mutates state in place. Returning an error aborts the write.
type UpdateFunc func(state *ReadingState) error

// CorruptError points at the record that failed to decode.
type CorruptError struct {
	Key string
	Err error
}

func (e *CorruptError) Error() string {
	if e.Key == "" {
		return "storage is corrupt: " + e.Err.Error()
	}
	return "storage is corrupt at key " + e.Key + ": " + e.Err.Error()
}

func (e *CorruptError) Is(target error) bool {
	return target == ErrCorrupt
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// Validate checks every state of a freshly loaded mapping.
func Validate(states map[int64]ReadingState) error {
	for userID, st := range states {
		if !st.Valid() {
			return &CorruptError{
				Key: strconv.FormatInt(userID, 10),
				Err: errors.Errorf("invalid state %+v", st),
			}
		}
	}
	return nil
}
