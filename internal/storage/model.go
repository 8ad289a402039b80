package storage

import "time"

// ReadingState is the bookmark of a single reader.
type ReadingState struct {
	Book      string    `json:"book"`
	Position  int       `json:"position"`
	Rate      int       `json:"rate"`
	Interval  int       `json:"interval"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Valid reports whether the state can be served by the scheduler.
func (s ReadingState) Valid() bool {
	return s.Book != "" && s.Position >= 0 && s.Rate > 0 && s.Interval >= 0
}
