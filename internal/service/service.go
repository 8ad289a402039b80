package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pechorka/pace-reader/internal/library"
	"github.com/pechorka/pace-reader/internal/scheduler"
	"github.com/pechorka/pace-reader/internal/storage"
	"github.com/pkg/errors"
)

var (
	ErrBookNotSelected = errors.New("book is not selected")
	ErrBookNotFound    = errors.New("book not found")
	ErrBookFinished    = errors.New("book is finished")
	ErrAlreadyReading  = errors.New("already reading")
	ErrNothingToStop   = errors.New("nothing to stop")
	ErrInvalidRate     = errors.New("invalid rate")
	ErrInvalidInterval = errors.New("invalid interval")
	ErrInvalidBook     = library.ErrInvalidBook
)

const (
	DefaultRate        = 20 // words per chunk
	DefaultInterval    = 10 // seconds between chunks
	DefaultMaxRate     = 1000
	DefaultMaxInterval = 24 * 60 * 60
)

type Store interface {
	Get(userID int64) (storage.ReadingState, error)
	Set(userID int64, state storage.ReadingState) error
	Update(userID int64, updFunc storage.UpdateFunc) (storage.ReadingState, error)
}

type Library interface {
	List() ([]string, error)
	Words(name string) ([]string, error)
	Exists(name string) bool
	Add(name string, data []byte) (int, error)
	Formats() []string
}

type Scheduler interface {
	Start(job scheduler.Job) error
	Stop(userID int64) (bool, error)
	Cancel(userID int64) bool
	IsRunning(userID int64) bool
	Status(userID int64) (scheduler.Status, bool)
}

type Config struct {
	Store           Store
	Library         Library
	Scheduler       Scheduler
	Logger          *slog.Logger
	DefaultRate     int
	DefaultInterval int
	MaxRate         int
	MaxInterval     int
}

type Service struct {
	store     Store
	library   Library
	scheduler Scheduler
	log       *slog.Logger

	defaultRate     int
	defaultInterval int
	maxRate         int
	maxInterval     int
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is nil")
	}
	if cfg.Library == nil {
		return nil, errors.New("library is nil")
	}
	if cfg.Scheduler == nil {
		return nil, errors.New("scheduler is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DefaultRate <= 0 {
		cfg.DefaultRate = DefaultRate
	}
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = DefaultInterval
	}
	if cfg.MaxRate <= 0 {
		cfg.MaxRate = DefaultMaxRate
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultMaxInterval
	}
	return &Service{
		store:           cfg.Store,
		library:         cfg.Library,
		scheduler:       cfg.Scheduler,
		log:             cfg.Logger.With("component", "service"),
		defaultRate:     cfg.DefaultRate,
		defaultInterval: cfg.DefaultInterval,
		maxRate:         cfg.MaxRate,
		maxInterval:     cfg.MaxInterval,
	}, nil
}

func (s *Service) Defaults() (rate, interval int) {
	return s.defaultRate, s.defaultInterval
}

func (s *Service) Limits() (maxRate, maxInterval int) {
	return s.maxRate, s.maxInterval
}

// BookFormats lists the extensions of the books the library accepts.
func (s *Service) BookFormats() []string {
	return s.library.Formats()
}

// AddBook saves an uploaded book into the library and returns its word count.
func (s *Service) AddBook(name string, data []byte) (int, error) {
	return s.library.Add(name, data)
}

type Book struct {
	Name              string
	Selected          bool
	CompletionPercent int
}

// ListBooks returns the library, marking the book the user is reading.
func (s *Service) ListBooks(userID int64) ([]Book, error) {
	names, err := s.library.List()
	if err != nil {
		return nil, err
	}
	st, err := s.getState(userID)
	if err != nil && err != ErrBookNotSelected {
		return nil, err
	}
	books := make([]Book, 0, len(names))
	for _, name := range names {
		b := Book{Name: name}
		if st.Book == name {
			b.Selected = true
			if words, err := s.library.Words(name); err == nil {
				b.CompletionPercent = completionPercent(st.Position, len(words))
			}
		}
		books = append(books, b)
	}
	return books, nil
}

// SelectBook starts the book over with default pacing. A running delivery of
// the previous selection is cancelled.
func (s *Service) SelectBook(userID int64, book string) (storage.ReadingState, error) {
	if !s.library.Exists(book) {
		return storage.ReadingState{}, ErrBookNotFound
	}
	if s.scheduler.Cancel(userID) {
		s.log.Info("delivery cancelled by book selection", "user_id", userID)
	}
	st := storage.ReadingState{
		Book:     book,
		Position: 0,
		Rate:     s.defaultRate,
		Interval: s.defaultInterval,
	}
	if err := s.store.Set(userID, st); err != nil {
		return storage.ReadingState{}, errors.Wrap(err, "failed to save selected book")
	}
	return st, nil
}

// SetRate stores words per chunk. A running delivery keeps its rate until restarted.
func (s *Service) SetRate(userID int64, raw string) (int, error) {
	if _, err := s.getState(userID); err != nil {
		return 0, err
	}
	rate, ok := parsePositive(raw, s.maxRate)
	if !ok {
		return 0, ErrInvalidRate
	}
	_, err := s.store.Update(userID, func(st *storage.ReadingState) error {
		st.Rate = rate
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to save rate")
	}
	return rate, nil
}

// SetInterval stores seconds between chunks. A running delivery keeps its
// interval until restarted.
func (s *Service) SetInterval(userID int64, raw string) (int, error) {
	if _, err := s.getState(userID); err != nil {
		return 0, err
	}
	interval, ok := parsePositive(raw, s.maxInterval)
	if !ok {
		return 0, ErrInvalidInterval
	}
	_, err := s.store.Update(userID, func(st *storage.ReadingState) error {
		st.Interval = interval
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to save interval")
	}
	return interval, nil
}

// StartReading spawns the delivery of the selected book from the bookmark.
// Chunks go to chatID.
func (s *Service) StartReading(ctx context.Context, userID, chatID int64) (storage.ReadingState, error) {
	st, err := s.getState(userID)
	if err != nil {
		return storage.ReadingState{}, err
	}
	if s.scheduler.IsRunning(userID) {
		return storage.ReadingState{}, ErrAlreadyReading
	}
	words, err := s.library.Words(st.Book)
	switch {
	case err == nil:
	case errors.Is(err, library.ErrNotFound):
		return storage.ReadingState{}, ErrBookNotFound
	default:
		return storage.ReadingState{}, err
	}
	if st.Position >= len(words) {
		return st, ErrBookFinished
	}
	err = s.scheduler.Start(scheduler.Job{
		UserID:   userID,
		ChatID:   chatID,
		Book:     st.Book,
		Words:    words,
		Position: st.Position,
		Rate:     st.Rate,
		Interval: st.Interval,
	})
	switch {
	case err == nil:
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		return storage.ReadingState{}, ErrAlreadyReading
	case errors.Is(err, scheduler.ErrFinished):
		return st, ErrBookFinished
	default:
		return storage.ReadingState{}, errors.Wrap(err, "failed to start delivery")
	}
	return st, nil
}

// StopReading stops the delivery and rewinds the bookmark a little.
func (s *Service) StopReading(userID int64) (storage.ReadingState, error) {
	if _, err := s.getState(userID); err != nil {
		if err == ErrBookNotSelected {
			return storage.ReadingState{}, ErrNothingToStop
		}
		return storage.ReadingState{}, err
	}
	found, err := s.scheduler.Stop(userID)
	if err != nil {
		return storage.ReadingState{}, errors.Wrap(err, "failed to stop delivery")
	}
	if !found {
		return storage.ReadingState{}, ErrNothingToStop
	}
	return s.store.Get(userID)
}

// Reread moves the bookmark to the beginning. A running delivery is not
// affected and keeps its own cursor.
func (s *Service) Reread(userID int64) (storage.ReadingState, error) {
	if _, err := s.getState(userID); err != nil {
		return storage.ReadingState{}, err
	}
	st, err := s.store.Update(userID, func(st *storage.ReadingState) error {
		st.Position = 0
		return nil
	})
	if err != nil {
		return storage.ReadingState{}, errors.Wrap(err, "failed to reset position")
	}
	return st, nil
}

type Progress struct {
	State             storage.ReadingState
	TotalWords        int
	CompletionPercent int
	Delivery          scheduler.State
}

func (s *Service) Progress(userID int64) (Progress, error) {
	st, err := s.getState(userID)
	if err != nil {
		return Progress{}, err
	}
	p := Progress{State: st, Delivery: scheduler.StateIdle}
	if status, ok := s.scheduler.Status(userID); ok && status.Book == st.Book {
		p.Delivery = status.State
	}
	words, err := s.library.Words(st.Book)
	switch {
	case err == nil:
		p.TotalWords = len(words)
		p.CompletionPercent = completionPercent(st.Position, len(words))
	case errors.Is(err, library.ErrNotFound):
		return p, ErrBookNotFound
	default:
		return p, err
	}
	return p, nil
}

func (s *Service) getState(userID int64) (storage.ReadingState, error) {
	st, err := s.store.Get(userID)
	switch {
	case err == nil:
		return st, nil
	case errors.Is(err, storage.ErrNotFound):
		return storage.ReadingState{}, ErrBookNotSelected
	default:
		return storage.ReadingState{}, errors.Wrap(err, "failed to get reading state")
	}
}

func parsePositive(raw string, max int) (int, bool) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 1 || n > max {
		return 0, false
	}
	return n, true
}

func completionPercent(position, total int) int {
	if total == 0 || position <= 0 {
		return 0
	}
	if position >= total {
		return 100
	}
	return position * 100 / total
}
