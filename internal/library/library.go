package library

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/pechorka/pace-reader/pkg/fileparser"
	"github.com/pechorka/pace-reader/pkg/sizeconverter"
	"github.com/pechorka/pace-reader/pkg/textspliter"
)

var (
	ErrNotFound    = errors.New("book not found")
	ErrInvalidBook = errors.New("invalid book")
	ErrNotUTF8     = fileparser.ErrNotUTF8
)

// Library serves the books of a single directory.
type Library struct {
	dir  string
	exts map[string]struct{}
	log  *slog.Logger

	mu    *sync.RWMutex
	words map[string][]string // book name -> words
}

type Config struct {
	Dir string
	// Exts limits the served formats, all supported formats when empty.
	Exts   []string
	Logger *slog.Logger
}

func New(cfg Config) (*Library, error) {
	if cfg.Dir == "" {
		return nil, errors.New("books dir is empty")
	}
	if len(cfg.Exts) == 0 {
		cfg.Exts = fileparser.Extensions()
	}
	exts := make(map[string]struct{}, len(cfg.Exts))
	for _, ext := range cfg.Exts {
		ext = strings.ToLower(ext)
		if !fileparser.Supported(ext) {
			return nil, errors.Wrap(fileparser.ErrUnsupported, ext)
		}
		exts[ext] = struct{}{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create books dir %s", cfg.Dir)
	}
	return &Library{
		dir:   cfg.Dir,
		exts:  exts,
		log:   cfg.Logger.With("component", "library"),
		mu:    &sync.RWMutex{},
		words: make(map[string][]string),
	}, nil
}

// Formats returns the served extensions, sorted.
func (l *Library) Formats() []string {
	formats := make([]string, 0, len(l.exts))
	for ext := range l.exts {
		formats = append(formats, ext)
	}
	slices.Sort(formats)
	return formats
}

// Dir is the watched directory.
func (l *Library) Dir() string {
	return l.dir
}

// List returns the sorted book names. An empty directory is not an error.
func (l *Library) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read books dir")
	}
	books := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !l.served(e.Name()) {
			continue
		}
		books = append(books, e.Name())
	}
	slices.Sort(books)
	return books, nil
}

// Words returns the word sequence of the book. The returned slice is shared
// and must not be modified.
func (l *Library) Words(name string) ([]string, error) {
	if !l.validName(name) {
		return nil, ErrNotFound
	}
	l.mu.RLock()
	words, ok := l.words[name]
	l.mu.RUnlock()
	if ok {
		return words, nil
	}

	data, err := os.ReadFile(filepath.Join(l.dir, name))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read book %s", name)
	}
	text, err := fileparser.Parse(name, data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse book %s", name)
	}
	words = textspliter.SplitWords(text)
	l.log.Info("book loaded", "book", name, "size", sizeconverter.HumanReadable(len(data)), "words", len(words))

	l.mu.Lock()
	l.words[name] = words
	l.mu.Unlock()
	return words, nil
}

// Add parses data as a book and saves it under name, replacing a book with
// the same name, and returns its word count. Books that can not be served
// fail with ErrInvalidBook.
func (l *Library) Add(name string, data []byte) (int, error) {
	if !l.validName(name) {
		return 0, errors.Wrapf(ErrInvalidBook, "unsupported name %q", name)
	}
	text, err := fileparser.Parse(name, data)
	if err != nil {
		return 0, errors.Wrap(ErrInvalidBook, err.Error())
	}
	words := textspliter.SplitWords(text)
	if len(words) == 0 {
		return 0, errors.Wrap(ErrInvalidBook, "book is empty")
	}

	tmp, err := os.CreateTemp(l.dir, ".upload-*")
	if err != nil {
		return 0, errors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return 0, errors.Wrap(err, "failed to write book")
	}
	if err := tmp.Close(); err != nil {
		return 0, errors.Wrap(err, "failed to close book")
	}
	if err := os.Rename(tmp.Name(), filepath.Join(l.dir, name)); err != nil {
		return 0, errors.Wrapf(err, "failed to save book %s", name)
	}

	l.mu.Lock()
	l.words[name] = words
	l.mu.Unlock()
	l.log.Info("book added", "book", name, "size", sizeconverter.HumanReadable(len(data)), "words", len(words))
	return len(words), nil
}

// Exists reports whether the book can be loaded.
func (l *Library) Exists(name string) bool {
	if !l.validName(name) {
		return false
	}
	info, err := os.Stat(filepath.Join(l.dir, name))
	return err == nil && info.Mode().IsRegular()
}

// Load drops cached words for path. It is called by the watcher on every
// change inside the books directory, and with the directory itself on start.
func (l *Library) Load(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if filepath.Clean(path) == filepath.Clean(l.dir) {
		l.words = make(map[string][]string)
		return nil
	}
	name := filepath.Base(path)
	if _, ok := l.words[name]; ok {
		delete(l.words, name)
		l.log.Debug("book changed, cache dropped", "book", name)
	}
	return nil
}

func (l *Library) validName(name string) bool {
	return name != "" &&
		name == filepath.Base(name) &&
		name != "." && name != ".." &&
		l.served(name)
}

func (l *Library) served(name string) bool {
	_, ok := l.exts[strings.ToLower(filepath.Ext(name))]
	return ok
}
