package library_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pechorka/pace-reader/internal/library"
	"github.com/stretchr/testify/require"
)

func TestLibrary_List(t *testing.T) {
	so := require.New(t)
	dir := t.TempDir()
	lib, err := library.New(library.Config{Dir: dir})
	so.NoError(err)

	books, err := lib.List()
	so.NoError(err)
	so.Empty(books)

	writeBook(t, dir, "moby.txt", "Call me Ishmael.")
	writeBook(t, dir, "alice.txt", "Down the rabbit hole")
	writeBook(t, dir, "notes.md", "not a book")
	writeBook(t, dir, "storm.fb2", "<FictionBook/>")
	so.NoError(os.Mkdir(filepath.Join(dir, "dir.txt"), 0o755))

	books, err = lib.List()
	so.NoError(err)
	so.Equal([]string{"alice.txt", "moby.txt", "storm.fb2"}, books)

	txtOnly, err := library.New(library.Config{Dir: dir, Exts: []string{".TXT"}})
	so.NoError(err)
	books, err = txtOnly.List()
	so.NoError(err)
	so.Equal([]string{"alice.txt", "moby.txt"}, books)
	so.False(txtOnly.Exists("storm.fb2"))
	so.Equal([]string{".txt"}, txtOnly.Formats())
	so.Equal([]string{".epub", ".fb2", ".txt"}, lib.Formats())

	_, err = library.New(library.Config{Dir: dir, Exts: []string{".pdf"}})
	so.Error(err)
}

func TestLibrary_FB2(t *testing.T) {
	so := require.New(t)
	dir := t.TempDir()
	lib, err := library.New(library.Config{Dir: dir})
	so.NoError(err)

	writeBook(t, dir, "storm.fb2", `<?xml version="1.0" encoding="utf-8"?>
<FictionBook><body><section><p>dark and</p><p>stormy</p></section></body></FictionBook>`)
	words, err := lib.Words("storm.fb2")
	so.NoError(err)
	so.Equal([]string{"dark", "and", "stormy"}, words)
}

func TestLibrary_MissingDirIsCreated(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "text_files")
	_, err := library.New(library.Config{Dir: dir})
	require.NoError(t, err)
	require.DirExists(t, dir)
}

func TestLibrary_Words(t *testing.T) {
	so := require.New(t)
	dir := t.TempDir()
	lib, err := library.New(library.Config{Dir: dir})
	so.NoError(err)

	writeBook(t, dir, "abc.txt", "a b  c\nd\te f g h\n")
	words, err := lib.Words("abc.txt")
	so.NoError(err)
	so.Equal([]string{"a", "b", "c", "d", "e", "f", "g", "h"}, words)
	so.True(lib.Exists("abc.txt"))

	_, err = lib.Words("missing.txt")
	so.ErrorIs(err, library.ErrNotFound)
	so.False(lib.Exists("missing.txt"))

	for _, name := range []string{"", "../abc.txt", "sub/abc.txt", "..", "abc.md"} {
		_, err = lib.Words(name)
		so.ErrorIs(err, library.ErrNotFound, name)
	}

	writeBook(t, dir, "bin.txt", string([]byte{0xff, 0xfe, 0xfd}))
	_, err = lib.Words("bin.txt")
	so.ErrorIs(err, library.ErrNotUTF8)
}

func TestLibrary_LoadDropsCache(t *testing.T) {
	so := require.New(t)
	dir := t.TempDir()
	lib, err := library.New(library.Config{Dir: dir})
	so.NoError(err)

	path := writeBook(t, dir, "book.txt", "one two")
	words, err := lib.Words("book.txt")
	so.NoError(err)
	so.Len(words, 2)

	writeBook(t, dir, "book.txt", "one two three")
	words, err = lib.Words("book.txt")
	so.NoError(err)
	so.Len(words, 2, "cached until the watcher reports a change")

	so.NoError(lib.Load(path))
	words, err = lib.Words("book.txt")
	so.NoError(err)
	so.Len(words, 3)

	writeBook(t, dir, "book.txt", "one")
	so.NoError(lib.Load(dir))
	words, err = lib.Words("book.txt")
	so.NoError(err)
	so.Len(words, 1)
}

func writeBook(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))
	return path
}

func TestLibrary_Add(t *testing.T) {
	so := require.New(t)
	dir := t.TempDir()
	lib, err := library.New(library.Config{Dir: dir})
	so.NoError(err)

	n, err := lib.Add("new.txt", []byte("one two three"))
	so.NoError(err)
	so.Equal(3, n)
	words, err := lib.Words("new.txt")
	so.NoError(err)
	so.Equal([]string{"one", "two", "three"}, words)
	data, err := os.ReadFile(filepath.Join(dir, "new.txt"))
	so.NoError(err)
	so.Equal("one two three", string(data))

	_, err = lib.Add("new.txt", []byte("four"))
	so.NoError(err)
	words, err = lib.Words("new.txt")
	so.NoError(err)
	so.Equal([]string{"four"}, words)

	books, err := lib.List()
	so.NoError(err)
	so.Equal([]string{"new.txt"}, books)

	tests := []struct {
		name string
		book string
		data []byte
	}{
		{name: "unsupported format", book: "book.pdf", data: []byte("%PDF")},
		{name: "path traversal", book: "../book.txt", data: []byte("text")},
		{name: "not utf8", book: "latin1.txt", data: []byte{0xff, 0xfe, 0xfd}},
		{name: "empty", book: "empty.txt", data: []byte(" \n ")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lib.Add(tt.book, tt.data)
			require.ErrorIs(t, err, library.ErrInvalidBook)
			require.False(t, lib.Exists(tt.book))
		})
	}
}
