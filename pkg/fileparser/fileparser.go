package fileparser

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/pechorka/pace-reader/pkg/fileparser/epub"
	"github.com/pechorka/pace-reader/pkg/fileparser/fb2"
	"github.com/pechorka/pace-reader/pkg/fileparser/plaintext"
)

var (
	ErrUnsupported = errors.New("unsupported file format")
	ErrNotUTF8     = plaintext.ErrNotUTF8

	ErrNoContainerFile = epub.ErrNoContainer
)

type parseFunc func(data []byte) (string, error)

var parsers = map[string]parseFunc{
	".txt":  plaintext.PlainText,
	".fb2":  fb2.PlainText,
	".epub": epub.PlainText,
}

// Extensions lists the supported file extensions, sorted.
func Extensions() []string {
	exts := maps.Keys(parsers)
	slices.Sort(exts)
	return exts
}

func Supported(ext string) bool {
	_, ok := parsers[strings.ToLower(ext)]
	return ok
}

// Parse extracts plain text from data, picking the format by the extension of name.
func Parse(name string, data []byte) (string, error) {
	parse, ok := parsers[strings.ToLower(filepath.Ext(name))]
	if !ok {
		return "", errors.Wrap(ErrUnsupported, name)
	}
	return parse(data)
}
