package fb2

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/pechorka/pace-reader/pkg/fileparser/plaintext"
)

// elements that end a line of text
var lineElements = map[string]bool{
	"p":        true,
	"v":        true,
	"title":    true,
	"subtitle": true,
}

// PlainText returns the text of the book bodies. Only utf8 encoded books are
// supported.
func PlainText(data []byte) (string, error) {
	var charset string
	d := xml.NewDecoder(bytes.NewReader(data))
	d.CharsetReader = func(label string, _ io.Reader) (io.Reader, error) {
		charset = label
		return nil, plaintext.ErrNotUTF8
	}

	var (
		b     strings.Builder
		depth int // nesting inside <body>
	)
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			if charset != "" {
				return "", errors.Wrap(plaintext.ErrNotUTF8, charset)
			}
			return "", errors.Wrap(err, "failed to decode fb2")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth > 0 || t.Name.Local == "body" {
				depth++
			}
		case xml.EndElement:
			if depth == 0 {
				continue
			}
			depth--
			if lineElements[t.Name.Local] {
				b.WriteByte('\n')
			}
		case xml.CharData:
			if depth > 0 {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
