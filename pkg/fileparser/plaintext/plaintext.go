package plaintext

import (
	"unicode/utf8"

	"github.com/pkg/errors"
)

var ErrNotUTF8 = errors.New("text is not valid utf8")

func PlainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", ErrNotUTF8
	}
	return string(data), nil
}
