package i18n

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/valyala/fasttemplate"
)

var ErrNotFound = errors.New("not found")

const DefaultLang = "en"

type translation struct {
	template *fasttemplate.Template
	text     string
}

func (t *translation) UnmarshalJSON(data []byte) error {
	var text string
	err := json.Unmarshal(data, &text)
	if err != nil {
		return err
	}
	t.text = text
	t.template, err = fasttemplate.NewTemplate(text, "{{", "}}")
	return err
}

// Localies holds translations keyed by language and message id. Unknown
// languages fall back to DefaultLang.
type Localies struct {
	mu  *sync.RWMutex
	cms map[string]map[string]*translation // map[language_code]map[message_id]message
}

func New() *Localies {
	return &Localies{
		mu: &sync.RWMutex{},
	}
}

// Load replaces the translations with the content of the json file at path.
func (l *Localies) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return l.Parse(data)
}

func (l *Localies) Parse(data []byte) error {
	var translations map[string]map[string]*translation
	if err := json.Unmarshal(data, &translations); err != nil {
		return errors.Wrap(err, "failed to decode translations")
	}
	if _, ok := translations[DefaultLang]; !ok {
		return errors.Errorf("translations for %q are missing", DefaultLang)
	}
	l.mu.Lock()
	l.cms = translations
	l.mu.Unlock()
	return nil
}

func (l *Localies) Get(lang, id string) (string, error) {
	translation, ok := l.get(lang, id)
	if !ok {
		return "", ErrNotFound
	}
	return translation.text, nil
}

func (l *Localies) GetWithArgs(lang, id string, args map[string]string) (string, error) {
	translation, ok := l.get(lang, id)
	if !ok {
		return "", ErrNotFound
	}
	return translation.template.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		value, ok := args[tag]
		if !ok {
			return 0, fmt.Errorf("missing argument %s", tag)
		}
		return w.Write([]byte(value))
	})
}

func (l *Localies) get(lang, id string) (*translation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if langMap, ok := l.cms[lang]; ok {
		if translation, ok := langMap[id]; ok {
			return translation, true
		}
	}
	translation, ok := l.cms[DefaultLang][id]
	return translation, ok
}
