package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

const (
	containerPath = "META-INF/container.xml"
	xhtmlType     = "application/xhtml+xml"
)

var (
	ErrNoContainer = errors.New("no container.xml found")
	ErrNoContent   = errors.New("no content file found")
)

// PlainText returns the text of the book documents in reading order.
func PlainText(data []byte) (string, error) {
	files, err := parseAllFiles(data)
	if err != nil {
		return "", errors.Wrap(err, "failed to open epub")
	}
	container, err := parseContainer(files)
	if err != nil {
		return "", err
	}
	contentPath, ok := container.ContentFilePath()
	if !ok {
		return "", ErrNoContent
	}
	var content opf
	err = files.decodeFile(contentPath, func(r io.Reader) error {
		return xml.NewDecoder(r).Decode(&content)
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to decode content file")
	}
	// manifest hrefs are relative to the content file
	return plainText(files, path.Dir(contentPath), content)
}

func parseAllFiles(data []byte) (allFiles, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	files := make(allFiles, len(r.File))
	for _, f := range r.File {
		files[f.Name] = f
	}
	return files, nil
}

func parseContainer(files allFiles) (c container, err error) {
	if _, ok := files[containerPath]; !ok {
		return c, ErrNoContainer
	}
	err = files.decodeFile(containerPath, func(r io.Reader) error {
		return xml.NewDecoder(r).Decode(&c)
	})
	return c, errors.Wrap(err, "failed to decode container")
}

func plainText(files allFiles, baseDir string, o opf) (string, error) {
	docs := make(map[string]string, len(o.Manifest)) // id -> path inside the archive
	for _, m := range o.Manifest {
		if m.MediaType == xhtmlType {
			docs[m.Id] = path.Join(baseDir, m.Href)
		}
	}

	var b strings.Builder
	for _, ref := range o.Spine.ItemRefs {
		docPath, ok := docs[ref.Idref]
		if !ok {
			continue
		}
		err := files.decodeFile(docPath, func(r io.Reader) error {
			doc, err := goquery.NewDocumentFromReader(r)
			if err != nil {
				return err
			}
			writeBlocks(&b, doc.Find("body"))
			return nil
		})
		if err != nil {
			return "", errors.Wrapf(err, "failed to read %s", docPath)
		}
	}
	return b.String(), nil
}

const blockSelector = "p, h1, h2, h3, h4, h5, h6, li, blockquote"

// writeBlocks writes every outermost block element on its own line.
func writeBlocks(b *strings.Builder, body *goquery.Selection) {
	blocks := body.Find(blockSelector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsFiltered(blockSelector).Length() == 0
	})
	if blocks.Length() == 0 {
		b.WriteString(body.Text())
		b.WriteByte('\n')
		return
	}
	blocks.Each(func(_ int, s *goquery.Selection) {
		b.WriteString(s.Text())
		b.WriteByte('\n')
	})
}

type allFiles map[string]*zip.File

func (a allFiles) decodeFile(name string, decoder func(r io.Reader) error) error {
	f, ok := a[name]
	if !ok {
		return errors.Errorf("file %s not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return decoder(rc)
}
