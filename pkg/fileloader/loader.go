package fileloader

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/pechorka/pace-reader/pkg/sizeconverter"
)

const (
	defaultMaxFileSize   = 20 * 1024 * 1024 // 20 MB
	defaultClientTimeout = 30 * time.Second
)

var ErrTooBig = errors.New("file is too big")

type Loader struct {
	maxFileSize int64 // in bytes
	maxSizeErr  error

	httpCli *http.Client
}

type Config struct {
	MaxFileSize int64
	HttpTimeout time.Duration
}

func NewLoader(cfg Config) *Loader {
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if cfg.HttpTimeout == 0 {
		cfg.HttpTimeout = defaultClientTimeout
	}
	return &Loader{
		maxFileSize: cfg.MaxFileSize,
		maxSizeErr:  errors.Wrap(ErrTooBig, "max size is "+sizeconverter.HumanReadable(cfg.MaxFileSize)),
		httpCli: &http.Client{
			Timeout: cfg.HttpTimeout,
		},
	}
}

// MaxFileSize is the download limit in bytes.
func (l *Loader) MaxFileSize() int64 {
	return l.maxFileSize
}

// DownloadFile downloads the file at URL. Files above the size limit fail
// with ErrTooBig, whether or not the server reports the length upfront.
func (l *Loader) DownloadFile(ctx context.Context, URL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, URL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	resp, err := l.httpCli.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to download file")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("failed to download file: unexpected status %d", resp.StatusCode)
	}
	if ctLen := resp.ContentLength; ctLen != -1 && ctLen > l.maxFileSize {
		return nil, l.maxSizeErr
	}
	limitedReader := http.MaxBytesReader(nil, resp.Body, l.maxFileSize)
	content, err := io.ReadAll(limitedReader)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, l.maxSizeErr
		}
		return nil, errors.Wrap(err, "failed to read file")
	}

	return content, nil
}
