package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/pechorka/pace-reader/pkg/fileloader"
)

type urlGetterFunc func(fileID string) (string, error)

func (f urlGetterFunc) GetFileDirectURL(fileID string) (string, error) {
	return f(fileID)
}

func TestTelegramFiles_Download(t *testing.T) {
	so := require.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("book " + r.URL.Path))
	}))
	t.Cleanup(srv.Close)

	files := NewTelegramFiles(urlGetterFunc(func(fileID string) (string, error) {
		if fileID == "" {
			return "", errors.New("Bad Request: invalid file_id")
		}
		return srv.URL + "/" + fileID, nil
	}), fileloader.NewLoader(fileloader.Config{MaxFileSize: 100}))

	data, err := files.Download(context.Background(), "abc")
	so.NoError(err)
	so.Equal("book /abc", string(data))
	so.Equal(int64(100), files.MaxFileSize())

	_, err = files.Download(context.Background(), "")
	so.ErrorContains(err, "failed to get file url")
}
