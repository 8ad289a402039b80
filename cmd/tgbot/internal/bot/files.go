package bot

import (
	"context"

	"github.com/pkg/errors"

	"github.com/pechorka/pace-reader/pkg/fileloader"
)

// FileDownloader fetches documents users send to the bot.
type FileDownloader interface {
	Download(ctx context.Context, fileID string) ([]byte, error)
	MaxFileSize() int64
}

type FileURLGetter interface {
	GetFileDirectURL(fileID string) (string, error)
}

// TelegramFiles downloads documents from the telegram file storage.
type TelegramFiles struct {
	api    FileURLGetter
	loader *fileloader.Loader
}

func NewTelegramFiles(api FileURLGetter, loader *fileloader.Loader) *TelegramFiles {
	return &TelegramFiles{api: api, loader: loader}
}

func (f *TelegramFiles) MaxFileSize() int64 {
	return f.loader.MaxFileSize()
}

func (f *TelegramFiles) Download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := f.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get file url")
	}
	return f.loader.DownloadFile(ctx, url)
}
