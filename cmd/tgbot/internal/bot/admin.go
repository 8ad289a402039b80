package bot

import (
	"context"
	"html"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/pechorka/pace-reader/pkg/fileloader"
)

const downloadTimeout = time.Minute

// inspect shows the reading progress of another user.
func (b *Bot) inspect(o origin, args string) {
	userID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		b.reply(o, errorInvalidUserIDMsgId, nil)
		return
	}
	p, err := b.service.Progress(userID)
	if err != nil {
		b.replyError(o, err)
		return
	}
	msgArgs := b.progressArgs(o, p)
	msgArgs["user_id"] = strconv.FormatInt(userID, 10)
	b.reply(o, adminStatusMsgId, msgArgs)
}

// addBook saves a document sent by an admin into the library.
func (b *Bot) addBook(o origin, doc *tgbotapi.Document) {
	if !b.isAdmin(o.user.ID) {
		b.reply(o, errorNotAdminMsgId, nil)
		return
	}
	if int64(doc.FileSize) > b.files.MaxFileSize() {
		b.replyError(o, fileloader.ErrTooBig)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), downloadTimeout)
	defer cancel()
	data, err := b.files.Download(ctx, doc.FileID)
	if err != nil {
		b.replyError(o, err)
		return
	}
	words, err := b.service.AddBook(doc.FileName, data)
	if err != nil {
		b.replyError(o, err)
		return
	}
	b.log.Info("book uploaded", "user_id", o.user.ID, "book", doc.FileName, "words", words)
	b.reply(o, onBookAddedMsgId, map[string]string{
		"book":  html.EscapeString(doc.FileName),
		"words": strconv.Itoa(words),
	})
}
