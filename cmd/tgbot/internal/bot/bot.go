package bot

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/pechorka/pace-reader/internal/scheduler"
	"github.com/pechorka/pace-reader/internal/service"
	"github.com/pechorka/pace-reader/pkg/filechecksum"
	"github.com/pechorka/pace-reader/pkg/fileloader"
	"github.com/pechorka/pace-reader/pkg/i18n"
	"github.com/pechorka/pace-reader/pkg/sizeconverter"
)

const (
	bookSelect     = "book:"
	readCallback   = "read"
	stopCallback   = "stop"
	rereadCallback = "reread"
)

// bookKeyLen is the number of checksum bytes identifying a book in callback
// data, telegram allows at most 64 bytes there.
const bookKeyLen = 8

var commands = []tgbotapi.BotCommand{
	{Command: "list", Description: "choose a book"},
	{Command: "read", Description: "start or resume reading"},
	{Command: "stop", Description: "pause reading"},
	{Command: "reread", Description: "start the book over"},
	{Command: "setrate", Description: "words per message"},
	{Command: "setinterval", Description: "seconds between messages"},
	{Command: "status", Description: "reading progress"},
	{Command: "help", Description: "list commands"},
}

type Bot struct {
	service    *service.Service
	bot        *tgbotapi.BotAPI
	api        telegramAPI
	sender     *Sender
	files      FileDownloader
	i18n       *i18n.Localies
	log        *slog.Logger
	adminUsers map[int64]struct{}
}

type Config struct {
	API        *tgbotapi.BotAPI
	Sender     *Sender
	Service    *service.Service
	Files      FileDownloader
	I18n       *i18n.Localies
	Logger     *slog.Logger
	AdminUsers []int64
}

func NewBot(cfg Config) (*Bot, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	adminUsers := make(map[int64]struct{}, len(cfg.AdminUsers))
	for _, id := range cfg.AdminUsers {
		adminUsers[id] = struct{}{}
	}
	return &Bot{
		service:    cfg.Service,
		bot:        cfg.API,
		api:        cfg.API,
		sender:     cfg.Sender,
		files:      cfg.Files,
		i18n:       cfg.I18n,
		log:        cfg.Logger.With("component", "bot"),
		adminUsers: adminUsers,
	}, nil
}

func validateConfig(cfg Config) error {
	if cfg.API == nil {
		return fmt.Errorf("api is nil")
	}
	if cfg.Sender == nil {
		return fmt.Errorf("sender is nil")
	}
	if cfg.Service == nil {
		return fmt.Errorf("service is nil")
	}
	if cfg.Files == nil {
		return fmt.Errorf("files is nil")
	}
	if cfg.I18n == nil {
		return fmt.Errorf("i18n is nil")
	}
	return nil
}

// Run handles updates until Stop is called.
func (b *Bot) Run() {
	b.log.Info("bot started", "account", b.bot.Self.UserName)
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		b.log.Warn("failed to register commands", "err", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.bot.GetUpdatesChan(u)

	for update := range updates {
		if msg := update.Message; msg != nil {
			b.handleMsg(msg)
		}

		if cb := update.CallbackQuery; cb != nil {
			b.handleCallback(cb)
		}
	}
}

func (b *Bot) Stop() {
	b.bot.StopReceivingUpdates()
}

// origin is where a request came from and where the reply goes.
type origin struct {
	user   *tgbotapi.User
	chatID int64
}

func (b *Bot) handlePanic(o origin) {
	if rec := recover(); rec != nil {
		b.reply(o, panicMsgId, nil)
		b.log.Error("panic in handler", "user_id", o.user.ID, "panic", rec, "stack", string(debug.Stack()))
		b.reportError(fmt.Sprintf("panic while serving user %d: %v", o.user.ID, rec))
	}
}

func (b *Bot) handleMsg(msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	o := origin{user: msg.From, chatID: msg.Chat.ID}
	defer b.handlePanic(o)
	b.sender.SetLanguage(o.chatID, getLanguageCode(o.user))

	if msg.Document != nil {
		b.addBook(o, msg.Document)
		return
	}

	switch cmd := msg.Command(); cmd {
	case "start":
		b.start(o)
	case "help":
		b.reply(o, helpMsgId, nil)
	case "list":
		b.list(o)
	case "setrate":
		b.setRate(o, msg.CommandArguments())
	case "setinterval":
		b.setInterval(o, msg.CommandArguments())
	case "read":
		b.read(o)
	case "stop":
		b.stop(o)
	case "reread":
		b.reread(o)
	case "status":
		b.status(o)
	case "":
		b.reply(o, helpMsgId, nil)
	default:
		if b.handleAdminMsg(o, msg) {
			return
		}
		b.log.Debug("unknown command", "command", cmd)
		b.reply(o, errorUnknownCommandMsgId, nil)
	}
}

func (b *Bot) isAdmin(userID int64) bool {
	_, ok := b.adminUsers[userID]
	return ok
}

func (b *Bot) handleAdminMsg(o origin, msg *tgbotapi.Message) bool {
	if !b.isAdmin(o.user.ID) {
		return false
	}
	switch msg.Command() {
	case "inspect":
		b.inspect(o, msg.CommandArguments())
	default:
		return false
	}
	return true
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	if cb.From == nil {
		return
	}
	o := origin{user: cb.From, chatID: cb.From.ID}
	if cb.Message != nil && cb.Message.Chat != nil {
		o.chatID = cb.Message.Chat.ID
	}
	defer b.handlePanic(o)
	b.sender.SetLanguage(o.chatID, getLanguageCode(o.user))

	switch {
	case strings.HasPrefix(cb.Data, bookSelect):
		b.selectBook(o, strings.TrimPrefix(cb.Data, bookSelect))
	case cb.Data == readCallback:
		b.read(o)
	case cb.Data == stopCallback:
		b.stop(o)
	case cb.Data == rereadCallback:
		b.reread(o)
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn("failed to respond to callback query", "err", err)
	}
}

func (b *Bot) start(o origin) {
	rate, interval := b.service.Defaults()
	b.reply(o, startMsgId, map[string]string{
		"rate":     strconv.Itoa(rate),
		"interval": strconv.Itoa(interval),
	})
	b.list(o)
}

func (b *Bot) list(o origin) {
	books, err := b.service.ListBooks(o.user.ID)
	if err != nil {
		b.replyError(o, err)
		return
	}
	if len(books) == 0 {
		b.reply(o, warningNoBooksMsgId, nil)
		return
	}
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(books))
	for _, book := range books {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(bookButtonText(book), bookSelect+bookKey(book.Name)))
	}
	b.reply(o, onListMsgId, nil, buttons...)
}

func (b *Bot) selectBook(o origin, key string) {
	name, err := b.resolveBook(o.user.ID, key)
	if err != nil {
		b.replyError(o, err)
		return
	}
	st, err := b.service.SelectBook(o.user.ID, name)
	if err != nil {
		b.replyError(o, err)
		return
	}
	b.reply(o, onBookSelectMsgId, map[string]string{
		"book":     html.EscapeString(st.Book),
		"rate":     strconv.Itoa(st.Rate),
		"interval": strconv.Itoa(st.Interval),
	}, b.button(o, readButtonMsgId, readCallback))
}

func (b *Bot) resolveBook(userID int64, key string) (string, error) {
	books, err := b.service.ListBooks(userID)
	if err != nil {
		return "", err
	}
	for _, book := range books {
		if bookKey(book.Name) == key {
			return book.Name, nil
		}
	}
	return "", service.ErrBookNotFound
}

func (b *Bot) setRate(o origin, args string) {
	rate, err := b.service.SetRate(o.user.ID, args)
	if err != nil {
		b.replyError(o, err)
		return
	}
	b.reply(o, rateSetMsgId, map[string]string{"rate": strconv.Itoa(rate)})
}

func (b *Bot) setInterval(o origin, args string) {
	interval, err := b.service.SetInterval(o.user.ID, args)
	if err != nil {
		b.replyError(o, err)
		return
	}
	b.reply(o, intervalSetMsgId, map[string]string{"interval": strconv.Itoa(interval)})
}

func (b *Bot) read(o origin) {
	st, err := b.service.StartReading(context.Background(), o.user.ID, o.chatID)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrBookFinished):
		b.reply(o, errorBookFinishedMsgId, nil, b.button(o, rereadButtonMsgId, rereadCallback))
		return
	default:
		b.replyError(o, err)
		return
	}
	b.reply(o, onReadStartMsgId, map[string]string{
		"book":    html.EscapeString(st.Book),
		"percent": strconv.Itoa(b.percent(o.user.ID)),
	}, b.button(o, stopButtonMsgId, stopCallback))
}

func (b *Bot) stop(o origin) {
	if _, err := b.service.StopReading(o.user.ID); err != nil {
		b.replyError(o, err)
		return
	}
	b.reply(o, onStopMsgId, map[string]string{
		"percent": strconv.Itoa(b.percent(o.user.ID)),
	}, b.button(o, readButtonMsgId, readCallback))
}

func (b *Bot) reread(o origin) {
	st, err := b.service.Reread(o.user.ID)
	if err != nil {
		b.replyError(o, err)
		return
	}
	b.reply(o, onRereadMsgId, map[string]string{
		"book": html.EscapeString(st.Book),
	}, b.button(o, readButtonMsgId, readCallback))
}

func (b *Bot) status(o origin) {
	p, err := b.service.Progress(o.user.ID)
	if err != nil {
		b.replyError(o, err)
		return
	}
	btn := b.button(o, readButtonMsgId, readCallback)
	if p.Delivery == scheduler.StateRunning {
		btn = b.button(o, stopButtonMsgId, stopCallback)
	}
	b.reply(o, statusMsgId, b.progressArgs(o, p), btn)
}

func (b *Bot) progressArgs(o origin, p service.Progress) map[string]string {
	return map[string]string{
		"book":     html.EscapeString(p.State.Book),
		"percent":  strconv.Itoa(p.CompletionPercent),
		"position": strconv.Itoa(p.State.Position),
		"total":    strconv.Itoa(p.TotalWords),
		"rate":     strconv.Itoa(p.State.Rate),
		"interval": strconv.Itoa(p.State.Interval),
		"delivery": b.getText(o.user, deliveryMsgIdPrefix+p.Delivery.String()),
	}
}

func (b *Bot) percent(userID int64) int {
	p, err := b.service.Progress(userID)
	if err != nil {
		return 0
	}
	return p.CompletionPercent
}

func bookButtonText(book service.Book) string {
	if !book.Selected {
		return book.Name
	}
	return completionPercentString(book.CompletionPercent) + " " + book.Name
}

func completionPercentString(percent int) string {
	switch percent {
	case 0:
		return "🆕"
	case 100:
		return "✅"
	default:
		return fmt.Sprintf("(%d%%)", percent)
	}
}

func bookKey(name string) string {
	return filechecksum.Short([]byte(name), bookKeyLen)
}

// errorMsgId maps a service error to the notice shown to the user. ok is false
// for unexpected errors.
func errorMsgId(err error) (id string, ok bool) {
	switch {
	case errors.Is(err, service.ErrBookNotSelected):
		return errorBookNotSelectedMsgId, true
	case errors.Is(err, service.ErrBookNotFound):
		return errorBookNotFoundMsgId, true
	case errors.Is(err, service.ErrBookFinished):
		return errorBookFinishedMsgId, true
	case errors.Is(err, service.ErrAlreadyReading):
		return errorAlreadyReadingMsgId, true
	case errors.Is(err, service.ErrNothingToStop):
		return errorNothingToStopMsgId, true
	case errors.Is(err, service.ErrInvalidRate):
		return errorInvalidRateMsgId, true
	case errors.Is(err, service.ErrInvalidInterval):
		return errorInvalidIntervalMsgId, true
	case errors.Is(err, service.ErrInvalidBook):
		return errorInvalidBookMsgId, true
	case errors.Is(err, fileloader.ErrTooBig):
		return errorBookTooBigMsgId, true
	default:
		return errorInternalMsgId, false
	}
}

func (b *Bot) replyError(o origin, err error) {
	id, ok := errorMsgId(err)
	if !ok {
		b.log.Error("request failed", "user_id", o.user.ID, "err", err)
	}
	var args map[string]string
	maxRate, maxInterval := b.service.Limits()
	switch id {
	case errorInvalidRateMsgId:
		args = map[string]string{"max": strconv.Itoa(maxRate)}
	case errorInvalidIntervalMsgId:
		args = map[string]string{"max": strconv.Itoa(maxInterval)}
	case errorInvalidBookMsgId:
		args = map[string]string{"formats": strings.Join(b.service.BookFormats(), ", ")}
	case errorBookTooBigMsgId:
		args = map[string]string{"max": sizeconverter.HumanReadable(b.files.MaxFileSize())}
	}
	b.reply(o, id, args)
}

func (b *Bot) reply(o origin, id string, args map[string]string, buttons ...tgbotapi.InlineKeyboardButton) {
	msg := tgbotapi.NewMessage(o.chatID, b.getTextWithArgs(o.user, id, args))
	msg.ParseMode = tgbotapi.ModeHTML
	if len(buttons) > 0 {
		msg.ReplyMarkup = buildReplyMarkup(buttons...)
	}
	b.send(msg)
}

func (b *Bot) button(o origin, id, data string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(b.getText(o.user, id), data)
}

func (b *Bot) getText(from *tgbotapi.User, textID string) string {
	return b.getTextWithArgs(from, textID, nil)
}

func (b *Bot) getTextWithArgs(from *tgbotapi.User, textID string, args map[string]string) string {
	langCode := getLanguageCode(from)
	var (
		text string
		err  error
	)
	if len(args) == 0 {
		text, err = b.i18n.Get(langCode, textID)
	} else {
		text, err = b.i18n.GetWithArgs(langCode, textID, args)
	}
	if err != nil {
		b.log.Error("failed to get i18n text", "id", textID, "locale", langCode, "err", err)
		text = "Something went wrong"
	}
	return text
}

func buildReplyMarkup(buttons ...tgbotapi.InlineKeyboardButton) tgbotapi.InlineKeyboardMarkup {
	rowButtons := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, btn := range buttons {
		rowButtons = append(rowButtons, tgbotapi.NewInlineKeyboardRow(btn))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		rowButtons...,
	)
}

func (b *Bot) send(msg tgbotapi.Chattable) {
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("error while sending message", "err", err)
	}
}

// reportError notifies admins.
func (b *Bot) reportError(errText string) {
	for id := range b.adminUsers {
		b.send(tgbotapi.NewMessage(id, errText))
	}
}

const (
	langCodeEn = "en"
	langCodeRu = "ru"
)

func getLanguageCode(user *tgbotapi.User) string {
	lang := langCodeEn
	if user.LanguageCode == langCodeRu {
		lang = langCodeRu
	}
	return lang
}
