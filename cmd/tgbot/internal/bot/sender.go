package bot

import (
	"context"
	"html"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/pechorka/pace-reader/pkg/i18n"
	"github.com/pechorka/pace-reader/pkg/retry"
	"github.com/pechorka/pace-reader/pkg/textspliter"
)

// maxMessageLen is the Telegram limit for a text message, in characters.
const maxMessageLen = 4096

// telegramAPI is the part of tgbotapi.BotAPI used to talk to chats.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type SenderConfig struct {
	API     telegramAPI
	I18n    *i18n.Localies
	Logger  *slog.Logger
	Retrier *retry.Retrier
}

// Sender delivers book chunks to chats. It remembers the language of every
// chat that talked to the bot, so notices sent from delivery tasks are
// localized too.
type Sender struct {
	api     telegramAPI
	i18n    *i18n.Localies
	log     *slog.Logger
	retrier *retry.Retrier

	mu    *sync.RWMutex
	langs map[int64]string
}

func NewSender(cfg SenderConfig) (*Sender, error) {
	if cfg.API == nil {
		return nil, errors.New("api is nil")
	}
	if cfg.I18n == nil {
		return nil, errors.New("i18n is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Retrier == nil {
		cfg.Retrier = retry.New(retry.Config{})
	}
	return &Sender{
		api:     cfg.API,
		i18n:    cfg.I18n,
		log:     cfg.Logger.With("component", "sender"),
		retrier: cfg.Retrier,
		mu:      &sync.RWMutex{},
		langs:   make(map[int64]string),
	}, nil
}

// NewRetrier retries network failures, telegram flood control and server errors.
func NewRetrier(maxElapsed time.Duration) *retry.Retrier {
	return retry.New(retry.Config{
		MaxElapsed: maxElapsed,
		Retryable:  isRetryable,
		RetryAfter: retryAfter,
	})
}

// SendChunk sends text as plain text, split into several messages when it is
// too long for one.
func (s *Sender) SendChunk(ctx context.Context, chatID int64, text string) error {
	for _, part := range textspliter.SplitMessage(text, maxMessageLen) {
		msg := tgbotapi.NewMessage(chatID, part)
		if err := s.send(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sender) NotifyFinished(ctx context.Context, chatID int64, book string) error {
	lang := s.Language(chatID)
	text, err := s.i18n.GetWithArgs(lang, bookFinishedMsgId, map[string]string{
		"book": html.EscapeString(book),
	})
	if err != nil {
		return errors.Wrap(err, "failed to get finished notice")
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if button, err := s.i18n.Get(lang, rereadButtonMsgId); err == nil {
		msg.ReplyMarkup = buildReplyMarkup(tgbotapi.NewInlineKeyboardButtonData(button, rereadCallback))
	}
	return s.send(ctx, msg)
}

func (s *Sender) SetLanguage(chatID int64, lang string) {
	s.mu.Lock()
	s.langs[chatID] = lang
	s.mu.Unlock()
}

func (s *Sender) Language(chatID int64) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if lang, ok := s.langs[chatID]; ok {
		return lang
	}
	return i18n.DefaultLang
}

func (s *Sender) send(ctx context.Context, msg tgbotapi.Chattable) error {
	attempt := 0
	err := s.retrier.Do(ctx, func() error {
		attempt++
		_, err := s.api.Send(msg)
		if err != nil {
			s.log.Warn("message delivery attempt failed", "attempt", attempt, "err", err)
		}
		return err
	})
	return errors.Wrap(err, "failed to send message")
}

func isRetryable(err error) bool {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return tgErr.Code == 429 || tgErr.Code >= 500
	}
	return retry.ShouldRetry(err)
}

func retryAfter(err error) (time.Duration, bool) {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && tgErr.RetryAfter > 0 {
		return time.Duration(tgErr.RetryAfter) * time.Second, true
	}
	return 0, false
}
