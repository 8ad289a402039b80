package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"

	"github.com/pechorka/pace-reader/internal/handler/internal/respond"
	"github.com/pechorka/pace-reader/internal/handler/mw/reqlog"
	"github.com/pechorka/pace-reader/internal/service"
)

type Service interface {
	Progress(userID int64) (service.Progress, error)
}

type Library interface {
	List() ([]string, error)
}

type Handlers struct {
	svc     Service
	library Library
	log     *slog.Logger
}

func NewHandlers(svc Service, library Library, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{svc: svc, library: library, log: log.With("component", "http")}
}

// Router serves the handlers behind the chi middleware stack.
func (h *Handlers) Router() http.Handler {
	mx := chi.NewRouter()
	mx.Use(middleware.RequestID)
	mx.Use(middleware.Recoverer)
	mx.Use(reqlog.Middleware(h.log))
	h.Register(mx)
	return mx
}

func (h *Handlers) Register(mx chi.Router) {
	mx.Get("/health", h.Health)
	mx.Get("/books", h.ListBooks)
	mx.Get("/readers/{userID}", h.GetReader)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, map[string]string{"status": "ok"})
}

type ListBooksResponse struct {
	Books []string `json:"books"`
}

func (h *Handlers) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.library.List()
	if err != nil {
		h.log.Error("failed to list books", "err", err)
		respond.ErrorWithCode(w, http.StatusInternalServerError, respond.CODE_INTERNAL_ERROR)
		return
	}
	if books == nil {
		books = []string{}
	}
	respond.JSON(w, ListBooksResponse{Books: books})
}

type GetReaderResponse struct {
	UserID            int64      `json:"userId"`
	Book              string     `json:"book"`
	Position          int        `json:"position"`
	Rate              int        `json:"rate"`
	Interval          int        `json:"interval"`
	TotalWords        int        `json:"totalWords"`
	CompletionPercent int        `json:"completionPercent"`
	Delivery          string     `json:"delivery"`
	Running           bool       `json:"running"`
	UpdatedAt         *time.Time `json:"updatedAt,omitempty"`
}

func (h *Handlers) GetReader(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		respond.ErrorWithCode(w, http.StatusBadRequest, respond.CODE_INVALID_USER_ID)
		return
	}
	p, err := h.svc.Progress(userID)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrBookNotSelected):
		respond.ErrorWithCode(w, http.StatusNotFound, respond.CODE_READER_NOT_FOUND)
		return
	case errors.Is(err, service.ErrBookNotFound):
		respond.ErrorWithText(w, http.StatusNotFound, respond.CODE_BOOK_NOT_FOUND, "book "+p.State.Book+" is missing from the library")
		return
	default:
		h.log.Error("failed to get progress", "user_id", userID, "err", err)
		respond.ErrorWithCode(w, http.StatusInternalServerError, respond.CODE_INTERNAL_ERROR)
		return
	}
	resp := GetReaderResponse{
		UserID:            userID,
		Book:              p.State.Book,
		Position:          p.State.Position,
		Rate:              p.State.Rate,
		Interval:          p.State.Interval,
		TotalWords:        p.TotalWords,
		CompletionPercent: p.CompletionPercent,
		Delivery:          p.Delivery.String(),
		Running:           !p.Delivery.Terminal(),
	}
	if !p.State.UpdatedAt.IsZero() {
		resp.UpdatedAt = &p.State.UpdatedAt
	}
	respond.JSON(w, resp)
}
