package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Application error codes, stable for API clients.
const (
	CODE_INTERNAL_ERROR   = 1
	CODE_INVALID_USER_ID  = 2
	CODE_READER_NOT_FOUND = 3
	CODE_BOOK_NOT_FOUND   = 4
)

type Error struct {
	Code int    `json:"code"`
	Text string `json:"text,omitempty"`
}

func ErrorWithCode(w http.ResponseWriter, httpCode, appCode int) {
	JSONWithStatus(w, httpCode, Error{Code: appCode})
}

func ErrorWithText(w http.ResponseWriter, httpCode, appCode int, errText string) {
	JSONWithStatus(w, httpCode, Error{Code: appCode, Text: errText})
}

func JSON(w http.ResponseWriter, v interface{}) {
	JSONWithStatus(w, http.StatusOK, v)
}

func JSONWithStatus(w http.ResponseWriter, httpCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}
