package store_http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"musicstore/internal/domain"
)

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}

// writeError maps service errors to responses. Only business sentinels
// reach the body verbatim.
func writeError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if businessErr := domain.AsBusinessError(err); businessErr != nil {
		writeMessage(w, http.StatusBadRequest, businessErr.Error())
		return
	}
	switch {
	case errors.Is(err, domain.ErrItemNotFound), errors.Is(err, domain.ErrItemNotPurchasable):
		writeMessage(w, http.StatusNotFound, "not found")
	default:
		logger.Error("Внутренняя ошибка при обработке запроса", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// queryPage reads page and page_size; malformed values fall back to defaults.
func queryPage(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	return domain.NormalizePage(page, pageSize)
}
