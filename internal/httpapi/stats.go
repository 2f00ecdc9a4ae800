package httpapi

import (
	"net/http"

	"github.com/lakshyads/cv-mailer/internal/store"
)

type StatsHandler struct {
	DB *store.DB
}

func (h StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.DB.Stats(r.Context())
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

func (h StatsHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.Pool.PingContext(r.Context()); err != nil {
		WriteError(w, r, http.StatusServiceUnavailable, "db_unavailable", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}
