package httpapi

import (
	"net/http"

	"github.com/lakshyads/cv-mailer/internal/store"
)

type EmailsHandler struct {
	DB *store.DB
}

func (h EmailsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	emails, total, err := h.DB.ListEmails(r.Context(), r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"emails": emails, "total": total})
}
