package httpapi

import (
	"net/http"

	"github.com/lakshyads/cv-mailer/internal/store"
)

type RecruitersHandler struct {
	DB *store.DB
}

func (h RecruitersHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	recruiters, total, err := h.DB.ListRecruiters(r.Context(), limit, offset)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"recruiters": recruiters, "total": total})
}

// GetByPath serves /recruiters/{id}, including the applications the
// recruiter is linked to.
func (h RecruitersHandler) GetByPath(w http.ResponseWriter, r *http.Request) {
	id, rest, ok := splitIDPath(r.URL.Path, "/recruiters/")
	if !ok || rest != "" {
		WriteError(w, r, http.StatusBadRequest, "invalid_id", "invalid recruiter id")
		return
	}

	rec, err := h.DB.GetRecruiter(r.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			WriteError(w, r, http.StatusNotFound, "not_found", "recruiter not found")
			return
		}
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	apps, err := h.DB.ApplicationsForRecruiter(r.Context(), id)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"recruiter": rec, "applications": apps})
}
