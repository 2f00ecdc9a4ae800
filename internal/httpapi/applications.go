package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/lakshyads/cv-mailer/internal/domain"
	"github.com/lakshyads/cv-mailer/internal/events"
	"github.com/lakshyads/cv-mailer/internal/store"
	"github.com/lakshyads/cv-mailer/internal/tracker"
)

type ApplicationsHandler struct {
	DB      *store.DB
	Tracker *tracker.Tracker
	Hub     *events.Hub
}

func (h ApplicationsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	apps, total, err := h.DB.ListApplications(r.Context(), store.ListApplicationsOpts{
		Status: r.URL.Query().Get("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"applications": apps, "total": total})
}

func (h ApplicationsHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		WriteError(w, r, http.StatusBadRequest, "missing_query", "q parameter is required")
		return
	}
	limit, offset := pageParams(r)
	apps, total, err := h.DB.SearchApplications(r.Context(), q, limit, offset)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"applications": apps, "total": total})
}

// GetByPath serves /applications/{id} and /applications/{id}/emails.
func (h ApplicationsHandler) GetByPath(w http.ResponseWriter, r *http.Request) {
	id, rest, ok := splitIDPath(r.URL.Path, "/applications/")
	if !ok {
		WriteError(w, r, http.StatusBadRequest, "invalid_id", "invalid application id")
		return
	}

	switch rest {
	case "":
		app, err := h.DB.GetApplication(r.Context(), id)
		if err != nil {
			writeLookupError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, app)
	case "emails":
		if _, err := h.DB.GetApplication(r.Context(), id); err != nil {
			writeLookupError(w, r, err)
			return
		}
		emails, err := h.DB.EmailsForApplication(r.Context(), id)
		if err != nil {
			WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"emails": emails})
	default:
		WriteError(w, r, http.StatusNotFound, "not_found", "unknown resource")
	}
}

// UpdateStatus serves PUT /applications/{id}/status.
func (h ApplicationsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, rest, ok := splitIDPath(r.URL.Path, "/applications/")
	if !ok || rest != "status" {
		WriteError(w, r, http.StatusNotFound, "not_found", "unknown resource")
		return
	}

	var body struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_body", "invalid json body")
		return
	}
	status, err := domain.ParseJobStatus(body.Status)
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_status", err.Error())
		return
	}

	if err := h.Tracker.UpdateStatus(r.Context(), id, status, body.Notes); err != nil {
		writeLookupError(w, r, err)
		return
	}

	reqID := RequestIDFrom(r.Context())
	h.Hub.Publish(events.Make(reqID, events.TypeApplicationUpdated, map[string]any{
		"id": id, "status": string(status),
	}))

	app, err := h.DB.GetApplication(r.Context(), id)
	if err != nil {
		writeLookupError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, app)
}

func writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if store.IsNotFound(err) {
		WriteError(w, r, http.StatusNotFound, "not_found", "application not found")
		return
	}
	WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
}

// splitIDPath parses "<prefix>{id}" and "<prefix>{id}/<rest>".
func splitIDPath(path, prefix string) (id int64, rest string, ok bool) {
	s := strings.TrimPrefix(path, prefix)
	if i := strings.IndexByte(s, '/'); i >= 0 {
		rest = s[i+1:]
		s = s[:i]
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, rest, true
}
