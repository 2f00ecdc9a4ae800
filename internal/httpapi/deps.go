// Package httpapi is the local read-mostly reporting surface: application
// and email listings, stats, a status-update endpoint and an SSE stream.
package httpapi

import (
	"net/http"

	"github.com/lakshyads/cv-mailer/internal/events"
	"github.com/lakshyads/cv-mailer/internal/store"
	"github.com/lakshyads/cv-mailer/internal/tracker"
)

type Deps struct {
	DB      *store.DB
	Tracker *tracker.Tracker
	Hub     *events.Hub
}

// NewMux returns the raw mux so main() can wrap it in middleware and attach
// anything extra before serving.
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	ah := ApplicationsHandler{DB: d.DB, Tracker: d.Tracker, Hub: d.Hub}
	mux.HandleFunc("/applications", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ah.List,
	}))
	mux.HandleFunc("/applications/search", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ah.Search,
	}))
	mux.HandleFunc("/applications/", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ah.GetByPath,    // /applications/{id} and /applications/{id}/emails
		http.MethodPut: ah.UpdateStatus, // /applications/{id}/status
	}))

	eh := EmailsHandler{DB: d.DB}
	mux.HandleFunc("/emails", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.List,
	}))

	rh := RecruitersHandler{DB: d.DB}
	mux.HandleFunc("/recruiters", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: rh.List,
	}))
	mux.HandleFunc("/recruiters/", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: rh.GetByPath,
	}))

	sh := StatsHandler{DB: d.DB}
	mux.HandleFunc("/stats", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: sh.Stats,
	}))
	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: sh.Health,
	}))

	evh := EventsHandler{Hub: d.Hub}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: evh.ServeSSE,
	}))

	return mux
}
