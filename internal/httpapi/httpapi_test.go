package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakshyads/cv-mailer/internal/domain"
	"github.com/lakshyads/cv-mailer/internal/events"
	"github.com/lakshyads/cv-mailer/internal/recruiter"
	"github.com/lakshyads/cv-mailer/internal/store"
	"github.com/lakshyads/cv-mailer/internal/tracker"
)

func testAPI(t *testing.T) (http.Handler, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(db.Pool))

	tr := tracker.New(db, tracker.Options{FollowUpInterval: 7 * 24 * time.Hour, MaxFollowUps: 3})
	mux := NewMux(Deps{DB: db, Tracker: tr, Hub: events.NewHub()})
	return Chain(mux, RequestID, Recover), db
}

func seedApp(t *testing.T, db *store.DB, rowID, company string) domain.JobApplication {
	t.Helper()
	app, err := db.UpsertApplication(context.Background(), store.ApplicationUpsert{
		SpreadsheetRowID: rowID,
		SheetName:        "Sheet1",
		CompanyName:      company,
		Position:         "Engineer",
	}, []recruiter.Contact{{Name: "Alice", Email: "alice@x.com"}})
	require.NoError(t, err)
	return app
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func TestListApplications(t *testing.T) {
	h, db := testAPI(t)
	seedApp(t, db, "Sheet1_2", "Acme")
	seedApp(t, db, "Sheet1_3", "Globex")

	w, out := doJSON(t, h, http.MethodGet, "/applications", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), out["total"])
	assert.Len(t, out["applications"], 2)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	app := seedApp(t, db, "Sheet1_4", "Initech")
	require.NoError(t, db.UpdateApplicationStatus(context.Background(), app.ID, domain.StatusApplied, ""))
	w, out = doJSON(t, h, http.MethodGet, "/applications?status=applied", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), out["total"])
}

func TestGetApplicationByID(t *testing.T) {
	h, db := testAPI(t)
	seedApp(t, db, "Sheet1_2", "Acme")

	w, out := doJSON(t, h, http.MethodGet, "/applications/1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Acme", out["company_name"])
	assert.Len(t, out["recruiters"], 1)

	w, _ = doJSON(t, h, http.MethodGet, "/applications/999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = doJSON(t, h, http.MethodGet, "/applications/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApplicationEmails(t *testing.T) {
	h, db := testAPI(t)
	app := seedApp(t, db, "Sheet1_2", "Acme")
	now := time.Now().UTC()
	_, err := db.InsertEmailRecord(context.Background(), store.EmailInsert{
		JobApplicationID: app.ID, EmailType: domain.EmailFirstContact,
		RecipientEmail: "alice@x.com", Status: domain.EmailSent,
		ProviderMessageID: "mid", SentAt: &now,
	})
	require.NoError(t, err)

	w, out := doJSON(t, h, http.MethodGet, "/applications/1/emails", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, out["emails"], 1)
}

func TestUpdateApplicationStatus(t *testing.T) {
	h, db := testAPI(t)
	seedApp(t, db, "Sheet1_2", "Acme")

	w, out := doJSON(t, h, http.MethodPut, "/applications/1/status",
		`{"status":"applied","notes":"done"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "applied", out["status"])

	w, _ = doJSON(t, h, http.MethodPut, "/applications/1/status", `{"status":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, h, http.MethodPut, "/applications/999/status", `{"status":"applied"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchApplications(t *testing.T) {
	h, db := testAPI(t)
	seedApp(t, db, "Sheet1_2", "Acme")
	seedApp(t, db, "Sheet1_3", "Globex")

	w, out := doJSON(t, h, http.MethodGet, "/applications/search?q=glo", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), out["total"])

	w, _ = doJSON(t, h, http.MethodGet, "/applications/search", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecruiterEndpoints(t *testing.T) {
	h, db := testAPI(t)
	seedApp(t, db, "Sheet1_2", "Acme")

	w, out := doJSON(t, h, http.MethodGet, "/recruiters", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), out["total"])

	w, out = doJSON(t, h, http.MethodGet, "/recruiters/1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	rec := out["recruiter"].(map[string]any)
	assert.Equal(t, "alice@x.com", rec["email"])
	assert.Len(t, out["applications"], 1)

	w, _ = doJSON(t, h, http.MethodGet, "/recruiters/999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatsAndHealth(t *testing.T) {
	h, db := testAPI(t)
	seedApp(t, db, "Sheet1_2", "Acme")

	w, out := doJSON(t, h, http.MethodGet, "/stats", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), out["total_applications"])

	w, out = doJSON(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["ok"])
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := testAPI(t)
	w, _ := doJSON(t, h, http.MethodDelete, "/applications", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
