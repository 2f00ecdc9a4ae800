package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakshyads/cv-mailer/internal/domain"
	"github.com/lakshyads/cv-mailer/internal/recruiter"
	"github.com/lakshyads/cv-mailer/internal/store"
)

const week = 7 * 24 * time.Hour

func testTracker(t *testing.T) (*Tracker, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(db.Pool))
	return New(db, Options{FollowUpInterval: week, MaxFollowUps: 3}), db
}

func seedApp(t *testing.T, tr *Tracker, rowID string, contacts ...recruiter.Contact) domain.JobApplication {
	t.Helper()
	app, err := tr.UpsertApplication(context.Background(), store.ApplicationUpsert{
		SpreadsheetRowID: rowID,
		SheetName:        "Sheet1",
		CompanyName:      "Acme",
		Position:         "Engineer",
	}, contacts)
	require.NoError(t, err)
	return app
}

func recordSentAt(t *testing.T, db *store.DB, appID int64, email string, followUp bool, number int, at time.Time) domain.EmailRecord {
	t.Helper()
	typ := domain.EmailFirstContact
	if followUp {
		typ = domain.EmailFollowUp
	}
	rec, err := db.InsertEmailRecord(context.Background(), store.EmailInsert{
		JobApplicationID:  appID,
		EmailType:         typ,
		RecipientEmail:    email,
		Status:            domain.EmailSent,
		ProviderMessageID: "mid",
		IsFollowUp:        followUp,
		FollowUpNumber:    number,
		SentAt:            &at,
	})
	require.NoError(t, err)
	return rec
}

func TestRecordEmailSentMovesDraftToReachedOut(t *testing.T) {
	tr, _ := testTracker(t)
	ctx := context.Background()
	app := seedApp(t, tr, "Sheet1_2")

	rec, err := tr.RecordEmailSent(ctx, SentEmail{
		JobApplicationID:  app.ID,
		EmailType:         domain.EmailFirstContact,
		RecipientEmail:    "alice@x.com",
		ProviderMessageID: "abc@local",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.EmailSent, rec.Status)
	require.NotNil(t, rec.SentAt)

	got, err := tr.Application(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReachedOut, got.Status)
}

func TestRecordEmailSentWithoutMessageIDStaysPending(t *testing.T) {
	tr, _ := testTracker(t)
	ctx := context.Background()
	app := seedApp(t, tr, "Sheet1_2")

	rec, err := tr.RecordEmailSent(ctx, SentEmail{
		JobApplicationID: app.ID,
		EmailType:        domain.EmailFirstContact,
		RecipientEmail:   "alice@x.com",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.EmailPending, rec.Status)
	assert.Nil(t, rec.SentAt)

	got, err := tr.Application(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, got.Status)
}

func TestRecordEmailFailedDefaultsMessage(t *testing.T) {
	tr, _ := testTracker(t)
	app := seedApp(t, tr, "Sheet1_2")

	rec, err := tr.RecordEmailFailed(context.Background(), SentEmail{
		JobApplicationID: app.ID,
		EmailType:        domain.EmailFirstContact,
		RecipientEmail:   "alice@x.com",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, domain.EmailFailed, rec.Status)
	assert.Equal(t, "failed to send email", rec.ErrorMessage)
}

// The wave number must come from the highest sent number, not the row count.
// With two recipients one wave writes two rows; counting rows would jump the
// next wave to 3.
func TestNextFollowUpNumberWithMultipleRecipients(t *testing.T) {
	tr, db := testTracker(t)
	ctx := context.Background()
	app := seedApp(t, tr, "Sheet1_2",
		recruiter.Contact{Email: "alice@x.com"},
		recruiter.Contact{Email: "bob@x.com"},
	)
	now := time.Now().UTC()

	recordSentAt(t, db, app.ID, "alice@x.com", false, 0, now.Add(-3*week))
	recordSentAt(t, db, app.ID, "bob@x.com", false, 0, now.Add(-3*week))
	recordSentAt(t, db, app.ID, "alice@x.com", true, 1, now.Add(-2*week))
	recordSentAt(t, db, app.ID, "bob@x.com", true, 1, now.Add(-2*week))

	n, err := tr.NextFollowUpNumber(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestApplicationsNeedingFollowUpIntervalBoundary(t *testing.T) {
	tr, db := testTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	due := seedApp(t, tr, "Sheet1_2")
	fresh := seedApp(t, tr, "Sheet1_3")
	require.NoError(t, db.MarkReachedOut(ctx, due.ID))
	require.NoError(t, db.MarkReachedOut(ctx, fresh.ID))

	// Exactly one interval ago is eligible; one second short is not.
	recordSentAt(t, db, due.ID, "a@x.com", false, 0, now.Add(-week))
	recordSentAt(t, db, fresh.ID, "b@x.com", false, 0, now.Add(-week).Add(time.Second))

	apps, err := tr.ApplicationsNeedingFollowUp(ctx, now)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, due.ID, apps[0].ID)
}

func TestApplicationsNeedingFollowUpStatusGate(t *testing.T) {
	tr, db := testTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	app := seedApp(t, tr, "Sheet1_2")
	recordSentAt(t, db, app.ID, "a@x.com", false, 0, now.Add(-2*week))

	// Still draft (the send above bypassed the tracker): not eligible.
	apps, err := tr.ApplicationsNeedingFollowUp(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, apps)

	require.NoError(t, db.MarkReachedOut(ctx, app.ID))
	apps, err = tr.ApplicationsNeedingFollowUp(ctx, now)
	require.NoError(t, err)
	assert.Len(t, apps, 1)

	require.NoError(t, db.UpdateApplicationStatus(ctx, app.ID, domain.StatusRejected, ""))
	apps, err = tr.ApplicationsNeedingFollowUp(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, apps)
}

func TestApplicationsNeedingFollowUpMaxWaves(t *testing.T) {
	tr, db := testTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	app := seedApp(t, tr, "Sheet1_2")
	require.NoError(t, db.MarkReachedOut(ctx, app.ID))
	recordSentAt(t, db, app.ID, "a@x.com", false, 0, now.Add(-10*week))
	recordSentAt(t, db, app.ID, "a@x.com", true, 1, now.Add(-6*week))
	recordSentAt(t, db, app.ID, "a@x.com", true, 2, now.Add(-4*week))

	apps, err := tr.ApplicationsNeedingFollowUp(ctx, now)
	require.NoError(t, err)
	assert.Len(t, apps, 1)

	// Wave 3 is the configured max; after it nothing more is due.
	recordSentAt(t, db, app.ID, "a@x.com", true, 3, now.Add(-2*week))
	apps, err = tr.ApplicationsNeedingFollowUp(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, apps)
}

func TestFollowUpRecipientsPrefersHistory(t *testing.T) {
	tr, db := testTracker(t)
	ctx := context.Background()
	app := seedApp(t, tr, "Sheet1_2",
		recruiter.Contact{Email: "alice@x.com"},
		recruiter.Contact{Email: "bob@x.com"},
	)

	// No sends yet: fall back to linked recruiters.
	rs, err := tr.FollowUpRecipients(ctx, app.ID)
	require.NoError(t, err)
	assert.Len(t, rs, 2)

	recordSentAt(t, db, app.ID, "alice@x.com", false, 0, time.Now().UTC())
	rs, err = tr.FollowUpRecipients(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "alice@x.com", rs[0].Email)
}

func TestRecordResponseTransitions(t *testing.T) {
	tr, _ := testTracker(t)
	ctx := context.Background()

	app := seedApp(t, tr, "Sheet1_2")
	_, err := tr.RecordResponse(ctx, app.ID, 0, domain.ResponseInterviewRequest, "let's talk")
	require.NoError(t, err)
	got, err := tr.Application(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInterviewScheduled, got.Status)

	app2 := seedApp(t, tr, "Sheet1_3")
	_, err = tr.RecordResponse(ctx, app2.ID, 0, domain.ResponseNegative, "no thanks")
	require.NoError(t, err)
	got, err = tr.Application(ctx, app2.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, got.Status)

	app3 := seedApp(t, tr, "Sheet1_4")
	_, err = tr.RecordResponse(ctx, app3.ID, 0, domain.ResponseNeutral, "received")
	require.NoError(t, err)
	got, err = tr.Application(ctx, app3.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, got.Status)
}

func TestRepairRenumbersSparseWaves(t *testing.T) {
	tr, db := testTracker(t)
	ctx := context.Background()
	app := seedApp(t, tr, "Sheet1_2")
	now := time.Now().UTC()

	// Legacy row-count numbering left waves 2 and 5.
	recordSentAt(t, db, app.ID, "a@x.com", true, 2, now.Add(-4*week))
	recordSentAt(t, db, app.ID, "b@x.com", true, 2, now.Add(-4*week))
	recordSentAt(t, db, app.ID, "a@x.com", true, 5, now.Add(-2*week))

	st, err := tr.RepairFollowUpNumbers(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ApplicationsScanned)
	assert.Equal(t, 1, st.ApplicationsChanged)
	assert.Equal(t, 3, st.RowsUpdated)

	recs, err := db.SentFollowUps(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, 1, recs[0].FollowUpNumber)
	assert.Equal(t, 1, recs[1].FollowUpNumber)
	assert.Equal(t, 2, recs[2].FollowUpNumber)
}

func TestRepairDryRunWritesNothing(t *testing.T) {
	tr, db := testTracker(t)
	ctx := context.Background()
	app := seedApp(t, tr, "Sheet1_2")
	now := time.Now().UTC()

	recordSentAt(t, db, app.ID, "a@x.com", true, 3, now.Add(-week))

	st, err := tr.RepairFollowUpNumbers(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ApplicationsChanged)
	assert.Equal(t, 1, st.RowsUpdated)

	recs, err := db.SentFollowUps(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 3, recs[0].FollowUpNumber)
}

func TestRepairLeavesDenseNumberingAlone(t *testing.T) {
	tr, db := testTracker(t)
	ctx := context.Background()
	app := seedApp(t, tr, "Sheet1_2")
	now := time.Now().UTC()

	recordSentAt(t, db, app.ID, "a@x.com", true, 1, now.Add(-2*week))
	recordSentAt(t, db, app.ID, "a@x.com", true, 2, now.Add(-week))

	st, err := tr.RepairFollowUpNumbers(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ApplicationsScanned)
	assert.Equal(t, 0, st.ApplicationsChanged)
	assert.Equal(t, 0, st.RowsUpdated)
}
