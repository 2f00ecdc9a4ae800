package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakshyads/cv-mailer/internal/domain"
	"github.com/lakshyads/cv-mailer/internal/events"
	"github.com/lakshyads/cv-mailer/internal/mail"
	"github.com/lakshyads/cv-mailer/internal/sheets"
	"github.com/lakshyads/cv-mailer/internal/store"
	"github.com/lakshyads/cv-mailer/internal/tracker"
)

type fakeSource struct {
	rows   []sheets.Row
	marked []string
}

func (s *fakeSource) Rows(ctx context.Context) ([]sheets.Row, error) { return s.rows, nil }

func (s *fakeSource) MarkReachedOut(ctx context.Context, row sheets.Row) error {
	s.marked = append(s.marked, row.ID())
	return nil
}

type fakeSender struct {
	sent    []string // recipient emails in send order
	failFor map[string]error
	n       int
}

func (s *fakeSender) Send(ctx context.Context, toEmail, toName, subject, htmlBody string) (string, error) {
	if err, ok := s.failFor[toEmail]; ok {
		return "", err
	}
	s.n++
	s.sent = append(s.sent, toEmail)
	return "msg@test", nil
}

func testRunner(t *testing.T, rows ...sheets.Row) (*Runner, *fakeSource, *fakeSender, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(db.Pool))

	src := &fakeSource{rows: rows}
	snd := &fakeSender{}
	tr := tracker.New(db, tracker.Options{
		FollowUpInterval: 7 * 24 * time.Hour,
		MaxFollowUps:     3,
	})
	r := &Runner{
		Source:     src,
		Tracker:    tr,
		Sender:     snd,
		Hub:        events.NewHub(),
		SenderName: "Test Sender",
	}
	return r, src, snd, db
}

func row(sheet string, num int, company, recruiters string) sheets.Row {
	return sheets.Row{
		SheetName:     sheet,
		RowNumber:     num,
		Company:       company,
		Position:      "Engineer",
		RecruiterCell: recruiters,
	}
}

func TestProcessNewSendsAndMarksSheet(t *testing.T) {
	r, src, snd, db := testRunner(t,
		row("Sheet1", 2, "Acme", "Alice - alice@x.com, Bob - bob@x.com"),
	)
	ctx := context.Background()

	sum, err := r.ProcessNew(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Sent)
	assert.Equal(t, 0, sum.Skipped)
	assert.Equal(t, []string{"alice@x.com", "bob@x.com"}, snd.sent)
	assert.Equal(t, []string{"Sheet1_2"}, src.marked)

	apps, err := db.ApplicationsByStatus(ctx, domain.StatusReachedOut)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "Acme", apps[0].CompanyName)
}

func TestProcessNewSkipsIncompleteAndProcessedRows(t *testing.T) {
	r, src, snd, _ := testRunner(t,
		row("Sheet1", 2, "", "alice@x.com"),     // no company
		row("Sheet1", 3, "Acme", ""),            // no recruiters
		row("Sheet1", 4, "Acme", "Just A Name"), // recruiters unparseable
		sheets.Row{ // already handled upstream
			SheetName: "Sheet1", RowNumber: 5,
			Company: "Acme", Position: "Engineer",
			RecruiterCell: "alice@x.com", Status: "Reached Out",
		},
	)

	sum, err := r.ProcessNew(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Sent)
	assert.Equal(t, 4, sum.Skipped)
	assert.Empty(t, snd.sent)
	assert.Empty(t, src.marked)
}

func TestProcessNewIsIdempotentAcrossRuns(t *testing.T) {
	r, src, snd, _ := testRunner(t,
		row("Sheet1", 2, "Acme", "alice@x.com"),
	)
	ctx := context.Background()

	_, err := r.ProcessNew(ctx, false)
	require.NoError(t, err)
	require.Len(t, snd.sent, 1)

	// Sheet status write failed upstream, say; a re-run must not resend.
	src.marked = nil
	sum, err := r.ProcessNew(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Sent)
	assert.Len(t, snd.sent, 1)
	assert.Empty(t, src.marked)
}

func TestProcessNewDryRunSendsNothing(t *testing.T) {
	r, src, snd, db := testRunner(t,
		row("Sheet1", 2, "Acme", "alice@x.com"),
	)
	ctx := context.Background()

	sum, err := r.ProcessNew(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Sent)
	assert.Empty(t, snd.sent)
	assert.Empty(t, src.marked)

	// The application row is still created so the operator can inspect it.
	apps, err := db.ApplicationsByStatus(ctx, domain.StatusDraft)
	require.NoError(t, err)
	assert.Len(t, apps, 1)
}

func TestProcessNewRecordsFailuresAndContinues(t *testing.T) {
	r, _, snd, db := testRunner(t,
		row("Sheet1", 2, "Acme", "alice@x.com, bob@x.com"),
	)
	snd.failFor = map[string]error{"alice@x.com": errors.New("smtp 550")}
	ctx := context.Background()

	sum, err := r.ProcessNew(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Sent)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, []string{"bob@x.com"}, snd.sent)

	apps, err := db.ApplicationsByStatus(ctx, domain.StatusReachedOut)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	emails, err := db.EmailsForApplication(ctx, apps[0].ID)
	require.NoError(t, err)
	require.Len(t, emails, 2)
}

func TestProcessNewStopsAtDailyLimit(t *testing.T) {
	r, _, snd, _ := testRunner(t,
		row("Sheet1", 2, "Acme", "alice@x.com"),
		row("Sheet1", 3, "Globex", "bob@x.com"),
	)
	snd.failFor = map[string]error{"bob@x.com": mail.ErrDailyLimit}

	sum, err := r.ProcessNew(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Sent)
	assert.Equal(t, []string{"alice@x.com"}, snd.sent)
}

func TestSendFollowUpsSharesWaveNumber(t *testing.T) {
	r, _, snd, db := testRunner(t,
		row("Sheet1", 2, "Acme", "alice@x.com, bob@x.com"),
	)
	ctx := context.Background()

	_, err := r.ProcessNew(ctx, false)
	require.NoError(t, err)
	snd.sent = nil

	// Age the first-contact sends past the interval.
	backdate(t, db, 8*24*time.Hour)

	n, err := r.SendFollowUps(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"alice@x.com", "bob@x.com"}, snd.sent)

	apps, err := db.ApplicationsByStatus(ctx, domain.StatusReachedOut)
	require.NoError(t, err)
	require.Len(t, apps, 1)

	// Both recipients got wave 1; the next wave is 2, not 3.
	high, err := db.MaxSentFollowUpNumber(ctx, apps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, high)
}

func TestSendFollowUpsResumesPartialWave(t *testing.T) {
	r, _, snd, db := testRunner(t,
		row("Sheet1", 2, "Acme", "alice@x.com, bob@x.com"),
	)
	ctx := context.Background()

	_, err := r.ProcessNew(ctx, false)
	require.NoError(t, err)
	backdate(t, db, 8*24*time.Hour)

	// First follow-up pass dies after alice.
	snd.sent = nil
	snd.failFor = map[string]error{"bob@x.com": errors.New("smtp timeout")}
	_, err = r.SendFollowUps(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@x.com"}, snd.sent)

	// Retry completes the wave for bob only, same number.
	snd.sent = nil
	snd.failFor = nil
	n, err := r.SendFollowUps(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"bob@x.com"}, snd.sent)

	apps, err := db.ApplicationsByStatus(ctx, domain.StatusReachedOut)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	high, err := db.MaxSentFollowUpNumber(ctx, apps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, high)
}

func TestSendFollowUpsDryRun(t *testing.T) {
	r, _, snd, db := testRunner(t,
		row("Sheet1", 2, "Acme", "alice@x.com"),
	)
	ctx := context.Background()

	_, err := r.ProcessNew(ctx, false)
	require.NoError(t, err)
	backdate(t, db, 8*24*time.Hour)

	snd.sent = nil
	n, err := r.SendFollowUps(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, snd.sent)
}

// backdate shifts every sent_at so interval checks see old sends.
func backdate(t *testing.T, db *store.DB, by time.Duration) {
	t.Helper()
	old := time.Now().UTC().Add(-by).Format(time.RFC3339)
	_, err := db.Pool.Exec(`UPDATE email_records SET sent_at = ? WHERE sent_at IS NOT NULL;`, old)
	require.NoError(t, err)
}
