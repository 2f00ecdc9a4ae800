package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lakshyads/cv-mailer/internal/domain"
)

// EmailInsert is one send attempt to one recipient. The store never
// deduplicates; callers check "already sent" before sending.
type EmailInsert struct {
	JobApplicationID  int64
	EmailType         domain.EmailType
	Subject           string
	Body              string
	RecipientEmail    string
	RecipientName     string
	Status            domain.EmailStatus
	ProviderMessageID string
	ErrorMessage      string
	IsFollowUp        bool
	FollowUpNumber    int
	SentAt            *time.Time
}

func (d *DB) InsertEmailRecord(ctx context.Context, in EmailInsert) (domain.EmailRecord, error) {
	now := time.Now().UTC()
	var sentAt sql.NullString
	if in.SentAt != nil {
		sentAt = sql.NullString{String: fmtTime(*in.SentAt), Valid: true}
	}

	res, err := d.Pool.ExecContext(ctx, `
INSERT INTO email_records
  (job_application_id, email_type, subject, body, recipient_email, recipient_name,
   status, provider_message_id, error_message, is_follow_up, follow_up_number,
   created_at, sent_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		in.JobApplicationID, string(in.EmailType), in.Subject, in.Body,
		strings.ToLower(strings.TrimSpace(in.RecipientEmail)), in.RecipientName,
		string(in.Status), in.ProviderMessageID, in.ErrorMessage,
		boolToInt(in.IsFollowUp), in.FollowUpNumber, fmtTime(now), sentAt)
	if err != nil {
		return domain.EmailRecord{}, fmt.Errorf("insert email record: %w", err)
	}

	id, _ := res.LastInsertId()
	rec := domain.EmailRecord{
		ID:                id,
		JobApplicationID:  in.JobApplicationID,
		EmailType:         in.EmailType,
		Subject:           in.Subject,
		Body:              in.Body,
		RecipientEmail:    strings.ToLower(strings.TrimSpace(in.RecipientEmail)),
		RecipientName:     in.RecipientName,
		Status:            in.Status,
		ProviderMessageID: in.ProviderMessageID,
		ErrorMessage:      in.ErrorMessage,
		IsFollowUp:        in.IsFollowUp,
		FollowUpNumber:    in.FollowUpNumber,
		CreatedAt:         now,
		SentAt:            in.SentAt,
	}
	return rec, nil
}

// LastSentEmail returns the most recently sent record for an application,
// any recipient. ErrNotFound when nothing was ever sent.
func (d *DB) LastSentEmail(ctx context.Context, appID int64) (domain.EmailRecord, error) {
	recs, err := d.queryEmails(ctx, `
SELECT id, job_application_id, email_type, subject, body, recipient_email,
       recipient_name, status, provider_message_id, error_message,
       is_follow_up, follow_up_number, created_at, sent_at
FROM email_records
WHERE job_application_id = ? AND status = 'sent'
ORDER BY sent_at DESC, id DESC
LIMIT 1;`, appID)
	if err != nil {
		return domain.EmailRecord{}, err
	}
	if len(recs) == 0 {
		return domain.EmailRecord{}, fmt.Errorf("last sent email for application %d: %w", appID, ErrNotFound)
	}
	return recs[0], nil
}

// MaxSentFollowUpNumber is the highest follow-up wave number already sent for
// an application; 0 when there are none. This, not a row count, drives the
// next-number computation: with several recipients per wave a row count
// overshoots.
func (d *DB) MaxSentFollowUpNumber(ctx context.Context, appID int64) (int, error) {
	var maxN int
	err := d.Pool.QueryRowContext(ctx, `
SELECT COALESCE(MAX(follow_up_number), 0)
FROM email_records
WHERE job_application_id = ? AND is_follow_up = 1 AND status = 'sent';`, appID).Scan(&maxN)
	return maxN, err
}

// HasSentTo reports whether any sent record exists for this recipient.
func (d *DB) HasSentTo(ctx context.Context, appID int64, email string) (bool, error) {
	var one int
	err := d.Pool.QueryRowContext(ctx, `
SELECT 1 FROM email_records
WHERE job_application_id = ? AND recipient_email = ? AND status = 'sent'
LIMIT 1;`, appID, strings.ToLower(strings.TrimSpace(email))).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// HasSentFollowUp reports whether this exact wave number already went to this
// recipient, which keeps re-runs from double-sending.
func (d *DB) HasSentFollowUp(ctx context.Context, appID int64, email string, number int) (bool, error) {
	var one int
	err := d.Pool.QueryRowContext(ctx, `
SELECT 1 FROM email_records
WHERE job_application_id = ? AND recipient_email = ?
  AND is_follow_up = 1 AND follow_up_number = ? AND status = 'sent'
LIMIT 1;`, appID, strings.ToLower(strings.TrimSpace(email)), number).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// FirstContactRecipients returns the distinct recipients who got a successful
// first-contact email, in the order they were first contacted.
func (d *DB) FirstContactRecipients(ctx context.Context, appID int64) ([]domain.Recruiter, error) {
	rows, err := d.Pool.QueryContext(ctx, `
SELECT recipient_email, recipient_name, MIN(id) AS first_id
FROM email_records
WHERE job_application_id = ? AND email_type = 'first_contact' AND status = 'sent'
GROUP BY recipient_email
ORDER BY first_id;`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Recruiter
	for rows.Next() {
		var (
			r       domain.Recruiter
			firstID int64
		)
		if err := rows.Scan(&r.Email, &r.Name, &firstID); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EmailsForApplication returns the full history, newest first.
func (d *DB) EmailsForApplication(ctx context.Context, appID int64) ([]domain.EmailRecord, error) {
	return d.queryEmails(ctx, `
SELECT id, job_application_id, email_type, subject, body, recipient_email,
       recipient_name, status, provider_message_id, error_message,
       is_follow_up, follow_up_number, created_at, sent_at
FROM email_records
WHERE job_application_id = ?
ORDER BY created_at DESC, id DESC;`, appID)
}

// ListEmails pages over all records, optionally filtered by status.
func (d *DB) ListEmails(ctx context.Context, status string, limit, offset int) ([]domain.EmailRecord, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	where := ""
	args := []any{}
	if status != "" {
		where = "WHERE status = ?"
		args = append(args, status)
	}

	var total int
	if err := d.Pool.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM email_records %s;`, where), args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	recs, err := d.queryEmails(ctx, fmt.Sprintf(`
SELECT id, job_application_id, email_type, subject, body, recipient_email,
       recipient_name, status, provider_message_id, error_message,
       is_follow_up, follow_up_number, created_at, sent_at
FROM email_records %s
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;`, where), args...)
	return recs, total, err
}

// SentFollowUps returns every sent follow-up record for an application,
// oldest first, for the renumbering repair.
func (d *DB) SentFollowUps(ctx context.Context, appID int64) ([]domain.EmailRecord, error) {
	return d.queryEmails(ctx, `
SELECT id, job_application_id, email_type, subject, body, recipient_email,
       recipient_name, status, provider_message_id, error_message,
       is_follow_up, follow_up_number, created_at, sent_at
FROM email_records
WHERE job_application_id = ? AND is_follow_up = 1 AND status = 'sent'
ORDER BY sent_at, id;`, appID)
}

// ApplicationIDsWithSentFollowUps lists candidates for the repair scan.
func (d *DB) ApplicationIDsWithSentFollowUps(ctx context.Context) ([]int64, error) {
	rows, err := d.Pool.QueryContext(ctx, `
SELECT DISTINCT job_application_id
FROM email_records
WHERE is_follow_up = 1 AND status = 'sent'
ORDER BY job_application_id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (d *DB) queryEmails(ctx context.Context, query string, args ...any) ([]domain.EmailRecord, error) {
	rows, err := d.Pool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EmailRecord
	for rows.Next() {
		var (
			rec        domain.EmailRecord
			emailType  string
			status     string
			isFollowUp int
			createdAt  string
			sentAt     sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.JobApplicationID, &emailType, &rec.Subject,
			&rec.Body, &rec.RecipientEmail, &rec.RecipientName, &status,
			&rec.ProviderMessageID, &rec.ErrorMessage, &isFollowUp,
			&rec.FollowUpNumber, &createdAt, &sentAt); err != nil {
			return nil, err
		}
		rec.EmailType = domain.EmailType(emailType)
		rec.Status = domain.EmailStatus(status)
		rec.IsFollowUp = isFollowUp != 0
		rec.CreatedAt, _ = parseTime(createdAt)
		rec.SentAt = parseTimePtr(sentAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}
