package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lakshyads/cv-mailer/internal/domain"
)

const (
	rateRetryAttempts = 4
	rateRetryBase     = 100 * time.Millisecond
)

// IncrementDailyCount atomically performs read-check-increment on the daily
// send counter. When the day's count already meets limit, nothing is written
// and limitReached is true. Lock contention is retried with backoff; if the
// retries run out (or any other error occurs) the send is allowed anyway —
// blocking all sending on a transient lock is worse than one over-limit email.
func (d *DB) IncrementDailyCount(ctx context.Context, day time.Time, limit int) (count int, limitReached bool, err error) {
	date := day.UTC().Format("2006-01-02")
	now := fmtTime(time.Now())

	err = retryBusy(ctx, rateRetryAttempts, rateRetryBase, func() error {
		tx, err := d.Pool.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var current int
		err = tx.QueryRowContext(ctx,
			`SELECT emails_sent FROM daily_email_stats WHERE date = ?;`, date).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO daily_email_stats (date, emails_sent, last_email_sent_at) VALUES (?, 0, NULL);`,
				date); err != nil {
				return err
			}
			current = 0
		case err != nil:
			return err
		}

		if current >= limit {
			count, limitReached = current, true
			return tx.Commit()
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE daily_email_stats SET emails_sent = emails_sent + 1, last_email_sent_at = ?
WHERE date = ?;`, now, date); err != nil {
			return err
		}
		count, limitReached = current+1, false
		return tx.Commit()
	})

	if err != nil {
		// Fail open.
		log.Printf("level=error msg=\"rate limit check failed, allowing send\" err=%v", err)
		return 0, false, nil
	}
	return count, limitReached, nil
}

// DailyCount reads today's counter without touching it.
func (d *DB) DailyCount(ctx context.Context, day time.Time) (domain.DailyStats, error) {
	date := day.UTC().Format("2006-01-02")
	var (
		st     domain.DailyStats
		sentAt sql.NullString
	)
	err := d.Pool.QueryRowContext(ctx,
		`SELECT date, emails_sent, last_email_sent_at FROM daily_email_stats WHERE date = ?;`,
		date).Scan(&st.Date, &st.EmailsSent, &sentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DailyStats{Date: date}, nil
	}
	if err != nil {
		return domain.DailyStats{}, err
	}
	st.LastSentAt = parseTimePtr(sentAt)
	return st, nil
}

// Stats computes the aggregate summary for the CLI table and GET /stats.
func (d *DB) Stats(ctx context.Context) (domain.Statistics, error) {
	stats := domain.Statistics{ByStatus: make(map[string]int)}

	if err := d.Pool.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM job_applications;`).Scan(&stats.TotalApplications); err != nil {
		return stats, err
	}

	rows, err := d.Pool.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM job_applications GROUP BY status;`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for _, s := range domain.AllStatuses {
		stats.ByStatus[string(s)] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return stats, err
		}
		stats.ByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	if err := d.Pool.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM email_records WHERE status = 'sent';`).Scan(&stats.TotalEmailsSent); err != nil {
		return stats, err
	}
	if err := d.Pool.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM email_records WHERE status = 'sent' AND is_follow_up = 1;`).Scan(&stats.FollowUpsSent); err != nil {
		return stats, err
	}
	return stats, nil
}

// InsertResponse records an inbound recruiter signal.
func (d *DB) InsertResponse(ctx context.Context, appID, emailRecordID int64, responseType, responseText string, respondedAt time.Time) (domain.ResponseRecord, error) {
	now := time.Now().UTC()
	var emailRef sql.NullInt64
	if emailRecordID > 0 {
		emailRef = sql.NullInt64{Int64: emailRecordID, Valid: true}
	}

	res, err := d.Pool.ExecContext(ctx, `
INSERT INTO response_records
  (job_application_id, email_record_id, response_type, response_text, responded_at, created_at)
VALUES (?, ?, ?, ?, ?, ?);`,
		appID, emailRef, responseType, responseText, fmtTime(respondedAt), fmtTime(now))
	if err != nil {
		return domain.ResponseRecord{}, fmt.Errorf("insert response: %w", err)
	}
	id, _ := res.LastInsertId()
	return domain.ResponseRecord{
		ID:               id,
		JobApplicationID: appID,
		EmailRecordID:    emailRecordID,
		ResponseType:     responseType,
		ResponseText:     responseText,
		RespondedAt:      respondedAt.UTC(),
		CreatedAt:        now,
	}, nil
}

// RenumberChange assigns one new wave number to a set of email record ids.
type RenumberChange struct {
	IDs       []int64
	NewNumber int
}

// ApplyFollowUpRenumber applies every change in a single transaction and
// returns the number of rows touched. Updating by id set (not by old number)
// keeps remaps that swap numbers from colliding mid-flight.
func (d *DB) ApplyFollowUpRenumber(ctx context.Context, changes []RenumberChange) (int64, error) {
	if len(changes) == 0 {
		return 0, nil
	}

	tx, err := d.Pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var updated int64
	for _, ch := range changes {
		for _, id := range ch.IDs {
			res, err := tx.ExecContext(ctx,
				`UPDATE email_records SET follow_up_number = ? WHERE id = ?;`, ch.NewNumber, id)
			if err != nil {
				return 0, fmt.Errorf("renumber record %d: %w", id, err)
			}
			n, _ := res.RowsAffected()
			updated += n
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return updated, nil
}
