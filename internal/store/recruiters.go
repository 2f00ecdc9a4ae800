package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lakshyads/cv-mailer/internal/domain"
	"github.com/lakshyads/cv-mailer/internal/recruiter"
)

// replaceRecruiterLinks swaps the application's recruiter set for contacts,
// creating recruiter rows as needed. Emails are stored lowercased so the
// unique constraint is case-insensitive.
func replaceRecruiterLinks(ctx context.Context, tx *sql.Tx, appID int64, contacts []recruiter.Contact) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM job_application_recruiters WHERE job_application_id = ?;`, appID); err != nil {
		return fmt.Errorf("clear recruiter links: %w", err)
	}

	now := fmtTime(time.Now())
	for _, c := range contacts {
		email := strings.ToLower(strings.TrimSpace(c.Email))
		if email == "" {
			continue
		}

		var (
			rid  int64
			name string
		)
		err := tx.QueryRowContext(ctx,
			`SELECT id, name FROM recruiters WHERE email = ?;`, email).Scan(&rid, &name)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			res, err := tx.ExecContext(ctx,
				`INSERT INTO recruiters (name, email, created_at, updated_at) VALUES (?, ?, ?, ?);`,
				c.Name, email, now, now)
			if err != nil {
				return fmt.Errorf("insert recruiter: %w", err)
			}
			rid, _ = res.LastInsertId()
		case err != nil:
			return err
		default:
			// First-seen name wins; only fill in a name we never had.
			if name == "" && c.Name != "" {
				if _, err := tx.ExecContext(ctx,
					`UPDATE recruiters SET name = ?, updated_at = ? WHERE id = ?;`,
					c.Name, now, rid); err != nil {
					return err
				}
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO job_application_recruiters (job_application_id, recruiter_id) VALUES (?, ?);`,
			appID, rid); err != nil {
			return fmt.Errorf("link recruiter: %w", err)
		}
	}
	return nil
}

// RecruitersForApplication returns the currently linked recruiter set.
func (d *DB) RecruitersForApplication(ctx context.Context, appID int64) ([]domain.Recruiter, error) {
	return d.queryRecruiters(ctx, `
SELECT r.id, r.name, r.email, r.created_at, r.updated_at
FROM recruiters r
JOIN job_application_recruiters jar ON jar.recruiter_id = r.id
WHERE jar.job_application_id = ?
ORDER BY r.id;`, appID)
}

func (d *DB) ListRecruiters(ctx context.Context, limit, offset int) ([]domain.Recruiter, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var total int
	if err := d.Pool.QueryRowContext(ctx, `SELECT COUNT(*) FROM recruiters;`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rs, err := d.queryRecruiters(ctx, `
SELECT id, name, email, created_at, updated_at
FROM recruiters ORDER BY id LIMIT ? OFFSET ?;`, limit, offset)
	return rs, total, err
}

func (d *DB) GetRecruiter(ctx context.Context, id int64) (domain.Recruiter, error) {
	rs, err := d.queryRecruiters(ctx, `
SELECT id, name, email, created_at, updated_at FROM recruiters WHERE id = ?;`, id)
	if err != nil {
		return domain.Recruiter{}, err
	}
	if len(rs) == 0 {
		return domain.Recruiter{}, fmt.Errorf("recruiter %d: %w", id, ErrNotFound)
	}
	return rs[0], nil
}

// ApplicationsForRecruiter lists the applications a recruiter is linked to.
func (d *DB) ApplicationsForRecruiter(ctx context.Context, recruiterID int64) ([]domain.JobApplication, error) {
	return d.queryApplications(ctx, `
SELECT a.id, a.spreadsheet_row_id, a.sheet_name, a.company_name, a.position, a.location,
       a.job_posting_url, a.expected_salary, a.custom_message, a.status, a.notes,
       a.created_at, a.updated_at, a.applied_at, a.closed_at
FROM job_applications a
JOIN job_application_recruiters jar ON jar.job_application_id = a.id
WHERE jar.recruiter_id = ?
ORDER BY a.id;`, recruiterID)
}

// KnownRecruiterEmails returns every stored recruiter address, lowercased.
// The response poller uses it to match inbound mail senders.
func (d *DB) KnownRecruiterEmails(ctx context.Context) (map[string]int64, error) {
	rows, err := d.Pool.QueryContext(ctx, `SELECT id, email FROM recruiters;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			id    int64
			email string
		)
		if err := rows.Scan(&id, &email); err != nil {
			return nil, err
		}
		out[strings.ToLower(email)] = id
	}
	return out, rows.Err()
}

func (d *DB) queryRecruiters(ctx context.Context, query string, args ...any) ([]domain.Recruiter, error) {
	rows, err := d.Pool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Recruiter
	for rows.Next() {
		var (
			r                    domain.Recruiter
			createdAt, updatedAt string
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Email, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = parseTime(createdAt)
		r.UpdatedAt, _ = parseTime(updatedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}
