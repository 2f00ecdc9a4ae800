package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lakshyads/cv-mailer/internal/domain"
	"github.com/lakshyads/cv-mailer/internal/recruiter"
)

// ApplicationUpsert is the row data coming from one spreadsheet cell.
type ApplicationUpsert struct {
	SpreadsheetRowID string
	SheetName        string
	CompanyName      string
	Position         string
	Location         string
	JobPostingURL    string
	ExpectedSalary   string
	CustomMessage    string
}

// UpsertApplication is idempotent on SpreadsheetRowID. On update, company and
// position are always overwritten; the optional fields only when the new
// value is non-empty. The recruiter set is fully replaced by contacts (the
// sheet is the source of truth for who should be contacted today); an empty
// contacts list leaves the existing links alone.
func (d *DB) UpsertApplication(ctx context.Context, in ApplicationUpsert, contacts []recruiter.Contact) (domain.JobApplication, error) {
	tx, err := d.Pool.BeginTx(ctx, nil)
	if err != nil {
		return domain.JobApplication{}, err
	}
	defer func() { _ = tx.Rollback() }()

	now := fmtTime(time.Now())

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM job_applications WHERE spreadsheet_row_id = ?;`,
		in.SpreadsheetRowID).Scan(&id)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx, `
INSERT INTO job_applications
  (spreadsheet_row_id, sheet_name, company_name, position, location,
   job_posting_url, expected_salary, custom_message, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
			in.SpreadsheetRowID, in.SheetName, in.CompanyName, in.Position, in.Location,
			in.JobPostingURL, in.ExpectedSalary, in.CustomMessage, string(domain.StatusDraft), now, now)
		if err != nil {
			return domain.JobApplication{}, fmt.Errorf("insert application: %w", err)
		}
		id, _ = res.LastInsertId()
	case err != nil:
		return domain.JobApplication{}, err
	default:
		_, err = tx.ExecContext(ctx, `
UPDATE job_applications SET
  company_name = ?,
  position = ?,
  sheet_name = CASE WHEN ? != '' THEN ? ELSE sheet_name END,
  location = CASE WHEN ? != '' THEN ? ELSE location END,
  job_posting_url = CASE WHEN ? != '' THEN ? ELSE job_posting_url END,
  expected_salary = CASE WHEN ? != '' THEN ? ELSE expected_salary END,
  custom_message = CASE WHEN ? != '' THEN ? ELSE custom_message END,
  updated_at = ?
WHERE id = ?;`,
			in.CompanyName, in.Position,
			in.SheetName, in.SheetName,
			in.Location, in.Location,
			in.JobPostingURL, in.JobPostingURL,
			in.ExpectedSalary, in.ExpectedSalary,
			in.CustomMessage, in.CustomMessage,
			now, id)
		if err != nil {
			return domain.JobApplication{}, fmt.Errorf("update application: %w", err)
		}
	}

	if len(contacts) > 0 {
		if err := replaceRecruiterLinks(ctx, tx, id, contacts); err != nil {
			return domain.JobApplication{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.JobApplication{}, err
	}
	return d.GetApplication(ctx, id)
}

// GetApplication loads one application with its linked recruiters and email
// count. Returns ErrNotFound for unknown ids.
func (d *DB) GetApplication(ctx context.Context, id int64) (domain.JobApplication, error) {
	row := d.Pool.QueryRowContext(ctx, `
SELECT id, spreadsheet_row_id, sheet_name, company_name, position, location,
       job_posting_url, expected_salary, custom_message, status, notes,
       created_at, updated_at, applied_at, closed_at
FROM job_applications WHERE id = ?;`, id)

	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.JobApplication{}, fmt.Errorf("application %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.JobApplication{}, err
	}

	app.Recruiters, err = d.RecruitersForApplication(ctx, id)
	if err != nil {
		return domain.JobApplication{}, err
	}

	if err := d.Pool.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM email_records WHERE job_application_id = ?;`, id,
	).Scan(&app.EmailsCount); err != nil {
		return domain.JobApplication{}, err
	}
	return app, nil
}

type ListApplicationsOpts struct {
	Status string // empty = all
	Limit  int
	Offset int
}

// ListApplications returns a page of applications plus the unpaged total.
func (d *DB) ListApplications(ctx context.Context, opts ListApplicationsOpts) ([]domain.JobApplication, int, error) {
	if opts.Limit <= 0 || opts.Limit > 500 {
		opts.Limit = 50
	}

	where := ""
	args := []any{}
	if opts.Status != "" {
		where = "WHERE status = ?"
		args = append(args, opts.Status)
	}

	var total int
	if err := d.Pool.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM job_applications %s;`, where), args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
SELECT id, spreadsheet_row_id, sheet_name, company_name, position, location,
       job_posting_url, expected_salary, custom_message, status, notes,
       created_at, updated_at, applied_at, closed_at
FROM job_applications %s
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;`, where)
	args = append(args, opts.Limit, opts.Offset)

	apps, err := d.queryApplications(ctx, query, args...)
	return apps, total, err
}

// SearchApplications matches company name or position, case-insensitively.
func (d *DB) SearchApplications(ctx context.Context, q string, limit, offset int) ([]domain.JobApplication, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	like := "%" + q + "%"

	var total int
	if err := d.Pool.QueryRowContext(ctx, `
SELECT COUNT(*) FROM job_applications
WHERE company_name LIKE ? OR position LIKE ?;`, like, like).Scan(&total); err != nil {
		return nil, 0, err
	}

	apps, err := d.queryApplications(ctx, `
SELECT id, spreadsheet_row_id, sheet_name, company_name, position, location,
       job_posting_url, expected_salary, custom_message, status, notes,
       created_at, updated_at, applied_at, closed_at
FROM job_applications
WHERE company_name LIKE ? OR position LIKE ?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;`, like, like, limit, offset)
	return apps, total, err
}

// ApplicationsByStatus returns every application whose status is in the set,
// oldest first. Used by the follow-up eligibility scan.
func (d *DB) ApplicationsByStatus(ctx context.Context, statuses ...domain.JobStatus) ([]domain.JobApplication, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := ""
	args := make([]any, 0, len(statuses))
	for i, s := range statuses {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, string(s))
	}

	return d.queryApplications(ctx, fmt.Sprintf(`
SELECT id, spreadsheet_row_id, sheet_name, company_name, position, location,
       job_posting_url, expected_salary, custom_message, status, notes,
       created_at, updated_at, applied_at, closed_at
FROM job_applications
WHERE status IN (%s)
ORDER BY id;`, placeholders), args...)
}

// UpdateApplicationStatus sets the lifecycle status, optionally replacing the
// notes, and stamps applied_at / closed_at on the matching transitions.
func (d *DB) UpdateApplicationStatus(ctx context.Context, id int64, status domain.JobStatus, notes string) error {
	now := fmtTime(time.Now())

	res, err := d.Pool.ExecContext(ctx, `
UPDATE job_applications SET
  status = ?,
  notes = CASE WHEN ? != '' THEN ? ELSE notes END,
  applied_at = CASE WHEN ? = 'applied' AND applied_at IS NULL THEN ? ELSE applied_at END,
  closed_at = CASE WHEN ? = 'closed' THEN ? ELSE closed_at END,
  updated_at = ?
WHERE id = ?;`,
		string(status), notes, notes, string(status), now, string(status), now, now, id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("application %d: %w", id, ErrNotFound)
	}
	return nil
}

// MarkReachedOut is the draft -> reached_out transition taken on the first
// successful send. It is a no-op for any other current status.
func (d *DB) MarkReachedOut(ctx context.Context, id int64) error {
	now := fmtTime(time.Now())
	_, err := d.Pool.ExecContext(ctx, `
UPDATE job_applications
SET status = ?, applied_at = ?, updated_at = ?
WHERE id = ? AND status = ?;`,
		string(domain.StatusReachedOut), now, now, id, string(domain.StatusDraft))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(r rowScanner) (domain.JobApplication, error) {
	var (
		app                  domain.JobApplication
		status               string
		createdAt, updatedAt string
		appliedAt, closedAt  sql.NullString
	)
	err := r.Scan(&app.ID, &app.SpreadsheetRowID, &app.SheetName, &app.CompanyName,
		&app.Position, &app.Location, &app.JobPostingURL, &app.ExpectedSalary,
		&app.CustomMessage, &status, &app.Notes, &createdAt, &updatedAt,
		&appliedAt, &closedAt)
	if err != nil {
		return app, err
	}
	app.Status = domain.JobStatus(status)
	app.CreatedAt, _ = parseTime(createdAt)
	app.UpdatedAt, _ = parseTime(updatedAt)
	app.AppliedAt = parseTimePtr(appliedAt)
	app.ClosedAt = parseTimePtr(closedAt)
	return app, nil
}

func (d *DB) queryApplications(ctx context.Context, query string, args ...any) ([]domain.JobApplication, error) {
	rows, err := d.Pool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.JobApplication
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, rows.Err()
}
