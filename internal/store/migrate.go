package store

import "database/sql"

// Migrate brings the schema to the current version, tracked via
// PRAGMA user_version. All statements for one version run in one tx.
func Migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}

	if v >= 1 {
		return tx.Commit()
	}

	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS job_applications (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  spreadsheet_row_id TEXT NOT NULL UNIQUE,
  sheet_name TEXT NOT NULL DEFAULT '',
  company_name TEXT NOT NULL,
  position TEXT NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  job_posting_url TEXT NOT NULL DEFAULT '',
  expected_salary TEXT NOT NULL DEFAULT '',
  custom_message TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'draft',
  notes TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  applied_at TEXT,
  closed_at TEXT
);
`,
		`
CREATE TABLE IF NOT EXISTS recruiters (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL DEFAULT '',
  email TEXT NOT NULL UNIQUE,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
`,
		`
CREATE TABLE IF NOT EXISTS job_application_recruiters (
  job_application_id INTEGER NOT NULL REFERENCES job_applications(id) ON DELETE CASCADE,
  recruiter_id INTEGER NOT NULL REFERENCES recruiters(id) ON DELETE CASCADE,
  PRIMARY KEY (job_application_id, recruiter_id)
);
`,
		`
CREATE TABLE IF NOT EXISTS email_records (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  job_application_id INTEGER NOT NULL REFERENCES job_applications(id) ON DELETE CASCADE,
  email_type TEXT NOT NULL,
  subject TEXT NOT NULL,
  body TEXT NOT NULL DEFAULT '',
  recipient_email TEXT NOT NULL,
  recipient_name TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'pending',
  provider_message_id TEXT NOT NULL DEFAULT '',
  error_message TEXT NOT NULL DEFAULT '',
  is_follow_up INTEGER NOT NULL DEFAULT 0,
  follow_up_number INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL,
  sent_at TEXT
);
`,
		`
CREATE TABLE IF NOT EXISTS response_records (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  job_application_id INTEGER NOT NULL REFERENCES job_applications(id) ON DELETE CASCADE,
  email_record_id INTEGER REFERENCES email_records(id),
  response_type TEXT NOT NULL,
  response_text TEXT NOT NULL DEFAULT '',
  responded_at TEXT NOT NULL,
  created_at TEXT NOT NULL
);
`,
		`
CREATE TABLE IF NOT EXISTS daily_email_stats (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  date TEXT NOT NULL UNIQUE,
  emails_sent INTEGER NOT NULL DEFAULT 0,
  last_email_sent_at TEXT
);
`,
		`CREATE INDEX IF NOT EXISTS idx_email_records_app ON email_records(job_application_id);`,
		`CREATE INDEX IF NOT EXISTS idx_email_records_app_status ON email_records(job_application_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_job_applications_status ON job_applications(status);`,
		`PRAGMA user_version = 1;`,
	}

	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}

	return tx.Commit()
}
