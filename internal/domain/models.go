package domain

import "time"

// JobApplication is one row of outreach: a single (sheet, row) cell from the
// spreadsheet, shared by every recruiter contacted for that posting.
type JobApplication struct {
	ID               int64      `json:"id"`
	SpreadsheetRowID string     `json:"spreadsheet_row_id"`
	SheetName        string     `json:"sheet_name,omitempty"`
	CompanyName      string     `json:"company_name"`
	Position         string     `json:"position"`
	Location         string     `json:"location,omitempty"`
	JobPostingURL    string     `json:"job_posting_url,omitempty"`
	ExpectedSalary   string     `json:"expected_salary,omitempty"`
	CustomMessage    string     `json:"custom_message,omitempty"`
	Status           JobStatus  `json:"status"`
	Notes            string     `json:"notes,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	AppliedAt        *time.Time `json:"applied_at,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`

	Recruiters  []Recruiter `json:"recruiters,omitempty"`
	EmailsCount int         `json:"emails_count,omitempty"`
}

// Recruiter identity is the email address; the same recruiter may be linked
// to any number of applications.
type Recruiter struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EmailRecord is one send attempt to one recipient. Follow-up math depends on
// this granularity: a wave to three recruiters writes three records sharing
// one FollowUpNumber.
type EmailRecord struct {
	ID                int64       `json:"id"`
	JobApplicationID  int64       `json:"job_application_id"`
	EmailType         EmailType   `json:"email_type"`
	Subject           string      `json:"subject"`
	Body              string      `json:"body,omitempty"`
	RecipientEmail    string      `json:"recipient_email"`
	RecipientName     string      `json:"recipient_name,omitempty"`
	Status            EmailStatus `json:"status"`
	ProviderMessageID string      `json:"provider_message_id,omitempty"`
	ErrorMessage      string      `json:"error_message,omitempty"`
	IsFollowUp        bool        `json:"is_follow_up"`
	FollowUpNumber    int         `json:"follow_up_number"`
	CreatedAt         time.Time   `json:"created_at"`
	SentAt            *time.Time  `json:"sent_at,omitempty"`
}

// ResponseRecord captures an inbound signal from a recruiter.
type ResponseRecord struct {
	ID               int64     `json:"id"`
	JobApplicationID int64     `json:"job_application_id"`
	EmailRecordID    int64     `json:"email_record_id,omitempty"`
	ResponseType     string    `json:"response_type"`
	ResponseText     string    `json:"response_text,omitempty"`
	RespondedAt      time.Time `json:"responded_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// DailyStats backs the daily send limit. One row per UTC calendar day.
type DailyStats struct {
	Date       string     `json:"date"` // YYYY-MM-DD
	EmailsSent int        `json:"emails_sent"`
	LastSentAt *time.Time `json:"last_email_sent_at,omitempty"`
}

// Statistics is the aggregate summary exposed to the CLI and the API.
type Statistics struct {
	TotalApplications int            `json:"total_applications"`
	ByStatus          map[string]int `json:"by_status"`
	TotalEmailsSent   int            `json:"total_emails_sent"`
	FollowUpsSent     int            `json:"follow_ups_sent"`
}
