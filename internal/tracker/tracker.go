// Package tracker owns the business rules for application records, send
// attempts, follow-up eligibility and wave numbering.
package tracker

import (
	"context"
	"log"
	"time"

	"github.com/lakshyads/cv-mailer/internal/domain"
	"github.com/lakshyads/cv-mailer/internal/recruiter"
	"github.com/lakshyads/cv-mailer/internal/store"
)

type Options struct {
	FollowUpInterval time.Duration
	MaxFollowUps     int
}

type Tracker struct {
	db   *store.DB
	opts Options
}

func New(db *store.DB, opts Options) *Tracker {
	return &Tracker{db: db, opts: opts}
}

// UpsertApplication creates or refreshes the record for one spreadsheet row
// and replaces its recruiter links with contacts.
func (t *Tracker) UpsertApplication(ctx context.Context, in store.ApplicationUpsert, contacts []recruiter.Contact) (domain.JobApplication, error) {
	return t.db.UpsertApplication(ctx, in, contacts)
}

func (t *Tracker) Application(ctx context.Context, id int64) (domain.JobApplication, error) {
	return t.db.GetApplication(ctx, id)
}

// SentEmail describes a completed (or attempted) send to one recipient.
type SentEmail struct {
	JobApplicationID  int64
	EmailType         domain.EmailType
	Subject           string
	Body              string
	RecipientEmail    string
	RecipientName     string
	ProviderMessageID string
	IsFollowUp        bool
	FollowUpNumber    int
}

// RecordEmailSent writes one EmailRecord for the attempt. A provider message
// id marks it sent (stamping sent_at) and moves a draft application to
// reached_out; without one the record stays pending.
func (t *Tracker) RecordEmailSent(ctx context.Context, in SentEmail) (domain.EmailRecord, error) {
	app, err := t.db.GetApplication(ctx, in.JobApplicationID)
	if err != nil {
		return domain.EmailRecord{}, err
	}

	status := domain.EmailPending
	var sentAt *time.Time
	if in.ProviderMessageID != "" {
		status = domain.EmailSent
		now := time.Now().UTC()
		sentAt = &now
	}

	rec, err := t.db.InsertEmailRecord(ctx, store.EmailInsert{
		JobApplicationID:  in.JobApplicationID,
		EmailType:         in.EmailType,
		Subject:           in.Subject,
		Body:              in.Body,
		RecipientEmail:    in.RecipientEmail,
		RecipientName:     in.RecipientName,
		Status:            status,
		ProviderMessageID: in.ProviderMessageID,
		IsFollowUp:        in.IsFollowUp,
		FollowUpNumber:    in.FollowUpNumber,
		SentAt:            sentAt,
	})
	if err != nil {
		return domain.EmailRecord{}, err
	}

	if status == domain.EmailSent && app.Status == domain.StatusDraft {
		if err := t.db.MarkReachedOut(ctx, in.JobApplicationID); err != nil {
			return domain.EmailRecord{}, err
		}
	}
	return rec, nil
}

// RecordEmailFailed writes a failed attempt so the history shows it.
func (t *Tracker) RecordEmailFailed(ctx context.Context, in SentEmail, errMsg string) (domain.EmailRecord, error) {
	if _, err := t.db.GetApplication(ctx, in.JobApplicationID); err != nil {
		return domain.EmailRecord{}, err
	}
	if errMsg == "" {
		errMsg = "failed to send email"
	}
	return t.db.InsertEmailRecord(ctx, store.EmailInsert{
		JobApplicationID: in.JobApplicationID,
		EmailType:        in.EmailType,
		Subject:          in.Subject,
		Body:             in.Body,
		RecipientEmail:   in.RecipientEmail,
		RecipientName:    in.RecipientName,
		Status:           domain.EmailFailed,
		ErrorMessage:     errMsg,
		IsFollowUp:       in.IsFollowUp,
		FollowUpNumber:   in.FollowUpNumber,
	})
}

// ApplicationsNeedingFollowUp selects the applications owed another wave as
// of now: status reached_out or applied, last successful send at least the
// configured interval ago, and the highest wave number already sent still
// below the configured maximum. The highest-number check (rather than a row
// count) is what keeps multi-recipient applications from skipping waves.
func (t *Tracker) ApplicationsNeedingFollowUp(ctx context.Context, now time.Time) ([]domain.JobApplication, error) {
	candidates, err := t.db.ApplicationsByStatus(ctx, domain.StatusReachedOut, domain.StatusApplied)
	if err != nil {
		return nil, err
	}

	var due []domain.JobApplication
	for _, app := range candidates {
		last, err := t.db.LastSentEmail(ctx, app.ID)
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if last.SentAt == nil {
			continue
		}
		if now.Sub(*last.SentAt) < t.opts.FollowUpInterval {
			continue
		}

		highest, err := t.db.MaxSentFollowUpNumber(ctx, app.ID)
		if err != nil {
			return nil, err
		}
		if highest >= t.opts.MaxFollowUps {
			continue
		}
		due = append(due, app)
	}
	return due, nil
}

// NextFollowUpNumber returns max(sent wave number)+1 for the application.
// The orchestrator calls this once per application per pass so every
// recipient in the wave shares the number.
func (t *Tracker) NextFollowUpNumber(ctx context.Context, appID int64) (int, error) {
	highest, err := t.db.MaxSentFollowUpNumber(ctx, appID)
	if err != nil {
		return 0, err
	}
	return highest + 1, nil
}

// FollowUpRecipients prefers the recipients who actually received a
// first-contact email; when history is missing it falls back to the
// application's currently linked recruiters.
func (t *Tracker) FollowUpRecipients(ctx context.Context, appID int64) ([]domain.Recruiter, error) {
	rs, err := t.db.FirstContactRecipients(ctx, appID)
	if err != nil {
		return nil, err
	}
	if len(rs) > 0 {
		return rs, nil
	}
	return t.db.RecruitersForApplication(ctx, appID)
}

// AlreadySentFollowUp reports whether this exact wave already went to the
// recipient, so a re-run skips it.
func (t *Tracker) AlreadySentFollowUp(ctx context.Context, appID int64, email string, number int) (bool, error) {
	return t.db.HasSentFollowUp(ctx, appID, email, number)
}

// AlreadyContacted reports whether any successful send went to the recipient.
func (t *Tracker) AlreadyContacted(ctx context.Context, appID int64, email string) (bool, error) {
	return t.db.HasSentTo(ctx, appID, email)
}

// UpdateStatus sets the lifecycle status after boundary validation.
func (t *Tracker) UpdateStatus(ctx context.Context, appID int64, status domain.JobStatus, notes string) error {
	if err := t.db.UpdateApplicationStatus(ctx, appID, status, notes); err != nil {
		return err
	}
	log.Printf("level=info msg=\"application status updated\" id=%d status=%s", appID, status)
	return nil
}

// RecordResponse stores an inbound recruiter signal and applies the status
// transition it implies.
func (t *Tracker) RecordResponse(ctx context.Context, appID, emailRecordID int64, responseType, responseText string) (domain.ResponseRecord, error) {
	if _, err := t.db.GetApplication(ctx, appID); err != nil {
		return domain.ResponseRecord{}, err
	}

	rec, err := t.db.InsertResponse(ctx, appID, emailRecordID, responseType, responseText, time.Now())
	if err != nil {
		return domain.ResponseRecord{}, err
	}

	switch responseType {
	case domain.ResponsePositive, domain.ResponseInterviewRequest:
		err = t.UpdateStatus(ctx, appID, domain.StatusInterviewScheduled, "")
	case domain.ResponseNegative:
		err = t.UpdateStatus(ctx, appID, domain.StatusRejected, "")
	}
	if err != nil {
		return domain.ResponseRecord{}, err
	}
	return rec, nil
}

// Statistics is the aggregate summary for the CLI and the API.
func (t *Tracker) Statistics(ctx context.Context) (domain.Statistics, error) {
	return t.db.Stats(ctx)
}
