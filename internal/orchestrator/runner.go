// Package orchestrator drives a run: rows in, parsed contacts, tracker
// decisions, sends, recorded outcomes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lakshyads/cv-mailer/internal/domain"
	"github.com/lakshyads/cv-mailer/internal/events"
	"github.com/lakshyads/cv-mailer/internal/mail"
	"github.com/lakshyads/cv-mailer/internal/recruiter"
	"github.com/lakshyads/cv-mailer/internal/sheets"
	"github.com/lakshyads/cv-mailer/internal/store"
	"github.com/lakshyads/cv-mailer/internal/tracker"
)

// EmailSender is the transport the runner sends through; injected so tests
// never dial SMTP.
type EmailSender interface {
	Send(ctx context.Context, toEmail, toName, subject, htmlBody string) (string, error)
}

type Runner struct {
	Source     sheets.Source
	Tracker    *tracker.Tracker
	Sender     EmailSender
	Hub        *events.Hub
	SenderName string
}

// Summary is what one pass accomplished.
type Summary struct {
	Sent    int
	Skipped int
	Failed  int
}

// Statuses in the sheet that mean "this row was already handled".
func rowAlreadyProcessed(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "sent", "reached out", "reached_out", "applied":
		return true
	}
	return false
}

// ProcessNew walks every row, upserts its application and sends first
// contact to each recruiter not yet contacted. Individual row and recipient
// failures are logged and skipped; only source/storage-level errors abort
// the run.
func (r *Runner) ProcessNew(ctx context.Context, dryRun bool) (Summary, error) {
	var sum Summary

	rows, err := r.Source.Rows(ctx)
	if err != nil {
		return sum, fmt.Errorf("read rows: %w", err)
	}
	log.Printf("level=info msg=\"processing rows\" count=%d dry_run=%v", len(rows), dryRun)

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		contacts := recruiter.Parse(row.RecruiterCell)
		if row.Company == "" || row.Position == "" || len(contacts) == 0 {
			log.Printf("level=warn msg=\"skipping row, missing required fields\" row=%s company=%q position=%q recruiters=%d",
				row.ID(), row.Company, row.Position, len(contacts))
			sum.Skipped++
			continue
		}
		if rowAlreadyProcessed(row.Status) {
			sum.Skipped++
			continue
		}

		app, err := r.Tracker.UpsertApplication(ctx, store.ApplicationUpsert{
			SpreadsheetRowID: row.ID(),
			SheetName:        row.SheetName,
			CompanyName:      row.Company,
			Position:         row.Position,
			Location:         row.Location,
			JobPostingURL:    row.PostingURL,
			ExpectedSalary:   row.ExpectedSalary,
			CustomMessage:    row.CustomMessage,
		}, contacts)
		if err != nil {
			log.Printf("level=error msg=\"upsert failed, skipping row\" row=%s err=%v", row.ID(), err)
			sum.Skipped++
			continue
		}

		sentForRow := 0
		for _, c := range contacts {
			done, stop, err := r.sendFirstContact(ctx, app, c, dryRun)
			if err != nil {
				sum.Failed++
				continue
			}
			if stop {
				return sum, nil
			}
			if done {
				sentForRow++
				sum.Sent++
			}
		}

		if sentForRow > 0 && !dryRun {
			if err := r.Source.MarkReachedOut(ctx, row); err != nil {
				log.Printf("level=warn msg=\"could not update sheet status\" row=%s err=%v", row.ID(), err)
			}
		}
		if sentForRow == 0 {
			sum.Skipped++
		}
	}

	log.Printf("level=info msg=\"process new done\" sent=%d skipped=%d failed=%d", sum.Sent, sum.Skipped, sum.Failed)
	return sum, nil
}

// sendFirstContact handles one recipient. done means an email went out (or
// would have, in dry-run); stop means the daily limit ended the run.
func (r *Runner) sendFirstContact(ctx context.Context, app domain.JobApplication, c recruiter.Contact, dryRun bool) (done, stop bool, err error) {
	already, err := r.Tracker.AlreadyContacted(ctx, app.ID, c.Email)
	if err != nil {
		return false, false, err
	}
	if already {
		return false, false, nil
	}

	subject, body, err := mail.RenderFirstContact(mail.FirstContactData{
		RecruiterName: c.Name,
		CompanyName:   app.CompanyName,
		Position:      app.Position,
		Location:      app.Location,
		JobPostingURL: app.JobPostingURL,
		CustomMessage: app.CustomMessage,
		SenderName:    r.SenderName,
	})
	if err != nil {
		return false, false, err
	}

	if dryRun {
		log.Printf("level=info msg=\"dry run, would send\" to=%s subject=%q", c.Email, subject)
		return true, false, nil
	}

	msgID, err := r.Sender.Send(ctx, c.Email, c.Name, subject, body)
	if errors.Is(err, mail.ErrDailyLimit) {
		log.Printf("level=warn msg=\"daily limit reached, stopping run\"")
		return false, true, nil
	}
	if err != nil {
		log.Printf("level=error msg=\"send failed\" to=%s err=%v", c.Email, err)
		if _, recErr := r.Tracker.RecordEmailFailed(ctx, tracker.SentEmail{
			JobApplicationID: app.ID,
			EmailType:        domain.EmailFirstContact,
			Subject:          subject,
			Body:             body,
			RecipientEmail:   c.Email,
			RecipientName:    c.Name,
		}, err.Error()); recErr != nil {
			log.Printf("level=error msg=\"could not record failure\" err=%v", recErr)
		}
		return false, false, err
	}

	if _, err := r.Tracker.RecordEmailSent(ctx, tracker.SentEmail{
		JobApplicationID:  app.ID,
		EmailType:         domain.EmailFirstContact,
		Subject:           subject,
		Body:              body,
		RecipientEmail:    c.Email,
		RecipientName:     c.Name,
		ProviderMessageID: msgID,
	}); err != nil {
		return false, false, err
	}

	r.Hub.Publish(events.Make("", events.TypeEmailSent, map[string]any{
		"application_id": app.ID, "to": c.Email,
	}))
	return true, false, nil
}

// SendFollowUps sends the next wave to every eligible application. One wave
// number is computed per application per pass, so every recipient addressed
// in this pass shares it.
func (r *Runner) SendFollowUps(ctx context.Context, dryRun bool) (int, error) {
	apps, err := r.Tracker.ApplicationsNeedingFollowUp(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("follow-up eligibility: %w", err)
	}
	if len(apps) == 0 {
		log.Printf("level=info msg=\"no applications need follow-up\"")
		return 0, nil
	}
	log.Printf("level=info msg=\"applications needing follow-up\" count=%d", len(apps))

	sent := 0
	for _, app := range apps {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		number, err := r.Tracker.NextFollowUpNumber(ctx, app.ID)
		if err != nil {
			return sent, err
		}
		recipients, err := r.Tracker.FollowUpRecipients(ctx, app.ID)
		if err != nil {
			return sent, err
		}
		if len(recipients) == 0 {
			log.Printf("level=warn msg=\"no recipients for follow-up\" application_id=%d", app.ID)
			continue
		}

		for _, rec := range recipients {
			did, stop, err := r.sendFollowUp(ctx, app, rec, number, dryRun)
			if err != nil {
				continue
			}
			if stop {
				return sent, nil
			}
			if did {
				sent++
			}
		}
	}

	log.Printf("level=info msg=\"follow-ups done\" sent=%d", sent)
	return sent, nil
}

func (r *Runner) sendFollowUp(ctx context.Context, app domain.JobApplication, rec domain.Recruiter, number int, dryRun bool) (done, stop bool, err error) {
	already, err := r.Tracker.AlreadySentFollowUp(ctx, app.ID, rec.Email, number)
	if err != nil {
		return false, false, err
	}
	if already {
		return false, false, nil
	}

	subject, body, err := mail.RenderFollowUp(mail.FollowUpData{
		RecruiterName:  rec.Name,
		CompanyName:    app.CompanyName,
		Position:       app.Position,
		Location:       app.Location,
		FollowUpNumber: number,
		SenderName:     r.SenderName,
	})
	if err != nil {
		return false, false, err
	}

	if dryRun {
		log.Printf("level=info msg=\"dry run, would send follow-up\" number=%d to=%s", number, rec.Email)
		return true, false, nil
	}

	msgID, err := r.Sender.Send(ctx, rec.Email, rec.Name, subject, body)
	if errors.Is(err, mail.ErrDailyLimit) {
		log.Printf("level=warn msg=\"daily limit reached, stopping follow-ups\"")
		return false, true, nil
	}
	if err != nil {
		log.Printf("level=error msg=\"follow-up send failed\" to=%s err=%v", rec.Email, err)
		if _, recErr := r.Tracker.RecordEmailFailed(ctx, tracker.SentEmail{
			JobApplicationID: app.ID,
			EmailType:        domain.EmailFollowUp,
			Subject:          subject,
			Body:             body,
			RecipientEmail:   rec.Email,
			RecipientName:    rec.Name,
			IsFollowUp:       true,
			FollowUpNumber:   number,
		}, err.Error()); recErr != nil {
			log.Printf("level=error msg=\"could not record failure\" err=%v", recErr)
		}
		return false, false, err
	}

	if _, err := r.Tracker.RecordEmailSent(ctx, tracker.SentEmail{
		JobApplicationID:  app.ID,
		EmailType:         domain.EmailFollowUp,
		Subject:           subject,
		Body:              body,
		RecipientEmail:    rec.Email,
		RecipientName:     rec.Name,
		ProviderMessageID: msgID,
		IsFollowUp:        true,
		FollowUpNumber:    number,
	}); err != nil {
		return false, false, err
	}

	r.Hub.Publish(events.Make("", events.TypeFollowUpSent, map[string]any{
		"application_id": app.ID, "to": rec.Email, "number": number,
	}))
	return true, false, nil
}
