package domain

import "fmt"

// JobStatus is the lifecycle state of a job application.
type JobStatus string

const (
	StatusDraft              JobStatus = "draft"
	StatusReachedOut         JobStatus = "reached_out"
	StatusApplied            JobStatus = "applied"
	StatusInterviewScheduled JobStatus = "interview_scheduled"
	StatusInProgress         JobStatus = "in_progress"
	StatusClosed             JobStatus = "closed"
	StatusRejected           JobStatus = "rejected"
	StatusAccepted           JobStatus = "accepted"
)

// AllStatuses in display order, used by the stats breakdown.
var AllStatuses = []JobStatus{
	StatusDraft, StatusReachedOut, StatusApplied, StatusInterviewScheduled,
	StatusInProgress, StatusClosed, StatusRejected, StatusAccepted,
}

// ParseJobStatus rejects unknown status strings at the boundary.
func ParseJobStatus(s string) (JobStatus, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid status: %q", s)
}

// EmailType distinguishes first-contact emails from follow-ups.
type EmailType string

const (
	EmailFirstContact EmailType = "first_contact"
	EmailFollowUp     EmailType = "follow_up"
)

// EmailStatus is the delivery state of one email record.
type EmailStatus string

const (
	EmailPending EmailStatus = "pending"
	EmailSent    EmailStatus = "sent"
	EmailFailed  EmailStatus = "failed"
	EmailBounced EmailStatus = "bounced"
)

func ParseEmailStatus(s string) (EmailStatus, error) {
	switch EmailStatus(s) {
	case EmailPending, EmailSent, EmailFailed, EmailBounced:
		return EmailStatus(s), nil
	}
	return "", fmt.Errorf("invalid email status: %q", s)
}

// Response classification coming back from a recruiter.
const (
	ResponsePositive         = "positive"
	ResponseNegative         = "negative"
	ResponseNeutral          = "neutral"
	ResponseInterviewRequest = "interview_request"
)
