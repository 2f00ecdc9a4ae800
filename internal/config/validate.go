package config

import (
	"fmt"
	"regexp"
	"strings"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// NormalizeAndValidate returns a normalized copy plus everything wrong or
// suspicious about it. Errors block startup; warnings are only printed.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	out := cfg
	var res Validation

	out.Mail.Username = strings.TrimSpace(out.Mail.Username)
	out.Mail.FromAddress = strings.TrimSpace(out.Mail.FromAddress)
	if out.Mail.FromAddress == "" {
		out.Mail.FromAddress = out.Mail.Username
	}

	if strings.TrimSpace(out.Sheets.Dir) == "" {
		res.addErr("sheets.dir is required")
	}
	if out.Sheets.SheetNameFilter != "" {
		if _, err := regexp.Compile(out.Sheets.SheetNameFilter); err != nil {
			res.addErr("sheets.sheet_name_filter is not a valid regexp: %v", err)
		}
	}

	if out.Mail.SMTPHost == "" {
		res.addErr("mail.smtp_host is required")
	}
	if out.Mail.SMTPPort <= 0 || out.Mail.SMTPPort > 65535 {
		res.addErr("mail.smtp_port must be 1..65535")
	}
	if out.Mail.Username == "" {
		res.addErr("mail.username is required")
	}
	if out.Mail.ResumePath == "" && out.Mail.ResumeDriveLink == "" {
		res.addWarn("neither mail.resume_path nor mail.resume_drive_link is set; emails go out without a resume")
	}

	if out.Rate.DailyLimit <= 0 {
		res.addErr("rate.daily_limit must be > 0")
	}
	if out.Rate.DelayMinSeconds < 0 || out.Rate.DelayMaxSeconds < out.Rate.DelayMinSeconds {
		res.addErr("rate.delay_min_seconds/delay_max_seconds must satisfy 0 <= min <= max")
	}
	if out.Rate.DelayMinSeconds < 10 {
		res.addWarn("rate.delay_min_seconds is very low (%d); provider may flag bulk sending", out.Rate.DelayMinSeconds)
	}

	if out.FollowUp.IntervalDays <= 0 {
		res.addErr("follow_up.interval_days must be > 0")
	}
	if out.FollowUp.MaxFollowUps < 0 {
		res.addErr("follow_up.max_follow_ups must be >= 0")
	}
	if out.FollowUp.MaxFollowUps > 5 {
		res.addWarn("follow_up.max_follow_ups is %d; more than 5 rounds rarely helps", out.FollowUp.MaxFollowUps)
	}

	if out.Responses.Enabled {
		if strings.TrimSpace(out.Responses.IMAPHost) == "" {
			res.addErr("responses.imap_host is required when responses.enabled=true")
		}
		if out.Responses.IMAPPort == 0 {
			res.addErr("responses.imap_port is required when responses.enabled=true")
		}
		if strings.TrimSpace(out.Responses.Username) == "" {
			res.addErr("responses.username is required when responses.enabled=true")
		}
		if strings.TrimSpace(out.Responses.Mailbox) == "" {
			out.Responses.Mailbox = "INBOX"
		}
	}

	if out.API.Port <= 0 || out.API.Port > 65535 {
		res.addErr("api.port must be 1..65535")
	}

	return out, res
}
