// Package responses polls the IMAP inbox for replies from known recruiters
// and records them against the matching application.
package responses

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/lakshyads/cv-mailer/internal/domain"
	"github.com/lakshyads/cv-mailer/internal/events"
	"github.com/lakshyads/cv-mailer/internal/store"
	"github.com/lakshyads/cv-mailer/internal/tracker"
)

const (
	fetchMax   = 50
	bodyMaxLen = 8 << 10
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Mailbox  string
}

type Poller struct {
	cfg     Config
	db      *store.DB
	tracker *tracker.Tracker
	hub     *events.Hub
}

func NewPoller(cfg Config, db *store.DB, tr *tracker.Tracker, hub *events.Hub) *Poller {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &Poller{cfg: cfg, db: db, tracker: tr, hub: hub}
}

// message is the slice of an inbound email the poller cares about.
type message struct {
	uid     imap.UID
	from    string
	subject string
	body    string
	date    time.Time
}

// RunOnce fetches unseen mail, matches senders against known recruiter
// addresses and records a response per match. Matched messages are marked
// seen; everything else is left untouched for the next pass.
func (p *Poller) RunOnce(ctx context.Context) (matched int, err error) {
	if p.cfg.Host == "" || p.cfg.Username == "" || p.cfg.Password == "" {
		return 0, errors.New("responses enabled but imap host/username/password missing")
	}

	known, err := p.db.KnownRecruiterEmails(ctx)
	if err != nil {
		return 0, err
	}
	if len(known) == 0 {
		return 0, nil
	}

	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)
	c, err := dialAndLogin(ctx, addr, p.cfg.Host, p.cfg.Username, p.cfg.Password)
	if err != nil {
		return 0, err
	}
	defer logoutAndClose(c)

	if _, err := c.Select(p.cfg.Mailbox, &imap.SelectOptions{ReadOnly: false}).Wait(); err != nil {
		return 0, fmt.Errorf("imap select %s: %w", p.cfg.Mailbox, err)
	}

	msgs, err := fetchUnseen(ctx, c, fetchMax)
	if err != nil {
		return 0, err
	}

	var seen []imap.UID
	for _, m := range msgs {
		recruiterID, ok := known[strings.ToLower(m.from)]
		if !ok {
			continue
		}
		if err := p.record(ctx, recruiterID, m); err != nil {
			log.Printf("level=warn msg=\"could not record response\" from=%s err=%v", m.from, err)
			continue
		}
		matched++
		seen = append(seen, m.uid)
	}

	if err := markSeen(c, seen); err != nil {
		log.Printf("level=warn msg=\"could not mark messages seen\" err=%v", err)
	}

	if matched > 0 {
		log.Printf("level=info msg=\"recorded recruiter responses\" count=%d", matched)
	}
	return matched, nil
}

// record attaches the reply to the recruiter's most recently emailed
// application.
func (p *Poller) record(ctx context.Context, recruiterID int64, m message) error {
	apps, err := p.db.ApplicationsForRecruiter(ctx, recruiterID)
	if err != nil {
		return err
	}
	if len(apps) == 0 {
		return errors.New("recruiter has no linked applications")
	}

	// Pick the application the recruiter most recently heard from us about.
	target := apps[0]
	var targetAt time.Time
	for _, app := range apps {
		last, err := p.db.LastSentEmail(ctx, app.ID)
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}
			return err
		}
		if last.SentAt != nil && last.SentAt.After(targetAt) {
			target = app
			targetAt = *last.SentAt
		}
	}

	var emailRecordID int64
	if last, err := p.db.LastSentEmail(ctx, target.ID); err == nil {
		emailRecordID = last.ID
	} else if !store.IsNotFound(err) {
		return err
	}

	typ := Classify(m.subject, m.body)
	text := m.subject
	if m.body != "" {
		text = m.subject + "\n\n" + m.body
	}
	_, err = p.tracker.RecordResponse(ctx, target.ID, emailRecordID, typ, text)
	if err != nil {
		return err
	}

	p.hub.Publish(events.Make("", events.TypeResponseRecorded, map[string]any{
		"application_id": target.ID,
		"from":           m.from,
		"response_type":  typ,
	}))
	return nil
}

var (
	interviewWords = []string{"interview", "schedule a call", "availability", "hiring manager would like"}
	negativeWords  = []string{"unfortunately", "not moving forward", "other candidates", "position has been filled", "regret to inform"}
	positiveWords  = []string{"next steps", "impressed", "great fit", "would love to"}
)

// Classify buckets a reply by keyword. Interview asks win over everything
// else, rejections over positives, and anything unrecognized is neutral.
func Classify(subject, body string) string {
	text := strings.ToLower(subject + " " + body)
	for _, w := range interviewWords {
		if strings.Contains(text, w) {
			return domain.ResponseInterviewRequest
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(text, w) {
			return domain.ResponseNegative
		}
	}
	for _, w := range positiveWords {
		if strings.Contains(text, w) {
			return domain.ResponsePositive
		}
	}
	return domain.ResponseNeutral
}

func dialAndLogin(ctx context.Context, addr, serverName, username, password string) (*imapclient.Client, error) {
	c, err := imapclient.DialTLS(addr, &imapclient.Options{
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12, ServerName: serverName},
	})
	if err != nil {
		return nil, fmt.Errorf("imap dial tls: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()

	if err := c.Login(username, password).Wait(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	return c, nil
}

// fetchUnseen pulls up to max unseen messages by UID, newest first, using
// BODY.PEEK[] so the fetch itself never sets \Seen.
func fetchUnseen(ctx context.Context, c *imapclient.Client, max int) ([]message, error) {
	cutoff := time.Now().AddDate(0, -3, 0)
	searchData, err := c.UIDSearch(&imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
		Since:   cutoff,
	}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap uid search unseen: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
		uids[i], uids[j] = uids[j], uids[i]
	}
	if len(uids) > max {
		uids = uids[:max]
	}

	bodyAll := &imap.FetchItemBodySection{
		Specifier: imap.PartSpecifierNone,
		Peek:      true,
	}
	fetchCmd := c.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:          true,
		Envelope:     true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodyAll},
	})
	defer func() { _ = fetchCmd.Close() }()

	var out []message
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}
		buf, err := msgData.Collect()
		if err != nil {
			return nil, fmt.Errorf("imap fetch collect: %w", err)
		}

		var m message
		m.uid = buf.UID
		if buf.Envelope != nil {
			m.subject = buf.Envelope.Subject
			m.date = buf.Envelope.Date
			m.from = firstAddr(buf.Envelope.From)
		}
		if raw := buf.FindBodySection(bodyAll); raw != nil {
			from, subject, body := parseRaw(raw)
			if m.from == "" {
				m.from = from
			}
			if m.subject == "" {
				m.subject = subject
			}
			m.body = body
		}
		if m.from == "" {
			continue
		}
		out = append(out, m)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("imap fetch close: %w", err)
	}
	return out, nil
}

func markSeen(c *imapclient.Client, uids []imap.UID) error {
	if len(uids) == 0 {
		return nil
	}
	cmd := c.Store(imap.UIDSetNum(uids...), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("imap store add seen: %w", err)
	}
	return nil
}

func logoutAndClose(c *imapclient.Client) {
	if err := c.Logout().Wait(); err != nil {
		log.Printf("level=warn msg=\"imap logout\" err=%v", err)
	}
	_ = c.Close()
}

func firstAddr(addrs []imap.Address) string {
	for i := range addrs {
		if a := strings.TrimSpace(addrs[i].Addr()); a != "" {
			return a
		}
	}
	return ""
}

// parseRaw is a best-effort extraction from the raw RFC822 bytes. It does
// not decode MIME parts; keyword matching tolerates the noise.
func parseRaw(raw []byte) (from, subject, body string) {
	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	if err != nil {
		return "", "", ""
	}
	if a, err := mail.ParseAddress(msg.Header.Get("From")); err == nil {
		from = a.Address
	}
	subject = msg.Header.Get("Subject")

	b, _ := io.ReadAll(io.LimitReader(msg.Body, bodyMaxLen))
	return from, subject, string(b)
}
