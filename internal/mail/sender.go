// Package mail sends the rendered emails over SMTP with daily-limit and
// pacing guards. It is the transport adapter: all follow-up/idempotency
// decisions live in the tracker.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"

	"github.com/lakshyads/cv-mailer/internal/store"
)

// ErrDailyLimit is returned when today's send quota is exhausted.
var ErrDailyLimit = errors.New("daily email limit reached")

type Config struct {
	Host            string
	Port            int
	Username        string
	Password        string
	SenderName      string
	FromAddress     string
	ResumePath      string
	ResumeDriveLink string
	DailyLimit      int
	DelayMin        time.Duration
	DelayMax        time.Duration
}

type Sender struct {
	cfg     Config
	db      *store.DB
	limiter *rate.Limiter

	// send is swappable in tests; the default dials SMTP.
	send func(m *gomail.Message) error
}

func NewSender(cfg Config, db *store.DB) *Sender {
	if cfg.DelayMin <= 0 {
		cfg.DelayMin = time.Second
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &Sender{
		cfg: cfg,
		db:  db,
		// The limiter enforces the minimum gap between sends; extra random
		// jitter up to DelayMax is added per send.
		limiter: rate.NewLimiter(rate.Every(cfg.DelayMin), 1),
		send: func(m *gomail.Message) error {
			return d.DialAndSend(m)
		},
	}
}

// Send delivers one HTML email and returns the generated message id.
// The daily counter is consumed before dialing, so a failed dial still
// burns a slot — the safe direction for a rate limit.
func (s *Sender) Send(ctx context.Context, toEmail, toName, subject, htmlBody string) (string, error) {
	_, limitReached, err := s.db.IncrementDailyCount(ctx, time.Now(), s.cfg.DailyLimit)
	if err != nil {
		return "", err
	}
	if limitReached {
		return "", ErrDailyLimit
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	if jitter := s.cfg.DelayMax - s.cfg.DelayMin; jitter > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(rand.Int63n(int64(jitter)))):
		}
	}

	messageID := s.newMessageID()
	body := injectDriveLink(htmlBody, s.cfg.ResumeDriveLink)

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.cfg.FromAddress, s.cfg.SenderName)
	if toName != "" {
		m.SetAddressHeader("To", toEmail, toName)
	} else {
		m.SetHeader("To", toEmail)
	}
	m.SetHeader("Subject", subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/plain", htmlToText(body))
	m.AddAlternative("text/html", body)
	if s.cfg.ResumePath != "" {
		m.Attach(s.cfg.ResumePath)
	}

	if err := s.send(m); err != nil {
		return "", fmt.Errorf("smtp send to %s: %w", toEmail, err)
	}

	log.Printf("level=info msg=\"email sent\" to=%s message_id=%s", toEmail, messageID)
	return messageID, nil
}

func (s *Sender) newMessageID() string {
	domainPart := "cvmailer.local"
	if i := strings.LastIndex(s.cfg.FromAddress, "@"); i >= 0 && i < len(s.cfg.FromAddress)-1 {
		domainPart = s.cfg.FromAddress[i+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domainPart)
}

// injectDriveLink adds the resume link inside the body's closing markup so
// the HTML stays valid. No-op when the link is empty or already present.
func injectDriveLink(body, link string) string {
	if link == "" || strings.Contains(body, link) {
		return body
	}
	html := fmt.Sprintf(
		`<p style="margin-top: 16px;"><strong>Resume:</strong> <a href="%s">View resume</a></p>`, link)
	if strings.Contains(body, "</div>") {
		return strings.Replace(body, "</div>", html+"</div>", 1)
	}
	if strings.Contains(body, "</body>") {
		return strings.Replace(body, "</body>", html+"</body>", 1)
	}
	return body + html
}

// htmlToText derives the plain-text alternative part from the HTML body.
func htmlToText(htmlBody string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return ""
	}
	var parts []string
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		if t := strings.TrimSpace(sel.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return strings.TrimSpace(doc.Text())
	}
	return strings.Join(parts, "\n\n")
}
