package mail

import (
	"bytes"
	"fmt"
	"html/template"
)

// Template data for the two outbound email kinds. RecruiterName empty means
// the greeting falls back to "Hiring Manager".
type FirstContactData struct {
	RecruiterName string
	CompanyName   string
	Position      string
	Location      string
	JobPostingURL string
	CustomMessage string
	SenderName    string
}

type FollowUpData struct {
	RecruiterName  string
	CompanyName    string
	Position       string
	Location       string
	FollowUpNumber int
	SenderName     string
}

var firstContactBody = template.Must(template.New("first_contact").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <p>Dear {{with .RecruiterName}}{{.}}{{else}}Hiring Manager{{end}},</p>

        <p>I hope this email finds you well. I am writing to express my strong interest in the <strong>{{.Position}}</strong> position at <strong>{{.CompanyName}}</strong>{{with .Location}} ({{.}}){{end}}.</p>

        {{if .JobPostingURL}}
        <p>I came across the posting here: <a href="{{.JobPostingURL}}">{{.JobPostingURL}}</a></p>
        {{end}}

        {{if .CustomMessage}}
        <p>{{.CustomMessage}}</p>
        {{else}}
        <p>With my background and experience, I believe I would be a valuable addition to {{.CompanyName}}. I have attached my resume for your review, and I would welcome the opportunity to discuss how my skills and experience align with your needs.</p>
        {{end}}

        <p>Thank you for considering my application. I look forward to hearing from you.</p>

        <p>Best regards,<br>
        {{.SenderName}}</p>
    </div>
</body>
</html>
`))

var followUpBody = template.Must(template.New("follow_up").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <p>Dear {{with .RecruiterName}}{{.}}{{else}}Hiring Manager{{end}},</p>

        <p>I wanted to follow up on my previous email regarding the <strong>{{.Position}}</strong> position at <strong>{{.CompanyName}}</strong>{{with .Location}} ({{.}}){{end}}.</p>

        <p>I remain very interested in this opportunity and would appreciate any updates on the status of my application. I am happy to provide any additional information that might be helpful in your evaluation process.</p>

        <p>Thank you for your time and consideration.</p>

        <p>Best regards,<br>
        {{.SenderName}}</p>
    </div>
</body>
</html>
`))

// RenderFirstContact produces the subject and HTML body for a first-contact
// email.
func RenderFirstContact(d FirstContactData) (subject, body string, err error) {
	subject = fmt.Sprintf("Application for %s Position at %s", d.Position, d.CompanyName)
	var buf bytes.Buffer
	if err := firstContactBody.Execute(&buf, d); err != nil {
		return "", "", fmt.Errorf("render first contact: %w", err)
	}
	return subject, buf.String(), nil
}

// RenderFollowUp produces the subject and HTML body for a follow-up email.
func RenderFollowUp(d FollowUpData) (subject, body string, err error) {
	subject = fmt.Sprintf("Follow-up: Application for %s Position at %s", d.Position, d.CompanyName)
	var buf bytes.Buffer
	if err := followUpBody.Execute(&buf, d); err != nil {
		return "", "", fmt.Errorf("render follow up: %w", err)
	}
	return subject, buf.String(), nil
}
