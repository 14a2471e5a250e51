package accounts

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/platinummonkey/potkeeper/pkg/observability"
)

// Message is one outgoing email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers account emails.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the structured log instead of delivering them.
type LogMailer struct {
	logger *observability.Logger
}

func NewLogMailer(logger *observability.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	observability.FromContextOr(ctx, m.logger).WithFields(map[string]interface{}{
		"to":      msg.To,
		"subject": msg.Subject,
		"body":    msg.Text,
	}).Info("email not delivered, no mail transport configured")
	return nil
}

var mailTemplate = template.Must(template.New("mail").Parse(`<!DOCTYPE html>
<html>
<body>
  <h2>{{.Heading}}</h2>
  {{range .Lines}}<p>{{.}}</p>
  {{end}}{{if .Link}}<p><a href="{{.Link}}">{{.LinkText}}</a></p>
  <p>{{.Link}}</p>{{end}}
  {{if .Footer}}<p><small>{{.Footer}}</small></p>{{end}}
</body>
</html>
`))

type mailContent struct {
	Heading  string
	Lines    []string
	Link     string
	LinkText string
	Footer   string
}

func render(to, subject string, c mailContent) Message {
	var text bytes.Buffer
	text.WriteString(c.Heading + "\n\n")
	for _, l := range c.Lines {
		text.WriteString(l + "\n")
	}
	if c.Link != "" {
		fmt.Fprintf(&text, "\n%s: %s\n", c.LinkText, c.Link)
	}
	if c.Footer != "" {
		text.WriteString("\n" + c.Footer + "\n")
	}

	var html bytes.Buffer
	if err := mailTemplate.Execute(&html, c); err != nil {
		html.Reset()
	}
	return Message{To: to, Subject: subject, Text: text.String(), HTML: html.String()}
}

func verificationMail(baseURL, to, token string) Message {
	return render(to, "Verify your email for Potkeeper", mailContent{
		Heading:  "Welcome to Potkeeper!",
		Lines:    []string{"Please verify your email address to complete your account setup."},
		Link:     baseURL + "/api/auth/verify-email?token=" + token,
		LinkText: "Verify email address",
		Footer:   "If you did not create an account, you can ignore this email.",
	})
}

func welcomeMail(baseURL, to, displayName string) Message {
	name := displayName
	if name == "" {
		name = "there"
	}
	return render(to, "Welcome to Potkeeper!", mailContent{
		Heading: fmt.Sprintf("Welcome to Potkeeper, %s!", name),
		Lines: []string{
			"Add your first pot from the home screen.",
			"Record watering and fertilizing as you go, and track growth with photos.",
		},
		Link:     baseURL,
		LinkText: "Open Potkeeper",
	})
}

func resetMail(baseURL, to, token string) Message {
	return render(to, "Reset your password for Potkeeper", mailContent{
		Heading:  "Password reset request",
		Lines:    []string{"We received a request to reset your password.", "This link expires in 24 hours."},
		Link:     baseURL + "/reset-password.html?token=" + token,
		LinkText: "Reset password",
		Footer:   "If you did not request a reset, you can ignore this email. Your password will remain unchanged.",
	})
}

func changeEmailMail(baseURL, current, to, token string) Message {
	return render(to, "Verify your new email for Potkeeper", mailContent{
		Heading: "Email change request",
		Lines: []string{
			"Current email: " + current,
			"New email: " + to,
			"This link expires in 24 hours.",
		},
		Link:     baseURL + "/api/auth/verify-new-email?token=" + token,
		LinkText: "Verify new email address",
		Footer:   "If you did not request this change, please contact support immediately.",
	})
}
