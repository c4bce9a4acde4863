package services

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Notifier is the outbound email collaborator. Send failures are logged by
// callers and never abort a scheduling state change.
type Notifier interface {
	Send(ctx context.Context, toEmail, toName, subject, body string) error
}

type SendGridNotifier struct {
	apiKey    string
	fromEmail string
	fromName  string
}

func NewSendGridNotifier(apiKey, fromEmail, fromName string) *SendGridNotifier {
	if fromName == "" {
		fromName = "MentorApp"
	}
	return &SendGridNotifier{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (n *SendGridNotifier) Send(ctx context.Context, toEmail, toName, subject, body string) error {
	from := mail.NewEmail(n.fromName, n.fromEmail)
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, body, body)

	client := sendgrid.NewSendClient(n.apiKey)
	response, err := client.Send(message)
	if err != nil {
		return fmt.Errorf("sendgrid send to %s: %w", toEmail, err)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
	}
	return nil
}

// LogNotifier stands in when no SendGrid key is configured (local runs).
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, toEmail, _, subject, _ string) error {
	log.Printf("notify (dry-run): to=%s subject=%q", toEmail, subject)
	return nil
}
