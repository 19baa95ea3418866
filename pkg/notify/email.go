package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailSender delivers messages through the SendGrid API.
type EmailSender struct {
	client *sendgrid.Client
	from   *sgmail.Email
}

// NewEmailSender constructs a SendGrid-backed sender.
func NewEmailSender(apiKey, fromName, fromEmail string) *EmailSender {
	return &EmailSender{
		client: sendgrid.NewSendClient(apiKey),
		from:   sgmail.NewEmail(fromName, fromEmail),
	}
}

// Channel identifies the delivery channel.
func (s *EmailSender) Channel() string { return "email" }

// Send delivers a single plain-text email.
func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("email recipient missing")
	}

	to := sgmail.NewEmail("", msg.To)
	mail := sgmail.NewSingleEmail(s.from, msg.Subject, to, msg.Body, "")

	resp, err := s.client.SendWithContext(ctx, mail)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
