package mailer

import (
	"context"
	"fmt"

	"github.com/innerpath/studio/internal/config"
	"github.com/innerpath/studio/internal/pkg/logger"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridSender delivers email through the SendGrid v3 API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	replyTo   string
}

// NewSendGridSender creates a SendGrid-backed sender.
func NewSendGridSender(cfg config.SendGridConfig, brand config.BrandConfig) *SendGridSender {
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: brand.FromEmail,
		fromName:  brand.FromName,
		replyTo:   brand.ReplyTo,
	}
}

// Provider identifies this transport in delivery receipts.
func (s *SendGridSender) Provider() string { return "sendgrid" }

// Send delivers one message. SendGrid's X-Message-Id response header is the
// provider message ID.
func (s *SendGridSender) Send(ctx context.Context, msg *Message) (string, error) {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	m := mail.NewSingleEmail(from, msg.Subject, to, msg.TextBody, msg.HTMLBody)
	if s.replyTo != "" {
		m.SetReplyTo(mail.NewEmail(s.fromName, s.replyTo))
	}

	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return "", fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}

	messageID := ""
	if ids, ok := resp.Headers["X-Message-Id"]; ok && len(ids) > 0 {
		messageID = ids[0]
	}
	logger.Info("email sent", "provider", "sendgrid", "recipient", msg.To, "status", resp.StatusCode)
	return messageID, nil
}
