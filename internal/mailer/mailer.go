// Package mailer delivers finished emails through a transport provider.
//
// SendGrid is the primary transport, SES the fallback, and a simulated
// sender takes over when neither is configured so local development and the
// queue pipeline behave identically without credentials.
package mailer

import (
	"context"

	"github.com/innerpath/studio/internal/config"
	"github.com/innerpath/studio/internal/pkg/logger"
)

// Message is one outbound email, fully resolved: merge tags substituted and
// the plain-text part already derived.
type Message struct {
	To       string
	ToName   string
	Subject  string
	HTMLBody string
	TextBody string
}

// Sender delivers a single email. Implementations must be safe for
// concurrent use. The returned string is the provider's message ID for the
// delivery receipt.
type Sender interface {
	Send(ctx context.Context, msg *Message) (string, error)
	Provider() string
}

// New picks the best configured transport: SendGrid, then SES, then the
// simulated sender.
func New(ctx context.Context, cfg *config.Config) Sender {
	if cfg.SendGrid.Enabled && cfg.SendGrid.APIKey != "" {
		logger.Info("mailer transport selected", "provider", "sendgrid")
		return NewSendGridSender(cfg.SendGrid, cfg.Brand)
	}
	if cfg.SES.Enabled {
		s, err := NewSESSender(ctx, cfg.SES, cfg.Brand)
		if err != nil {
			logger.Error("ses sender init failed, falling back to simulated", "error", err)
		} else {
			logger.Info("mailer transport selected", "provider", "ses")
			return s
		}
	}
	logger.Warn("no email transport configured, sends will be simulated")
	return NewSimulatedSender()
}
