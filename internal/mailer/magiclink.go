package mailer

import (
	"context"
	"fmt"

	"github.com/innerpath/studio/internal/config"
)

// MagicLinkMailer frames admin login links in the brand's transactional
// template and delivers them through whatever Sender is configured.
// It satisfies the auth service's LinkMailer interface.
type MagicLinkMailer struct {
	sender Sender
	brand  config.BrandConfig
	ttlMin int
}

// NewMagicLinkMailer creates a magic-link mailer.
func NewMagicLinkMailer(sender Sender, brand config.BrandConfig, ttlMinutes int) *MagicLinkMailer {
	return &MagicLinkMailer{sender: sender, brand: brand, ttlMin: ttlMinutes}
}

// SendMagicLink mails the one-time login link.
func (m *MagicLinkMailer) SendMagicLink(ctx context.Context, email, loginURL string) error {
	subject := fmt.Sprintf("Your %s login link", m.brand.SiteName)

	html := fmt.Sprintf(`<html><body>
<p>Hello,</p>
<p>Click the link below to sign in to the %s dashboard:</p>
<p><a href="%s">Sign in</a></p>
<p>This link can be used once and expires in %d minutes. If you didn't
request it, you can safely ignore this email.</p>
</body></html>`, m.brand.SiteName, loginURL, m.ttlMin)

	text := fmt.Sprintf(`Hello,

Sign in to the %s dashboard:

%s

This link can be used once and expires in %d minutes. If you didn't request
it, you can safely ignore this email.`, m.brand.SiteName, loginURL, m.ttlMin)

	_, err := m.sender.Send(ctx, &Message{
		To:       email,
		Subject:  subject,
		HTMLBody: html,
		TextBody: text,
	})
	return err
}
