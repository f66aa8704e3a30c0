package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/innerpath/studio/internal/domain"
	"github.com/innerpath/studio/internal/pkg/logger"
)

// Allowlist decides which email addresses may receive an admin login link.
// config.AuthConfig satisfies this.
type Allowlist interface {
	IsAdmin(email string) bool
}

// LinkMailer delivers the login link to the admin's inbox.
type LinkMailer interface {
	SendMagicLink(ctx context.Context, email, loginURL string) error
}

// Service implements magic-link login and session validation.
type Service struct {
	repo       Repository
	allow      Allowlist
	mailer     LinkMailer
	baseURL    string
	linkTTL    time.Duration
	sessionTTL time.Duration
	now        func() time.Time

	ratePerMin int
	rateMu     sync.Mutex
	recent     map[string][]time.Time
}

// NewService creates an auth service. baseURL is the public site origin the
// login link points back to.
func NewService(repo Repository, allow Allowlist, mailer LinkMailer, baseURL string, linkTTL, sessionTTL time.Duration) *Service {
	return &Service{
		repo:       repo,
		allow:      allow,
		mailer:     mailer,
		baseURL:    strings.TrimRight(baseURL, "/"),
		linkTTL:    linkTTL,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// WithClock overrides the service clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithRateLimit caps magic-link requests per address per minute. Zero or
// negative disables the limit.
func (s *Service) WithRateLimit(perMinute int) *Service {
	s.ratePerMin = perMinute
	s.recent = make(map[string][]time.Time)
	return s
}

// RequestLink issues a magic link for the given email and mails it.
// Addresses not on the allow-list produce no link and no email, and the nil
// return is indistinguishable from success, so the endpoint cannot be used
// to enumerate admin addresses. Only ErrRateLimited surfaces: the limit is
// enforced per address before the allow-list check, so a 429 carries no
// admin-status signal either.
func (s *Service) RequestLink(ctx context.Context, email string) error {
	err := s.issueLink(ctx, email)
	if errors.Is(err, ErrNotAuthorized) {
		return nil
	}
	return err
}

func (s *Service) issueLink(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return fmt.Errorf("email is required")
	}

	if s.limited(email) {
		logger.Warn("magic link refused", "email", email, "reason", "rate limited")
		return ErrRateLimited
	}
	if !s.allow.IsAdmin(email) {
		logger.Warn("magic link refused", "email", email, "reason", "not on allow-list")
		return ErrNotAuthorized
	}

	token, err := newToken()
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	link := &domain.MagicLink{
		ID:        uuid.New().String(),
		Email:     email,
		TokenHash: HashToken(token),
		ExpiresAt: s.now().Add(s.linkTTL),
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateMagicLink(ctx, link); err != nil {
		return fmt.Errorf("create magic link: %w", err)
	}

	loginURL := fmt.Sprintf("%s/admin/verify?token=%s", s.baseURL, url.QueryEscape(token))
	if err := s.mailer.SendMagicLink(ctx, email, loginURL); err != nil {
		return fmt.Errorf("send magic link: %w", err)
	}

	logger.Info("magic link issued", "email", email, "expires_at", link.ExpiresAt)
	return nil
}

// Verify redeems a magic link. Checks run in order: unknown token, expired,
// already used. On success the link is consumed and a fresh admin session is
// minted; the returned string is the raw session token for the cookie.
func (s *Service) Verify(ctx context.Context, token string) (*domain.AdminSession, string, error) {
	link, err := s.repo.GetMagicLinkByTokenHash(ctx, HashToken(token))
	if err != nil {
		return nil, "", err
	}
	if link.Expired(s.now()) {
		return nil, "", ErrExpired
	}
	if link.Used() {
		return nil, "", ErrAlreadyUsed
	}

	// Conditional update: a concurrent redemption of the same token loses here.
	if err := s.repo.ConsumeMagicLink(ctx, link.ID); err != nil {
		return nil, "", err
	}

	sessionToken, err := newToken()
	if err != nil {
		return nil, "", fmt.Errorf("generate session token: %w", err)
	}
	session := &domain.AdminSession{
		ID:        uuid.New().String(),
		Email:     link.Email,
		TokenHash: HashToken(sessionToken),
		ExpiresAt: s.now().Add(s.sessionTTL),
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, "", fmt.Errorf("create session: %w", err)
	}

	logger.Info("admin session created", "email", link.Email, "expires_at", session.ExpiresAt)
	return session, sessionToken, nil
}

// ValidateSession resolves a session cookie token. Returns ErrUnauthenticated
// for missing or expired sessions.
func (s *Service) ValidateSession(ctx context.Context, token string) (*domain.AdminSession, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	session, err := s.repo.GetSessionByTokenHash(ctx, HashToken(token))
	if err != nil {
		return nil, err
	}
	if session.Expired(s.now()) {
		return nil, ErrUnauthenticated
	}
	return session, nil
}

// Logout deletes the session for the given cookie token.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.repo.DeleteSession(ctx, HashToken(token))
}

// limited records a request for the address and reports whether it exceeds
// the per-minute budget. Sliding window over the service clock.
func (s *Service) limited(email string) bool {
	if s.ratePerMin <= 0 {
		return false
	}
	s.rateMu.Lock()
	defer s.rateMu.Unlock()

	now := s.now()
	cutoff := now.Add(-time.Minute)
	kept := s.recent[email][:0]
	for _, at := range s.recent[email] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	if len(kept) >= s.ratePerMin {
		s.recent[email] = kept
		return true
	}
	s.recent[email] = append(kept, now)
	return false
}

// HashToken returns the hex SHA-256 of a raw token. Only hashes are stored;
// a database leak does not leak usable credentials.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
