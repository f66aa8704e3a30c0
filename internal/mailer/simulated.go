package mailer

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/innerpath/studio/internal/pkg/logger"
)

// SimulatedSender logs sends instead of delivering them. The pipeline treats
// simulated sends as successful so local environments exercise the whole
// queue lifecycle.
type SimulatedSender struct {
	mu   sync.Mutex
	sent []Message
}

// NewSimulatedSender creates a simulated sender.
func NewSimulatedSender() *SimulatedSender {
	return &SimulatedSender{}
}

// Provider identifies this transport in delivery receipts.
func (s *SimulatedSender) Provider() string { return "simulated" }

// Send logs the message and records it for inspection.
func (s *SimulatedSender) Send(_ context.Context, msg *Message) (string, error) {
	s.mu.Lock()
	s.sent = append(s.sent, *msg)
	s.mu.Unlock()

	logger.Info("simulated send",
		"recipient", msg.To,
		"subject", msg.Subject,
		"body_bytes", len(msg.HTMLBody))
	return fmt.Sprintf("simulated-%s", uuid.New().String()), nil
}

// Sent returns a copy of everything "sent" so far. Tests only.
func (s *SimulatedSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}
