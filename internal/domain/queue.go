package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// QueueStatus enumerates the lifecycle of a scheduled send. Entries move
// strictly forward: pending → processing → processed → sent. Failures loop
// back to pending via the reconciliation sweep until the attempt budget is
// spent, then land in dead_letter.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueProcessed  QueueStatus = "processed"
	QueueSent       QueueStatus = "sent"
	QueueFailed     QueueStatus = "failed"
	QueueDeadLetter QueueStatus = "dead_letter"
)

// IsTerminal reports whether no further transition is possible.
func (s QueueStatus) IsTerminal() bool {
	return s == QueueSent || s == QueueDeadLetter
}

// QueueEntry is one scheduled send for one (lead, template) pair.
type QueueEntry struct {
	ID                string      `json:"id" db:"id"`
	LeadID            string      `json:"lead_id" db:"lead_id"`
	TemplateID        string      `json:"template_id" db:"template_id"`
	ScheduledFor      time.Time   `json:"scheduled_for" db:"scheduled_for"`
	Status            QueueStatus `json:"status" db:"status"`
	ResolvedSubject   string      `json:"resolved_subject" db:"resolved_subject"`
	ResolvedBody      string      `json:"resolved_body" db:"resolved_body"`
	GenerationContext []byte      `json:"generation_context,omitempty" db:"generation_context"`
	Attempts          int         `json:"attempts" db:"attempts"`
	DedupKey          string      `json:"-" db:"dedup_key"`
	SentAt            *time.Time  `json:"sent_at" db:"sent_at"`
	LastAttemptAt     *time.Time  `json:"last_attempt_at" db:"last_attempt_at"`
	ErrorMessage      string      `json:"error_message,omitempty" db:"error_message"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`
}

// DedupKey derives the idempotency key for an enqueue: the same trigger
// occurrence can never enqueue the same (lead, template) pair twice, while a
// fresh occurrence (a quiz retake, say) produces a new key and re-enqueues.
func DedupKey(leadID, templateID, occurrenceID string) string {
	h := sha256.Sum256([]byte(leadID + "|" + templateID + "|" + occurrenceID))
	return hex.EncodeToString(h[:])
}

// Delivery is the immutable receipt of one successfully sent email.
// Open/click fields are owned by the transport provider's event webhook,
// which lives outside this backend.
type Delivery struct {
	ID                string    `json:"id" db:"id"`
	QueueEntryID      string    `json:"queue_entry_id" db:"queue_entry_id"`
	LeadID            string    `json:"lead_id" db:"lead_id"`
	TemplateID        string    `json:"template_id" db:"template_id"`
	Provider          string    `json:"provider" db:"provider"`
	ProviderMessageID string    `json:"provider_message_id" db:"provider_message_id"`
	SentAt            time.Time `json:"sent_at" db:"sent_at"`
}
