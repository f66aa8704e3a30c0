package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/innerpath/studio/internal/domain"
)

// QueueRepo stores queue entries and delivery receipts.
type QueueRepo struct{ db *sql.DB }

// NewQueueRepo creates a Postgres-backed queue repository.
func NewQueueRepo(db *sql.DB) *QueueRepo { return &QueueRepo{db: db} }

const queueColumns = `id, lead_id, template_id, scheduled_for, status,
	COALESCE(resolved_subject, ''), COALESCE(resolved_body, ''), generation_context,
	attempts, dedup_key, sent_at, last_attempt_at, COALESCE(error_message, ''), created_at`

func scanQueueEntry(row interface{ Scan(...interface{}) error }) (*domain.QueueEntry, error) {
	e := &domain.QueueEntry{}
	if err := row.Scan(&e.ID, &e.LeadID, &e.TemplateID, &e.ScheduledFor, &e.Status,
		&e.ResolvedSubject, &e.ResolvedBody, &e.GenerationContext,
		&e.Attempts, &e.DedupKey, &e.SentAt, &e.LastAttemptAt, &e.ErrorMessage, &e.CreatedAt); err != nil {
		return nil, err
	}
	return e, nil
}

// EnqueueEntry inserts a queue entry. The dedup key's unique index makes the
// insert a no-op when the same occurrence already enqueued this template for
// this lead; the bool reports whether a row was written.
func (r *QueueRepo) EnqueueEntry(ctx context.Context, e *domain.QueueEntry) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO studio_email_queue
			(id, lead_id, template_id, scheduled_for, status, attempts, dedup_key, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
		ON CONFLICT (dedup_key) DO NOTHING
	`, e.ID, e.LeadID, e.TemplateID, e.ScheduledFor, e.Status, e.DedupKey, e.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("enqueue entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enqueue entry: %w", err)
	}
	return n > 0, nil
}

// ClaimDue atomically claims up to limit due pending entries. SKIP LOCKED
// keeps concurrent drainers from claiming the same row; the status flip to
// processing happens in the same statement as the selection. The claim is
// what consumes an attempt, so entries orphaned by a crash mid-send still
// count against the retry budget when the sweeper requeues them.
func (r *QueueRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.QueueEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		WITH claimed AS (
			SELECT id FROM studio_email_queue
			WHERE status = 'pending' AND scheduled_for <= $1
			ORDER BY scheduled_for
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE studio_email_queue q
		SET status = 'processing', attempts = q.attempts + 1, last_attempt_at = $1
		FROM claimed
		WHERE q.id = claimed.id
		RETURNING q.id, q.lead_id, q.template_id, q.scheduled_for, q.status,
			COALESCE(q.resolved_subject, ''), COALESCE(q.resolved_body, ''), q.generation_context,
			q.attempts, q.dedup_key, q.sent_at, q.last_attempt_at, COALESCE(q.error_message, ''), q.created_at
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due entries: %w", err)
	}
	defer rows.Close()
	return collectQueueEntries(rows)
}

func collectQueueEntries(rows *sql.Rows) ([]domain.QueueEntry, error) {
	var entries []domain.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (r *QueueRepo) MarkProcessed(ctx context.Context, id, subject, body string, generationContext []byte) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE studio_email_queue
		SET status = 'processed', resolved_subject = $2, resolved_body = $3, generation_context = $4
		WHERE id = $1
	`, id, subject, body, generationContext); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

func (r *QueueRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE studio_email_queue
		SET status = 'sent', sent_at = $2
		WHERE id = $1
	`, id, at); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

func (r *QueueRepo) MarkFailed(ctx context.Context, id, errMsg string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE studio_email_queue
		SET status = 'failed', error_message = $2, last_attempt_at = $3
		WHERE id = $1
	`, id, errMsg, at); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

func (r *QueueRepo) MarkDeadLetter(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE studio_email_queue SET status = 'dead_letter' WHERE id = $1
	`, id); err != nil {
		return fmt.Errorf("mark dead letter: %w", err)
	}
	return nil
}

func (r *QueueRepo) Requeue(ctx context.Context, id string, scheduledFor time.Time) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE studio_email_queue
		SET status = 'pending', scheduled_for = $2, error_message = NULL
		WHERE id = $1
	`, id, scheduledFor); err != nil {
		return fmt.Errorf("requeue entry: %w", err)
	}
	return nil
}

func (r *QueueRepo) ListFailed(ctx context.Context) ([]domain.QueueEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+queueColumns+` FROM studio_email_queue
		WHERE status = 'failed'
		ORDER BY scheduled_for
	`)
	if err != nil {
		return nil, fmt.Errorf("list failed entries: %w", err)
	}
	defer rows.Close()
	return collectQueueEntries(rows)
}

func (r *QueueRepo) ListStuck(ctx context.Context, olderThan time.Time) ([]domain.QueueEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+queueColumns+` FROM studio_email_queue
		WHERE status IN ('processing', 'processed') AND last_attempt_at < $1
		ORDER BY scheduled_for
	`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("list stuck entries: %w", err)
	}
	defer rows.Close()
	return collectQueueEntries(rows)
}

// ListByStatus returns queue entries for admin inspection. status "" lists
// everything.
func (r *QueueRepo) ListByStatus(ctx context.Context, status domain.QueueStatus, limit int) ([]domain.QueueEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + queueColumns + ` FROM studio_email_queue`
	var args []interface{}
	if status != "" {
		q += ` WHERE status = $1`
		args = append(args, status)
	}
	q += fmt.Sprintf(` ORDER BY scheduled_for DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	defer rows.Close()
	return collectQueueEntries(rows)
}

func (r *QueueRepo) InsertDelivery(ctx context.Context, d *domain.Delivery) error {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO studio_deliveries
			(id, queue_entry_id, lead_id, template_id, provider, provider_message_id, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.ID, d.QueueEntryID, d.LeadID, d.TemplateID, d.Provider, d.ProviderMessageID, d.SentAt); err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (r *QueueRepo) ListDeliveries(ctx context.Context, leadID string) ([]domain.Delivery, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, queue_entry_id, lead_id, template_id, provider, provider_message_id, sent_at
		FROM studio_deliveries
		WHERE lead_id = $1
		ORDER BY sent_at DESC
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []domain.Delivery
	for rows.Next() {
		var d domain.Delivery
		if err := rows.Scan(&d.ID, &d.QueueEntryID, &d.LeadID, &d.TemplateID,
			&d.Provider, &d.ProviderMessageID, &d.SentAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}
