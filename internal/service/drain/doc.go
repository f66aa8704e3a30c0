// Package drain implements the queue drainer: it claims due pending queue
// entries, resolves their content (optional LLM rewrite, merge tags, plain
// text derivation), sends them through the configured transport, and records
// a delivery receipt. The companion reconciliation sweep requeues failed and
// stuck entries with exponential backoff and retires entries that exhausted
// their attempts to dead_letter.
//
// Claiming flips status pending → processing atomically (the repository uses
// FOR UPDATE SKIP LOCKED), so overlapping drainer instances never pick the
// same entry twice.
package drain
