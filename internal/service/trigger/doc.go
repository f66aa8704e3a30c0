// Package trigger implements campaign triggering: when something happens to
// a lead (quiz completed, meditation downloaded, lead created, manual fire),
// the service records the behavior event, finds the active campaigns whose
// trigger and audience match, and enqueues one email per campaign template.
//
// Triggering is fire-and-forget from the caller's point of view: a missing
// lead is logged and swallowed so a public endpoint never fails because of
// campaign wiring.
package trigger
