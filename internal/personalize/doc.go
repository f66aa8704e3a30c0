// Package personalize resolves template content into the final email for a
// lead: an optional LLM rewrite of subject and body, literal merge-tag
// substitution, and HTML-to-plain-text derivation for the text part.
//
// The LLM path is strictly best-effort. Every failure mode (transport,
// rate limit, unparseable response, empty fields) surfaces as an error the
// caller answers by sending the raw template instead; a personalization
// outage must never block the queue.
package personalize
