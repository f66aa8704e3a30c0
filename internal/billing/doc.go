// Package billing creates Stripe payment intents for the product catalog,
// records purchases after client-side confirmation, and answers
// purchase-gated content checks.
//
// Amounts always come from the server-side catalog. The client never sends a
// price.
package billing
