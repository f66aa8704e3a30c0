package billing

import "errors"

// Sentinel errors for the billing service layer.
var (
	ErrUnknownProduct   = errors.New("unknown product")
	ErrPurchaseNotFound = errors.New("purchase not found")
	ErrNotSucceeded     = errors.New("payment intent has not succeeded")
	ErrNotConfigured    = errors.New("payment provider is not configured")
)
