package trigger

import "errors"

// Sentinel errors for the trigger service layer.
var (
	ErrLeadNotFound     = errors.New("lead not found")
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrCampaignInactive = errors.New("campaign is not active")
	ErrInvalidTrigger   = errors.New("invalid trigger type")
)
