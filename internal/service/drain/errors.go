package drain

import "errors"

// Sentinel errors for the drain service layer.
var (
	ErrLeadNotFound     = errors.New("lead not found")
	ErrTemplateNotFound = errors.New("template not found")
)
