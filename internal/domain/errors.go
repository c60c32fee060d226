package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound         = errors.New("not found")
	ErrTemplateNotFound = errors.New("no template registered for notification type")
	ErrInvalidType      = errors.New("invalid notification type")
	ErrInvalidAudience  = errors.New("audience must be a valid role or a non-empty user ID list")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrRateLimited      = errors.New("dispatch rate limit exceeded, try again later")
)
