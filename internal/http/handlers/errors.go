// Package handlers defines HTTP-layer error codes used across all API
// endpoints.
//
// This file centralizes symbolic error code constants that are mapped to
// HTTP responses via the fail() helper in this package. Codes are lowercase
// snake_case; generic codes mirror common HTTP status semantics, and
// domain-specific codes cover business outcomes a status alone cannot
// convey. Clients branch on these codes for programmatic error handling.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeAnswerFailed = "answer_failed"
	ErrCodeInvalidEmail = "invalid_email"
)
