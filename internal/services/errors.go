// Package services defines the business logic of the quota store: usage
// gating, email capture, session transcripts, and quota reads. This file
// centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer.
package services

import "errors"

var (
	// ErrEmptyPrompt is returned when a conversation request contains an
	// empty message.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrTooLong is returned when a message exceeds the maximum configured
	// length limit.
	ErrTooLong = errors.New("prompt too long")

	// ErrInvalidEmail is returned when an email capture request carries a
	// value that cannot be an address.
	ErrInvalidEmail = errors.New("invalid email")

	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAnswerFailed wraps failures from the reply generator so handlers
	// can map them to a stable error code.
	ErrAnswerFailed = errors.New("answer generation failed")
)
