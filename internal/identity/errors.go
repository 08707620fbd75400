// Package identity resolves which identity tier a caller currently has.
// This file centralizes the package's error values.
package identity

import "errors"

var (
	// ErrInvalidEmail is returned when a submitted email fails the minimal
	// shape check.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrNoSession is returned by SignOut when no session is active.
	ErrNoSession = errors.New("no active session")
)
