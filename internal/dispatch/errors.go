// Package dispatch orchestrates one send through the gate: validation,
// optimistic echo, gate check, the network call, response classification,
// and state reconciliation. This file centralizes the error taxonomy; all
// classification happens inside the dispatcher, and callers above it only
// ever see these values inside a structured Outcome.
package dispatch

import "errors"

var (
	// ErrEmptyMessage rejects empty or whitespace-only input. Raised before
	// any side effect: no network call, no transcript mutation.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrBusy rejects a second concurrent send for the same conversation.
	// One send is in flight at a time; this is a mutex, not a queue.
	ErrBusy = errors.New("a send is already in flight")

	// ErrNetwork marks a transport failure or timeout. Retried once with a
	// short backoff before being surfaced.
	ErrNetwork = errors.New("network failure")

	// ErrProtocol marks an unparsable or unrecognized response shape.
	// Never retried.
	ErrProtocol = errors.New("unrecognized response")

	// ErrIdentityStale marks a response that arrived for an identity no
	// longer current. The result is discarded silently, never shown as an
	// error to the caller.
	ErrIdentityStale = errors.New("identity changed mid-flight")
)
