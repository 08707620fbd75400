// Package services – Responder
//
// The reply generator is injected behind a small interface so the gate logic
// stays independent of any model provider. The bundled implementation
// produces deterministic canned replies, which is enough for local runs and
// for exercising the counting and blocking paths end to end.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/luminahq/go-chat-gate/internal/domain"
)

// Responder generates the assistant reply for one prompt.
//
// Implementations must honor the context for cancellation and be safe for
// concurrent use. History carries the stored transcript in append order,
// excluding the prompt being answered.
type Responder interface {
	Respond(ctx context.Context, history []domain.StoredMessage, prompt, instruction string) (string, error)
}

// CannedResponder is the default Responder. It echoes the prompt into a
// fixed template and notes the active system instruction when one is set.
type CannedResponder struct{}

// Respond implements Responder.
func (CannedResponder) Respond(_ context.Context, history []domain.StoredMessage, prompt, instruction string) (string, error) {
	var b strings.Builder
	if instruction != "" {
		fmt.Fprintf(&b, "[%s] ", strings.TrimSpace(instruction))
	}
	fmt.Fprintf(&b, "You said: %q.", prompt)
	if n := len(history); n > 0 {
		fmt.Fprintf(&b, " This conversation has %d earlier messages.", n)
	}
	return b.String(), nil
}
