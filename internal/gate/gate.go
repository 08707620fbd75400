// Package gate implements the allow/block decision applied before any
// dispatch. The decision is pure and advisory: it stops obviously-over-limit
// network calls, but the backend remains authoritative and can return an
// equivalent blocked signal on its own.
package gate

import "github.com/luminahq/go-chat-gate/internal/domain"

// BlockedTier names the escalation step to present when a send is blocked.
type BlockedTier string

const (
	// BlockedGuest asks an anonymous caller for an email.
	BlockedGuest BlockedTier = "guest"
	// BlockedFinal is the hard stop once the identified allowance is spent.
	BlockedFinal BlockedTier = "final"
)

// Decision is the outcome of a gate check. Derived, never persisted.
type Decision struct {
	Allowed     bool
	BlockedTier BlockedTier // set only when !Allowed
}

// Check decides whether a send is permitted for the identity at the current
// quota. An anonymous caller is blocked at the guest limit; an identified one
// at the final limit. A degraded quota record (failed remote read) still gates
// on its conservative count, so a caller is never blocked by an outage alone.
//
// Check never mutates state and has no side effects.
func Check(id domain.Identity, q domain.QuotaRecord) Decision {
	limit := id.Tier.Limit()
	if q.Count < limit {
		return Decision{Allowed: true}
	}
	if id.Identified() {
		return Decision{BlockedTier: BlockedFinal}
	}
	return Decision{BlockedTier: BlockedGuest}
}
