// Package domain defines the shared data model for the gate: identity tiers,
// quota records, the local conversation transcript, and the persistence models
// used by the reference backend. Types here carry no behavior beyond simple
// derivations; business rules live in the gate, identity, and dispatch packages.
package domain

// Tier classifies how strongly a caller is identified. Exactly one tier is
// active at any instant, and precedence is a fixed total order:
// Authenticated > EmailIdentified > Anonymous.
type Tier string

const (
	// TierAnonymous is a caller known only by a device fingerprint.
	TierAnonymous Tier = "anonymous"
	// TierEmailIdentified is a caller who supplied an email but has not
	// signed in. The remote store may later resolve a user id for the email.
	TierEmailIdentified Tier = "email"
	// TierAuthenticated is a caller backed by a signed-in session.
	TierAuthenticated Tier = "authenticated"
)

// Rank returns the precedence of the tier; higher wins. The resolver is the
// only call site that should compare tiers, but the order itself is fixed here
// so it can be tested as a total order.
func (t Tier) Rank() int {
	switch t {
	case TierAuthenticated:
		return 2
	case TierEmailIdentified:
		return 1
	default:
		return 0
	}
}

// Limit returns the message allowance for the tier. Limits are a client-side
// constant, never fetched from the remote store.
func (t Tier) Limit() int {
	if t == TierAnonymous {
		return GuestLimit
	}
	return IdentifiedLimit
}

const (
	// GuestLimit is the allowance for anonymous callers.
	GuestLimit = 5
	// IdentifiedLimit is the allowance once an email or session is attached.
	IdentifiedLimit = 8
)

// Quota scopes, mirroring the two remote collections: one keyed by device
// fingerprint, one keyed by user id or email.
const (
	ScopeGuest = "guest"
	ScopeUser  = "user"
)

// UnknownDeviceKey is the reserved guest subject key used when fingerprint
// computation failed. Degenerate anonymous subjects share one counter.
const UnknownDeviceKey = "unknown-device"

// AuthSession is the authenticated-session object yielded by the external
// OAuth collaborator after the redirect flow completes.
type AuthSession struct {
	UserID string
	Email  string
}

// Identity is the ranked descriptor produced by the identity resolver.
//
// Field population by tier:
//   - Anonymous: Fingerprint only (may be empty when computation failed).
//   - EmailIdentified: Email, optionally UserID once the remote store has
//     matched the email to a record; Fingerprint is retained for the wire.
//   - Authenticated: UserID and Email from the session; Fingerprint retained.
type Identity struct {
	Tier        Tier
	Fingerprint string
	Email       string
	UserID      string
}

// SubjectKey returns the identifier under which this identity's quota record
// is stored: user id when known, email for unresolved email identities, and
// the fingerprint (or the reserved unknown-device key) for anonymous callers.
func (id Identity) SubjectKey() string {
	switch id.Tier {
	case TierAuthenticated:
		return id.UserID
	case TierEmailIdentified:
		if id.UserID != "" {
			return id.UserID
		}
		return id.Email
	default:
		if id.Fingerprint == "" {
			return UnknownDeviceKey
		}
		return id.Fingerprint
	}
}

// Scope returns the remote collection holding this identity's counter.
func (id Identity) Scope() string {
	if id.Tier == TierAnonymous {
		return ScopeGuest
	}
	return ScopeUser
}

// Identified reports whether the caller has attached an email or a session,
// i.e. whether the higher allowance applies.
func (id Identity) Identified() bool { return id.Tier != TierAnonymous }
