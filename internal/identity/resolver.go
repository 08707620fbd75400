package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/luminahq/go-chat-gate/internal/domain"
	"github.com/luminahq/go-chat-gate/internal/localstate"
)

// Resolver combines the device fingerprint, stored session id, captured
// email, and authenticated-session data into a single ranked Identity.
// It is the single source of truth for tier precedence: call sites must not
// infer tiers from the raw signals.
//
// Precedence is fixed: Authenticated > EmailIdentified > Anonymous. When an
// authenticated session exists the captured email is ignored for tiering
// (it remains readable for display).
type Resolver struct {
	state     *localstate.Store
	registrar Registrar
	log       zerolog.Logger

	fingerprintFn FingerprintFunc
	fpOnce        sync.Once
	fingerprint   string // empty when computation failed

	mu             sync.Mutex
	session        *domain.AuthSession
	resolvedUserID string // filled asynchronously for email identities
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFingerprintFunc overrides the fingerprint computation (tests use this).
func WithFingerprintFunc(fn FingerprintFunc) Option {
	return func(r *Resolver) { r.fingerprintFn = fn }
}

// WithLogger attaches a component logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

// NewResolver constructs a Resolver over the local state store and the email
// registration side channel.
func NewResolver(state *localstate.Store, registrar Registrar, opts ...Option) *Resolver {
	r := &Resolver{
		state:         state,
		registrar:     registrar,
		log:           zerolog.Nop(),
		fingerprintFn: HostFingerprint,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fingerprint returns the device fingerprint, computing it on first call.
// A failed computation is logged once and yields "" permanently; the caller
// remains a valid (degenerate) anonymous subject.
func (r *Resolver) Fingerprint(ctx context.Context) string {
	r.fpOnce.Do(func() {
		fp, err := r.fingerprintFn(ctx)
		if err != nil {
			r.log.Warn().Err(err).Msg("fingerprint computation failed; using null fingerprint")
			return
		}
		r.fingerprint = fp
	})
	return r.fingerprint
}

// Resolve returns the caller's current Identity by applying the fixed
// precedence order over the available signals.
func (r *Resolver) Resolve(ctx context.Context) domain.Identity {
	fp := r.Fingerprint(ctx)

	r.mu.Lock()
	sess := r.session
	resolved := r.resolvedUserID
	r.mu.Unlock()

	if sess != nil {
		// An authenticated session supersedes a captured email permanently
		// for this device until sign-out. If the email side channel resolved
		// a different user id, the session still wins; surface the mismatch
		// instead of silently reconciling.
		if resolved != "" && resolved != sess.UserID {
			r.log.Debug().
				Str("session_user", sess.UserID).
				Str("email_user", resolved).
				Msg("email-resolved user id disagrees with session; session wins")
		}
		return domain.Identity{
			Tier:        domain.TierAuthenticated,
			UserID:      sess.UserID,
			Email:       sess.Email,
			Fingerprint: fp,
		}
	}

	email, err := r.state.CapturedEmail(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("reading captured email failed; treating caller as anonymous")
		email = ""
	}
	if email != "" {
		return domain.Identity{
			Tier:        domain.TierEmailIdentified,
			Email:       email,
			UserID:      resolved, // may stay empty indefinitely
			Fingerprint: fp,
		}
	}

	return domain.Identity{Tier: domain.TierAnonymous, Fingerprint: fp}
}

// SubmitEmail captures an email: it persists the address locally and notifies
// the remote store out of band. The remote notification is fire-and-forget;
// a subsequent send may happen before the store has registered the email, in
// which case the email itself keeps serving as the subject key.
func (r *Resolver) SubmitEmail(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if !strings.Contains(email, "@") || len(email) < 3 {
		return ErrInvalidEmail
	}

	if err := r.state.SetCapturedEmail(ctx, email); err != nil {
		return err
	}

	sessionID, err := r.state.SessionID(ctx)
	if err != nil {
		return err
	}
	req := domain.RegisterEmailRequest{
		SessionID:   sessionID,
		Fingerprint: r.Fingerprint(ctx),
		Email:       email,
	}
	go func() {
		// Detached from the caller's context: sending must not wait on this.
		if err := r.registrar.Register(context.Background(), req); err != nil {
			r.log.Warn().Err(err).Str("email", email).Msg("email registration side channel failed")
		}
	}()
	return nil
}

// SetSession installs the authenticated session yielded by the OAuth
// collaborator. Passing the zero session is not meaningful; use SignOut.
func (r *Resolver) SetSession(sess domain.AuthSession) {
	r.mu.Lock()
	r.session = &sess
	r.mu.Unlock()
	r.log.Info().Str("user_id", sess.UserID).Msg("authenticated session attached")
}

// SignOut drops the session and clears the captured email, returning the
// device to the anonymous tier.
func (r *Resolver) SignOut(ctx context.Context) error {
	r.mu.Lock()
	had := r.session != nil
	r.session = nil
	r.resolvedUserID = ""
	r.mu.Unlock()
	if !had {
		return ErrNoSession
	}
	return r.state.ClearCapturedEmail(ctx)
}

// ObserveResolvedUserID records the user id the remote store matched to the
// captured email. Arrives asynchronously via the quota subscription; absent
// indefinitely is fine.
func (r *Resolver) ObserveResolvedUserID(userID string) {
	if userID == "" {
		return
	}
	r.mu.Lock()
	changed := r.resolvedUserID != userID
	r.resolvedUserID = userID
	r.mu.Unlock()
	if changed {
		r.log.Debug().Str("user_id", userID).Msg("email resolved to user id")
	}
}
