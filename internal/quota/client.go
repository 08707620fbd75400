// Package quota tracks a subject's usage counter against the remote quota
// store: one-shot reads plus a live change subscription so the counter
// reflects server-side increments (another device, the send pipeline, the
// email side channel) without polling.
//
// Ownership: the Client owns the locally tracked QuotaRecord. Subscription
// pushes are authoritative and overwrite optimistic values regardless of
// arrival order relative to a send's own response (last authoritative write
// wins).
package quota

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/luminahq/go-chat-gate/internal/domain"
)

// Backend is the transport to the remote quota store: point reads and
// change subscriptions filtered by subject key.
type Backend interface {
	// Read returns the counter for (scope, key). found is false when no row
	// exists yet; the store creates rows server-side on first send.
	Read(ctx context.Context, scope, key string) (count int, found bool, err error)

	// Watch opens a change stream for (scope, key). The returned channel is
	// closed when the stream ends; cancel tears the stream down.
	Watch(ctx context.Context, scope, key string) (<-chan domain.QuotaUpdate, func(), error)
}

// subscription is one active watch. done is closed when the delivery
// goroutine has fully stopped, which is what makes replacement race-free.
type subscription struct {
	scope  string
	key    string
	cancel func()
	done   chan struct{}
}

// Client is the quota store client. At most one subscription is active at a
// time; subscribing for a new subject tears the old one down first, so a
// stale stream can never deliver an update after replacement.
type Client struct {
	backend  Backend
	log      zerolog.Logger
	onUpdate func(domain.QuotaUpdate)

	mu      sync.Mutex
	current domain.QuotaRecord
	sub     *subscription
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger attaches a component logger.
func WithClientLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// WithUpdateHook registers a callback invoked for every applied subscription
// update. The identity resolver uses it to learn an email's resolved user id.
func WithUpdateHook(fn func(domain.QuotaUpdate)) ClientOption {
	return func(c *Client) { c.onUpdate = fn }
}

// NewClient constructs a Client over the given backend.
func NewClient(backend Backend, opts ...ClientOption) *Client {
	c := &Client{backend: backend, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch performs a one-shot read of the identity's counter and refreshes the
// tracked record. Absence is count zero. A failed read yields a conservative
// degraded record rather than an error, so callers can still render state.
func (c *Client) Fetch(ctx context.Context, id domain.Identity) domain.QuotaRecord {
	rec := domain.QuotaRecord{
		SubjectKey: id.SubjectKey(),
		Limit:      id.Tier.Limit(),
	}

	count, found, err := c.backend.Read(ctx, id.Scope(), id.SubjectKey())
	switch {
	case err != nil:
		c.log.Warn().Err(err).Str("subject", rec.SubjectKey).Msg("quota read failed; serving degraded zero count")
		rec.Degraded = true
	case found:
		rec.Count = count
	}

	c.mu.Lock()
	c.current = rec
	c.mu.Unlock()
	return rec
}

// Subscribe ensures a live subscription for the identity's subject, replacing
// any subscription for a different subject. Replacement is ordered: the old
// stream is cancelled and drained before the new one is established.
// Subscribing to the already-watched subject is a no-op.
func (c *Client) Subscribe(ctx context.Context, id domain.Identity) error {
	scope, key := id.Scope(), id.SubjectKey()

	c.mu.Lock()
	if c.sub != nil && c.sub.scope == scope && c.sub.key == key {
		c.mu.Unlock()
		return nil
	}
	old := c.sub
	c.sub = nil
	c.mu.Unlock()

	if old != nil {
		old.cancel()
		<-old.done
		c.log.Debug().Str("old_subject", old.key).Str("new_subject", key).Msg("quota subscription replaced")
	}

	updates, cancel, err := c.backend.Watch(ctx, scope, key)
	if err != nil {
		return err
	}

	s := &subscription{scope: scope, key: key, cancel: cancel, done: make(chan struct{})}
	c.mu.Lock()
	c.sub = s
	c.mu.Unlock()

	go c.deliver(s, updates)
	return nil
}

// deliver applies pushed updates while s is still the active subscription.
func (c *Client) deliver(s *subscription, updates <-chan domain.QuotaUpdate) {
	defer close(s.done)
	for u := range updates {
		c.mu.Lock()
		if c.sub != s {
			// Replaced under us; drop everything from this stream.
			c.mu.Unlock()
			return
		}
		if u.Scope == s.scope && u.Key == s.key {
			c.current.Count = u.Count
			c.current.Degraded = false
		}
		hook := c.onUpdate
		c.mu.Unlock()

		if hook != nil {
			hook(u)
		}
	}
}

// Unsubscribe tears down the active subscription, if any, and waits until no
// further updates can be delivered.
func (c *Client) Unsubscribe() {
	c.mu.Lock()
	s := c.sub
	c.sub = nil
	c.mu.Unlock()
	if s != nil {
		s.cancel()
		<-s.done
	}
}

// Current returns the tracked record.
func (c *Client) Current() domain.QuotaRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// SetAuthoritative overwrites the tracked count with a server-provided value
// (e.g. the counter carried in a send response). Overwrite, never merge.
func (c *Client) SetAuthoritative(count int) {
	c.mu.Lock()
	c.current.Count = count
	c.current.Degraded = false
	c.mu.Unlock()
}

// Close releases the client's subscription.
func (c *Client) Close() { c.Unsubscribe() }
