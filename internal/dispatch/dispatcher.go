package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/luminahq/go-chat-gate/internal/domain"
	"github.com/luminahq/go-chat-gate/internal/gate"
)

const (
	defaultSendTimeout = 30 * time.Second
	defaultBackoff     = 500 * time.Millisecond
	maxResponseBytes   = 1 << 20
)

// IdentitySource yields the current identity. Resolved fresh at the start of
// a send and again when the response arrives, so a mid-flight tier change is
// detected instead of applied to the wrong subject.
type IdentitySource interface {
	Resolve(ctx context.Context) domain.Identity
}

// QuotaTracker is the slice of the quota client the dispatcher needs: the
// cached record for gating, a remote fetch when the cached subject does not
// match, and the authoritative overwrite after a successful send.
type QuotaTracker interface {
	Current() domain.QuotaRecord
	Fetch(ctx context.Context, id domain.Identity) domain.QuotaRecord
	SetAuthoritative(count int)
}

// SessionState is the slice of local persistence the dispatcher reads while
// assembling a request, plus the write that stops re-sending an email the
// server has already accepted.
type SessionState interface {
	SessionID(ctx context.Context) (string, error)
	SystemInstruction(ctx context.Context) (string, error)
	RecordedEmail(ctx context.Context) (string, error)
	SetRecordedEmail(ctx context.Context, email string) error
}

// OutcomeKind enumerates how a send concluded.
type OutcomeKind int

const (
	// OutcomeDelivered means the assistant reply was appended to the
	// transcript.
	OutcomeDelivered OutcomeKind = iota
	// OutcomeBlocked means the gate (local or remote) refused the send.
	// Blocked carries the escalation tier.
	OutcomeBlocked
	// OutcomeFailed means the send did not resolve; the user message
	// carries the failure marker and Err holds the classified cause.
	OutcomeFailed
	// OutcomeDiscarded means the response arrived for an identity that is
	// no longer current and was dropped without touching any state.
	OutcomeDiscarded
)

// Outcome is the structured result of one send. Nothing below the dispatcher
// surfaces raw transport or decoding errors; everything is folded into this.
type Outcome struct {
	Kind    OutcomeKind
	Blocked gate.BlockedTier
	Reply   domain.ChatMessage
	Err     error
}

// Dispatcher owns the transcript for one conversation and runs each send
// through validation, gating, the network call, and reconciliation. At most
// one send is in flight at a time.
type Dispatcher struct {
	identity IdentitySource
	quota    QuotaTracker
	state    SessionState

	baseURL string
	client  *http.Client
	timeout time.Duration
	backoff time.Duration
	log     zerolog.Logger

	mu       sync.Mutex
	inFlight bool
	conv     domain.Conversation
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithSendTimeout bounds each network attempt.
func WithSendTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = t }
}

// WithRetryBackoff sets the pause before the single retry.
func WithRetryBackoff(b time.Duration) Option {
	return func(d *Dispatcher) { d.backoff = b }
}

// WithDispatcherLogger attaches a logger.
func WithDispatcherLogger(log zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// NewDispatcher wires a dispatcher against the conversation endpoint at
// baseURL (the path prefix up to but not including /chat).
func NewDispatcher(id IdentitySource, quota QuotaTracker, state SessionState, baseURL string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		identity: id,
		quota:    quota,
		state:    state,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{},
		timeout:  defaultSendTimeout,
		backoff:  defaultBackoff,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ConversationID returns the durable session id once a send has loaded it.
func (d *Dispatcher) ConversationID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conv.SessionID
}

// Transcript returns a copy of the conversation messages in append order.
func (d *Dispatcher) Transcript() []domain.ChatMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.ChatMessage, len(d.conv.Messages))
	copy(out, d.conv.Messages)
	return out
}

// Send runs one message through the full pipeline.
//
// Behavior:
//   - Empty input returns ErrEmptyMessage with no side effects.
//   - A send while another is in flight returns ErrBusy with no side effects.
//   - The user message is appended optimistically before any network work and
//     is never removed afterward.
//   - A local gate block returns OutcomeBlocked without a network call.
//   - Transport failures are retried exactly once with the same client
//     message id; any other failure class is surfaced immediately.
//   - If the identity's subject changed while the request was in flight the
//     response is discarded without mutating quota or transcript state.
func (d *Dispatcher) Send(ctx context.Context, text string) (Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Outcome{}, ErrEmptyMessage
	}

	d.mu.Lock()
	if d.inFlight {
		d.mu.Unlock()
		return Outcome{}, ErrBusy
	}
	d.inFlight = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.inFlight = false
		d.mu.Unlock()
	}()

	id := d.identity.Resolve(ctx)

	tr := otel.Tracer("dispatch/Dispatcher")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("identity.tier", string(id.Tier)),
			attribute.String("identity.subject", id.SubjectKey()),
		),
	)
	defer span.End()

	msg := domain.ChatMessage{
		ClientMessageID: uuid.NewString(),
		Role:            domain.RoleUser,
		Content:         text,
	}
	d.append(msg)

	q := d.quota.Current()
	if q.SubjectKey != id.SubjectKey() {
		q = d.quota.Fetch(ctx, id)
	}
	if dec := gate.Check(id, q); !dec.Allowed {
		d.log.Debug().
			Str("subject", id.SubjectKey()).
			Int("count", q.Count).
			Str("blocked_tier", string(dec.BlockedTier)).
			Msg("send blocked locally")
		return Outcome{Kind: OutcomeBlocked, Blocked: dec.BlockedTier}, nil
	}

	req, err := d.buildRequest(ctx, id, text, msg.ClientMessageID)
	if err != nil {
		d.markFailed(msg.ClientMessageID)
		return Outcome{Kind: OutcomeFailed, Err: err}, nil
	}

	status, body, err := d.post(ctx, req)
	if err != nil {
		d.log.Warn().Err(err).Str("client_message_id", msg.ClientMessageID).Msg("send failed")
		d.markFailed(msg.ClientMessageID)
		return Outcome{Kind: OutcomeFailed, Err: err}, nil
	}

	if fresh := d.identity.Resolve(ctx); fresh.SubjectKey() != id.SubjectKey() {
		d.log.Debug().
			Str("sent_as", id.SubjectKey()).
			Str("now", fresh.SubjectKey()).
			Msg("response discarded, identity changed mid-flight")
		return Outcome{Kind: OutcomeDiscarded, Err: ErrIdentityStale}, nil
	}

	res := Classify(status, body)
	if res.Count != nil {
		d.quota.SetAuthoritative(*res.Count)
	}

	switch res.Kind {
	case ResultOK:
		if req.Email != "" {
			if err := d.state.SetRecordedEmail(ctx, req.Email); err != nil {
				d.log.Warn().Err(err).Msg("persist recorded email")
			}
		}
		reply := domain.ChatMessage{
			ClientMessageID: uuid.NewString(),
			Role:            domain.RoleAssistant,
			Content:         res.Text,
		}
		d.append(reply)
		return Outcome{Kind: OutcomeDelivered, Reply: reply}, nil
	case ResultEmailRequired:
		return Outcome{Kind: OutcomeBlocked, Blocked: gate.BlockedGuest}, nil
	case ResultLimitReached:
		return Outcome{Kind: OutcomeBlocked, Blocked: gate.BlockedFinal}, nil
	default:
		d.markFailed(msg.ClientMessageID)
		return Outcome{Kind: OutcomeFailed, Err: ErrProtocol}, nil
	}
}

func (d *Dispatcher) buildRequest(ctx context.Context, id domain.Identity, text, clientMsgID string) (domain.ChatRequest, error) {
	sessionID, err := d.state.SessionID(ctx)
	if err != nil {
		return domain.ChatRequest{}, fmt.Errorf("load session id: %w", err)
	}
	d.mu.Lock()
	d.conv.SessionID = sessionID
	d.mu.Unlock()

	instruction, err := d.state.SystemInstruction(ctx)
	if err != nil {
		d.log.Warn().Err(err).Msg("load system instruction")
	}

	req := domain.ChatRequest{
		Message:           text,
		SessionID:         sessionID,
		Fingerprint:       id.Fingerprint,
		SystemInstruction: instruction,
		ClientMessageID:   clientMsgID,
	}
	switch id.Tier {
	case domain.TierAuthenticated:
		req.UserID = id.UserID
	case domain.TierEmailIdentified:
		recorded, err := d.state.RecordedEmail(ctx)
		if err != nil {
			d.log.Warn().Err(err).Msg("load recorded email")
		}
		if recorded != id.Email {
			req.Email = id.Email
		}
	}
	return req, nil
}

// post performs the network call, retrying exactly once on a transport
// failure. Both attempts carry the identical payload so the server side
// receipt dedup makes the retry idempotent.
func (d *Dispatcher) post(ctx context.Context, req domain.ChatRequest) (int, []byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: encode request: %v", ErrProtocol, err)
	}

	status, body, err := d.attempt(ctx, payload)
	if err == nil || !errors.Is(err, ErrNetwork) {
		return status, body, err
	}

	d.log.Debug().Err(err).Msg("retrying send")
	select {
	case <-ctx.Done():
		return 0, nil, fmt.Errorf("%w: %v", ErrNetwork, ctx.Err())
	case <-time.After(d.backoff):
	}
	return d.attempt(ctx, payload)
}

func (d *Dispatcher) attempt(ctx context.Context, payload []byte) (int, []byte, error) {
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(cctx, http.MethodPost, d.baseURL+"/chat", bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: build request: %v", ErrProtocol, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read response: %v", ErrNetwork, err)
	}
	// A 5xx with a non-JSON body is an upstream proxy choking, not a
	// protocol change; treat it as transient.
	if resp.StatusCode >= http.StatusInternalServerError && !json.Valid(body) {
		return 0, nil, fmt.Errorf("%w: status %d", ErrNetwork, resp.StatusCode)
	}
	return resp.StatusCode, body, nil
}

func (d *Dispatcher) append(m domain.ChatMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conv.Append(m)
}

func (d *Dispatcher) markFailed(clientMsgID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conv.MarkFailed(clientMsgID)
}
