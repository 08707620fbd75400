// Package services – GateService
//
// This file implements the GateService, the server side of the usage gate.
// It resolves the request to a guest or user counter, replays receipts for
// retried sends, blocks callers over their allowance, generates the reply,
// increments the counter, and persists the transcript. Counter changes are
// pushed to subscribed watchers through the injected Notifier.
//
// Service-level errors (e.g., ErrEmptyPrompt) are returned for predictable
// cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/luminahq/go-chat-gate/internal/domain"
	"github.com/luminahq/go-chat-gate/internal/repo"
)

// Notifier receives counter changes for live distribution to watchers.
// Implementations must not block; a nil Notifier disables pushes.
type Notifier interface {
	Publish(u domain.QuotaUpdate)
}

// GateService coordinates gating, reply generation, and persistence for the
// conversation endpoint.
type GateService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Responder generates assistant replies.
	Responder Responder
	// Notifier pushes counter changes to watchers. May be nil.
	Notifier Notifier

	// ReceiptTTL bounds how long a replayed client message id returns the
	// recorded reply.
	ReceiptTTL time.Duration
	// MaxPromptRunes caps accepted prompts by rune length.
	MaxPromptRunes int
	// TitleMaxWords and TitleMaxRunes bound auto-generated session titles.
	TitleMaxWords int
	TitleMaxRunes int
}

// NewGateService constructs a GateService with sane defaults.
func NewGateService(db *gorm.DB, r Responder, n Notifier) *GateService {
	return &GateService{
		DB:             db,
		Responder:      r,
		Notifier:       n,
		ReceiptTTL:     24 * time.Hour,
		MaxPromptRunes: 2000,
		TitleMaxWords:  6,
		TitleMaxRunes:  60,
	}
}

// Chat runs one conversation request through the gate.
//
// Behavior:
//   - A replayed client message id returns the recorded reply without
//     re-incrementing any counter.
//   - A request carrying a user id or email counts against the identified
//     allowance; anything else counts against the guest allowance for its
//     fingerprint. A blank fingerprint shares the reserved unknown-device
//     bucket.
//   - Blocked requests return StatusEmailRequired (guest) or
//     StatusLimitReached (identified) with the current count and no reply.
//   - Allowed requests generate the reply first, then increment, persist
//     both transcript rows, and push the new count to watchers.
func (s *GateService) Chat(ctx context.Context, req domain.ChatRequest, clientIP string) (domain.ChatResponse, error) {
	tr := otel.Tracer("services/GateService")
	ctx, span := tr.Start(ctx, "Chat",
		trace.WithAttributes(
			attribute.String("session.id", req.SessionID),
		),
	)
	defer span.End()

	prompt := strings.TrimSpace(req.Message)
	if prompt == "" {
		return domain.ChatResponse{}, ErrEmptyPrompt
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(prompt) > s.MaxPromptRunes {
		return domain.ChatResponse{}, ErrTooLong
	}

	fingerprint := req.Fingerprint
	if fingerprint == "" {
		fingerprint = domain.UnknownDeviceKey
	}

	session, err := repo.EnsureSession(ctx, s.DB, req.SessionID, fingerprint)
	if err != nil {
		return domain.ChatResponse{}, err
	}

	if rec, err := repo.GetReceipt(ctx, s.DB, session.SessionID, req.ClientMessageID, time.Now().UTC()); err == nil {
		count := rec.Count
		return domain.ChatResponse{Status: domain.StatusOK, Response: rec.Reply, Count: &count}, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.ChatResponse{}, err
	}

	identified := req.UserID != "" || req.Email != ""

	var user *domain.UserUsage
	var count int
	if identified {
		inherited, err := repo.GuestCount(ctx, s.DB, fingerprint)
		if err != nil {
			return domain.ChatResponse{}, err
		}
		if user, err = repo.EnsureUser(ctx, s.DB, req.UserID, req.Email, inherited); err != nil {
			return domain.ChatResponse{}, err
		}
		count = user.PromptCount
		if count >= domain.IdentifiedLimit {
			return domain.ChatResponse{Status: domain.StatusLimitReached, Count: &count}, nil
		}
	} else {
		if count, err = repo.GuestCount(ctx, s.DB, fingerprint); err != nil {
			return domain.ChatResponse{}, err
		}
		if count >= domain.GuestLimit {
			return domain.ChatResponse{Status: domain.StatusEmailRequired, Count: &count}, nil
		}
	}

	history, err := repo.ListMessages(ctx, s.DB, session.SessionID)
	if err != nil {
		return domain.ChatResponse{}, err
	}

	reply, err := s.Responder.Respond(ctx, history, prompt, req.SystemInstruction)
	if err != nil {
		return domain.ChatResponse{}, fmt.Errorf("%w: %v", ErrAnswerFailed, err)
	}

	var newCount int
	if identified {
		newCount, err = repo.IncrementUser(ctx, s.DB, user.ID)
	} else {
		newCount, err = repo.IncrementGuest(ctx, s.DB, fingerprint, clientIP)
	}
	if err != nil {
		return domain.ChatResponse{}, err
	}

	if _, err := repo.AppendMessage(ctx, s.DB, session.SessionID, domain.RoleUser, prompt); err != nil {
		return domain.ChatResponse{}, err
	}
	if _, err := repo.AppendMessage(ctx, s.DB, session.SessionID, domain.RoleAssistant, reply); err != nil {
		return domain.ChatResponse{}, err
	}

	if len(history) == 0 && shouldAutoTitle(session.Title) {
		if title := titleFromPrompt(prompt, s.TitleMaxWords, s.TitleMaxRunes); title != "" {
			if err := repo.UpdateSessionTitle(ctx, s.DB, session.SessionID, title); err != nil {
				return domain.ChatResponse{}, err
			}
		}
	}
	if req.UserID != "" {
		if err := repo.ClaimSession(ctx, s.DB, session.SessionID, req.UserID); err != nil {
			return domain.ChatResponse{}, err
		}
	}
	if req.Email != "" {
		if err := repo.MarkEmailRecorded(ctx, s.DB, session.SessionID); err != nil {
			return domain.ChatResponse{}, err
		}
	}

	if req.ClientMessageID != "" {
		if _, err := repo.CreateReceipt(ctx, s.DB, session.SessionID, req.ClientMessageID, reply, newCount, s.ReceiptTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			return domain.ChatResponse{}, err
		}
	}

	s.publish(identified, fingerprint, user, newCount)
	return domain.ChatResponse{Status: domain.StatusOK, Response: reply, Count: &newCount}, nil
}

// RegisterEmail records an email for a guest and seeds the identified
// counter with the guest history. The caller does not wait on a reply for
// gating purposes, so this only persists and notifies.
func (s *GateService) RegisterEmail(ctx context.Context, req domain.RegisterEmailRequest) error {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if len(email) < 3 || !strings.Contains(email, "@") {
		return ErrInvalidEmail
	}

	fingerprint := req.Fingerprint
	if fingerprint == "" {
		fingerprint = domain.UnknownDeviceKey
	}

	inherited, err := repo.GuestCount(ctx, s.DB, fingerprint)
	if err != nil {
		return err
	}
	user, err := repo.EnsureUser(ctx, s.DB, "", email, inherited)
	if err != nil {
		return err
	}

	if req.SessionID != "" {
		if _, err := repo.EnsureSession(ctx, s.DB, req.SessionID, fingerprint); err != nil {
			return err
		}
		if err := repo.MarkEmailRecorded(ctx, s.DB, req.SessionID); err != nil {
			return err
		}
	}

	s.publish(true, fingerprint, user, user.PromptCount)
	return nil
}

// Quota reads the current count for a subject. The second return reports
// whether the subject has any recorded usage.
func (s *GateService) Quota(ctx context.Context, scope, key string) (int, bool, error) {
	switch scope {
	case domain.ScopeGuest:
		count, err := repo.GuestCount(ctx, s.DB, key)
		if err != nil {
			return 0, false, err
		}
		return count, count > 0, nil
	case domain.ScopeUser:
		row, err := repo.FindUser(ctx, s.DB, key, key)
		if errors.Is(err, repo.ErrNotFound) {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
		return row.PromptCount, true, nil
	default:
		return 0, false, fmt.Errorf("unknown scope %q", scope)
	}
}

// History returns a session's stored transcript.
func (s *GateService) History(ctx context.Context, sessionID string) ([]domain.StoredMessage, error) {
	if _, err := repo.GetSession(ctx, s.DB, sessionID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return repo.ListMessages(ctx, s.DB, sessionID)
}

// publish pushes a counter change to watchers. User-scope updates go out
// under both the user id and the email so a watcher keyed by either sees
// them; the user id rides along so email-keyed watchers can upgrade.
func (s *GateService) publish(identified bool, fingerprint string, user *domain.UserUsage, count int) {
	if s.Notifier == nil {
		return
	}
	if !identified {
		s.Notifier.Publish(domain.QuotaUpdate{Scope: domain.ScopeGuest, Key: fingerprint, Count: count})
		return
	}
	if user == nil {
		return
	}
	if user.UserID != "" {
		s.Notifier.Publish(domain.QuotaUpdate{Scope: domain.ScopeUser, Key: user.UserID, Count: count, UserID: user.UserID})
	}
	if user.Email != "" {
		s.Notifier.Publish(domain.QuotaUpdate{Scope: domain.ScopeUser, Key: user.Email, Count: count, UserID: user.UserID})
	}
}
