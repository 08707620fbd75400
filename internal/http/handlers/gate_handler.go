// Gate HTTP handlers.
//
// This file exposes the public endpoints of the quota store:
//   - POST /chat                     (gated conversation send)
//   - POST /register-email           (fire-and-forget email capture)
//   - GET  /quota/:scope/:key        (counter read)
//   - GET  /chat/history/:session_id (stored transcript)
//
// Handlers are transport-thin: they validate input, call the gate service,
// and translate results into HTTP responses. Blocked sends answer 403 with
// the same JSON shape clients parse for allowed sends, so the status field
// and count always travel together.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/luminahq/go-chat-gate/internal/domain"
	"github.com/luminahq/go-chat-gate/internal/gate"
	"github.com/luminahq/go-chat-gate/internal/http/middleware"
	"github.com/luminahq/go-chat-gate/internal/services"
)

// GateService defines the gate operations consumed by the HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type GateService interface {
	// Chat runs one conversation request through the usage gate.
	Chat(ctx context.Context, req domain.ChatRequest, clientIP string) (domain.ChatResponse, error)
	// RegisterEmail records an email for a guest subject.
	RegisterEmail(ctx context.Context, req domain.RegisterEmailRequest) error
	// Quota reads the current count for a subject.
	Quota(ctx context.Context, scope, key string) (int, bool, error)
	// History returns a session's stored transcript.
	History(ctx context.Context, sessionID string) ([]domain.StoredMessage, error)
}

// Handler aggregates the service dependencies of all endpoints.
type Handler struct {
	Svc GateService
}

// New constructs the handler set.
func New(svc GateService) *Handler { return &Handler{Svc: svc} }

// Chat handles POST /chat.
func (h *Handler) Chat(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session_id is required")
		return
	}

	resp, err := h.Svc.Chat(c.Request.Context(), req, c.ClientIP())
	switch {
	case err == nil:
	case errors.Is(err, services.ErrEmptyPrompt):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message is empty")
		return
	case errors.Is(err, services.ErrTooLong):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message too long")
		return
	case errors.Is(err, services.ErrAnswerFailed):
		fail(c, http.StatusInternalServerError, ErrCodeAnswerFailed, "could not generate a reply")
		return
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
		return
	}

	switch resp.Status {
	case domain.StatusEmailRequired:
		middleware.ObserveBlockedSend(string(gate.BlockedGuest))
		ok(c, http.StatusForbidden, resp)
	case domain.StatusLimitReached:
		middleware.ObserveBlockedSend(string(gate.BlockedFinal))
		ok(c, http.StatusForbidden, resp)
	default:
		ok(c, http.StatusOK, resp)
	}
}

// RegisterEmail handles POST /register-email.
func (h *Handler) RegisterEmail(c *gin.Context) {
	var req domain.RegisterEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	err := h.Svc.RegisterEmail(c.Request.Context(), req)
	switch {
	case err == nil:
		ok(c, http.StatusOK, gin.H{"status": domain.StatusOK})
	case errors.Is(err, services.ErrInvalidEmail):
		fail(c, http.StatusBadRequest, ErrCodeInvalidEmail, "invalid email")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}

// Quota handles GET /quota/:scope/:key. Unknown subjects answer 404 so
// clients can distinguish "never seen" from a zero count.
func (h *Handler) Quota(c *gin.Context) {
	scope := c.Param("scope")
	key := c.Param("key")
	if scope != domain.ScopeGuest && scope != domain.ScopeUser {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown scope")
		return
	}

	count, found, err := h.Svc.Quota(c.Request.Context(), scope, key)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
		return
	}
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "subject not found")
		return
	}
	ok(c, http.StatusOK, gin.H{"scope": scope, "key": key, "count": count})
}

// History handles GET /chat/history/:session_id.
func (h *Handler) History(c *gin.Context) {
	sessionID := c.Param("session_id")

	msgs, err := h.Svc.History(c.Request.Context(), sessionID)
	switch {
	case err == nil:
		ok(c, http.StatusOK, gin.H{"session_id": sessionID, "messages": msgs})
	case errors.Is(err, services.ErrSessionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}
