// Package httpapi wires the HTTP transport (Gin) to the gate service,
// middleware, and route handlers. This file implements the quota watch hub:
// a fan-out of counter changes to websocket subscribers, keyed by
// (scope, key). The gate service publishes into the hub; each open watch
// stream holds one buffered channel, and slow consumers drop updates rather
// than stall the publisher. A dropped update is safe because every update
// carries the absolute count, not a delta.
package httpapi

import (
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/luminahq/go-chat-gate/internal/domain"
	"github.com/luminahq/go-chat-gate/internal/http/handlers"
	"github.com/luminahq/go-chat-gate/internal/http/middleware"
)

const watcherBuffer = 16

// Hub distributes quota updates to websocket watchers.
type Hub struct {
	mu       sync.Mutex
	watchers map[string]map[chan domain.QuotaUpdate]struct{}
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{watchers: make(map[string]map[chan domain.QuotaUpdate]struct{})}
}

func watchKey(scope, key string) string { return scope + "/" + key }

// Publish delivers an update to every watcher of its subject. Never blocks;
// watchers with a full buffer miss this update and catch up on the next.
func (h *Hub) Publish(u domain.QuotaUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.watchers[watchKey(u.Scope, u.Key)] {
		select {
		case ch <- u:
		default:
			log.Warn().Str("scope", u.Scope).Str("key", u.Key).Msg("watcher buffer full, update dropped")
		}
	}
}

// subscribe registers a watcher channel and returns a detach func.
func (h *Hub) subscribe(scope, key string) (chan domain.QuotaUpdate, func()) {
	ch := make(chan domain.QuotaUpdate, watcherBuffer)
	k := watchKey(scope, key)

	h.mu.Lock()
	set, ok := h.watchers[k]
	if !ok {
		set = make(map[chan domain.QuotaUpdate]struct{})
		h.watchers[k] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(set, ch)
		if len(set) == 0 {
			delete(h.watchers, k)
		}
		h.mu.Unlock()
	}
}

// watcherCount reports the number of open streams for a subject.
func (h *Hub) watcherCount(scope, key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers[watchKey(scope, key)])
}

// Watch handles GET /quota/watch?scope=&key= by upgrading to a websocket
// and streaming QuotaUpdate frames until the client disconnects.
func (h *Hub) Watch(c *gin.Context) {
	scope := c.Query("scope")
	key := c.Query("key")
	if (scope != domain.ScopeGuest && scope != domain.ScopeUser) || key == "" {
		handlers.Fail(c, http.StatusBadRequest, handlers.ErrCodeBadRequest, "scope and key are required")
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin policy is enforced by the CORS layer
	})
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("websocket accept")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	middleware.WatchOpened()
	defer middleware.WatchClosed()

	updates, detach := h.subscribe(scope, key)
	defer detach()

	// CloseRead cancels the context when the peer disconnects.
	ctx := conn.CloseRead(c.Request.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-updates:
			if err := wsjson.Write(ctx, conn, u); err != nil {
				return
			}
		}
	}
}
