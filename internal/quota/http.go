package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/luminahq/go-chat-gate/internal/domain"
)

// HTTPBackend talks to the reference backend's quota endpoints: point reads
// over plain HTTP and change subscriptions over a websocket.
type HTTPBackend struct {
	BaseURL string // e.g. "http://localhost:8080/api"
	Client  *http.Client
	Log     zerolog.Logger
}

// NewHTTPBackend constructs a backend for baseURL.
func NewHTTPBackend(baseURL string) *HTTPBackend {
	return &HTTPBackend{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 15 * time.Second},
		Log:     zerolog.Nop(),
	}
}

// Read fetches the counter for (scope, key). A 404 means no row exists yet.
func (b *HTTPBackend) Read(ctx context.Context, scope, key string) (int, bool, error) {
	u := fmt.Sprintf("%s/quota/%s/%s", b.BaseURL, url.PathEscape(scope), url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, false, err
	}

	resp, err := b.Client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body struct {
			Count int `json:"count"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return 0, false, err
		}
		return body.Count, true, nil
	case http.StatusNotFound:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("quota read: unexpected status %d", resp.StatusCode)
	}
}

// Watch opens the websocket change stream for (scope, key). Updates arrive as
// JSON QuotaUpdate frames; the returned channel closes when the socket does.
func (b *HTTPBackend) Watch(ctx context.Context, scope, key string) (<-chan domain.QuotaUpdate, func(), error) {
	wsURL := toWebsocketURL(b.BaseURL) + "/quota/watch?scope=" + url.QueryEscape(scope) + "&key=" + url.QueryEscape(key)

	streamCtx, cancel := context.WithCancel(context.Background())

	dialCtx, dialDone := context.WithTimeout(ctx, 15*time.Second)
	defer dialDone()
	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{HTTPClient: b.Client})
	if err != nil {
		cancel()
		return nil, nil, err
	}

	updates := make(chan domain.QuotaUpdate)
	go func() {
		defer close(updates)
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			var u domain.QuotaUpdate
			if err := wsjson.Read(streamCtx, conn, &u); err != nil {
				if streamCtx.Err() == nil {
					b.Log.Debug().Err(err).Str("key", key).Msg("quota watch stream ended")
				}
				return
			}
			select {
			case updates <- u:
			case <-streamCtx.Done():
				return
			}
		}
	}()

	return updates, cancel, nil
}

// toWebsocketURL rewrites an http(s) base URL to its ws(s) counterpart.
func toWebsocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
