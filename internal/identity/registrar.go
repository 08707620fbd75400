package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/luminahq/go-chat-gate/internal/domain"
)

// Registrar notifies the remote store of a captured email. The call is a
// side channel: no response is awaited for gating purposes.
type Registrar interface {
	Register(ctx context.Context, req domain.RegisterEmailRequest) error
}

// HTTPRegistrar posts email registrations to the backend's side channel.
type HTTPRegistrar struct {
	BaseURL string // e.g. "http://localhost:8080/api"
	Client  *http.Client
}

// NewHTTPRegistrar constructs a registrar with a short dedicated timeout;
// registration must never hold up a send.
func NewHTTPRegistrar(baseURL string) *HTTPRegistrar {
	return &HTTPRegistrar{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Register posts the captured email. The response body is drained and
// discarded; only transport-level failures are reported.
func (r *HTTPRegistrar) Register(ctx context.Context, req domain.RegisterEmailRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/register-email", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("register email: unexpected status %d", resp.StatusCode)
	}
	return nil
}
