package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voicebridge/gateway/internal/httpx"
)

// messagingPoolSize and messagingTimeout size the pooled client the same
// way internal/pipeline's small REST clients (qdrant.go, embeddings.go) do.
const (
	messagingPoolSize = 8
	messagingTimeout  = 10 * time.Second
)

// MessagingClient dispatches the post-call message endpoint from spec.md
// §4.6/§6: POST JSON {to, link}; success on HTTP 2xx. The caller is
// responsible for E.164-normalizing `to` before calling Send —
// callsession.NormalizeE164 already does this once, at the call site.
type MessagingClient struct {
	client *http.Client
}

// NewMessagingClient returns a MessagingClient with a pooled HTTP client.
func NewMessagingClient() *MessagingClient {
	return &MessagingClient{client: httpx.NewPooledClient(messagingPoolSize, messagingTimeout)}
}

type messagingRequest struct {
	To   string `json:"to"`
	Link string `json:"link"`
}

// Send posts {to, link} to endpoint and returns an error unless the
// response status is 2xx.
func (m *MessagingClient) Send(ctx context.Context, endpoint, to, link string) error {
	body, err := json.Marshal(messagingRequest{To: to, Link: link})
	if err != nil {
		return fmt.Errorf("marshal messaging request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build messaging request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("messaging request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("messaging endpoint status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
