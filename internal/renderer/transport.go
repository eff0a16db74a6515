// Package renderer implements the Card Renderer capability (spec §4.2):
// per-channel rendering of an approval request into an interactive card,
// and parsing of the platform callback that results from a user's tap.
//
// Every renderer is a thin client of a sibling channels service reachable
// over HTTP (`POST /send`, `POST /update`); this package never talks to
// a chat platform's own API directly, mirroring spec.md's explicit
// exclusion of channel SDK glue.
package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zero-bot/codecoder/internal/apperr"
)

// ChannelTransport is the HTTP client shared by every renderer
// implementation for talking to the channels service.
type ChannelTransport struct {
	BaseURL string
	Client  *http.Client
}

// NewChannelTransport builds a transport with a sane default timeout.
func NewChannelTransport(baseURL string) *ChannelTransport {
	return &ChannelTransport{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// sendEnvelope is the body posted to POST /send.
type sendEnvelope struct {
	ChannelID string          `json:"channel_id"`
	Text      string          `json:"text,omitempty"`
	Blocks    json.RawMessage `json:"blocks,omitempty"`
	ReplyMarkup json.RawMessage `json:"reply_markup,omitempty"`
}

// sendResponse carries the platform-assigned message id.
type sendResponse struct {
	MessageID string `json:"message_id"`
}

// Send posts env to the channels service /send endpoint and returns the
// resulting platform message id.
func (t *ChannelTransport) Send(ctx context.Context, env sendEnvelope) (string, error) {
	return t.post(ctx, "/send", env)
}

// updateEnvelope is the body posted to POST /update.
type updateEnvelope struct {
	MessageID   string          `json:"message_id"`
	Text        string          `json:"text,omitempty"`
	Blocks      json.RawMessage `json:"blocks,omitempty"`
	ReplyMarkup json.RawMessage `json:"reply_markup,omitempty"`
}

// Update posts env to the channels service /update endpoint.
func (t *ChannelTransport) Update(ctx context.Context, env updateEnvelope) error {
	_, err := t.post(ctx, "/update", env)
	return err
}

func (t *ChannelTransport) post(ctx context.Context, path string, body interface{}) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return "", apperr.New("renderer.send", apperr.KindTransport, "TRANSPORT_ERROR", "channels service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", apperr.New("renderer.send", apperr.KindTransport, "TRANSPORT_ERROR",
			fmt.Sprintf("channels service returned status %d", resp.StatusCode), nil)
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// Updates may return an empty body; only /send needs a message id.
		return "", nil
	}
	return out.MessageID, nil
}
