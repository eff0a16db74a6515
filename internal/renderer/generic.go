package renderer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zero-bot/codecoder/internal/apperr"
	"github.com/zero-bot/codecoder/internal/approval"
)

// GenericRenderer serves channels without native interactive-button
// support (Discord, Feishu, Matrix, WhatsApp, iMessage, CLI): it renders
// a plain-text card plus a textual reply instruction, reusing the
// Notification Sink's fallback format from spec.md §4.9.
type GenericRenderer struct {
	channel   string
	transport *ChannelTransport
}

var _ approval.Renderer = (*GenericRenderer)(nil)

func NewGenericRenderer(channel string, transport *ChannelTransport) *GenericRenderer {
	return &GenericRenderer{channel: channel, transport: transport}
}

func (r *GenericRenderer) ChannelType() string { return r.channel }

func (r *GenericRenderer) SendApprovalCard(ctx context.Context, req *approval.Request, channelID string) (string, error) {
	text := cardBody(req)
	if req.Status == approval.StatusPending {
		text += "\n" + instructionLine(req.ID)
	}
	return r.transport.Send(ctx, sendEnvelope{ChannelID: channelID, Text: text})
}

func (r *GenericRenderer) UpdateCard(ctx context.Context, req *approval.Request, messageID string) error {
	return r.transport.Update(ctx, updateEnvelope{MessageID: messageID, Text: cardBody(req)})
}

// genericCallback is the plain-text reply format the Confirmation
// Registry / channels service parses into structured callback tokens
// for channels without native button support.
type genericCallback struct {
	Text   string `json:"text"`
	UserID string `json:"user_id"`
}

func (r *GenericRenderer) ParseCallback(raw []byte) (*approval.CallbackData, error) {
	var payload genericCallback
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.New(r.channel+".parse_callback", apperr.KindValidation, "BAD_CALLBACK", "malformed generic callback payload", err)
	}

	text := strings.ToLower(strings.TrimSpace(payload.Text))
	text = strings.Trim(text, `"`)

	var action approval.CallbackAction
	var rest string
	switch {
	case strings.HasPrefix(text, "approve "):
		action = approval.CallbackApprove
		rest = strings.TrimPrefix(text, "approve ")
	case strings.HasPrefix(text, "reject "):
		action = approval.CallbackReject
		rest = strings.TrimPrefix(text, "reject ")
	default:
		return nil, apperr.New(r.channel+".parse_callback", apperr.KindValidation, "BAD_CALLBACK", fmt.Sprintf("unrecognized reply %q", payload.Text), nil)
	}

	requestID := strings.TrimSpace(rest)
	if requestID == "" {
		return nil, apperr.New(r.channel+".parse_callback", apperr.KindValidation, "BAD_CALLBACK", "reply missing request id", nil)
	}

	return &approval.CallbackData{
		RequestID: requestID,
		Action:    action,
		UserID:    payload.UserID,
	}, nil
}
