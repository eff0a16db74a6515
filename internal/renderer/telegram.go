package renderer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zero-bot/codecoder/internal/apperr"
	"github.com/zero-bot/codecoder/internal/approval"
)

// TelegramRenderer renders approval cards as a message with an inline
// keyboard, using callback data of the form "action:requestID" (spec
// §4.2).
type TelegramRenderer struct {
	transport *ChannelTransport
}

var _ approval.Renderer = (*TelegramRenderer)(nil)

func NewTelegramRenderer(transport *ChannelTransport) *TelegramRenderer {
	return &TelegramRenderer{transport: transport}
}

func (r *TelegramRenderer) ChannelType() string { return "telegram" }

// inlineKeyboard mirrors Telegram's Bot API reply_markup shape closely
// enough for the channels service to forward it unmodified.
type inlineKeyboard struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

func approvalKeyboard(requestID string) inlineKeyboard {
	return inlineKeyboard{
		InlineKeyboard: [][]inlineButton{
			{
				{Text: "✅ Approve", CallbackData: "approve:" + requestID},
				{Text: "❌ Reject", CallbackData: "reject:" + requestID},
			},
		},
	}
}

func (r *TelegramRenderer) SendApprovalCard(ctx context.Context, req *approval.Request, channelID string) (string, error) {
	var markup json.RawMessage
	if req.Status == approval.StatusPending {
		kb, err := json.Marshal(approvalKeyboard(req.ID))
		if err != nil {
			return "", fmt.Errorf("marshal inline keyboard: %w", err)
		}
		markup = kb
	}

	return r.transport.Send(ctx, sendEnvelope{
		ChannelID:   channelID,
		Text:        cardBody(req),
		ReplyMarkup: markup,
	})
}

func (r *TelegramRenderer) UpdateCard(ctx context.Context, req *approval.Request, messageID string) error {
	return r.transport.Update(ctx, updateEnvelope{
		MessageID: messageID,
		Text:      cardBody(req),
		// Terminal states drop the keyboard entirely by sending a nil
		// ReplyMarkup; the channels service interprets absence as
		// "remove buttons".
	})
}

func (r *TelegramRenderer) ParseCallback(raw []byte) (*approval.CallbackData, error) {
	var payload struct {
		CallbackID string `json:"callback_id"`
		Data       string `json:"data"`
		UserID     string `json:"user_id"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.New("telegram.parse_callback", apperr.KindValidation, "BAD_CALLBACK", "malformed telegram callback payload", err)
	}

	parts := strings.SplitN(payload.Data, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, apperr.New("telegram.parse_callback", apperr.KindValidation, "BAD_CALLBACK", "callback data missing action or request id", nil)
	}

	var action approval.CallbackAction
	switch parts[0] {
	case "approve":
		action = approval.CallbackApprove
	case "reject":
		action = approval.CallbackReject
	default:
		return nil, apperr.New("telegram.parse_callback", apperr.KindValidation, "BAD_CALLBACK", fmt.Sprintf("unknown action token %q", parts[0]), nil)
	}

	return &approval.CallbackData{
		RequestID:          parts[1],
		Action:              action,
		UserID:              payload.UserID,
		PlatformCallbackID:  payload.CallbackID,
	}, nil
}
