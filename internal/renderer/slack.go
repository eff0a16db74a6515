package renderer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/zero-bot/codecoder/internal/apperr"
	"github.com/zero-bot/codecoder/internal/approval"
)

// SlackRenderer builds its card body with slack-go/slack's block-kit
// types (spec §4.2); delivery still goes through the generic channels
// service HTTP contract rather than a direct Slack API client, but the
// block structures produced here are real Slack Block Kit JSON.
type SlackRenderer struct {
	transport *ChannelTransport
}

var _ approval.Renderer = (*SlackRenderer)(nil)

func NewSlackRenderer(transport *ChannelTransport) *SlackRenderer {
	return &SlackRenderer{transport: transport}
}

func (r *SlackRenderer) ChannelType() string { return "slack" }

func approvalBlocks(req *approval.Request) slack.Blocks {
	section := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, cardBody(req), false, false),
		nil, nil,
	)

	blocks := []slack.Block{section}

	if req.Status == approval.StatusPending {
		approve := slack.NewButtonBlockElement(
			"approve:"+req.ID, req.ID,
			slack.NewTextBlockObject(slack.PlainTextType, "Approve", false, false),
		)
		approve.Style = slack.StylePrimary

		reject := slack.NewButtonBlockElement(
			"reject:"+req.ID, req.ID,
			slack.NewTextBlockObject(slack.PlainTextType, "Reject", false, false),
		)
		reject.Style = slack.StyleDanger

		blocks = append(blocks, slack.NewActionBlock("hitl_decision", approve, reject))
	}

	return slack.Blocks{BlockSet: blocks}
}

func (r *SlackRenderer) SendApprovalCard(ctx context.Context, req *approval.Request, channelID string) (string, error) {
	blocks, err := json.Marshal(approvalBlocks(req).BlockSet)
	if err != nil {
		return "", fmt.Errorf("marshal slack blocks: %w", err)
	}

	return r.transport.Send(ctx, sendEnvelope{
		ChannelID: channelID,
		Text:      cardBody(req),
		Blocks:    blocks,
	})
}

func (r *SlackRenderer) UpdateCard(ctx context.Context, req *approval.Request, messageID string) error {
	blocks, err := json.Marshal(approvalBlocks(req).BlockSet)
	if err != nil {
		return fmt.Errorf("marshal slack blocks: %w", err)
	}

	return r.transport.Update(ctx, updateEnvelope{
		MessageID: messageID,
		Text:      cardBody(req),
		Blocks:    blocks,
	})
}

func (r *SlackRenderer) ParseCallback(raw []byte) (*approval.CallbackData, error) {
	var payload slack.InteractionCallback
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.New("slack.parse_callback", apperr.KindValidation, "BAD_CALLBACK", "malformed slack interaction payload", err)
	}
	if len(payload.ActionCallback.BlockActions) == 0 {
		return nil, apperr.New("slack.parse_callback", apperr.KindValidation, "BAD_CALLBACK", "no block action in slack payload", nil)
	}

	actionID := payload.ActionCallback.BlockActions[0].ActionID
	parts := strings.SplitN(actionID, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, apperr.New("slack.parse_callback", apperr.KindValidation, "BAD_CALLBACK", "action id missing action or request id", nil)
	}

	var action approval.CallbackAction
	switch parts[0] {
	case "approve":
		action = approval.CallbackApprove
	case "reject":
		action = approval.CallbackReject
	default:
		return nil, apperr.New("slack.parse_callback", apperr.KindValidation, "BAD_CALLBACK", fmt.Sprintf("unknown action token %q", parts[0]), nil)
	}

	return &approval.CallbackData{
		RequestID:          parts[1],
		Action:             action,
		UserID:             payload.User.ID,
		PlatformCallbackID: payload.TriggerID,
	}, nil
}
