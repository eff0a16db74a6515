package renderer

import (
	"fmt"
	"strings"

	"github.com/zero-bot/codecoder/internal/approval"
)

// cardBody renders the shared title/description/status text every
// renderer builds its platform-specific card around.
func cardBody(req *approval.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", statusIcon(req.Status), req.Title)
	if req.Description != "" {
		fmt.Fprintf(&b, "%s\n", req.Description)
	}
	fmt.Fprintf(&b, "requested by %s\n", req.Requester)

	switch req.Status {
	case approval.StatusApproved:
		fmt.Fprintf(&b, "✅ approved by %s", req.DecidedBy)
	case approval.StatusRejected:
		fmt.Fprintf(&b, "❌ rejected by %s", req.DecidedBy)
		if req.RejectionReason != "" {
			fmt.Fprintf(&b, ": %s", req.RejectionReason)
		}
	case approval.StatusCancelled:
		fmt.Fprintf(&b, "🚫 cancelled")
		if req.CancelledReason != "" {
			fmt.Fprintf(&b, ": %s", req.CancelledReason)
		}
	}
	return b.String()
}

func statusIcon(status approval.Status) string {
	switch status {
	case approval.StatusPending:
		return "⏳"
	case approval.StatusApproved:
		return "✅"
	case approval.StatusRejected:
		return "❌"
	case approval.StatusCancelled:
		return "🚫"
	default:
		return "•"
	}
}

// instructionLine is the plain-text fallback instruction used by any
// channel that can't render interactive buttons (spec §4.9's
// confirmation-request fallback, reused here for cards).
func instructionLine(requestID string) string {
	return fmt.Sprintf(`reply "approve %s" or "reject %s"`, requestID, requestID)
}
