package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zero-bot/codecoder/internal/autoapprove"
	"github.com/zero-bot/codecoder/internal/channelbus"
	"github.com/zero-bot/codecoder/internal/channels"
	"github.com/zero-bot/codecoder/internal/conversation"
	"github.com/zero-bot/codecoder/internal/hand"
)

var agentHitlURL string
var agentPolicyPath string

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Autonomous Hand: channel-driven tool calls gated behind auto-approval/HitL",
}

var agentStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the local CLI channel as a Hand front-end (spec §4.5, §4.6)",
	RunE:  runAgentStart,
}

func init() {
	agentStartCmd.Flags().StringVar(&agentHitlURL, "hitl-url", "http://127.0.0.1:3000/api/v1/hitl", "HitL service base URL")
	agentStartCmd.Flags().StringVar(&agentPolicyPath, "policy", "", "risk evaluator policy YAML (default: never auto-approve)")
	agentCmd.AddCommand(agentStartCmd)
	rootCmd.AddCommand(agentCmd)
}

// runAgentStart wires the CLI channel into the fan-in bus, tracking each
// sender's turn history through a ConversationConnectionManager backed by
// a handConversationalAgent (below).
func runAgentStart(cmd *cobra.Command, args []string) error {
	policy, err := loadAgentPolicy(agentPolicyPath)
	if err != nil {
		return err
	}
	evaluator := autoapprove.NewEvaluator(policy)

	logger := newLogger("agent")
	executor, err := hand.NewExecutor(agentHitlURL, evaluator, hand.WithExecutorLogger(logger))
	if err != nil {
		return fmt.Errorf("build hand executor: %w", err)
	}

	bus := channelbus.NewBus(channelbus.WithBusLogger(logger))
	cli := channels.NewCLI(os.Stdin, os.Stdout, "local")
	bus.Register(cli)
	listener := channelbus.NewSupervisedListener(cli, channelbus.WithSupervisorLogger(logger))

	ccm := conversation.NewConversationConnectionManager()
	ccm.SetAgent(&handConversationalAgent{executor: executor})

	dispatch := func(ctx context.Context, msg channelbus.ChannelMessage, reply func(string) error) {
		resp, err := ccm.HandleConversationRequest(conversation.ConversationRequest{
			SessionID: msg.Sender,
			Message:   msg.Content,
		})
		if err != nil {
			_ = reply(fmt.Sprintf("error: %v", err))
			return
		}
		_ = reply(resp.Response)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go bus.Run(ctx, dispatch)

	fmt.Println("agent running against", agentHitlURL, "(Ctrl-D to stop)")
	listener.Run(ctx, bus.Sender())
	return nil
}

// handConversationalAgent adapts a hand.Executor to conversation.ConversationalAgent,
// treating every turn as a single-argument "echo" tool call routed through
// the Risk Evaluator and Hand Executor exactly as an autonomous task
// executor would before running a real tool (spec §4.5). This is the
// thinnest front-end that exercises the whole chain — channel → bus →
// auto-approve/HitL → reply — without an LLM loop, which is out of this
// repo's scope.
type handConversationalAgent struct {
	executor *hand.Executor
}

func (a *handConversationalAgent) HandleConversation(ctx context.Context, msg conversation.Message) (conversation.Response, error) {
	args, _ := json.Marshal(map[string]string{"text": msg.Text})
	tc := hand.ToolCall{
		Tool:        "echo",
		Args:        args,
		HandID:      "cli-agent",
		ExecutionID: msg.SessionID,
		Requester:   msg.UserID,
		Approvers:   []string{"admin"},
		Channel:     "cli",
		ChannelID:   msg.UserID,
		Title:       "echo: " + truncate(msg.Text, 60),
		Description: msg.Text,
	}

	if err := a.executor.Execute(ctx, tc); err != nil {
		return conversation.Response{
			Text: fmt.Sprintf("denied: %v", err),
			Type: conversation.ResponseTypeError,
		}, nil
	}
	return conversation.Response{
		Text: "approved: " + msg.Text,
		Type: conversation.ResponseTypeComplete,
	}, nil
}

func loadAgentPolicy(path string) (*autoapprove.Policy, error) {
	if path == "" {
		return autoapprove.DefaultPolicy(), nil
	}
	return autoapprove.LoadPolicy(path)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "…"
}
