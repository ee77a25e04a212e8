package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/chatflow/orchestrator/internal/constants"
	"github.com/chatflow/orchestrator/internal/models"
	"github.com/chatflow/orchestrator/internal/temporal"
	"github.com/chatflow/orchestrator/internal/workflows"
)

func (c *cli) startChatCmd() *cobra.Command {
	var (
		id       string
		provider string
		model    string
		messages []string
	)
	cmd := &cobra.Command{
		Use:   "start-chat",
		Short: "Start a chat workflow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				id = "chat-" + uuid.NewString()
			}
			in := workflows.ChatInput{
				Messages: make([]models.Message, 0, len(messages)),
				Model:    models.ModelConfig{Provider: provider, Model: model}.WithProvider(),
			}
			for _, m := range messages {
				in.Messages = append(in.Messages, models.Message{Role: models.RoleUser, Content: m, Timestamp: time.Now().UTC()})
			}
			h, err := c.engine.Start(cmd.Context(), constants.ChatWorkflow,
				temporal.StartOptions{ID: id, TaskQueue: constants.ChatQueue}, in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"workflowId": h.ID(), "runId": h.RunID()})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "workflow id (default chat-<uuid>)")
	cmd.Flags().StringVar(&provider, "provider", "", "model provider (detected from --model when empty)")
	cmd.Flags().StringVar(&model, "model", "gpt-4o-mini", "model name")
	cmd.Flags().StringArrayVarP(&messages, "message", "m", nil, "initial user message (repeatable)")
	return cmd
}

func (c *cli) addMessageCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "add-message <workflow-id> <content...>",
		Short: "Append a message to a running chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := models.Message{Role: role, Content: strings.Join(args[1:], " "), Timestamp: time.Now().UTC()}
			if err := c.engine.Handle(args[0]).Signal(cmd.Context(), constants.SignalAddMessage, msg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", models.RoleUser, "message role")
	return cmd
}

func (c *cli) conversationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conversation <workflow-id>",
		Short: "Print a chat's conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var conv []models.Message
			if err := c.engine.Handle(args[0]).Query(cmd.Context(), constants.QueryConversation, &conv); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), conv)
		},
	}
}

func (c *cli) approvalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "Inspect and resolve approval requests",
	}

	pending := &cobra.Command{
		Use:   "pending <approval-workflow-id>",
		Short: "List requests awaiting a decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []models.ApprovalRequest
			if err := c.engine.Handle(args[0]).Query(cmd.Context(), constants.QueryPendingApprovals, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	var (
		deny     bool
		feedback string
	)
	approve := &cobra.Command{
		Use:   "approve <approval-workflow-id> <request-id>",
		Short: "Approve (or with --deny, reject) a pending request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := models.ApprovalDecision{RequestID: args[1], Approved: !deny, Feedback: feedback}
			if err := c.engine.Handle(args[0]).Signal(cmd.Context(), constants.SignalApproveAction, d); err != nil {
				return err
			}
			verb := "approved"
			if deny {
				verb = "denied"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, args[1])
			return nil
		},
	}
	approve.Flags().BoolVar(&deny, "deny", false, "reject instead of approve")
	approve.Flags().StringVar(&feedback, "feedback", "", "note recorded with the decision")

	history := &cobra.Command{
		Use:   "history <approval-workflow-id>",
		Short: "Print resolved requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []models.ApprovalRecord
			if err := c.engine.Handle(args[0]).Query(cmd.Context(), constants.QueryApprovalHistory, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.AddCommand(pending, approve, history)
	return cmd
}

func (c *cli) describeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <workflow-id>",
		Short: "Show a workflow's type and status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.engine.Handle(args[0]).Describe(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), d)
		},
	}
}
