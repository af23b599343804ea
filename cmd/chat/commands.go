package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-tavern/chatclient/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatclient/internal/session"
)

var (
	idStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3d8"))
	titleStyle     = lipgloss.NewStyle().Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#01cdfe")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1")).Bold(true)
)

func newListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := a.controller()
			if err := ctrl.ListConversations(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range ctrl.Snapshot().Conversations {
				fmt.Fprintf(out, "%s  %s  %s\n",
					idStyle.Render(c.ID),
					c.UpdatedAt.Local().Format("2006-01-02 15:04"),
					titleStyle.Render(c.Title))
			}
			return nil
		},
	}
}

func newSendCommand(a *app) *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "send [message...]",
		Short: "Send one message and print the reply",
		Long:  "Send one message. Without --conversation a new conversation is created and titled after the message.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ctrl := a.controller()

			if conversationID != "" {
				conv, err := findConversation(cmd, ctrl, conversationID)
				if err != nil {
					return err
				}
				if err := ctrl.SelectConversation(ctx, conv); err != nil {
					return err
				}
			}

			if err := ctrl.SendMessage(ctx, strings.Join(args, " ")); err != nil {
				return err
			}

			snap := ctrl.Snapshot()
			if snap.Active == nil {
				return nil
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", idStyle.Render(snap.Active.ID), titleStyle.Render(snap.Active.Title))
			transcript := snap.Transcript
			if len(transcript) > 2 {
				transcript = transcript[len(transcript)-2:]
			}
			for _, m := range transcript {
				printMessage(cmd, m)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "continue this conversation")
	return cmd
}

func newDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <conversation-id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := a.controller()
			if err := ctrl.DeleteConversation(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
			return nil
		},
	}
}

func findConversation(cmd *cobra.Command, ctrl *session.Controller, id string) (chat.Conversation, error) {
	if err := ctrl.ListConversations(cmd.Context()); err != nil {
		return chat.Conversation{}, err
	}
	for _, c := range ctrl.Snapshot().Conversations {
		if c.ID == id {
			return c, nil
		}
	}
	return chat.Conversation{}, errors.Errorf("conversation %s not found", id)
}

func printMessage(cmd *cobra.Command, m chat.Message) {
	label := assistantStyle.Render("assistant")
	if m.Role == chat.RoleUser {
		label = userStyle.Render("you")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", label, m.Content)
}
