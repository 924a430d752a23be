package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/voxagent/voxagent/pkg/voxagent/agent"
	"github.com/voxagent/voxagent/pkg/voxagent/memory"
)

// newChatCmd creates the `voxagent chat` command.
func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the agent",
		Long: `Sends a single message or starts an interactive session when no
message is given.

Examples:
  voxagent chat "where is order A-100?"
  voxagent chat --channel sms "STATUS"
  voxagent chat  # interactive`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}

	cmd.Flags().String("channel", "text", "channel to simulate (call, sms, email, text)")
	cmd.Flags().String("conversation", "", "conversation id (default: new session)")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	channelFlag, _ := cmd.Flags().GetString("channel")
	channel := memory.Channel(channelFlag)
	switch channel {
	case memory.ChannelCall, memory.ChannelSMS, memory.ChannelEmail, memory.ChannelText:
	default:
		return fmt.Errorf("unknown channel %q (expected call, sms, email, or text)", channelFlag)
	}

	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	conversationID, _ := cmd.Flags().GetString("conversation")
	newSession := conversationID == ""
	if newSession {
		conversationID = uuid.NewString()
	}

	ctx := cmd.Context()
	if newSession {
		if err := rt.mem.StartSession(ctx, conversationID, channel); err != nil {
			rt.logger.Warn("failed to record session start", "error", err)
		}
	}

	if len(args) > 0 {
		return sendMessage(ctx, rt, conversationID, channel, args[0])
	}
	return runInteractiveChat(ctx, rt, conversationID, channel)
}

// sendMessage processes one message and prints the reply.
func sendMessage(ctx context.Context, rt *runtime, conversationID string, channel memory.Channel, message string) error {
	resp, err := rt.agent.Process(ctx, agent.Request{
		ConversationID: conversationID,
		Channel:        channel,
		Message:        message,
	})
	if err != nil {
		return err
	}
	fmt.Println(resp.Content)
	return nil
}

// runInteractiveChat runs the readline REPL until EOF or /quit.
func runInteractiveChat(ctx context.Context, rt *runtime, conversationID string, channel memory.Channel) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "bye",
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("VoxAgent interactive chat (channel: %s, conversation: %s)\n", channel, conversationID)
	fmt.Println("Type /quit to exit.")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		resp, err := rt.agent.Process(ctx, agent.Request{
			ConversationID: conversationID,
			Channel:        channel,
			Message:        line,
		})
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Printf("agent> %s\n", resp.Content)
	}

	if err := rt.mem.EndSession(ctx, conversationID); err != nil {
		rt.logger.Warn("failed to record session end", "error", err)
	}
	return nil
}
