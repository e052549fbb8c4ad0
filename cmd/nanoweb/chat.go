package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"nanoweb/pkg/console"
)

const logo = "🐈"

var chatMessage string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with nanobot over the gateway WebSocket",
	Long: `Start an interactive chat with the nanobot agent on the host.

With -m the message is sent once and the reply printed.

Examples:
  nanoweb chat
  nanoweb chat -m "add a weather skill"`,
	RunE: withClient(runChat),
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "send a single message and exit")
	rootCmd.AddCommand(chatCmd)
}

func runChat(ctx context.Context, env *clientEnv) error {
	cc, err := console.NewChatClient(env.client.BaseURL(), env.tokens, env.store)
	if err != nil {
		return err
	}
	if err := cc.Connect(ctx); err != nil {
		return err
	}
	defer cc.Close()

	if strings.TrimSpace(chatMessage) != "" {
		// The greeting is not echoed in one-shot mode.
		_, err := exchange(ctx, cc, env.store, chatMessage, len(env.store.ChatMessages()))
		return err
	}

	seen := printTranscript(stdout, env.store.ChatMessages(), 0)
	return chatLoop(ctx, cc, env.store, seen)
}

// exchange sends one message, waits for the reply and prints every
// message after seen. It returns the new transcript length.
func exchange(ctx context.Context, cc *console.ChatClient, store *console.Store, text string, seen int) (int, error) {
	if err := cc.Send(text); err != nil {
		return seen, err
	}
	// The user's own line is already on screen.
	seen++
	if err := cc.WaitIdle(ctx); err != nil {
		return seen, err
	}
	seen = printTranscript(stdout, store.ChatMessages(), seen)
	if !cc.Connected() {
		return seen, errors.New("chat connection closed")
	}
	return seen, nil
}

func chatLoop(ctx context.Context, cc *console.ChatClient, store *console.Store, seen int) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          logo + " You: ",
		HistoryFile:     filepath.Join(os.TempDir(), ".nanoweb_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	go func() {
		select {
		case <-ctx.Done():
		case <-cc.Done():
		}
		rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Fprintln(stdout, "\nGoodbye!")
				return nil
			}
			if !cc.Connected() {
				return errors.New("chat connection closed")
			}
			return err
		}

		input := strings.TrimSpace(line)
		switch input {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintln(stdout, "Goodbye!")
			return nil
		case "/clear":
			store.ClearChat()
			seen = 0
			continue
		}

		fmt.Fprintln(stdout, "Processing...")
		seen, err = exchange(ctx, cc, store, input, seen)
		if err != nil {
			return err
		}
	}
}

// printTranscript writes messages[from:] and returns len(messages).
func printTranscript(w io.Writer, messages []console.ChatMessage, from int) int {
	if from > len(messages) {
		from = len(messages)
	}
	for _, m := range messages[from:] {
		fmt.Fprintln(w, formatChatLine(m))
	}
	return len(messages)
}

func formatChatLine(m console.ChatMessage) string {
	ts := time.UnixMilli(m.Timestamp).Format("15:04")
	switch m.Role {
	case console.RoleUser:
		return fmt.Sprintf("[%s] You: %s", ts, m.Content)
	case console.RoleAssistant:
		return fmt.Sprintf("[%s] %s %s", ts, logo, m.Content)
	}
	return fmt.Sprintf("[%s] * %s", ts, m.Content)
}
