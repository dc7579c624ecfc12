package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"GemChat/internal/attachment"
	"GemChat/internal/session"
)

// repl is the interactive terminal frontend. Attachments are staged with
// /attach and ride along with the next message, then cleared.
type repl struct {
	manager *session.Manager
	logger  *slog.Logger
	staged  []attachment.Attachment
}

func newREPL(manager *session.Manager, logger *slog.Logger) *repl {
	return &repl{manager: manager, logger: logger}
}

// run starts the read loop
func (r *repl) run(ctx context.Context) error {
	r.manager.OnTurn(func(turn session.Turn) {
		if turn.Role == session.RoleAssistant {
			fmt.Printf("Gemini: %s\n\n", turn.Content)
		}
	})

	fmt.Println("=== GemChat ===")
	if turns := r.manager.Turns(); len(turns) > 0 {
		fmt.Printf("Restored %d turns, /history to review\n", len(turns))
	}
	fmt.Println("Type /help for commands, /quit to exit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := r.handleCommand(ctx, input)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				r.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		if !r.manager.Send(ctx, input, r.staged) {
			fmt.Println("An exchange is already in progress.")
			continue
		}
		r.staged = nil
	}

	fmt.Println("Goodbye!")
	return nil
}

// handleCommand handles special commands
func (r *repl) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new":
		r.manager.NewSession(ctx)
		r.staged = nil
		fmt.Println("Started a new chat.")
		return false, nil

	case "/attach":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /attach <path>")
		}
		att, err := attachment.FromFile(strings.Join(parts[1:], " "))
		if err != nil {
			return false, err
		}
		r.staged = append(r.staged, att)
		if attachment.Transmittable(att.MIMEType) {
			fmt.Printf("Staged %s (%s)\n", att.Name, att.MIMEType)
		} else {
			fmt.Printf("Staged %s (%s) - shown in the log but not sent to the API\n", att.Name, att.MIMEType)
		}
		return false, nil

	case "/clear-files":
		r.staged = nil
		fmt.Println("Cleared staged attachments.")
		return false, nil

	case "/history":
		turns := r.manager.Turns()
		if len(turns) == 0 {
			fmt.Println("No history yet.")
			return false, nil
		}
		fmt.Println()
		for _, turn := range turns {
			name := "You"
			if turn.Role == session.RoleAssistant {
				name = "Gemini"
			}
			fmt.Printf("%s: %s\n", name, turn.Content)
			for _, att := range turn.Attachments {
				fmt.Printf("  [attachment: %s (%s)]\n", att.Name, att.MIMEType)
			}
		}
		fmt.Println()
		return false, nil

	case "/help":
		fmt.Println("Available commands:")
		fmt.Println("  /quit, /exit        - Exit the chat")
		fmt.Println("  /new                - Start a new chat session")
		fmt.Println("  /attach <path>      - Stage a file for the next message")
		fmt.Println("  /clear-files        - Drop staged attachments")
		fmt.Println("  /history            - Print the conversation log")
		fmt.Println("  /help               - Show this help message")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command: %s", parts[0])
	}
}
