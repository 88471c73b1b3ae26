package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/genai-pages/backend/internal/chat"
	"github.com/genai-pages/backend/internal/conversation"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: "Start an interactive conversation with a persona, or with the documents given by --file.\n" +
		"Commands: /clear, /persona NAME, /stats, /quit.",
	Args: cobra.NoArgs,
	RunE: runChat,
}

var (
	chatFiles   []string
	chatPersona string
)

func init() {
	chatCmd.Flags().StringSliceVarP(&chatFiles, "file", "f", nil, "Document to chat with (repeatable)")
	chatCmd.Flags().StringVarP(&chatPersona, "persona", "p", "", "Persona to chat with")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx, true)
	if err != nil {
		return err
	}
	defer e.Close()

	engine := e.engine()
	id, err := openWorkspace(cmd, engine, chatPersona, chatFiles)
	if err != nil {
		return err
	}

	return repl(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), engine, id)
}

// repl reads one utterance per line until EOF, /quit or ctx is done.
// Failed turns are reported and the conversation continues.
func repl(ctx context.Context, in io.Reader, out io.Writer, engine *chat.Engine, id string) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/clear":
			if err := engine.ClearHistory(id); err != nil {
				return err
			}
			fmt.Fprintln(out, "history cleared")
		case strings.HasPrefix(line, "/persona"):
			name := strings.TrimSpace(strings.TrimPrefix(line, "/persona"))
			persona, err := conversation.ParsePersona(name)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				break
			}
			if _, err := engine.SetPersona(id, persona); err != nil {
				return err
			}
			fmt.Fprintf(out, "now talking to %s\n", persona.Title())
		case line == "/stats":
			stats, err := engine.Stats(id)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "documents=%d words=%d characters=%d messages=%d questions=%d\n",
				stats.Documents, stats.Words, stats.Characters, stats.Messages, stats.Questions)
		default:
			result, err := engine.Ask(ctx, id, line)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				break
			}
			fmt.Fprintln(out, result.Reply)
		}
		fmt.Fprint(out, "> ")
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	fmt.Fprintln(out)
	return nil
}
