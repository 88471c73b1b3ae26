package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/genai-pages/backend/internal/chat"
	"github.com/genai-pages/backend/internal/conversation"
)

var askCmd = &cobra.Command{
	Use:   "ask QUESTION",
	Short: "Ask one question, grounded in --file documents when given",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var (
	askFiles   []string
	askPersona string
)

func init() {
	askCmd.Flags().StringSliceVarP(&askFiles, "file", "f", nil, "Document to answer from (repeatable)")
	askCmd.Flags().StringVarP(&askPersona, "persona", "p", "", "Persona to answer as when no files are given")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx, true)
	if err != nil {
		return err
	}
	defer e.Close()

	engine := e.engine()
	id, err := openWorkspace(cmd, engine, askPersona, askFiles)
	if err != nil {
		return err
	}

	result, err := engine.Ask(ctx, id, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.Reply)
	return nil
}

// openWorkspace creates a documents workspace when files are given and a
// chat workspace otherwise.
func openWorkspace(cmd *cobra.Command, engine *chat.Engine, personaName string, files []string) (string, error) {
	persona, err := conversation.ParsePersona(personaName)
	if err != nil {
		return "", err
	}

	mode := chat.ModeChat
	if len(files) > 0 {
		mode = chat.ModeDocuments
	}
	ws, err := engine.Create(mode, persona)
	if err != nil {
		return "", err
	}

	for _, path := range files {
		doc, err := readDocument(path)
		if err != nil {
			return "", err
		}
		res, err := engine.AddDocument(cmd.Context(), ws.ID, doc)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: %v\n", path, err)
			continue
		}
		if verbose {
			fmt.Fprintf(cmd.ErrOrStderr(), "loaded %s (%d words, cached=%t)\n", res.Name, res.Words, res.FromCache)
		}
	}
	return ws.ID, nil
}
