package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/prasetya/lintas/pkg/dispatch"
)

var chatOpts struct {
	sessionID    string
	backend      string
	model        string
	userID       string
	teamID       string
	role         string
	systemPrompt string
	interactive  bool
}

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Run a turn against the configured backend",
	Long: `Send one message to an agent backend and print the reply. With
--interactive, keeps the session open and reads further messages from
standard input.`,
	Args: cobra.ArbitraryArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatOpts.sessionID, "session", "", "session id (default: a new random session)")
	chatCmd.Flags().StringVar(&chatOpts.backend, "backend", "", "backend to execute on (hosted, cli, agent)")
	chatCmd.Flags().StringVar(&chatOpts.model, "model", "", "model override")
	chatCmd.Flags().StringVar(&chatOpts.userID, "user", "local", "user id owning the session")
	chatCmd.Flags().StringVar(&chatOpts.teamID, "team", "local", "team id owning the session")
	chatCmd.Flags().StringVar(&chatOpts.role, "role", "assistant", "agent role for the session")
	chatCmd.Flags().StringVar(&chatOpts.systemPrompt, "system", "You are a helpful assistant.", "system prompt for new sessions")
	chatCmd.Flags().BoolVarP(&chatOpts.interactive, "interactive", "i", false, "keep reading messages from stdin")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	message := strings.TrimSpace(strings.Join(args, " "))
	if message == "" && !chatOpts.interactive {
		return fmt.Errorf("provide a message or use --interactive")
	}

	rt, err := newRuntime(cfgFile)
	if err != nil {
		return err
	}
	defer rt.Close()

	sessionID := chatOpts.sessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if message != "" {
		if err := runOneTurn(cmd, rt, sessionID, message); err != nil {
			return err
		}
	}

	if !chatOpts.interactive {
		return nil
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "session %s, empty line quits\n", sessionID)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(cmd.ErrOrStderr(), "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			break
		}
		if err := runOneTurn(cmd, rt, sessionID, line); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func runOneTurn(cmd *cobra.Command, rt *runtime, sessionID, message string) error {
	cfg := rt.cfg.Load()

	res, err := rt.dispatcher.Dispatch(cmd.Context(), &dispatch.Request{
		SessionID:     sessionID,
		UserID:        chatOpts.userID,
		TeamID:        chatOpts.teamID,
		Role:          chatOpts.role,
		SystemPrompt:  chatOpts.systemPrompt,
		WorkspaceRoot: cfg.WorkspacePath,
		Backend:       chatOpts.backend,
		Model:         chatOpts.model,
		Content:       message,
		RequestID:     uuid.NewString(),
		ToolCtx:       rt.toolContext(),
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), res.Text)
	for _, note := range res.Notes {
		fmt.Fprintf(cmd.ErrOrStderr(), "note: %s\n", note)
	}
	return nil
}
