package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-traveler/traveler/internal/app"
	"github.com/agentic-traveler/traveler/internal/observability"
	"github.com/agentic-traveler/traveler/internal/orchestrator"
	"github.com/agentic-traveler/traveler/internal/traveler"
)

// TransportCLI labels messages typed into the local REPL.
const TransportCLI = "cli"

const pickListLimit = 20

const memoryStoreNotice = "note: DATABASE_URL is empty, so records live in memory and vanish when this process exits. " +
	"Point DATABASE_URL at a sqlite://, bolt:// or postgres:// store, or seed this session with --import FILE.json."

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the assistant from the terminal",
		Long: `Start an interactive conversation as a stored traveler, or send a
single message when one is given.

Examples:
  traveler chat --user 12345
  traveler chat --user 12345 "Plan a weekend in Lisbon"
  traveler chat   # pick a traveler from the store
  traveler chat --import travelers.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}
	cmd.Flags().StringP("user", "u", "", "external user id to chat as")
	cmd.Flags().String("import", "", "create travelers from a JSON file before chatting")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Logs go to stderr at warn so they do not interleave with replies.
	logger, err := observability.NewLogger("warn", "console")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	built, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = built.Cleanup() }()

	if err := seedStore(cmd, built); err != nil {
		return err
	}

	userID, _ := cmd.Flags().GetString("user")
	userID = strings.TrimSpace(userID)

	if len(args) == 1 {
		if userID == "" {
			return errors.New("--user is required with a single message")
		}
		return sendOnce(ctx, cmd.OutOrStdout(), built.Orchestrator, userID, args[0])
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "bye",
	})
	if err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	defer rl.Close()
	out := rl.Stdout()

	if userID == "" {
		userID, err = pickTraveler(ctx, rl, built)
		if err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "Chatting as %s via %s/%s. Type /quit to leave.\n", userID, built.Provider, built.StoreMode)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}
		if err := sendOnce(ctx, out, built.Orchestrator, userID, line); err != nil {
			logger.Error("message failed", zap.Error(err))
			fmt.Fprintln(out, "agent> Sorry, something went wrong. Please try again.")
		}
	}
}

// seedStore runs the --import file, if any, and warns when nothing will
// outlive the process.
func seedStore(cmd *cobra.Command, built *app.BuildResult) error {
	path, _ := cmd.Flags().GetString("import")
	path = strings.TrimSpace(path)
	if path != "" {
		records, err := readRecords(path)
		if err != nil {
			return err
		}
		if _, _, err := importRecords(cmd.Context(), built.Store, records, cmd.ErrOrStderr()); err != nil {
			return err
		}
	}
	if built.StoreMode == "memory" && path == "" {
		fmt.Fprintln(cmd.ErrOrStderr(), memoryStoreNotice)
	}
	return nil
}

func sendOnce(ctx context.Context, out io.Writer, orch *orchestrator.Orchestrator, userID, text string) error {
	reply, err := orch.HandleFrom(ctx, TransportCLI, userID, text)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "agent> %s\n", reply.Text)
	return nil
}

func pickTraveler(ctx context.Context, rl *readline.Instance, built *app.BuildResult) (string, error) {
	records, err := built.Store.List(ctx, pickListLimit)
	if err != nil {
		return "", fmt.Errorf("list travelers: %w", err)
	}
	out := rl.Stdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No travelers stored yet; messages will get the onboarding reply.")
	} else {
		fmt.Fprintln(out, "Travelers:")
		for i, rec := range records {
			fmt.Fprintf(out, "  %d) %s (%s)\n", i+1, rec.Name(), rec.ExternalID)
		}
	}

	rl.SetPrompt("user id or number> ")
	defer rl.SetPrompt("you> ")
	for {
		line, err := rl.Readline()
		if err != nil {
			return "", err
		}
		if id := resolvePick(strings.TrimSpace(line), records); id != "" {
			return id, nil
		}
	}
}

// resolvePick maps a list number to its external id; anything else is taken
// as an id verbatim.
func resolvePick(input string, records []traveler.Record) string {
	if input == "" {
		return ""
	}
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(records) {
		return records[n-1].ExternalID
	}
	return input
}

func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "traveler", "chat_history")
}
