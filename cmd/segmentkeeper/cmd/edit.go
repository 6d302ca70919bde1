package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/solatis/segmentkeeper/internal/editor"
	"github.com/solatis/segmentkeeper/internal/preview"
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit a segment filter interactively with a live preview",
	RunE:  runEdit,
}

func init() {
	rootCmd.AddCommand(editCmd)
	editCmd.Flags().String("load", "", "segment id to open")
	addServerFlag(editCmd)
}

func runEdit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := newClient(cmd, cfg)
	if err != nil {
		return err
	}

	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".segmentkeeper_history")
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "segment> ",
		HistoryFile:     historyFile,
		AutoComplete:    editor.Completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialise terminal: %w", err)
	}
	defer rl.Close()

	session := preview.NewSession(c, "",
		preview.WithDebounce(cfg.Preview.Debounce),
		preview.WithLogger(slog.Default()),
		preview.WithListener(editor.StateListener(rl.Stdout())),
	)
	defer session.Close()

	ed := editor.New(session, c, rl.Stdout())
	fmt.Fprintln(rl.Stdout(), "Type 'help' for commands.")
	if id, _ := cmd.Flags().GetString("load"); id != "" {
		if err := ed.Execute(cmd.Context(), []string{"load", id}); err != nil {
			return err
		}
	}
	return ed.Run(cmd.Context(), rl)
}
