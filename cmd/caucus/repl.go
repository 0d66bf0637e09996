package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caucus-ai/caucus/internal/repl"
	"github.com/caucus-ai/caucus/internal/service"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start interactive shell",
	Long: `Start an interactive shell against a running engine.

Type a goal to submit it as a mission; 'status', 'result', and 'tail'
inspect the engine. Type 'help' in the shell for the full command list.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := repl.New(&repl.Config{
			Client:       service.NewClient(cfg.Socket),
			DisplayEvent: displayEvent,
		})
		if err != nil {
			return fmt.Errorf("failed to create shell: %w", err)
		}
		return r.Run()
	},
}

func init() {
	rootCmd.AddCommand(replCmd)
}
