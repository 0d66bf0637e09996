package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/caucus-ai/caucus/internal/service"
)

var clearCmd = &cobra.Command{
	Use:   "clear <team> <objective>",
	Short: "Lift an active prune suggestion for a team",
	Long: `Override the pruning evaluator: clear the active suggestion for a
(team, objective) pair on the engine listening at the control socket,
so the team's next invocation runs instead of being skipped.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctxPairs, _ := cmd.Flags().GetStringArray("context")
		teamCtx, err := parseContextPairs(ctxPairs)
		if err != nil {
			return err
		}
		runID, _ := cmd.Flags().GetString("run")

		client := service.NewClient(cfg.Socket)
		if err := client.ClearPrune(runID, args[0], args[1], teamCtx); err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s cleared prune suggestion for %s\n", green("✓"), args[0])
		return nil
	},
}

func init() {
	clearCmd.Flags().StringArray("context", nil, "Team context as key=value (repeatable)")
	clearCmd.Flags().String("run", "operator", "Run ID to attribute the prune_cleared event to")
	rootCmd.AddCommand(clearCmd)
}
