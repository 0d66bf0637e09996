package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/caucus-ai/caucus/internal/service"
)

var submitCmd = &cobra.Command{
	Use:   "submit <goal>",
	Short: "Submit a mission to a running engine",
	Long: `Queue a mission on the engine listening at the control socket and
print its run ID. Use 'caucus result <run-id>' to fetch the outcome and
'caucus tail <run-id>' to watch it execute.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctxPairs, _ := cmd.Flags().GetStringArray("context")
		missionCtx, err := parseContextPairs(ctxPairs)
		if err != nil {
			return err
		}

		client := service.NewClient(cfg.Socket)
		runID, err := client.Submit(args[0], missionCtx)
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s submitted %s\n", green("✓"), runID)
		return nil
	},
}

func init() {
	submitCmd.Flags().StringArray("context", nil, "Mission context as key=value (repeatable)")
	rootCmd.AddCommand(submitCmd)
}
