package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/caucus-ai/caucus/internal/events"
	"github.com/caucus-ai/caucus/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Run a mission in-process and print the result",
	Long: `Run a single mission without a serving engine: wire the pipeline,
execute the goal, print the outcome, and exit. Events stream to stdout
unless --quiet is set.

Mission context is passed as repeated key=value flags:

  caucus run "evaluate the storage layer" --context repo=caucus --context depth=full`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quiet, _ := cmd.Flags().GetBool("quiet")
		asJSON, _ := cmd.Flags().GetBool("json")
		ctxPairs, _ := cmd.Flags().GetStringArray("context")

		missionCtx, err := parseContextPairs(ctxPairs)
		if err != nil {
			return err
		}

		p, err := buildPipeline(cfg)
		if err != nil {
			return err
		}
		defer p.cleanup()

		if !quiet && !asJSON {
			p.bus.Subscribe("", func(event events.Event) {
				displayEvent(event)
			})
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		runID := "run-" + uuid.New().String()[:8]
		result := p.executive.Run(ctx, runID, args[0], missionCtx)

		if asJSON {
			return json.NewEncoder(os.Stdout).Encode(result)
		}

		fmt.Println()
		if result.Success {
			green := color.New(color.FgGreen, color.Bold).SprintFunc()
			fmt.Printf("%s mission %s succeeded\n", green("✓"), result.RunID)
		} else {
			red := color.New(color.FgRed, color.Bold).SprintFunc()
			fmt.Printf("%s mission %s failed\n", red("✗"), result.RunID)
			if result.Error != "" {
				fmt.Printf("  error: %s\n", result.Error)
			}
			if result.Critique.Veto {
				for _, v := range result.Critique.Verdicts {
					if v.Severity == types.SeverityCritical {
						fmt.Printf("  vetoed by %s: %s\n", v.CriticID, v.Rationale)
					}
				}
			}
		}
		if spend := p.ledger.RunTotal(runID); spend > 0 {
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Printf("%s\n", gray(fmt.Sprintf("  spend: %.2f", spend)))
		}
		if result.FinalOutput != "" {
			fmt.Printf("\n%s\n", result.FinalOutput)
		}
		if !result.Success {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolP("quiet", "q", false, "Suppress the event stream")
	runCmd.Flags().Bool("json", false, "Print the raw result as JSON")
	runCmd.Flags().StringArray("context", nil, "Mission context as key=value (repeatable)")
	rootCmd.AddCommand(runCmd)
}

func parseContextPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	missionCtx := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid context pair %q (want key=value)", pair)
		}
		missionCtx[key] = value
	}
	return missionCtx, nil
}
