package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/caucus-ai/caucus/internal/service"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine status",
	Long:  `Display whether the engine worker is running, its queue depth, and the missions in flight.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := service.NewClient(cfg.Socket)
		resp, err := client.Status()
		if err != nil {
			return err
		}
		if !resp.Success {
			return fmt.Errorf("status failed: %s", resp.Error)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Caucus Engine Status ==="))

		if running, _ := resp.Data["running"].(bool); running {
			fmt.Printf("  worker:    %s\n", green("● running"))
		} else {
			fmt.Printf("  worker:    %s\n", red("○ stopped"))
		}
		fmt.Printf("  queued:    %v\n", resp.Data["queued"])
		fmt.Printf("  completed: %v\n", resp.Data["completed"])
		if spend, ok := resp.Data["spend"].(float64); ok {
			fmt.Printf("  spend:     %.2f (%v)\n", spend, resp.Data["budget"])
		}

		if active, ok := resp.Data["active"].([]interface{}); ok && len(active) > 0 {
			fmt.Println("  active:")
			for _, runID := range active {
				fmt.Printf("    %v\n", runID)
			}
		} else {
			fmt.Printf("  active:    %s\n", gray("none"))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
