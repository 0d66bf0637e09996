package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/caucus-ai/caucus/internal/service"
)

var resultCmd = &cobra.Command{
	Use:   "result <run-id>",
	Short: "Fetch the result of a submitted mission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client := service.NewClient(cfg.Socket)
		resp, err := client.Result(args[0])
		if err != nil {
			return err
		}
		if !resp.Success {
			return fmt.Errorf("result failed: %s", resp.Error)
		}
		if resp.Message == "pending" {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("%s %s is still pending\n", yellow("…"), args[0])
			return nil
		}

		if asJSON {
			return json.NewEncoder(os.Stdout).Encode(resp.Data)
		}

		success, _ := resp.Data["success"].(bool)
		if success {
			green := color.New(color.FgGreen, color.Bold).SprintFunc()
			fmt.Printf("%s mission %s succeeded\n", green("✓"), args[0])
		} else {
			red := color.New(color.FgRed, color.Bold).SprintFunc()
			fmt.Printf("%s mission %s failed\n", red("✗"), args[0])
			if errMsg, _ := resp.Data["error"].(string); errMsg != "" {
				fmt.Printf("  error: %s\n", errMsg)
			}
		}
		if final, _ := resp.Data["final_output"].(string); final != "" {
			fmt.Printf("\n%s\n", final)
		}
		return nil
	},
}

func init() {
	resultCmd.Flags().Bool("json", false, "Print the raw result as JSON")
	rootCmd.AddCommand(resultCmd)
}
