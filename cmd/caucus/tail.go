package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/caucus-ai/caucus/internal/events"
	"github.com/caucus-ai/caucus/internal/service"
)

var tailCmd = &cobra.Command{
	Use:   "tail [run-id]",
	Short: "Watch mission execution in real-time",
	Long: `Stream events from a running engine: the recorded transcript first,
then live updates until interrupted (Ctrl+C to stop).

With a run ID argument only that mission and its sub-runs are shown;
without one the full engine firehose streams.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runPrefix := ""
		if len(args) > 0 {
			runPrefix = args[0]
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		if runPrefix != "" {
			fmt.Printf("%s\n", gray(fmt.Sprintf("streaming events for %s (Ctrl+C to stop)", runPrefix)))
		} else {
			fmt.Printf("%s\n", gray("streaming all events (Ctrl+C to stop)"))
		}

		// On interrupt the handler tells the client to hang up; the
		// stream call then returns instead of the process dying mid-line.
		var stopped atomic.Bool
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			<-sigCh
			stopped.Store(true)
		}()

		client := service.NewClient(cfg.Socket)
		err := client.Stream(runPrefix, func(event events.Event) bool {
			if stopped.Load() {
				return false
			}
			displayEvent(event)
			return true
		})
		if err != nil && !stopped.Load() {
			return err
		}
		fmt.Printf("\n%s\n", gray("stream closed"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tailCmd)
}
