// Package repl provides the interactive shell over a running mission
// engine. Input that is not a registered command is submitted as a
// mission goal.
package repl

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/caucus-ai/caucus/internal/events"
	"github.com/caucus-ai/caucus/internal/service"
)

// EngineClient is the slice of the control client the REPL drives.
// *service.Client satisfies it.
type EngineClient interface {
	Submit(goal string, missionCtx map[string]string) (string, error)
	Result(runID string) (*service.Response, error)
	Status() (*service.Response, error)
	Stream(runPrefix string, handle func(events.Event) bool) error
}

// CommandHandler handles a specific command
type CommandHandler func(args []string) error

// Config holds REPL configuration
type Config struct {
	Client EngineClient // Required

	// Out receives all shell output (default: readline's stdout)
	Out io.Writer

	// DisplayEvent renders one streamed event (default: type + message)
	DisplayEvent func(events.Event)
}

// REPL is the interactive shell
type REPL struct {
	client       EngineClient
	rl           *readline.Instance
	out          io.Writer
	displayEvent func(events.Event)
	commands     map[string]CommandHandler

	// lastRunID is the most recent submission, used as the default
	// argument for result/tail
	lastRunID string
}

// New creates a new REPL instance
func New(cfg *Config) (*REPL, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("engine client is required")
	}

	r := &REPL{
		client:       cfg.Client,
		out:          cfg.Out,
		displayEvent: cfg.DisplayEvent,
		commands:     make(map[string]CommandHandler),
	}
	if r.out == nil {
		r.out = os.Stdout
	}
	if r.displayEvent == nil {
		r.displayEvent = func(e events.Event) {
			fmt.Fprintf(r.out, "[%s] %s: %s\n", e.Timestamp.Format("15:04:05"), e.Type, e.Message)
		}
	}
	r.registerCommands()
	return r, nil
}

// Run starts the REPL loop
func (r *REPL) Run() error {
	cyan := color.New(color.FgCyan).SprintFunc()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("caucus> "),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	r.rl = rl
	r.printWelcome()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			} else if err == io.EOF {
				fmt.Fprintln(r.out, "\nGoodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := r.ProcessInput(line); err != nil {
			if err == io.EOF {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(r.out, "%s %v\n", red("Error:"), err)
		}
	}
}

// ProcessInput processes a single line of input. A line that does not
// start with a registered command is submitted as a mission goal.
func (r *REPL) ProcessInput(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	if handler, ok := r.commands[parts[0]]; ok {
		return handler(parts[1:])
	}
	return r.cmdSubmit([]string{line})
}

func (r *REPL) registerCommands() {
	r.commands["help"] = r.cmdHelp
	r.commands["?"] = r.cmdHelp
	r.commands["submit"] = r.cmdSubmit
	r.commands["status"] = r.cmdStatus
	r.commands["result"] = r.cmdResult
	r.commands["tail"] = r.cmdTail
	r.commands["exit"] = r.cmdExit
	r.commands["quit"] = r.cmdExit
}

func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n", cyan("Caucus"))
	fmt.Fprintln(r.out, "Agent-team mission engine")
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Type a goal to submit it as a mission, 'help' for commands, 'exit' to quit")
	fmt.Fprintln(r.out)
}

func (r *REPL) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n\n", cyan("Available Commands:"))

	commands := []struct {
		name string
		desc string
	}{
		{"submit <goal>", "Submit a mission"},
		{"status", "Show engine status"},
		{"result [run-id]", "Fetch a mission result (default: last submitted)"},
		{"tail [run-id]", "Stream mission events (default: last submitted)"},
		{"help, ?", "Show this help message"},
		{"exit, quit", "Exit the shell"},
	}
	for _, cmd := range commands {
		fmt.Fprintf(r.out, "  %-18s %s\n", green(cmd.name), cmd.desc)
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Any other input is submitted as a mission goal:")
	fmt.Fprintln(r.out, "  caucus> compare three caching strategies for the session store")
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdSubmit(args []string) error {
	goal := strings.TrimSpace(strings.Join(args, " "))
	if goal == "" {
		return fmt.Errorf("usage: submit <goal>")
	}
	runID, err := r.client.Submit(goal, nil)
	if err != nil {
		return err
	}
	r.lastRunID = runID
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "%s submitted %s\n", green("✓"), runID)
	return nil
}

func (r *REPL) cmdStatus(args []string) error {
	resp, err := r.client.Status()
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("status failed: %s", resp.Error)
	}
	fmt.Fprintf(r.out, "  running:   %v\n", resp.Data["running"])
	fmt.Fprintf(r.out, "  queued:    %v\n", resp.Data["queued"])
	fmt.Fprintf(r.out, "  completed: %v\n", resp.Data["completed"])
	if active, ok := resp.Data["active"].([]interface{}); ok && len(active) > 0 {
		for _, runID := range active {
			fmt.Fprintf(r.out, "  active:    %v\n", runID)
		}
	}
	return nil
}

func (r *REPL) cmdResult(args []string) error {
	runID, err := r.targetRun(args)
	if err != nil {
		return err
	}
	resp, err := r.client.Result(runID)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("result failed: %s", resp.Error)
	}
	if resp.Message == "pending" {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Fprintf(r.out, "%s %s is still pending\n", yellow("…"), runID)
		return nil
	}

	if success, _ := resp.Data["success"].(bool); success {
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(r.out, "%s %s succeeded\n", green("✓"), runID)
	} else {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintf(r.out, "%s %s failed\n", red("✗"), runID)
		if errMsg, _ := resp.Data["error"].(string); errMsg != "" {
			fmt.Fprintf(r.out, "  error: %s\n", errMsg)
		}
	}
	if final, _ := resp.Data["final_output"].(string); final != "" {
		fmt.Fprintf(r.out, "\n%s\n", final)
	}
	return nil
}

// cmdTail streams events for a run until the mission completes or the
// stream drops. Streaming inside the shell is bounded by the mission's
// terminal events so the prompt always comes back.
func (r *REPL) cmdTail(args []string) error {
	runID, err := r.targetRun(args)
	if err != nil {
		return err
	}
	return r.client.Stream(runID, func(event events.Event) bool {
		r.displayEvent(event)
		switch event.Type {
		case events.EventTypeMissionCompleted, events.EventTypeMissionCancelled, events.EventTypePlanVetoed:
			return event.RunID != runID
		}
		return true
	})
}

func (r *REPL) targetRun(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if r.lastRunID == "" {
		return "", fmt.Errorf("no run ID given and nothing submitted yet")
	}
	return r.lastRunID, nil
}

func (r *REPL) cmdExit(args []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s Goodbye!\n", green("✓"))
	if r.rl != nil {
		r.rl.Close()
	}
	return io.EOF
}
