package service

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/caucus-ai/caucus/internal/events"
)

// Client sends commands to a running engine over its control socket.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a control client.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    10 * time.Second,
	}
}

// SetTimeout sets the timeout for one-shot commands.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// SendCommand sends a one-shot command and waits for its response.
func (c *Client) SendCommand(cmd Command) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to engine (is it running?): %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}
	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &resp, nil
}

// Submit submits a mission and returns its run ID.
func (c *Client) Submit(goal string, missionCtx map[string]string) (string, error) {
	resp, err := c.SendCommand(Command{Type: "submit", Goal: goal, Context: missionCtx})
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("submit failed: %s", resp.Error)
	}
	runID, _ := resp.Data["run_id"].(string)
	if runID == "" {
		return "", fmt.Errorf("submit response missing run ID")
	}
	return runID, nil
}

// Result fetches the result for a run. A nil Data map with Success true
// means the mission is still pending.
func (c *Client) Result(runID string) (*Response, error) {
	return c.SendCommand(Command{Type: "result", RunID: runID})
}

// Status requests engine status.
func (c *Client) Status() (*Response, error) {
	return c.SendCommand(Command{Type: "status"})
}

// ClearPrune lifts the active prune suggestion for a (team, objective)
// pair.
func (c *Client) ClearPrune(runID, teamID, objective string, teamCtx map[string]string) error {
	resp, err := c.SendCommand(Command{Type: "clear", RunID: runID, Team: teamID, Objective: objective, Context: teamCtx})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("clear failed: %s", resp.Error)
	}
	return nil
}

// Stream connects to the event stream for a run prefix and invokes
// handle for each event until the connection drops or handle returns
// false.
func (c *Client) Stream(runPrefix string, handle func(events.Event) bool) error {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to engine (is it running?): %w", err)
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(Command{Type: "stream", RunID: runPrefix, Timestamp: time.Now()}); err != nil {
		return fmt.Errorf("failed to send stream command: %w", err)
	}

	reader := bufio.NewReader(conn)
	decoder := json.NewDecoder(reader)

	var ack Response
	if err := decoder.Decode(&ack); err != nil {
		return fmt.Errorf("failed to read stream acknowledgement: %w", err)
	}
	if !ack.Success {
		return fmt.Errorf("stream refused: %s", ack.Error)
	}

	for {
		var event events.Event
		if err := decoder.Decode(&event); err != nil {
			return fmt.Errorf("stream ended: %w", err)
		}
		if !handle(event) {
			return nil
		}
	}
}
