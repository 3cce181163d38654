package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/agiopen-org/lux-desktop/internal/config"
	"github.com/agiopen-org/lux-desktop/internal/heartbeat"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show whether the engine gateway is running",
		Action: runStatus,
	}
}

func runStatus(ctx context.Context, _ *cli.Command) error {
	state, hb, err := heartbeat.Check(config.HeartbeatPath(), 2*heartbeat.DefaultInterval)
	if err != nil {
		return fmt.Errorf("check heartbeat: %w", err)
	}

	switch state {
	case heartbeat.StatusDead:
		fmt.Println("Engine: NOT RUNNING (start it with `lux engine`)")
	case heartbeat.StatusStale:
		fmt.Printf("Engine: STALE on %s (PID %d, last heartbeat %s ago)\n",
			hb.Addr, hb.PID, time.Since(hb.Timestamp).Truncate(time.Second))
	case heartbeat.StatusAlive:
		fmt.Printf("Engine: ALIVE on %s (PID %d)\n", hb.Addr, hb.PID)
		health, err := fetchHealth(ctx, hb.Addr)
		if err != nil {
			fmt.Printf("  health: unreachable (%v)\n", err)
			return nil
		}
		fmt.Printf("  health: %s, %d client(s), up %s\n", health.Status, health.Clients, health.Uptime)
	}
	return nil
}

type gatewayHealth struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
	Uptime  string `json:"uptime"`
}

// fetchHealth queries the gateway health endpoint listening on addr.
func fetchHealth(ctx context.Context, addr string) (*gatewayHealth, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/api/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var h gatewayHealth
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	return &h, nil
}
