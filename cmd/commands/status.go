package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/secretary/internal/config"
	"github.com/dohr-michael/secretary/internal/heartbeat"
)

// staleAfter is how old a heartbeat may get before the loop is reported stale.
const staleAfter = 2 * time.Minute

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the autonomous loop and memory status",
		Action: func(_ context.Context, cmd *cli.Command) error {
			status, hb, err := heartbeat.Check(config.HeartbeatPath(), staleAfter)
			if err != nil {
				return fmt.Errorf("check heartbeat: %w", err)
			}

			switch status {
			case heartbeat.StatusAlive:
				fmt.Printf("Loop: ALIVE (PID %d, uptime %s, %d cycles)\n", hb.PID, hb.Uptime, hb.Cycles)
			case heartbeat.StatusStale:
				fmt.Printf("Loop: STALE (PID %d, last heartbeat %s ago)\n",
					hb.PID, time.Since(hb.Timestamp).Truncate(time.Second))
			case heartbeat.StatusDead:
				fmt.Println("Loop: NOT RUNNING")
			}
			if hb != nil && hb.LastCycleAt != nil {
				fmt.Printf("Last check: %s\n", hb.LastCycleAt.Local().Format("2006-01-02 15:04"))
			}

			store, cfg, err := openStore(cmd)
			if err != nil {
				return err
			}
			stats := store.Stats()
			fmt.Println()
			fmt.Printf("Pending tasks:      %d\n", len(store.PendingTasks()))
			fmt.Printf("Awaiting response:  %d\n", len(store.FollowupTasks(float64(cfg.Secretary.FollowupHours))))
			fmt.Printf("Due routines:       %d\n", len(store.DueRoutines()))
			fmt.Println()
			fmt.Printf("Total tasks:        %d\n", stats.Tasks)
			fmt.Printf("Learned patterns:   %d\n", stats.PatternUsers)
			fmt.Printf("Insights:           %d\n", stats.Insights)
			fmt.Printf("Routines:           %d\n", stats.Routines)
			fmt.Printf("Conversations:      %d\n", stats.Conversations)
			return nil
		},
	}
}
