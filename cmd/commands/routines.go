package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/secretary/internal/memory"
)

// NewRoutinesCommand returns the routines subcommand.
func NewRoutinesCommand() *cli.Command {
	return &cli.Command{
		Name:  "routines",
		Usage: "Manage recurring routines",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List all routines",
				Action: runRoutinesList,
			},
			{
				Name:      "add",
				Usage:     "Add a routine",
				ArgsUsage: "<name> <hourly|daily|weekly> <action...>",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:  "chat",
						Usage: "Telegram chat receiving the routine output",
					},
				},
				Action: runRoutinesAdd,
			},
			{
				Name:      "enable",
				Usage:     "Enable a routine",
				ArgsUsage: "<routine_id>",
				Action:    func(ctx context.Context, cmd *cli.Command) error { return setRoutineEnabled(cmd, true) },
			},
			{
				Name:      "disable",
				Usage:     "Disable a routine",
				ArgsUsage: "<routine_id>",
				Action:    func(ctx context.Context, cmd *cli.Command) error { return setRoutineEnabled(cmd, false) },
			},
		},
		DefaultCommand: "list",
	}
}

func runRoutinesList(_ context.Context, cmd *cli.Command) error {
	store, _, err := openStore(cmd)
	if err != nil {
		return err
	}

	list := store.Routines()
	if len(list) == 0 {
		fmt.Println("No routines set up yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tFREQUENCY\tENABLED\tLAST RUN\tRUNS\tACTION")
	for _, r := range list {
		last := "never"
		if r.LastExecuted != nil {
			last = r.LastExecuted.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%d\t%s\n",
			r.ID, r.Name, r.Frequency, r.Enabled, last, r.ExecutionCount, truncate(r.Action, 60))
	}
	return w.Flush()
}

func runRoutinesAdd(_ context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) < 3 {
		return fmt.Errorf("usage: secretary routines add <name> <hourly|daily|weekly> <action...>")
	}
	freq, err := memory.ParseFrequency(args[1])
	if err != nil {
		return err
	}

	store, _, err := openStore(cmd)
	if err != nil {
		return err
	}
	r, err := store.AddRoutine(memory.Routine{
		Name:      args[0],
		Frequency: freq,
		Action:    strings.Join(args[2:], " "),
		ChatID:    cmd.Int64("chat"),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Routine %s created (%s).\n", r.ID, r.Frequency)
	return nil
}

func setRoutineEnabled(cmd *cli.Command, enabled bool) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("routine id required")
	}
	store, _, err := openStore(cmd)
	if err != nil {
		return err
	}
	if err := store.SetRoutineEnabled(id, enabled); err != nil {
		return err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("Routine %s %s.\n", id, state)
	return nil
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}
