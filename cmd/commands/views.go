package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

// NewPendingCommand returns the pending subcommand.
func NewPendingCommand() *cli.Command {
	return &cli.Command{
		Name:  "pending",
		Usage: "List pending tasks and tasks awaiting a response",
		Action: func(_ context.Context, cmd *cli.Command) error {
			store, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			list := store.PendingTasks()
			if len(list) == 0 {
				fmt.Println("No pending tasks.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tCREATED\tLAST ACTION")
			for _, t := range list {
				last := "-"
				if t.LastActionTime != nil {
					last = t.LastActionTime.Local().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					t.ID, t.Type, t.Status, t.CreatedAt.Local().Format("2006-01-02 15:04"), last)
			}
			return w.Flush()
		},
	}
}

// NewInsightsCommand returns the insights subcommand.
func NewInsightsCommand() *cli.Command {
	return &cli.Command{
		Name:  "insights",
		Usage: "Show the most recent insights",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Number of insights to show",
				Value:   5,
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			store, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			list := store.RecentInsights(cmd.Int("limit"))
			if len(list) == 0 {
				fmt.Println("No insights gathered yet.")
				return nil
			}
			for _, in := range list {
				fmt.Printf("%s  [%s]  %s\n", in.Timestamp.Local().Format("2006-01-02 15:04"), in.Category, in.Insight)
			}
			return nil
		},
	}
}
