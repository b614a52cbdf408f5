package commands

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/secretary/internal/config"
	"github.com/dohr-michael/secretary/internal/memory"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "secretary",
		Usage: "Autonomous virtual secretary on Telegram",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("debug") {
				slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			NewWakeCommand(),
			NewRunCommand(),
			NewAskCommand(),
			NewThinkCommand(),
			NewStatusCommand(),
			NewRoutinesCommand(),
			NewPendingCommand(),
			NewInsightsCommand(),
		},
		DefaultCommand: "run",
	}
}

// loadConfig reads the file named by --config, falling back to defaults
// and the environment when it does not exist.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	return config.LoadOrDefault(cmd.String("config"))
}

func openStore(cmd *cli.Command) (*memory.Store, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	store, err := memory.Open(cfg.Memory.Path)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}
