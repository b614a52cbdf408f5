package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/secretary/internal/agent"
	"github.com/dohr-michael/secretary/internal/config"
)

// NewAskCommand returns the ask subcommand.
func NewAskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Send one message to the secretary and print the response",
		ArgsUsage: "<message>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "user",
				Usage: "User id the message is attributed to",
				Value: "cli",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Response timeout",
				Value: 2 * time.Minute,
			},
		},
		Action: runAsk,
	}
}

func runAsk(ctx context.Context, cmd *cli.Command) error {
	message := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("usage: secretary ask <message>")
	}

	st, err := stackFromFlags(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	response, err := st.engine.ProcessMessage(ctx, cmd.String("user"), message)
	if response != "" {
		fmt.Println(response)
	}
	return err
}

// NewThinkCommand returns the think subcommand.
func NewThinkCommand() *cli.Command {
	return &cli.Command{
		Name:  "think",
		Usage: "Run a single autonomous decision cycle and print the decision",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Cycle timeout",
				Value: 5 * time.Minute,
			},
		},
		Action: runThink,
	}
}

func runThink(ctx context.Context, cmd *cli.Command) error {
	st, err := stackFromFlags(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	d, err := st.engine.ThinkAndAct(ctx)
	if d != nil {
		printDecision(d)
	}
	return err
}

func printDecision(d *agent.Decision) {
	fmt.Printf("Action needed: %t\n", d.ActionNeeded)
	fmt.Printf("Action:        %s\n", d.PrimaryAction)
	fmt.Printf("Priority:      %s\n", d.Priority)
	if d.Structured {
		fmt.Println("Source:        structured")
	} else {
		fmt.Println("Source:        keywords")
	}
	for _, f := range d.FollowUpActions {
		fmt.Printf("Follow-up:     %s\n", f)
	}
	if d.Result != "" {
		fmt.Printf("\nResult:\n%s\n", d.Result)
	}
	if d.Error != "" {
		fmt.Printf("\nExecution error: %s\n", d.Error)
	}
	fmt.Printf("\nReasoning:\n%s\n", d.Reasoning)
}

// stackFromFlags wires the decision stack without the chat transport, so only
// the model credentials are required.
func stackFromFlags(ctx context.Context, cmd *cli.Command) (*stack, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil && !onlyTelegramMissing(cfg) {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return newStack(ctx, cfg)
}

func onlyTelegramMissing(cfg *config.Config) bool {
	c := *cfg
	c.Telegram.Token = "unused"
	return config.Validate(&c) == nil
}
