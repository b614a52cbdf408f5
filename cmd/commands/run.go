package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/secretary/internal/agent"
	agentcb "github.com/dohr-michael/secretary/internal/callbacks"
	"github.com/dohr-michael/secretary/internal/bot"
	"github.com/dohr-michael/secretary/internal/config"
	"github.com/dohr-michael/secretary/internal/events"
	"github.com/dohr-michael/secretary/internal/gateway"
	"github.com/dohr-michael/secretary/internal/memory"
	"github.com/dohr-michael/secretary/internal/metrics"
	"github.com/dohr-michael/secretary/internal/models"
	"github.com/dohr-michael/secretary/internal/poller"
	"github.com/dohr-michael/secretary/internal/tools"
)

// NewRunCommand returns the run subcommand.
func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Start the Telegram bot and the autonomous loop",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "gateway",
				Usage: "Serve the HTTP status gateway (overrides gateway.enabled)",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "Gateway host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Gateway port to listen on",
			},
		},
		Action: runSecretary,
	}
}

// stack is the wired decision stack shared by run, ask and think.
type stack struct {
	cfg     *config.Config
	store   *memory.Store
	bus     *events.Bus
	metrics *metrics.Metrics
	engine  *agent.Engine
}

func newStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	store, err := memory.Open(cfg.Memory.Path)
	if err != nil {
		return nil, fmt.Errorf("open memory: %w", err)
	}

	m := metrics.New()
	bus := events.NewBus(cfg.Events.BufferSize)
	einocb.AppendGlobalHandlers(agentcb.NewEventBusHandler(bus, events.SourceAgent))
	bus.Subscribe(func(e events.Event) {
		slog.Debug("event", "type", e.Type, "source", e.Source, "payload", e.Payload)
	})

	registry := models.NewRegistry(cfg.Models)
	chatModel, err := registry.Default(ctx)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("init default model: %w", err)
	}
	slog.Info("model ready", "provider", registry.DefaultName(), "model", registry.Describe(registry.DefaultName()))

	toolSet, err := tools.NewSet(ctx, cfg.Tools, m)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("setup tools: %w", err)
	}
	slog.Info("tools loaded", "tools", toolSet.Names())

	crew, err := agent.NewEinoCrew(ctx, agent.CrewConfig{
		Model:           chatModel,
		MonitoringTools: toolSet.Monitoring(),
		ExecutionTools:  toolSet.Execution(),
	})
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("init agents: %w", err)
	}

	engine := agent.NewEngine(agent.EngineConfig{
		Crew:           crew,
		Store:          store,
		Bus:            bus,
		Metrics:        m,
		FollowupHours:  cfg.Secretary.FollowupHours,
		EnableRoutines: cfg.Secretary.RoutinesEnabled(),
		EnableLearning: cfg.Secretary.LearningEnabled(),
	})

	return &stack{cfg: cfg, store: store, bus: bus, metrics: m, engine: engine}, nil
}

func (s *stack) Close() {
	s.bus.Close()
}

func runSecretary(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	st, err := newStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	loop := poller.New(poller.Config{
		Engine:         st.engine,
		Store:          st.store,
		Bus:            st.bus,
		Metrics:        st.metrics,
		Interval:       cfg.Secretary.ThinkingInterval.Duration(),
		Tick:           cfg.Secretary.Tick.Duration(),
		Backoff:        cfg.Secretary.ErrorBackoff.Duration(),
		InitialDelay:   cfg.Secretary.InitialDelay.Duration(),
		EnableRoutines: cfg.Secretary.RoutinesEnabled(),
		HeartbeatPath:  config.HeartbeatPath(),
	})
	defer loop.Stop()

	transport, err := bot.NewTelegram(cfg.Telegram.Token)
	if err != nil {
		return err
	}
	b := bot.New(bot.Config{
		Transport:        transport,
		Engine:           st.engine,
		Store:            st.store,
		Loop:             loop,
		Bus:              st.bus,
		Metrics:          st.metrics,
		AdminChatIDs:     cfg.Telegram.AdminChatIDs,
		MessageTimeout:   cfg.Telegram.MessageTimeout.Duration(),
		ChunkSize:        cfg.Telegram.ChunkSize,
		FollowupHours:    cfg.Secretary.FollowupHours,
		ThinkingInterval: loop.Interval(),
		RoutinesEnabled:  cfg.Secretary.RoutinesEnabled(),
	})
	loop.SetNotifier(b)

	if len(cfg.Telegram.AdminChatIDs) > 0 {
		loop.Start(ctx)
	} else {
		slog.Info("no admin chats configured, the loop starts on the first /start")
	}

	if cmd.IsSet("gateway") {
		cfg.Gateway.Enabled = cmd.Bool("gateway")
	}
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = cmd.Int("port")
	}

	errCh := make(chan error, 2)
	if cfg.Gateway.Enabled {
		server := gateway.NewServer(gateway.Config{
			Host:          cfg.Gateway.Host,
			Port:          cfg.Gateway.Port,
			Store:         st.store,
			Bus:           st.bus,
			Loop:          loop,
			Metrics:       st.metrics,
			FollowupHours: cfg.Secretary.FollowupHours,
		})
		go func() {
			if err := server.Start(); err != nil {
				errCh <- fmt.Errorf("gateway: %w", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Warn("gateway shutdown", "error", err)
			}
		}()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		errCh <- b.Run(runCtx)
	}()

	slog.Info("secretary running", "interval", loop.Interval(), "routines", cfg.Secretary.RoutinesEnabled())

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		cancel()
		return drain(errCh)
	case err := <-errCh:
		cancel()
		return err
	}
}

// drain waits briefly for the bot to finish in-flight messages.
func drain(errCh <-chan error) error {
	select {
	case err := <-errCh:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case <-time.After(10 * time.Second):
		return nil
	}
}
