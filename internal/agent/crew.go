// Package agent is the decision engine of the secretary. It assembles context
// from memory, hands it to a crew of Eino ADK agents and classifies the answer.
package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// ErrEmptyAnswer is returned when a crew run finishes without assistant text.
var ErrEmptyAnswer = errors.New("agent returned no answer")

// Crew runs the LLM side of the decision engine.
type Crew interface {
	// Deliberate runs the monitoring then thinking agents and returns the
	// thinking agent's final answer.
	Deliberate(ctx context.Context, brief Brief) (string, error)
	// Execute runs the tool-equipped execution agent.
	Execute(ctx context.Context, instructions string) (string, error)
}

// Brief carries the per-agent prompts of one deliberation.
type Brief struct {
	Monitoring string
	Thinking   string
}

// CrewConfig configures an EinoCrew.
type CrewConfig struct {
	Model           model.ToolCallingChatModel
	MonitoringTools []tool.BaseTool
	ExecutionTools  []tool.BaseTool
	MaxIterations   int // 0 = ADK default
}

// EinoCrew implements Crew on top of Eino ADK runners.
type EinoCrew struct {
	deliberation *adk.Runner
	execution    *adk.Runner
}

// thinkingMaxIterations mirrors the small iteration budget of the thinking role.
const thinkingMaxIterations = 5

// NewEinoCrew builds the deliberation pipeline (monitoring, then thinking, run
// by a sequential agent) and the execution agent.
func NewEinoCrew(ctx context.Context, cfg CrewConfig) (*EinoCrew, error) {
	recovery := []adk.AgentMiddleware{{
		WrapToolCall: NewToolRecoveryMiddleware(ToolRecoveryConfig{}),
	}}

	monitoring, err := newChatAgent(ctx, chatAgentSpec{
		name:          "monitor",
		description:   "Monitors ongoing tasks, mail responses and upcoming events",
		instruction:   MonitoringInstruction,
		model:         cfg.Model,
		tools:         cfg.MonitoringTools,
		maxIterations: cfg.MaxIterations,
		middlewares:   recovery,
	})
	if err != nil {
		return nil, err
	}

	thinking, err := newChatAgent(ctx, chatAgentSpec{
		name:          "thinker",
		description:   "Decides what the secretary should do next",
		instruction:   ThinkingInstruction,
		model:         cfg.Model,
		maxIterations: thinkingMaxIterations,
	})
	if err != nil {
		return nil, err
	}

	pipeline, err := adk.NewSequentialAgent(ctx, &adk.SequentialAgentConfig{
		Name:        "deliberation",
		Description: "Monitoring followed by strategic thinking",
		SubAgents:   []adk.Agent{monitoring, thinking},
	})
	if err != nil {
		return nil, err
	}

	execution, err := newChatAgent(ctx, chatAgentSpec{
		name:          "executor",
		description:   "Executes decisions and user requests with the secretary tools",
		instruction:   ExecutionInstruction,
		model:         cfg.Model,
		tools:         cfg.ExecutionTools,
		maxIterations: cfg.MaxIterations,
		middlewares:   recovery,
	})
	if err != nil {
		return nil, err
	}

	return &EinoCrew{
		deliberation: adk.NewRunner(ctx, adk.RunnerConfig{Agent: pipeline}),
		execution:    adk.NewRunner(ctx, adk.RunnerConfig{Agent: execution}),
	}, nil
}

type chatAgentSpec struct {
	name          string
	description   string
	instruction   string
	model         model.ToolCallingChatModel
	tools         []tool.BaseTool
	maxIterations int
	middlewares   []adk.AgentMiddleware
}

func newChatAgent(ctx context.Context, spec chatAgentSpec) (adk.Agent, error) {
	cfg := &adk.ChatModelAgentConfig{
		Name:          spec.name,
		Description:   spec.description,
		Instruction:   spec.instruction,
		Model:         spec.model,
		MaxIterations: spec.maxIterations,
		Middlewares:   spec.middlewares,
	}
	// Tools enable the ReAct loop in ADK.
	if len(spec.tools) > 0 {
		cfg.ToolsConfig.Tools = spec.tools
	}
	return adk.NewChatModelAgent(ctx, cfg)
}

// Deliberate implements Crew. The monitoring report is part of the shared
// history the thinking agent sees.
func (c *EinoCrew) Deliberate(ctx context.Context, brief Brief) (string, error) {
	input := []*schema.Message{
		schema.UserMessage(brief.Monitoring),
		schema.UserMessage(brief.Thinking),
	}
	return collect(c.deliberation.Run(ctx, input))
}

// Execute implements Crew.
func (c *EinoCrew) Execute(ctx context.Context, instructions string) (string, error) {
	return collect(c.execution.Query(ctx, instructions))
}

// collect drains a runner iterator and returns the last assistant text.
func collect(iter *adk.AsyncIterator[*adk.AgentEvent]) (string, error) {
	var answer string

	for {
		event, ok := iter.Next()
		if !ok {
			break
		}
		if event.Err != nil {
			slog.Debug("agent: run failed", "agent", event.AgentName, "error", event.Err)
			return "", event.Err
		}
		if event.Output == nil || event.Output.MessageOutput == nil {
			continue
		}

		mv := event.Output.MessageOutput

		// Tool results are intermediate ReAct steps.
		if mv.Role == schema.Tool {
			if mv.IsStreaming && mv.MessageStream != nil {
				mv.MessageStream.Close()
			}
			continue
		}

		if mv.IsStreaming {
			content, err := drain(mv.MessageStream)
			if err != nil {
				return "", err
			}
			if content != "" {
				answer = content
			}
			continue
		}
		if mv.Message == nil {
			continue
		}
		// Assistant turns that only carry tool calls are not answers.
		if len(mv.Message.ToolCalls) > 0 && mv.Message.Content == "" {
			continue
		}
		if mv.Message.Content != "" {
			answer = mv.Message.Content
		}
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", ErrEmptyAnswer
	}
	return answer, nil
}

func drain(stream *schema.StreamReader[*schema.Message]) (string, error) {
	defer stream.Close()

	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return "", err
		}
		if chunk != nil {
			b.WriteString(chunk.Content)
		}
	}
}
