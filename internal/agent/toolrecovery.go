package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cloudwego/eino/compose"

	"github.com/dohr-michael/secretary/internal/tools"
)

// DefaultMaxToolRetries is how many failures of one tool are turned into
// "Error: ..." results before the error stops the agent run.
const DefaultMaxToolRetries = 3

// ToolRecoveryConfig configures the tool-call error recovery middleware.
type ToolRecoveryConfig struct {
	// MaxRetries is the number of recoverable errors per tool name.
	// Zero means DefaultMaxToolRetries.
	MaxRetries int
}

// NewToolRecoveryMiddleware returns an Eino ToolMiddleware that converts Go
// errors raised by tools (bad arguments mostly) into the plain-text error
// contract, so the model can fix its call. Counters are per tool name.
func NewToolRecoveryMiddleware(cfg ToolRecoveryConfig) compose.ToolMiddleware {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxToolRetries
	}

	var mu sync.Mutex
	counts := make(map[string]int)

	return compose.ToolMiddleware{
		Invokable: func(next compose.InvokableToolEndpoint) compose.InvokableToolEndpoint {
			return func(ctx context.Context, input *compose.ToolInput) (*compose.ToolOutput, error) {
				out, err := next(ctx, input)
				if err == nil {
					// Providers reject empty tool_result content.
					if out != nil && out.Result == "" {
						out.Result = "[OK]"
					}
					return out, nil
				}

				mu.Lock()
				counts[input.Name]++
				count := counts[input.Name]
				mu.Unlock()

				if count >= maxRetries {
					slog.Error("agent: tool failed too often", "tool", input.Name, "attempt", count, "max", maxRetries, "error", err)
					return nil, err
				}

				slog.Warn("agent: tool error returned to model", "tool", input.Name, "attempt", count, "max", maxRetries, "error", err)
				return &compose.ToolOutput{Result: formatToolError(input.Name, count, maxRetries, err)}, nil
			}
		},
	}
}

func formatToolError(toolName string, attempt, maxRetries int, err error) string {
	return fmt.Sprintf("%s%s failed (attempt %d/%d): %v. Fix the arguments and retry, or tell the user.",
		tools.ErrorPrefix, toolName, attempt, maxRetries, err)
}
