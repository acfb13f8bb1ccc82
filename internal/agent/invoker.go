package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Request is one prompt sent to one agent.
type Request struct {
	Agent        string
	Prompt       string
	SystemPrompt string
	MaxTurns     int
	Timeout      time.Duration
	Cwd          string
}

// Response is what an invocation backend reports back.
type Response struct {
	Text      string
	CostUSD   decimal.Decimal
	NumTurns  int
	ToolCalls int
	SessionID string
}

// Invoker runs a prompt against an agent backend.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// ErrRunFailed marks a run the backend itself reported as failed.
var ErrRunFailed = errors.New("agent run reported an error")

const (
	BackendCLI = "cli"
	BackendSDK = "sdk"
)

type BackendOptions struct {
	CLIPath string
	Model   string
}

// NewInvoker creates the backend named by backend.
func NewInvoker(backend string, opts BackendOptions) (Invoker, error) {
	switch backend {
	case "", BackendCLI:
		return NewCLIInvoker(opts), nil
	case BackendSDK:
		return NewSDKInvoker(), nil
	default:
		return nil, fmt.Errorf("unsupported agent backend: %s", backend)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
