package agent

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kazz187/issuelab/pkg/claudecode"
)

// CLIInvoker runs agents through the claude command line.
type CLIInvoker struct {
	client claudecode.Client
	opts   BackendOptions
}

func NewCLIInvoker(opts BackendOptions) *CLIInvoker {
	return &CLIInvoker{client: claudecode.NewClient(), opts: opts}
}

func (c *CLIInvoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	stream, err := c.client.Query(ctx, req.Prompt, &claudecode.Options{
		CLIPath:            c.opts.CLIPath,
		Model:              c.opts.Model,
		MaxTurns:           req.MaxTurns,
		AppendSystemPrompt: req.SystemPrompt,
		PermissionMode:     claudecode.PermissionModeBypassPermissions,
		Cwd:                req.Cwd,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start claude for %s: %w", req.Agent, err)
	}
	tr, err := claudecode.Collect(stream)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	resp := &Response{Text: tr.Text, ToolCalls: tr.ToolCalls}
	if r := tr.Result; r != nil {
		resp.NumTurns = r.NumTurns
		resp.SessionID = r.SessionID
		if r.TotalCostUSD != nil {
			resp.CostUSD = decimal.NewFromFloat(*r.TotalCostUSD)
		}
		if r.IsError {
			return resp, fmt.Errorf("%w: %s", ErrRunFailed, r.Subtype)
		}
	}
	return resp, nil
}
