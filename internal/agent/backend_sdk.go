package agent

import (
	"context"
	"fmt"

	claudeagent "github.com/kazz187/claude-agent-sdk-go"
)

// SDKInvoker runs agents through the Claude Agent SDK. The SDK result carries
// no cost or turn accounting, so those stay zero.
type SDKInvoker struct{}

func NewSDKInvoker() *SDKInvoker {
	return &SDKInvoker{}
}

func (s *SDKInvoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	opts := &claudeagent.ClaudeAgentOptions{
		SystemPrompt:   req.SystemPrompt,
		Cwd:            req.Cwd,
		PermissionMode: claudeagent.PermissionModeBypassPermissions,
	}
	if req.MaxTurns > 0 {
		maxTurns := req.MaxTurns
		opts.MaxTurns = &maxTurns
	}

	result, err := claudeagent.RunQuerySync(ctx, req.Prompt, opts)
	if err != nil {
		return nil, fmt.Errorf("claude agent sdk query for %s: %w", req.Agent, err)
	}
	if result.Result == nil {
		return nil, fmt.Errorf("%w: no result message", ErrRunFailed)
	}
	resp := &Response{
		Text:      result.Result.Result,
		SessionID: result.Result.SessionID,
	}
	if result.Result.IsError {
		return resp, fmt.Errorf("%w: %s", ErrRunFailed, result.Result.Result)
	}
	return resp, nil
}
