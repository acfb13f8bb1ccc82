package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	"github.com/kazz187/issuelab/internal/agent"
	"github.com/kazz187/issuelab/pkg/claudecode"
)

const (
	errorMarker     = "[错误]"
	guardrailMarker = "[系统护栏]"

	StageInvoke = "invoke"
	StageResult = "result"
)

// Result is one agent's run.
type Result struct {
	Agent        string          `json:"agent"`
	Response     string          `json:"response"`
	CostUSD      decimal.Decimal `json:"cost_usd"`
	NumTurns     int             `json:"num_turns"`
	ToolCalls    int             `json:"tool_calls"`
	OK           bool            `json:"ok"`
	FailedStage  string          `json:"failed_stage,omitempty"`
	ErrorType    string          `json:"error_type,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// Results keeps run order.
type Results []*Result

func (rs Results) Get(name string) (*Result, bool) {
	for _, r := range rs {
		if r.Agent == name {
			return r, true
		}
	}
	return nil, false
}

// Publishable reports whether the response may be posted as the agent's
// answer, and why not when it may not.
func (r *Result) Publishable() (bool, string) {
	if !r.OK {
		return false, fmt.Sprintf("error_type=%s, error=%s", orDefault(r.ErrorType, "unknown"), orDefault(r.ErrorMessage, "execution failed"))
	}
	if strings.HasPrefix(r.Response, errorMarker) || strings.HasPrefix(r.Response, guardrailMarker) {
		return false, "response is an internal error payload"
	}
	return true, ""
}

// FailureComment is posted instead of a response that is not publishable.
func FailureComment(r *Result) string {
	return fmt.Sprintf("[Agent: %s]\n"+
		"%s 本次自动评审未产出可发布结论。\n"+
		"- failed_stage: %s\n"+
		"- error_type: %s\n"+
		"- error_message: %s\n"+
		"- 建议：修复工具/网络可用性后重试，避免基于不完整证据发布结论。",
		r.Agent, guardrailMarker,
		orDefault(r.FailedStage, "unknown"),
		orDefault(r.ErrorType, "unknown"),
		orDefault(r.ErrorMessage, "execution failed"),
	)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func errorType(err error) string {
	var notFound *claudecode.CLINotFoundError
	var procErr *claudecode.ProcessError
	var decodeErr *claudecode.JSONDecodeError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.Is(err, agent.ErrRunFailed):
		return "run_failed"
	case errors.As(err, &notFound):
		return "cli_not_found"
	case errors.As(err, &procErr):
		return "process_error"
	case errors.As(err, &decodeErr):
		return "decode_error"
	default:
		return "invoke_error"
	}
}

func failedResult(name string, err error) *Result {
	return &Result{
		Agent:        name,
		Response:     fmt.Sprintf("%s Agent %s 执行失败: %v", errorMarker, name, err),
		OK:           false,
		FailedStage:  StageInvoke,
		ErrorType:    errorType(err),
		ErrorMessage: err.Error(),
	}
}
