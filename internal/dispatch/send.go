package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kazz187/issuelab/internal/agent"
	"github.com/kazz187/issuelab/internal/github"
	"github.com/kazz187/issuelab/pkg/retry"
)

// payload is the repository_dispatch client_payload.
type payload map[string]any

func buildPayload(req Request) payload {
	p := payload{
		"source_repo":  req.SourceRepo,
		"issue_number": req.IssueNumber,
		"issue_title":  req.IssueTitle,
		"issue_body":   req.IssueBody,
	}
	if id, ok := req.CommentID.Get(); ok {
		p["comment_id"] = id
		p["comment_body"] = req.CommentBody
	}
	if labels, ok := req.Labels.Get(); ok {
		p["labels"] = labels
	}
	if agents, ok := req.AvailableAgents.Get(); ok {
		data, err := json.Marshal(agents)
		if err == nil {
			p["available_agents"] = string(data)
		}
	}
	return p
}

func (p payload) forTarget(cfg *agent.Config) payload {
	out := make(payload, len(p)+2)
	for k, v := range p {
		out[k] = v
	}
	out["target_username"] = cfg.CanonicalName()
	out["target_branch"] = cfg.TargetBranch()
	return out
}

// workflowInputs renders a payload as workflow_dispatch inputs, which must all be strings.
func workflowInputs(req Request, cfg *agent.Config) map[string]string {
	commentID := ""
	if id, ok := req.CommentID.Get(); ok && id != 0 {
		commentID = strconv.FormatInt(id, 10)
	}
	labels := "[]"
	if l, ok := req.Labels.Get(); ok && l != nil {
		if data, err := json.Marshal(l); err == nil {
			labels = string(data)
		}
	}
	return map[string]string{
		"source_repo":     req.SourceRepo,
		"issue_number":    strconv.Itoa(req.IssueNumber),
		"issue_title":     req.IssueTitle,
		"issue_body":      req.IssueBody,
		"comment_id":      commentID,
		"comment_body":    req.CommentBody,
		"labels":          labels,
		"target_username": cfg.CanonicalName(),
	}
}

func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	var se *github.StatusError
	if errors.As(err, &se) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	var urlErr *url.Error
	return errors.As(err, &netErr) || errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func classify(mode agent.DispatchMode, err error) ErrorCode {
	var se *github.StatusError
	if errors.As(err, &se) {
		switch {
		case mode == agent.DispatchModeWorkflow && se.StatusCode == http.StatusNotFound:
			return CodeWorkflowNotFound
		case mode == agent.DispatchModeWorkflow && se.StatusCode == http.StatusForbidden:
			return CodeWorkflowPermissionDenied
		case se.StatusCode == http.StatusForbidden:
			return CodeForkDispatchNotAllowed
		case se.StatusCode == http.StatusNotFound:
			return CodeRepositoryNotFound
		default:
			return ErrorCode(fmt.Sprintf("HTTP_%d", se.StatusCode))
		}
	}
	if isTimeout(err) {
		return CodeTimeout
	}
	return CodeUnknown
}

// send delivers one dispatch, retrying transport errors only.
func (e *Engine) send(ctx context.Context, cfg *agent.Config, req Request, p payload, token string) error {
	var (
		path string
		body any
	)
	switch cfg.Mode() {
	case agent.DispatchModeWorkflow:
		path = fmt.Sprintf("/repos/%s/actions/workflows/%s/dispatches", cfg.Repository, url.PathEscape(cfg.Workflow()))
		body = map[string]any{"ref": cfg.TargetBranch(), "inputs": workflowInputs(req, cfg)}
	default:
		eventType := req.EventType
		if eventType == "" {
			eventType = DefaultEventType
		}
		path = fmt.Sprintf("/repos/%s/dispatches", cfg.Repository)
		body = map[string]any{"event_type": eventType, "client_payload": p.forTarget(cfg)}
	}

	policy := e.retry
	policy.ShouldRetry = isTransportError
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		slog.WarnContext(ctx, "dispatch failed, retrying", "repository", cfg.Repository, "attempt", attempt, "delay", delay, "error", err)
	}
	return retry.Do(ctx, policy, func(ctx context.Context) error {
		return e.api.Do(ctx, http.MethodPost, path, token, body, nil)
	})
}
