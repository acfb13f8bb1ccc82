// Package dispatch fans allowed mentions out to the repositories of the
// agents they name.
package dispatch

import (
	"github.com/samber/mo"
)

// ErrorCode classifies a failed dispatch.
type ErrorCode string

const (
	CodeForkDispatchNotAllowed   ErrorCode = "FORK_DISPATCH_NOT_ALLOWED"
	CodeRepositoryNotFound       ErrorCode = "REPOSITORY_NOT_FOUND"
	CodeWorkflowNotFound         ErrorCode = "WORKFLOW_NOT_FOUND"
	CodeWorkflowPermissionDenied ErrorCode = "WORKFLOW_PERMISSION_DENIED"
	CodeTokenGenerationFailed    ErrorCode = "TOKEN_GENERATION_FAILED"
	CodeTimeout                  ErrorCode = "TIMEOUT"
	CodeUnknown                  ErrorCode = "UNKNOWN_ERROR"
)

const (
	DefaultEventType = "issue_mention"

	reasonNoRepository = "No repository configured"
)

// Request describes the issue event whose mentions are dispatched.
type Request struct {
	Mentions    []string
	SourceRepo  string
	IssueNumber int
	IssueTitle  string
	IssueBody   string
	// CommentID is set when a comment, not the issue itself, carried the mentions.
	CommentID       mo.Option[int64]
	CommentBody     string
	Labels          mo.Option[[]string]
	AvailableAgents mo.Option[[]map[string]any]
	EventType       string
	DryRun          bool
}

// Failure is one agent that could not be dispatched.
type Failure struct {
	Username   string    `json:"username"`
	Repository string    `json:"repository,omitempty"`
	Code       ErrorCode `json:"error,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// Summary aggregates a dispatch run.
type Summary struct {
	RunID         string    `json:"run_id,omitempty"`
	SuccessCount  int       `json:"success_count"`
	TotalCount    int       `json:"total_count"`
	LocalAgents   []string  `json:"local_agents"`
	FailedAgents  []Failure `json:"failed_agents"`
	SkippedSystem int       `json:"skipped_system"`
}

func emptySummary() *Summary {
	return &Summary{LocalAgents: []string{}, FailedAgents: []Failure{}}
}

// ExitCode is 0 when nothing matched or at least one agent succeeded.
func (s *Summary) ExitCode() int {
	if s.TotalCount == 0 || s.SuccessCount > 0 {
		return 0
	}
	return 1
}
