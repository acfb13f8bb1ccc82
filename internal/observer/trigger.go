package observer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/kazz187/issuelab/internal/dispatch"
	"github.com/kazz187/issuelab/pkg/cerr"
)

// SystemWorkflow is the workflow that runs a system agent on an issue.
const SystemWorkflow = "agent.yml"

// Workflows starts workflow runs in the source repository.
type Workflows interface {
	DefaultBranch(ctx context.Context, repo string) (string, error)
	RunWorkflow(ctx context.Context, repo, workflow, ref string, inputs map[string]string) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Summary, error)
}

type SystemAgents interface {
	IsSystem(name string) bool
}

// AutoTrigger starts the agent an observer decision asked for.
type AutoTrigger struct {
	workflows  Workflows
	dispatcher Dispatcher
	system     SystemAgents
	repo       string
}

func NewAutoTrigger(workflows Workflows, dispatcher Dispatcher, system SystemAgents, repo string) *AutoTrigger {
	return &AutoTrigger{workflows: workflows, dispatcher: dispatcher, system: system, repo: repo}
}

// Trigger runs a system agent through SystemWorkflow and dispatches anyone
// else as a single mention.
func (t *AutoTrigger) Trigger(ctx context.Context, in IssueInput, d Decision) error {
	if !d.ShouldTrigger || d.Agent == "" {
		return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("issue #%d has no agent to trigger", in.Number), nil)
	}
	if t.system.IsSystem(d.Agent) {
		return t.triggerSystem(ctx, d.Agent, in.Number)
	}
	return t.triggerUser(ctx, d.Agent, in)
}

func (t *AutoTrigger) triggerSystem(ctx context.Context, name string, issue int) error {
	ref, err := t.workflows.DefaultBranch(ctx, t.repo)
	if err != nil {
		return fmt.Errorf("failed to resolve default branch: %w", err)
	}
	inputs := map[string]string{
		"agent":        name,
		"issue_number": strconv.Itoa(issue),
	}
	if err := t.workflows.RunWorkflow(ctx, t.repo, SystemWorkflow, ref, inputs); err != nil {
		return fmt.Errorf("failed to trigger system agent %s: %w", name, err)
	}
	slog.InfoContext(ctx, "triggered system agent", "agent", name, "issue", issue, "ref", ref)
	return nil
}

var errNotDispatched = errors.New("agent was not dispatched")

func (t *AutoTrigger) triggerUser(ctx context.Context, name string, in IssueInput) error {
	summary, err := t.dispatcher.Dispatch(ctx, dispatch.Request{
		Mentions:    []string{name},
		SourceRepo:  t.repo,
		IssueNumber: in.Number,
		IssueTitle:  in.Title,
		IssueBody:   in.Body,
		EventType:   dispatch.DefaultEventType,
	})
	if err != nil {
		return fmt.Errorf("failed to dispatch user agent %s: %w", name, err)
	}
	if summary.SuccessCount == 0 && len(summary.LocalAgents) == 0 {
		if len(summary.FailedAgents) > 0 {
			f := summary.FailedAgents[0]
			return fmt.Errorf("%w: %s %s %s", errNotDispatched, name, f.Code, f.Reason)
		}
		return fmt.Errorf("%w: %s", errNotDispatched, name)
	}
	slog.InfoContext(ctx, "triggered user agent", "agent", name, "issue", in.Number)
	return nil
}
