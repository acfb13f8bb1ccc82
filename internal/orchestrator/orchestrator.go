// Package orchestrator runs agents against an issue one at a time and
// decides what of their output reaches the issue.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/sony/gobreaker/v2"

	"github.com/kazz187/issuelab/internal/agent"
	"github.com/kazz187/issuelab/internal/event"
	"github.com/kazz187/issuelab/pkg/clog"
	"github.com/kazz187/issuelab/pkg/color"
	"github.com/kazz187/issuelab/pkg/retry"
)

// executionConcurrency is fixed at one: invocation backends contend for the
// same local resources, so agents never overlap.
const executionConcurrency = 1

// DefaultRetryPolicy retries an invocation three times, 2s, 4s then 8s apart.
var DefaultRetryPolicy = retry.Policy{
	MaxRetries:   3,
	InitialDelay: 2 * time.Second,
	Factor:       2,
}

// Registry resolves agent names to configs for their system prompts.
type Registry interface {
	Get(name string) (*agent.Config, bool)
}

// Poster is the issue write side.
type Poster interface {
	PostComment(ctx context.Context, repo string, number int, body, agent string) error
	CloseIssue(ctx context.Context, repo string, number int) error
}

type Orchestrator struct {
	invoker        agent.Invoker
	registry       Registry
	publisher      event.Publisher
	out            io.Writer
	scene          Scene
	retry          retry.Policy
	postFailure    bool
	triggerComment string
	cwd            string
}

type Option func(*Orchestrator)

func WithRegistry(r Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

func WithPublisher(p event.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithWriter(w io.Writer) Option {
	return func(o *Orchestrator) { o.out = w }
}

func WithScene(s Scene) Option {
	return func(o *Orchestrator) { o.scene = s }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(o *Orchestrator) { o.retry = p }
}

// WithFailureComments posts a failure summary in place of unpublishable output.
func WithFailureComments(enabled bool) Option {
	return func(o *Orchestrator) { o.postFailure = enabled }
}

// WithTriggerComment appends the comment that triggered the run to every prompt.
func WithTriggerComment(c string) Option {
	return func(o *Orchestrator) { o.triggerComment = c }
}

func WithWorkDir(dir string) Option {
	return func(o *Orchestrator) { o.cwd = dir }
}

func New(invoker agent.Invoker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		invoker:   invoker,
		publisher: event.Nop{},
		out:       os.Stdout,
		scene:     SceneByName(DefaultScene),
		retry:     DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunInput is one batch of agents against one issue.
type RunInput struct {
	Issue        int
	Agents       []string
	Context      string
	CommentCount int
}

// Run invokes each agent in order. It never returns early: a failed agent
// yields a non-publishable Result and the next one runs.
func (o *Orchestrator) Run(ctx context.Context, in RunInput) Results {
	ctx = clog.WithIssue(ctx, in.Issue)
	results := make(Results, len(in.Agents))

	wp := workerpool.New(executionConcurrency)
	for i, name := range in.Agents {
		wp.Submit(func() {
			actx := clog.WithAgent(ctx, name)
			slog.InfoContext(actx, "running agent", "position", i+1, "total", len(in.Agents))
			prompt := BuildPrompt(in.Issue, in.Context, in.CommentCount, name, o.triggerComment)
			results[i] = o.runOne(actx, in.Issue, name, prompt)
			o.print(results[i])
		})
	}
	wp.StopWait()
	return results
}

// RunPrompt invokes one agent with a prompt built by the caller. It is safe
// for concurrent use and prints nothing.
func (o *Orchestrator) RunPrompt(ctx context.Context, issue int, name, prompt string) *Result {
	return o.runOne(clog.WithAgent(clog.WithIssue(ctx, issue), name), issue, name, prompt)
}

func (o *Orchestrator) runOne(ctx context.Context, issue int, name, prompt string) *Result {
	req := agent.Request{
		Agent:    name,
		Prompt:   prompt,
		MaxTurns: o.scene.MaxTurns,
		Timeout:  o.scene.Timeout,
		Cwd:      o.cwd,
	}
	if o.registry != nil {
		if cfg, ok := o.registry.Get(name); ok {
			req.SystemPrompt = cfg.Prompt
		}
	}

	policy := o.retry
	policy.ShouldRetry = retryable
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		slog.WarnContext(ctx, "agent invocation failed, retrying", "attempt", attempt, "delay", delay, "error", err)
	}

	resp, err := retry.DoValue(ctx, policy, func(ctx context.Context) (*agent.Response, error) {
		return o.invoker.Invoke(ctx, req)
	})

	var result *Result
	switch {
	case err == nil:
		result = &Result{
			Agent:     name,
			Response:  resp.Text,
			CostUSD:   resp.CostUSD,
			NumTurns:  resp.NumTurns,
			ToolCalls: resp.ToolCalls,
			OK:        true,
		}
	case errors.Is(err, agent.ErrRunFailed) && resp != nil:
		result = &Result{
			Agent:        name,
			Response:     resp.Text,
			CostUSD:      resp.CostUSD,
			NumTurns:     resp.NumTurns,
			ToolCalls:    resp.ToolCalls,
			OK:           false,
			FailedStage:  StageResult,
			ErrorType:    errorType(err),
			ErrorMessage: err.Error(),
		}
	default:
		slog.ErrorContext(ctx, "agent run failed", "error", err)
		result = failedResult(name, err)
	}

	if result.CostUSD.GreaterThan(o.scene.BudgetUSD) {
		slog.WarnContext(ctx, "agent run exceeded scene budget", "scene", o.scene.Name, "cost_usd", result.CostUSD.StringFixed(4), "budget_usd", o.scene.BudgetUSD.StringFixed(2))
	}

	if perr := o.publisher.Publish(ctx, "orchestrator", event.AgentCompletedData{
		Issue:     issue,
		Agent:     name,
		OK:        result.OK,
		CostUSD:   result.CostUSD.String(),
		NumTurns:  result.NumTurns,
		ToolCalls: result.ToolCalls,
		Error:     result.ErrorMessage,
	}); perr != nil {
		slog.WarnContext(ctx, "failed to publish agent event", "error", perr)
	}
	return result
}

func retryable(err error) bool {
	return !errors.Is(err, agent.ErrRunFailed) &&
		!errors.Is(err, gobreaker.ErrOpenState) &&
		!errors.Is(err, context.Canceled)
}

func (o *Orchestrator) print(r *Result) {
	fmt.Fprintf(o.out, "\n=== %s result (成本: $%s, 轮数: %d, 工具: %d) ===\n",
		color.AgentPrefix(r.Agent), r.CostUSD.StringFixed(4), r.NumTurns, r.ToolCalls)
	fmt.Fprintln(o.out, r.Response)
}

// PublishOutcome says what Publish did with a result.
type PublishOutcome int

const (
	Posted PublishOutcome = iota
	PostFailed
	Blocked
)

// Publish posts a publishable response as the agent's comment. Anything else
// is blocked; with failure comments enabled a redacted summary is posted
// instead.
func (o *Orchestrator) Publish(ctx context.Context, poster Poster, repo string, issue int, r *Result) PublishOutcome {
	ctx = clog.WithAgent(ctx, r.Agent)
	ok, reason := r.Publishable()
	if ok {
		if err := poster.PostComment(ctx, repo, issue, r.Response, r.Agent); err != nil {
			slog.ErrorContext(ctx, "failed to post agent response", "error", err)
			fmt.Fprintln(o.out, color.Failure(fmt.Sprintf("[ERROR] Failed to post %s response", r.Agent)))
			return PostFailed
		}
		fmt.Fprintln(o.out, color.Success(fmt.Sprintf("[OK] %s response posted to %s", r.Agent, issueRef(repo, issue))))
		return Posted
	}

	slog.WarnContext(ctx, "result blocked by guardrail", "reason", reason)
	fmt.Fprintln(o.out, color.Notice(fmt.Sprintf("[WARN] %s result blocked by guardrail: %s", r.Agent, reason)))
	if o.postFailure {
		// FailureComment carries its own agent prefix.
		if err := poster.PostComment(ctx, repo, issue, FailureComment(r), r.Agent); err != nil {
			slog.ErrorContext(ctx, "failed to post failure summary", "error", err)
		}
	}
	return Blocked
}

func issueRef(repo string, issue int) string {
	if repo == "" {
		return fmt.Sprintf("issue #%d", issue)
	}
	return fmt.Sprintf("%s#%d", repo, issue)
}

// ReviewAgents run, in this order, for a full review.
var ReviewAgents = []string{"moderator", "reviewer_a", "reviewer_b", "summarizer"}

const closeMarker = "[CLOSE]"

// Review runs ReviewAgents, optionally posts their results, and closes the
// issue when the summarizer asks for it.
func (o *Orchestrator) Review(ctx context.Context, poster Poster, repo string, in RunInput, post bool) Results {
	in.Agents = ReviewAgents
	results := o.Run(ctx, in)
	if post {
		for _, r := range results {
			o.Publish(ctx, poster, repo, in.Issue, r)
		}
	}

	if s, ok := results.Get("summarizer"); ok && s.OK && strings.Contains(s.Response, closeMarker) {
		fmt.Fprintln(o.out, color.Notice(fmt.Sprintf("[INFO] %s found, closing issue #%d", closeMarker, in.Issue)))
		if err := poster.CloseIssue(ctx, repo, in.Issue); err != nil {
			slog.ErrorContext(ctx, "failed to close issue", "issue", in.Issue, "error", err)
		}
	}
	return results
}
