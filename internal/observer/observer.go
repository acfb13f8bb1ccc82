package observer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/kazz187/issuelab/internal/agent"
	"github.com/kazz187/issuelab/internal/event"
	"github.com/kazz187/issuelab/internal/orchestrator"
	"github.com/kazz187/issuelab/pkg/clog"
	"github.com/kazz187/issuelab/pkg/panicerr"
)

const (
	AgentName = "observer"

	DefaultMaxParallel = 5

	noBody     = "无内容"
	noComments = "无评论"
)

const defaultPrompt = `你是 Observer，负责观察 GitHub Issue 并决定是否需要触发其他 Agent。

## Issue #{issue_number}: {issue_title}

{issue_body}

## 历史评论

{comments}

## 可用 Agent

{agent_matrix}

请用 YAML 回复:

` + "```yaml" + `
should_trigger: true 或 false
agent: 要触发的 Agent 名称
comment: 触发评论
reason: 理由
analysis: 简要分析
` + "```"

// Registry is the part of the agent registry the observer reads.
type Registry interface {
	Get(name string) (*agent.Config, bool)
	MatrixMarkdown() string
}

// Runner invokes one agent with a ready prompt.
type Runner interface {
	RunPrompt(ctx context.Context, issue int, name, prompt string) *orchestrator.Result
}

// IssueInput is what the observer sees of one issue.
type IssueInput struct {
	Number   int
	Title    string
	Body     string
	Comments string
}

type Analyzer struct {
	runner    Runner
	registry  Registry
	publisher event.Publisher
}

type Option func(*Analyzer)

func WithPublisher(p event.Publisher) Option {
	return func(a *Analyzer) { a.publisher = p }
}

func NewAnalyzer(runner Runner, registry Registry, opts ...Option) *Analyzer {
	a := &Analyzer{runner: runner, registry: registry, publisher: event.Nop{}}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RenderPrompt fills the observer prompt placeholders. An empty template
// uses the built-in one.
func RenderPrompt(tmpl string, in IssueInput, matrix string) string {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = defaultPrompt
	}
	body := in.Body
	if strings.TrimSpace(body) == "" {
		body = noBody
	}
	comments := in.Comments
	if strings.TrimSpace(comments) == "" {
		comments = noComments
	}
	return strings.NewReplacer(
		"{issue_number}", strconv.Itoa(in.Number),
		"{issue_title}", in.Title,
		"{issue_body}", body,
		"{comments}", comments,
		"{agent_matrix}", matrix,
		"{{", "{",
		"}}", "}",
	).Replace(tmpl)
}

// Analyze asks the observer agent about one issue.
func (a *Analyzer) Analyze(ctx context.Context, in IssueInput) Decision {
	ctx = clog.WithIssue(ctx, in.Number)
	d := a.analyze(ctx, in)
	if err := a.publisher.Publish(ctx, "observer", event.ObserverDecidedData{
		Issue:         d.Issue,
		ShouldTrigger: d.ShouldTrigger,
		Agent:         d.Agent,
		Reason:        d.Reason,
		Error:         d.Error,
	}); err != nil {
		slog.WarnContext(ctx, "failed to publish observer decision", "error", err)
	}
	return d
}

func (a *Analyzer) analyze(ctx context.Context, in IssueInput) Decision {
	cfg, ok := a.registry.Get(AgentName)
	if !ok {
		return Decision{Issue: in.Number, Error: "Observer agent not found"}
	}

	prompt := RenderPrompt(cfg.Prompt, in, a.registry.MatrixMarkdown())
	r := a.runner.RunPrompt(ctx, in.Number, AgentName, prompt)
	if !r.OK {
		slog.WarnContext(ctx, "observer run failed", "error_type", r.ErrorType, "error", r.ErrorMessage)
		return Decision{Issue: in.Number, Error: r.ErrorMessage}
	}

	d := Parse(r.Response, in.Number)
	slog.InfoContext(ctx, "observer decided", "should_trigger", d.ShouldTrigger, "agent", d.Agent)
	return d
}

// AnalyzeBatch analyzes issues with at most maxParallel in flight. Results
// keep input order; a failure or panic only affects its own issue.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, inputs []IssueInput, maxParallel int) []Decision {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}
	slog.InfoContext(ctx, "analyzing issues", "count", len(inputs), "max_parallel", maxParallel)

	decisions := make([]Decision, len(inputs))
	p := pool.New().WithMaxGoroutines(maxParallel)
	for i, in := range inputs {
		p.Go(func() {
			d, err := panicerr.SafeValue(ctx, func(ctx context.Context) (Decision, error) {
				return a.Analyze(ctx, in), nil
			})
			if err != nil {
				slog.ErrorContext(ctx, "observer analysis panicked", "issue", in.Number, "error", err)
				d = Decision{Issue: in.Number, Error: fmt.Sprintf("analysis failed: %v", err)}
			}
			decisions[i] = d
		})
	}
	p.Wait()
	return decisions
}

// Triggered counts decisions that asked for an agent.
func Triggered(ds []Decision) int {
	n := 0
	for _, d := range ds {
		if d.ShouldTrigger {
			n++
		}
	}
	return n
}
