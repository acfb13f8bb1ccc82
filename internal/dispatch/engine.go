package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/issuelab/internal/agent"
	"github.com/kazz187/issuelab/internal/event"
	"github.com/kazz187/issuelab/internal/github"
	"github.com/kazz187/issuelab/pkg/cerr"
	"github.com/kazz187/issuelab/pkg/clog"
	"github.com/kazz187/issuelab/pkg/color"
	"github.com/kazz187/issuelab/pkg/retry"
	"github.com/kazz187/issuelab/pkg/storage"
)

// DefaultRetryPolicy retries a dispatch twice, 2s then 4s apart.
var DefaultRetryPolicy = retry.Policy{
	MaxRetries:   2,
	InitialDelay: 2 * time.Second,
	Factor:       2,
}

const reportPrefix = "dispatch"

// Engine routes matched agents to local execution or a remote dispatch.
type Engine struct {
	loader     *agent.Loader
	api        *github.API
	creds      Credentials
	publisher  event.Publisher
	store      storage.Storage
	outputPath string
	out        io.Writer
	retry      retry.Policy
	now        func() time.Time
}

type Option func(*Engine)

func WithPublisher(p event.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithReportStorage archives each summary under dispatch/<run id>.json.
func WithReportStorage(s storage.Storage) Option {
	return func(e *Engine) { e.store = s }
}

// WithOutputPath sets the GITHUB_OUTPUT file.
func WithOutputPath(p string) Option {
	return func(e *Engine) { e.outputPath = p }
}

func WithWriter(w io.Writer) Option {
	return func(e *Engine) { e.out = w }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(e *Engine) { e.retry = p }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(loader *agent.Loader, api *github.API, creds Credentials, opts ...Option) *Engine {
	e := &Engine{
		loader:    loader,
		api:       api,
		creds:     creds,
		publisher: event.Nop{},
		out:       os.Stdout,
		retry:     DefaultRetryPolicy,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dispatch sends req to every registered user agent it mentions. Per-agent
// failures are recorded in the summary; only configuration errors are returned.
func (e *Engine) Dispatch(ctx context.Context, req Request) (*Summary, error) {
	if len(req.Mentions) == 0 {
		return emptySummary(), nil
	}
	if err := e.creds.validate(); err != nil {
		return nil, err
	}
	ctx = clog.WithIssue(ctx, req.IssueNumber)
	slog.InfoContext(ctx, "dispatching mentions", "mentions", req.Mentions)

	registry, err := e.loader.Load(false)
	if err != nil {
		return nil, err
	}
	if registry.Len() == 0 {
		slog.WarnContext(ctx, "no agents registered", "dir", e.loader.Dir())
		return emptySummary(), nil
	}

	matched := match(req.Mentions, registry)
	if len(matched) == 0 {
		slog.InfoContext(ctx, "no matching agents")
		return emptySummary(), nil
	}

	users := make([]*agent.Config, 0, len(matched))
	for _, cfg := range matched {
		if !cfg.IsSystem() {
			users = append(users, cfg)
		}
	}
	summary := emptySummary()
	summary.SkippedSystem = len(matched) - len(users)
	if summary.SkippedSystem > 0 {
		slog.InfoContext(ctx, "skipped system agents; handled by the orchestrator workflow", "count", summary.SkippedSystem)
	}
	if len(users) == 0 {
		return summary, nil
	}

	summary.RunID = ulid.Make().String()
	summary.TotalCount = len(users)
	auth := &appAuth{creds: e.creds, api: e.api, now: e.now}
	base := buildPayload(req)

	for _, cfg := range users {
		e.dispatchOne(clog.WithAgent(ctx, cfg.CanonicalName()), req, cfg, base, auth, summary)
	}

	e.report(ctx, summary)
	return summary, nil
}

// match keeps the first registered config for each mention, case-insensitively.
func match(mentions []string, registry *agent.Registry) []*agent.Config {
	seen := map[string]struct{}{}
	var out []*agent.Config
	for _, m := range mentions {
		cfg, ok := registry.Get(m)
		if !ok {
			continue
		}
		key := strings.ToLower(cfg.CanonicalName())
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, cfg)
	}
	return out
}

func (e *Engine) dispatchOne(ctx context.Context, req Request, cfg *agent.Config, base payload, auth *appAuth, summary *Summary) {
	name := cfg.CanonicalName()
	outcome := event.DispatchCompletedData{
		RunID:      summary.RunID,
		Issue:      req.IssueNumber,
		SourceRepo: req.SourceRepo,
		Agent:      name,
		Target:     cfg.Repository,
		Mode:       string(cfg.Mode()),
		DryRun:     req.DryRun,
	}
	defer func() {
		if err := e.publisher.Publish(ctx, "dispatch", outcome); err != nil {
			slog.WarnContext(ctx, "failed to publish dispatch event", "error", err)
		}
	}()

	fail := func(f Failure) {
		summary.FailedAgents = append(summary.FailedAgents, f)
		outcome.Code = string(f.Code)
		if f.Code == "" {
			outcome.Code = f.Reason
		}
	}
	succeed := func() {
		summary.SuccessCount++
		outcome.OK = true
	}

	if cfg.Repository == "" {
		slog.WarnContext(ctx, "agent has no repository configured")
		fail(Failure{Username: name, Reason: reasonNoRepository})
		return
	}

	if strings.EqualFold(cfg.Repository, req.SourceRepo) {
		slog.InfoContext(ctx, "agent runs locally (same repository)")
		summary.LocalAgents = append(summary.LocalAgents, name)
		outcome.Local = true
		succeed()
		return
	}

	if req.DryRun {
		slog.InfoContext(ctx, "dry run: would dispatch",
			"repository", cfg.Repository, "mode", cfg.Mode(), "branch", cfg.TargetBranch(), "workflow", cfg.Workflow())
		succeed()
		return
	}

	token, err := auth.installationToken(ctx, cfg.Repository)
	if err != nil {
		slog.WarnContext(ctx, "failed to get installation token", "repository", cfg.Repository, "error", err)
		fail(Failure{Username: name, Repository: cfg.Repository, Code: CodeTokenGenerationFailed})
		return
	}

	if err := e.send(ctx, cfg, req, base, token); err != nil {
		code := classify(cfg.Mode(), err)
		slog.ErrorContext(ctx, "dispatch failed", "repository", cfg.Repository, "mode", cfg.Mode(), "code", code, "error", err)
		fail(Failure{Username: name, Repository: cfg.Repository, Code: code})
		return
	}
	slog.InfoContext(ctx, "dispatched", "repository", cfg.Repository, "mode", cfg.Mode())
	succeed()
}

func (e *Engine) report(ctx context.Context, s *Summary) {
	e.printSummary(s)

	local, _ := json.Marshal(s.LocalAgents)
	_ = github.WriteOutputs(ctx, e.outputPath,
		github.Output{Key: "dispatched_count", Value: fmt.Sprint(s.SuccessCount)},
		github.Output{Key: "total_count", Value: fmt.Sprint(s.TotalCount)},
		github.Output{Key: "local_agents", Value: string(local)},
	)

	if e.store == nil {
		return
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		slog.WarnContext(ctx, "failed to encode dispatch report", "error", err)
		return
	}
	if err := e.store.Write(ctx, path.Join(reportPrefix, s.RunID+".json"), data); err != nil {
		cerr.Report(ctx, "failed to archive dispatch report", cerr.WrapStorageWriteError("dispatch report", err))
	}
}

func (e *Engine) printSummary(s *Summary) {
	line := strings.Repeat("=", 60)
	fmt.Fprintf(e.out, "\n%s\n", line)
	fmt.Fprintln(e.out, color.Success(fmt.Sprintf("[OK] Successfully dispatched to %d/%d agents", s.SuccessCount, s.TotalCount)))
	if len(s.FailedAgents) > 0 {
		fmt.Fprintln(e.out, color.Failure(fmt.Sprintf("[ERROR] Failed agents (%d):", len(s.FailedAgents))))
		for _, f := range s.FailedAgents {
			reason := string(f.Code)
			if reason == "" {
				reason = f.Reason
			}
			fmt.Fprintf(e.out, "   - %s: %s\n", color.AgentPrefix(f.Username), reason)
		}
	}
	fmt.Fprintln(e.out, line)
	if len(s.LocalAgents) > 0 {
		fmt.Fprintln(e.out, color.Notice("[LOCAL] Agents to run locally: "+strings.Join(s.LocalAgents, ", ")))
	}
}
