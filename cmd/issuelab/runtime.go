package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/issuelab/internal/agent"
	"github.com/kazz187/issuelab/internal/config"
	"github.com/kazz187/issuelab/internal/dispatch"
	"github.com/kazz187/issuelab/internal/event"
	"github.com/kazz187/issuelab/internal/github"
	"github.com/kazz187/issuelab/internal/orchestrator"
	"github.com/kazz187/issuelab/internal/policy"
	"github.com/kazz187/issuelab/pkg/cerr"
	"github.com/kazz187/issuelab/pkg/clog"
	"github.com/kazz187/issuelab/pkg/storage"
)

const (
	rateLedgerMemory = "memory"
	rateLedgerFile   = "file"
	rateLedgerRedis  = "redis"

	redisLedgerKey = "issuelab:rate_ledger"
)

// runtime holds what the commands share. Storage and the event bus are opened
// on first use so that pure text commands need neither.
type runtime struct {
	env    *config.Env
	loader *agent.Loader

	store   storage.Storage
	bus     *event.EventBus
	closers []func() error
}

func setup(envFile string) (*runtime, error) {
	env, err := config.LoadEnv(envFile)
	if err != nil {
		return nil, cerr.NewError(cerr.InvalidArgument, "invalid environment", err)
	}
	slog.SetDefault(clog.New(os.Stderr, env.LogFormat, env.SlogLevel(), env.LogColor))
	return &runtime{env: env, loader: agent.NewLoader(env.AgentsDir)}, nil
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			slog.Warn("failed to close resource", "error", err)
		}
	}
}

func (rt *runtime) storage(ctx context.Context) (storage.Storage, error) {
	if rt.store != nil {
		return rt.store, nil
	}
	store, err := storage.Open(ctx, rt.env.Options())
	if err != nil {
		return nil, cerr.NewError(cerr.FailedPrecondition, "failed to open storage", err)
	}
	rt.store = store
	return store, nil
}

// publisher starts the audit bus with the NDJSON logger and any configured hooks.
func (rt *runtime) publisher(ctx context.Context) (event.Publisher, error) {
	if rt.bus != nil {
		return rt.bus, nil
	}
	store, err := rt.storage(ctx)
	if err != nil {
		return nil, err
	}
	hooks, err := event.LoadHooksFile(rt.env.HooksFile())
	if err != nil {
		return nil, cerr.NewError(cerr.InvalidArgument, "invalid hooks file", err)
	}

	bus, err := event.NewEventBus()
	if err != nil {
		return nil, err
	}
	event.RegisterEventLogger(bus, event.NewEventLogger(store))
	if len(hooks) > 0 {
		event.RegisterHooks(bus, event.NewHookExecutor(hooks))
	}
	if err := bus.Start(ctx); err != nil {
		return nil, err
	}
	rt.bus = bus
	rt.closers = append(rt.closers, bus.Stop)
	return bus, nil
}

func (rt *runtime) ledger(ctx context.Context) (policy.Ledger, error) {
	switch rt.env.RateStore {
	case "", rateLedgerMemory:
		return policy.NewMemoryLedger(), nil
	case rateLedgerFile:
		store, err := rt.storage(ctx)
		if err != nil {
			return nil, err
		}
		lockDir := rt.env.BaseDir
		if rt.env.StorageEnv.Type == storage.TypeS3 {
			lockDir = os.TempDir()
		}
		return policy.NewFileLedger(store, filepath.Join(lockDir, "rate_ledger.lock")), nil
	case rateLedgerRedis:
		client, err := policy.DialRedis(ctx, rt.env.RedisURL)
		if err != nil {
			return nil, cerr.NewError(cerr.FailedPrecondition, "failed to connect to redis", err)
		}
		rt.closers = append(rt.closers, client.Close)
		return policy.NewRedisLedger(client, redisLedgerKey, ulid.Make().String()), nil
	default:
		return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown rate store %q", rt.env.RateStore), nil)
	}
}

func (rt *runtime) githubAPI() *github.API {
	return github.NewAPI(rt.env.APIBaseURL, rt.env.DispatchRPS)
}

func (rt *runtime) issueClient() *github.Client {
	return github.NewClient(rt.githubAPI(), rt.env.Token, rt.env.Repository)
}

func (rt *runtime) dispatchEngine(ctx context.Context, creds dispatch.Credentials) (*dispatch.Engine, error) {
	pub, err := rt.publisher(ctx)
	if err != nil {
		return nil, err
	}
	return dispatch.NewEngine(rt.loader, rt.githubAPI(), creds,
		dispatch.WithPublisher(pub),
		dispatch.WithReportStorage(rt.store),
		dispatch.WithOutputPath(rt.env.OutputPath),
	), nil
}

func (rt *runtime) orchestrator(ctx context.Context, registry orchestrator.Registry) (*orchestrator.Orchestrator, error) {
	pub, err := rt.publisher(ctx)
	if err != nil {
		return nil, err
	}
	inv, err := agent.NewInvoker(rt.env.Backend, agent.BackendOptions{CLIPath: rt.env.CLIPath, Model: rt.env.Model})
	if err != nil {
		return nil, cerr.NewError(cerr.InvalidArgument, "invalid agent backend", err)
	}
	inv = agent.NewBreakerInvoker(inv, agent.BreakerSettings{Timeout: rt.env.BreakerTimeout})

	return orchestrator.New(inv,
		orchestrator.WithRegistry(registry),
		orchestrator.WithPublisher(pub),
		orchestrator.WithScene(orchestrator.SceneByName(rt.env.Scene)),
		orchestrator.WithFailureComments(rt.env.PostFailureComment.Enabled()),
		orchestrator.WithTriggerComment(rt.env.TriggerComment),
	), nil
}

// issueContext fetches an issue and writes its context file for the agents to read.
func (rt *runtime) issueContext(ctx context.Context, client *github.Client, number int) (*github.Issue, string, error) {
	issue, err := client.GetIssue(ctx, "", number)
	if err != nil {
		return nil, "", err
	}
	path, err := github.WriteIssueContextFile(github.ContextDir(rt.env.RunnerTemp), issue)
	if err != nil {
		return nil, "", err
	}
	return issue, path, nil
}

func (rt *runtime) writeOutputs(ctx context.Context, outputs ...github.Output) {
	// best effort, WriteOutputs logs its own failures
	_ = github.WriteOutputs(ctx, rt.env.OutputPath, outputs...)
}

// parseList accepts a JSON array, or names separated by commas or whitespace.
func parseList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") {
		var items []string
		if err := json.Unmarshal([]byte(s), &items); err == nil {
			return compact(items)
		}
	}
	return compact(strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	}))
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
