package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kazz187/issuelab/internal/dispatch"
	"github.com/kazz187/issuelab/internal/github"
	"github.com/kazz187/issuelab/internal/observer"
	"github.com/kazz187/issuelab/pkg/cerr"
	"github.com/kazz187/issuelab/pkg/color"
)

const commentsInFile = "历史评论已包含在同一文件中。"

func observerInput(issue *github.Issue, path string) observer.IssueInput {
	return observer.IssueInput{
		Number:   issue.Number,
		Title:    issue.Title,
		Body:     fmt.Sprintf("内容已保存至文件: %s\n请使用 Read 工具读取该文件后再分析。", path),
		Comments: commentsInFile,
	}
}

func (rt *runtime) analyzer(ctx context.Context) (*observer.Analyzer, error) {
	registry, err := rt.loader.Load(false)
	if err != nil {
		return nil, err
	}
	orch, err := rt.orchestrator(ctx, registry)
	if err != nil {
		return nil, err
	}
	pub, err := rt.publisher(ctx)
	if err != nil {
		return nil, err
	}
	return observer.NewAnalyzer(orch, registry, observer.WithPublisher(pub)), nil
}

func (rt *runtime) handleObserve(ctx context.Context) (int, error) {
	client := rt.issueClient()
	issue, path, err := rt.issueContext(ctx, client, *observeIssue)
	if err != nil {
		return 0, err
	}
	a, err := rt.analyzer(ctx)
	if err != nil {
		return 0, err
	}

	d := a.Analyze(ctx, observerInput(issue, path))

	fmt.Printf("\n=== Observer Analysis for Issue #%d ===\n", d.Issue)
	fmt.Printf("\nAnalysis:\n%s\n", orNA(d.Analysis))
	fmt.Printf("\nShould Trigger: %t\n", d.ShouldTrigger)
	if !d.ShouldTrigger {
		fmt.Printf("Skip Reason: %s\n", orNA(d.Reason))
		if d.Error != "" {
			fmt.Println(color.Notice("[WARN] " + d.Error))
			return 1, nil
		}
		return 0, nil
	}
	fmt.Printf("Agent: %s\n", orNA(d.Agent))
	fmt.Printf("Trigger Comment: %s\n", orNA(d.Comment))
	fmt.Printf("Reason: %s\n", orNA(d.Reason))

	if *observePost {
		if d.Comment == "" {
			fmt.Println(color.Failure("\n[ERROR] Failed to post trigger comment"))
			return 1, nil
		}
		if err := client.PostComment(ctx, "", d.Issue, d.Comment, observer.AgentName); err != nil {
			slog.ErrorContext(ctx, "failed to post trigger comment", "error", err)
			fmt.Println(color.Failure("\n[ERROR] Failed to post trigger comment"))
			return 1, nil
		}
		fmt.Println(color.Success(fmt.Sprintf("\n[OK] Trigger comment posted to issue #%d", d.Issue)))
	}
	return 0, nil
}

func (rt *runtime) handleObserveBatch(ctx context.Context) (int, error) {
	var numbers []int
	for _, s := range strings.Split(*observeBatchIssues, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("invalid issue number %q", s), err)
		}
		numbers = append(numbers, n)
	}
	if len(numbers) == 0 {
		return 0, cerr.NewError(cerr.InvalidArgument, "no valid issue numbers given", nil)
	}
	fmt.Printf("\n=== 并行分析 %d 个 Issues ===\n", len(numbers))

	client := rt.issueClient()
	inputs := make([]observer.IssueInput, 0, len(numbers))
	for _, n := range numbers {
		issue, path, err := rt.issueContext(ctx, client, n)
		if err != nil {
			slog.WarnContext(ctx, "skipping issue", "issue", n, "error", err)
			fmt.Println(color.Notice(fmt.Sprintf("[WARNING] 获取 Issue #%d 失败: %v", n, err)))
			continue
		}
		inputs = append(inputs, observerInput(issue, path))
	}
	if len(inputs) == 0 {
		return 0, cerr.NewError(cerr.FailedPrecondition, "no issue could be fetched", nil)
	}

	a, err := rt.analyzer(ctx)
	if err != nil {
		return 0, err
	}
	maxParallel := *observeBatchMax
	if maxParallel <= 0 {
		maxParallel = rt.env.ObserverMaxPar
	}
	decisions := a.AnalyzeBatch(ctx, inputs, maxParallel)

	var trigger *observer.AutoTrigger
	if *observeBatchTrigger {
		registry, err := rt.loader.Load(true)
		if err != nil {
			return 0, err
		}
		engine, err := rt.dispatchEngine(ctx, dispatch.Credentials{AppID: rt.env.AppID, PrivateKey: rt.env.AppPrivateKey})
		if err != nil {
			return 0, err
		}
		trigger = observer.NewAutoTrigger(client, engine, registry, rt.env.Repository)
	}

	sep := strings.Repeat("=", 60)
	fmt.Printf("\n%s\n分析完成：%d 个 Issues\n%s\n\n", sep, len(decisions), sep)
	for i, d := range decisions {
		fmt.Printf("Issue #%d:\n", d.Issue)
		if !d.ShouldTrigger {
			fmt.Println("  触发: [ERROR] 否")
			fmt.Printf("  原因: %s\n", orNA(d.Reason))
		} else {
			fmt.Println("  触发: [OK] 是")
			fmt.Printf("  Agent: %s\n", orNA(d.Agent))
			fmt.Printf("  理由: %s\n", orNA(d.Reason))
			if trigger != nil {
				if err := trigger.Trigger(ctx, inputs[i], d); err != nil {
					slog.ErrorContext(ctx, "auto trigger failed", "issue", d.Issue, "agent", d.Agent, "error", err)
					fmt.Println(color.Failure("  [ERROR] 自动触发失败"))
				} else {
					fmt.Println(color.Success("  [OK] 已自动触发 agent"))
				}
			}
		}
		if d.Error != "" {
			fmt.Println(color.Notice("  [WARNING] 错误: " + d.Error))
		}
		fmt.Println()
	}
	fmt.Printf("\n总结: %d/%d 个 Issues 需要触发 Agent\n", observer.Triggered(decisions), len(decisions))
	return 0, nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
