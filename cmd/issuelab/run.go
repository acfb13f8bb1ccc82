package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kazz187/issuelab/internal/github"
	"github.com/kazz187/issuelab/internal/orchestrator"
	"github.com/kazz187/issuelab/pkg/cerr"
	"github.com/kazz187/issuelab/pkg/color"
)

func (rt *runtime) handleExecute(ctx context.Context) (int, error) {
	var agents []string
	for _, a := range parseList(*executeAgents) {
		agents = append(agents, strings.ToLower(a))
	}
	if len(agents) == 0 {
		return 0, cerr.NewError(cerr.InvalidArgument, "no valid agents given", nil)
	}

	registry, err := rt.loader.Load(false)
	if err != nil {
		return 0, err
	}
	client := rt.issueClient()
	issue, path, err := rt.issueContext(ctx, client, *executeIssue)
	if err != nil {
		return 0, err
	}
	orch, err := rt.orchestrator(ctx, registry)
	if err != nil {
		return 0, err
	}

	results := orch.Run(ctx, orchestrator.RunInput{
		Issue:        issue.Number,
		Agents:       agents,
		Context:      orchestrator.IssueFileContext(issue.Title, path),
		CommentCount: len(issue.Comments),
	})
	if *executePost {
		for _, r := range results {
			orch.Publish(ctx, client, "", issue.Number, r)
		}
	}
	return resultsExitCode(results), nil
}

func (rt *runtime) handleReview(ctx context.Context) (int, error) {
	registry, err := rt.loader.Load(false)
	if err != nil {
		return 0, err
	}
	client := rt.issueClient()
	issue, path, err := rt.issueContext(ctx, client, *reviewIssue)
	if err != nil {
		return 0, err
	}
	orch, err := rt.orchestrator(ctx, registry)
	if err != nil {
		return 0, err
	}

	results := orch.Review(ctx, client, "", orchestrator.RunInput{
		Issue:        issue.Number,
		Context:      orchestrator.IssueFileContext(issue.Title, path),
		CommentCount: len(issue.Comments),
	}, *reviewPost)
	return resultsExitCode(results), nil
}

func (rt *runtime) handlePersonalReply(ctx context.Context) (int, error) {
	cfg, err := rt.loader.GetConfig(*personalAgent, false)
	if err != nil {
		return 0, err
	}
	if cfg == nil {
		return 0, cerr.NewError(cerr.NotFound, fmt.Sprintf("agent %s not found", *personalAgent), nil)
	}
	name := strings.ToLower(cfg.CanonicalName())

	var available []map[string]any
	if *personalAvailable != "" {
		if err := json.Unmarshal([]byte(*personalAvailable), &available); err != nil {
			slog.WarnContext(ctx, "ignoring malformed --available-agents", "error", err)
			available = nil
		}
	}

	client := rt.issueClient()
	title, body := *personalTitle, *personalBody
	if title == "" && body == "" {
		issue, err := client.GetIssue(ctx, *personalRepo, *personalIssue)
		if err != nil {
			return 0, err
		}
		title, body = issue.Title, issue.Body
	}

	registry, err := rt.loader.Load(false)
	if err != nil {
		return 0, err
	}
	orch, err := rt.orchestrator(ctx, registry)
	if err != nil {
		return 0, err
	}

	results := orch.Run(ctx, orchestrator.RunInput{
		Issue:   *personalIssue,
		Agents:  []string{name},
		Context: orchestrator.InvitationContext(*personalIssue, title, body, available),
	})
	r := results[0]

	if *personalPost {
		if orch.Publish(ctx, client, *personalRepo, *personalIssue, r) == orchestrator.PostFailed {
			rt.writeOutputs(ctx,
				github.Output{Key: "agent_response", Value: r.Response},
				github.Output{Key: "comment_failed", Value: "true"},
			)
		}
	}
	return resultsExitCode(results), nil
}

// resultsExitCode is 0 when at least one agent produced a publishable result.
func resultsExitCode(results orchestrator.Results) int {
	ok := 0
	for _, r := range results {
		if publishable, _ := r.Publishable(); publishable {
			ok++
		}
	}
	fmt.Println(color.Notice(fmt.Sprintf("[INFO] %d/%d agents succeeded", ok, len(results))))
	if ok == 0 && len(results) > 0 {
		return 1
	}
	return 0
}
