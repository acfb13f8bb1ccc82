package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/samber/mo"

	"github.com/kazz187/issuelab/internal/dispatch"
	"github.com/kazz187/issuelab/pkg/cerr"
)

func (rt *runtime) handleDispatch(ctx context.Context) (int, error) {
	issueBody, err := textOrFile(*dispatchIssueBody, *dispatchIssueBodyFile)
	if err != nil {
		return 0, err
	}
	commentBody, err := textOrFile(*dispatchCommentBody, *dispatchCommentBodyFile)
	if err != nil {
		return 0, err
	}

	req := dispatch.Request{
		Mentions:    parseList(*dispatchMentions),
		SourceRepo:  *dispatchSourceRepo,
		IssueNumber: *dispatchIssue,
		IssueTitle:  *dispatchIssueTitle,
		IssueBody:   issueBody,
		CommentBody: commentBody,
		EventType:   *dispatchEventType,
		DryRun:      *dispatchDryRun,
	}
	if req.SourceRepo == "" {
		req.SourceRepo = rt.env.Repository
	}
	if *dispatchCommentID > 0 {
		req.CommentID = mo.Some(*dispatchCommentID)
	}
	if *dispatchLabels != "" {
		req.Labels = mo.Some(parseList(*dispatchLabels))
	}
	if *dispatchAvailable != "" {
		var agents []map[string]any
		if err := json.Unmarshal([]byte(*dispatchAvailable), &agents); err != nil {
			return 0, cerr.NewError(cerr.InvalidArgument, "--available-agents must be a JSON array of objects", err)
		}
		req.AvailableAgents = mo.Some(agents)
	}

	creds := dispatch.Credentials{AppID: *dispatchAppID, PrivateKey: *dispatchAppKey}
	if creds.AppID == "" {
		creds.AppID = rt.env.AppID
	}
	if creds.PrivateKey == "" {
		creds.PrivateKey = rt.env.AppPrivateKey
	}

	engine, err := rt.dispatchEngine(ctx, creds)
	if err != nil {
		return 0, err
	}
	summary, err := engine.Dispatch(ctx, req)
	if err != nil {
		return 0, err
	}
	return summary.ExitCode(), nil
}

func textOrFile(text, path string) (string, error) {
	if path == "" {
		return text, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("failed to read %s", path), err)
	}
	return string(b), nil
}
