package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/samber/mo"

	"github.com/kazz187/issuelab/internal/agent"
	"github.com/kazz187/issuelab/internal/github"
	"github.com/kazz187/issuelab/internal/mention"
	"github.com/kazz187/issuelab/internal/policy"
	"github.com/kazz187/issuelab/pkg/cerr"
)

func (rt *runtime) handleMentions(ctx context.Context) (int, error) {
	text := strings.TrimSpace(strings.Join(compact([]string{*mentionsIssueBody, *mentionsCommentBody}), "\n"))
	if text == "" {
		return 0, cerr.NewError(cerr.InvalidArgument, "no text given, use --issue-body or --comment-body", nil)
	}
	mode, err := mention.ParseMode(*mentionsMode)
	if err != nil {
		return 0, cerr.NewError(cerr.InvalidArgument, "invalid mode", err)
	}

	var mentions []string
	if *mentionsRank {
		mentions = mention.Rank(text)
	} else {
		mentions = mention.Extract(text, mode)
	}

	switch *mentionsOutput {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		if err := enc.Encode(map[string]any{"mentions": mentions, "count": len(mentions)}); err != nil {
			return 0, err
		}
	default:
		for _, m := range mentions {
			fmt.Println(m)
		}
	}

	rt.writeOutputs(ctx,
		github.Output{Key: "mentions", Value: mustJSON(mentions)},
		github.Output{Key: "count", Value: strconv.Itoa(len(mentions))},
	)
	return 0, nil
}

func (rt *runtime) handleFilter(ctx context.Context) (int, error) {
	dir := rt.env.AgentsDir
	if *filterAgents != "" {
		dir = *filterAgents
	}
	policyPath := rt.env.PolicyFile()
	if *filterPolicy != "" {
		policyPath = *filterPolicy
	}

	registry, err := agent.Load(dir, false)
	if err != nil {
		return 0, err
	}
	ledger, err := rt.ledger(ctx)
	if err != nil {
		return 0, err
	}
	pub, err := rt.publisher(ctx)
	if err != nil {
		return 0, err
	}

	f := policy.NewFilter(policy.LoadPolicy(policyPath),
		policy.WithLimiter(policy.NewLimiter(ledger)),
		policy.WithPublisher(pub),
	)
	issue := mo.None[int]()
	if *filterIssue > 0 {
		issue = mo.Some(*filterIssue)
	}
	allowed, filtered := f.Apply(ctx, parseList(*filterMentions), registry, issue)

	if err := json.NewEncoder(os.Stdout).Encode(map[string][]string{"allowed": allowed, "filtered": filtered}); err != nil {
		return 0, err
	}
	rt.writeOutputs(ctx,
		github.Output{Key: "allowed", Value: mustJSON(allowed)},
		github.Output{Key: "filtered", Value: mustJSON(filtered)},
	)
	return 0, nil
}
