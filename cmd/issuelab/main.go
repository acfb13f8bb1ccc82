package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"

	"github.com/kazz187/issuelab/pkg/cerr"
	"github.com/kazz187/issuelab/pkg/clog"
)

var (
	app = kingpin.New("issuelab", "Route GitHub issue @mentions to agents")

	envFile = app.Flag("env-file", "Optional .env file").Default(".env").String()

	// Mention commands
	mentionsCmd         = app.Command("mentions", "Extract @mentions from issue or comment text")
	mentionsIssueBody   = mentionsCmd.Flag("issue-body", "Issue body").String()
	mentionsCommentBody = mentionsCmd.Flag("comment-body", "Comment body").String()
	mentionsOutput      = mentionsCmd.Flag("output", "Output format").Default("text").Enum("text", "json")
	mentionsMode        = mentionsCmd.Flag("mode", "Extraction mode").Default("strict").Enum("strict", "permissive", "controlled")
	mentionsRank        = mentionsCmd.Flag("rank", "Order by mention frequency").Bool()

	filterCmd      = app.Command("filter", "Filter mentions against the registry and mention policy")
	filterMentions = filterCmd.Flag("mentions", "Mentions as a JSON array or comma-separated list").Required().String()
	filterIssue    = filterCmd.Flag("issue-number", "Issue number for rate limiting").Int()
	filterAgents   = filterCmd.Flag("agents-dir", "Agents directory").String()
	filterPolicy   = filterCmd.Flag("policy", "Mention policy file").String()

	// Dispatch
	dispatchCmd             = app.Command("dispatch", "Dispatch mentions to the repositories of user agents")
	dispatchMentions        = dispatchCmd.Flag("mentions", "Mentions as a JSON array or comma-separated list").Required().String()
	dispatchSourceRepo      = dispatchCmd.Flag("source-repo", "Source repository (owner/name)").String()
	dispatchIssue           = dispatchCmd.Flag("issue-number", "Issue number").Required().Int()
	dispatchIssueTitle      = dispatchCmd.Flag("issue-title", "Issue title").String()
	dispatchIssueBody       = dispatchCmd.Flag("issue-body", "Issue body").String()
	dispatchIssueBodyFile   = dispatchCmd.Flag("issue-body-file", "Read the issue body from a file").ExistingFile()
	dispatchCommentID       = dispatchCmd.Flag("comment-id", "Comment id when a comment carried the mentions").Int64()
	dispatchCommentBody     = dispatchCmd.Flag("comment-body", "Comment body").String()
	dispatchCommentBodyFile = dispatchCmd.Flag("comment-body-file", "Read the comment body from a file").ExistingFile()
	dispatchLabels          = dispatchCmd.Flag("labels", "Issue labels as a JSON array or comma-separated list").String()
	dispatchAvailable       = dispatchCmd.Flag("available-agents", "Available agents as a JSON array of objects").String()
	dispatchEventType       = dispatchCmd.Flag("event-type", "repository_dispatch event type").Default("issue_mention").String()
	dispatchDryRun          = dispatchCmd.Flag("dry-run", "Resolve and report without sending").Bool()
	dispatchAppID           = dispatchCmd.Flag("app-id", "GitHub App id").Envar("GITHUB_APP_ID").String()
	dispatchAppKey          = dispatchCmd.Flag("app-private-key", "GitHub App private key (PEM)").Envar("GITHUB_APP_PRIVATE_KEY").String()

	// Execution
	executeCmd    = app.Command("execute", "Run agents on an issue, one at a time")
	executeIssue  = executeCmd.Flag("issue", "Issue number").Required().Int()
	executeAgents = executeCmd.Flag("agents", "Agents as a JSON array, comma or space separated list").Required().String()
	executePost   = executeCmd.Flag("post", "Post results to the issue").Bool()

	reviewCmd   = app.Command("review", "Run the full review sequence on an issue")
	reviewIssue = reviewCmd.Flag("issue", "Issue number").Required().Int()
	reviewPost  = reviewCmd.Flag("post", "Post results to the issue").Bool()

	personalCmd       = app.Command("personal-reply", "Run one agent on an issue it was invited to")
	personalAgent     = personalCmd.Flag("agent", "Agent name").Required().String()
	personalIssue     = personalCmd.Flag("issue", "Issue number").Required().Int()
	personalRepo      = personalCmd.Flag("repo", "Repository of the issue (owner/name)").Required().String()
	personalTitle     = personalCmd.Flag("issue-title", "Issue title").String()
	personalBody      = personalCmd.Flag("issue-body", "Issue body").String()
	personalAvailable = personalCmd.Flag("available-agents", "Available agents as a JSON array of objects").String()
	personalPost      = personalCmd.Flag("post", "Post the reply to the issue").Bool()

	// Observer
	observeCmd   = app.Command("observe", "Ask the observer whether an issue needs an agent")
	observeIssue = observeCmd.Flag("issue", "Issue number").Required().Int()
	observePost  = observeCmd.Flag("post", "Post the trigger comment").Bool()

	observeBatchCmd     = app.Command("observe-batch", "Run the observer on several issues in parallel")
	observeBatchIssues  = observeBatchCmd.Flag("issues", "Comma-separated issue numbers").Required().String()
	observeBatchMax     = observeBatchCmd.Flag("max-parallel", "Maximum concurrent analyses").Int()
	observeBatchTrigger = observeBatchCmd.Flag("auto-trigger", "Start the agents the observer asks for").Bool()

	// Registry
	listAgentsCmd = app.Command("list-agents", "List registered agents")
	listAgentsAll = listAgentsCmd.Flag("all", "Include disabled agents").Bool()

	validateCmd   = app.Command("validate-agents", "Validate agent configs and output templates")
	validateWatch = validateCmd.Flag("watch", "Revalidate whenever the agents directory changes").Bool()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, command)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, command string) int {
	ctx = clog.ContextWithSlog(ctx)
	rt, err := setup(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cerr.CodeOf(err).ExitCode()
	}
	defer rt.close()

	var code int
	switch command {
	case mentionsCmd.FullCommand():
		code, err = rt.handleMentions(ctx)
	case filterCmd.FullCommand():
		code, err = rt.handleFilter(ctx)
	case dispatchCmd.FullCommand():
		code, err = rt.handleDispatch(ctx)
	case executeCmd.FullCommand():
		code, err = rt.handleExecute(ctx)
	case reviewCmd.FullCommand():
		code, err = rt.handleReview(ctx)
	case personalCmd.FullCommand():
		code, err = rt.handlePersonalReply(ctx)
	case observeCmd.FullCommand():
		code, err = rt.handleObserve(ctx)
	case observeBatchCmd.FullCommand():
		code, err = rt.handleObserveBatch(ctx)
	case listAgentsCmd.FullCommand():
		code, err = rt.handleListAgents(ctx)
	case validateCmd.FullCommand():
		code, err = rt.handleValidateAgents(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		return 1
	}
	if err != nil {
		cerr.Report(ctx, command+" failed", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cerr.CodeOf(err).ExitCode()
	}
	return code
}
