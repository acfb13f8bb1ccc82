package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kazz187/issuelab/pkg/cerr"
)

type Comment struct {
	ID        int64
	Author    string
	Body      string
	CreatedAt time.Time
}

type Issue struct {
	Repository string
	Number     int
	Title      string
	Body       string
	State      string
	Labels     []string
	Comments   []Comment
}

type apiIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

type apiComment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
	User struct {
		Login string `json:"login"`
	} `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

const commentsPerPage = 100

// Client reads and writes issues with a repository token.
type Client struct {
	api   *API
	token string
	repo  string
}

// NewClient uses repo whenever a call passes an empty repository.
func NewClient(api *API, token, repo string) *Client {
	return &Client{api: api, token: token, repo: repo}
}

func (c *Client) Repository() string {
	return c.repo
}

func (c *Client) target(repo string) (string, error) {
	if repo == "" {
		repo = c.repo
	}
	if repo == "" {
		return "", cerr.NewError(cerr.InvalidArgument, "repository is not set (GITHUB_REPOSITORY)", nil)
	}
	return repo, nil
}

// GetIssue fetches the issue and all of its comments.
func (c *Client) GetIssue(ctx context.Context, repo string, number int) (*Issue, error) {
	repo, err := c.target(repo)
	if err != nil {
		return nil, err
	}

	var ai apiIssue
	if err := c.api.Do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/issues/%d", repo, number), c.token, nil, &ai); err != nil {
		return nil, fmt.Errorf("failed to get issue %s#%d: %w", repo, number, err)
	}

	issue := &Issue{
		Repository: repo,
		Number:     ai.Number,
		Title:      ai.Title,
		Body:       ai.Body,
		State:      ai.State,
		Labels:     []string{},
	}
	for _, l := range ai.Labels {
		issue.Labels = append(issue.Labels, l.Name)
	}

	for page := 1; ; page++ {
		q := url.Values{"per_page": {fmt.Sprint(commentsPerPage)}, "page": {fmt.Sprint(page)}}
		var batch []apiComment
		path := fmt.Sprintf("/repos/%s/issues/%d/comments?%s", repo, number, q.Encode())
		if err := c.api.Do(ctx, http.MethodGet, path, c.token, nil, &batch); err != nil {
			return nil, fmt.Errorf("failed to list comments of %s#%d: %w", repo, number, err)
		}
		for _, ac := range batch {
			issue.Comments = append(issue.Comments, Comment{
				ID:        ac.ID,
				Author:    ac.User.Login,
				Body:      ac.Body,
				CreatedAt: ac.CreatedAt,
			})
		}
		if len(batch) < commentsPerPage {
			break
		}
	}
	return issue, nil
}

// PostComment truncates body to MaxCommentLength and, when agent is set,
// prefixes it with the agent marker.
func (c *Client) PostComment(ctx context.Context, repo string, number int, body, agent string) error {
	repo, err := c.target(repo)
	if err != nil {
		return err
	}
	if agent != "" {
		body = WithAgentPrefix(agent, body)
	}
	body = Truncate(body, MaxCommentLength)

	in := map[string]string{"body": body}
	if err := c.api.Do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/issues/%d/comments", repo, number), c.token, in, nil); err != nil {
		return fmt.Errorf("failed to post comment to %s#%d: %w", repo, number, err)
	}
	slog.InfoContext(ctx, "posted comment", "repo", repo, "issue", number, "agent", agent, "length", len([]rune(body)))
	return nil
}

func (c *Client) CloseIssue(ctx context.Context, repo string, number int) error {
	repo, err := c.target(repo)
	if err != nil {
		return err
	}
	in := map[string]string{"state": "closed"}
	if err := c.api.Do(ctx, http.MethodPatch, fmt.Sprintf("/repos/%s/issues/%d", repo, number), c.token, in, nil); err != nil {
		return fmt.Errorf("failed to close %s#%d: %w", repo, number, err)
	}
	return nil
}

// DefaultBranch returns the repository's default branch.
func (c *Client) DefaultBranch(ctx context.Context, repo string) (string, error) {
	repo, err := c.target(repo)
	if err != nil {
		return "", err
	}
	var out struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := c.api.Do(ctx, http.MethodGet, "/repos/"+repo, c.token, nil, &out); err != nil {
		return "", fmt.Errorf("failed to get repository %s: %w", repo, err)
	}
	if out.DefaultBranch == "" {
		return "main", nil
	}
	return out.DefaultBranch, nil
}

// RunWorkflow creates a workflow_dispatch event with the repository token.
func (c *Client) RunWorkflow(ctx context.Context, repo, workflow, ref string, inputs map[string]string) error {
	repo, err := c.target(repo)
	if err != nil {
		return err
	}
	in := map[string]any{"ref": ref, "inputs": inputs}
	path := fmt.Sprintf("/repos/%s/actions/workflows/%s/dispatches", repo, url.PathEscape(workflow))
	if err := c.api.Do(ctx, http.MethodPost, path, c.token, in, nil); err != nil {
		return fmt.Errorf("failed to run workflow %s on %s: %w", workflow, repo, err)
	}
	return nil
}

// FormatComments renders comments for prompts and context files.
func FormatComments(comments []Comment) string {
	var b strings.Builder
	for i, cm := range comments {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		fmt.Fprintf(&b, "**@%s** (%s):\n%s", cm.Author, cm.CreatedAt.UTC().Format("2006-01-02 15:04"), cm.Body)
	}
	return b.String()
}
