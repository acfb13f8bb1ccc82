package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/issuelab/pkg/cerr"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(NewAPI(srv.URL, 0), "tok", "org/repo")
}

func TestClient_GetIssue(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/org/repo/issues/7", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, APIVersion, r.Header.Get("X-GitHub-Api-Version"))
		fmt.Fprint(w, `{"number":7,"title":"Bug","body":"broken","state":"open","labels":[{"name":"bug"}]}`)
	})
	mux.HandleFunc("GET /repos/org/repo/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if page == "1" {
			comments := make([]map[string]any, commentsPerPage)
			for i := range comments {
				comments[i] = map[string]any{"id": i, "body": "c", "user": map[string]string{"login": "u"}, "created_at": "2024-01-01T00:00:00Z"}
			}
			_ = json.NewEncoder(w).Encode(comments)
			return
		}
		fmt.Fprint(w, `[{"id":999,"body":"last","user":{"login":"gqy20"},"created_at":"2024-01-02T03:04:00Z"}]`)
	})

	issue, err := newTestClient(t, mux).GetIssue(context.Background(), "", 7)
	require.NoError(t, err)
	assert.Equal(t, "Bug", issue.Title)
	assert.Equal(t, []string{"bug"}, issue.Labels)
	require.Len(t, issue.Comments, commentsPerPage+1)
	last := issue.Comments[commentsPerPage]
	assert.Equal(t, int64(999), last.ID)
	assert.Equal(t, "gqy20", last.Author)
}

func TestClient_GetIssue_NotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))
	_, err := c.GetIssue(context.Background(), "", 1)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestClient_PostComment(t *testing.T) {
	var got string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/other/repo/issues/3/comments", r.URL.Path)
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		got = in["body"]
		w.WriteHeader(http.StatusCreated)
	}))

	require.NoError(t, c.PostComment(context.Background(), "other/repo", 3, strings.Repeat("z", MaxCommentLength), "reviewer_a"))
	assert.True(t, strings.HasPrefix(got, "[Agent: reviewer_a]\n\n"))
	assert.True(t, strings.HasSuffix(got, TruncationMarker))
	assert.LessOrEqual(t, len([]rune(got)), MaxCommentLength)
}

func TestClient_CloseIssueAndRunWorkflow(t *testing.T) {
	var calls []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, r.Method+" "+r.URL.Path+" "+string(body))
		w.WriteHeader(http.StatusNoContent)
	}))
	ctx := context.Background()
	require.NoError(t, c.CloseIssue(ctx, "", 5))
	require.NoError(t, c.RunWorkflow(ctx, "", "agent.yml", "main", map[string]string{"agent": "moderator", "issue_number": "5"}))

	require.Len(t, calls, 2)
	assert.Equal(t, `PATCH /repos/org/repo/issues/5 {"state":"closed"}`, calls[0])
	assert.Equal(t, `POST /repos/org/repo/actions/workflows/agent.yml/dispatches {"inputs":{"agent":"moderator","issue_number":"5"},"ref":"main"}`, calls[1])
}

func TestClient_MissingRepository(t *testing.T) {
	c := NewClient(NewAPI("http://127.0.0.1:0", 0), "", "")
	_, err := c.GetIssue(context.Background(), "", 1)
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
}

func TestWriteIssueContextFile(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteIssueContextFile(dir, &Issue{
		Number: 12,
		Title:  "Title",
		Body:   "",
		Comments: []Comment{
			{Author: "a", Body: "first", CreatedAt: time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, dir+"/issue_12.md", path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	s := string(data)
	assert.Contains(t, s, "# Issue #12: Title")
	assert.Contains(t, s, "无内容")
	assert.Contains(t, s, "## 评论 (1)")
	assert.Contains(t, s, "**@a** (2024-01-01 09:30):\nfirst")
}

func TestContextDir(t *testing.T) {
	assert.Equal(t, "/runner/tmp", ContextDir("/runner/tmp"))
	assert.Equal(t, os.TempDir(), ContextDir(""))
}
