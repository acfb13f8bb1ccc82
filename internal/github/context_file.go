package github

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ContextDir is where issue context files go: $RUNNER_TEMP when set.
func ContextDir(runnerTemp string) string {
	if runnerTemp != "" {
		return runnerTemp
	}
	return os.TempDir()
}

// WriteIssueContextFile writes issue_<n>.md into dir and returns its path.
func WriteIssueContextFile(dir string, issue *Issue) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Issue #%d: %s\n\n", issue.Number, issue.Title)
	if len(issue.Labels) > 0 {
		fmt.Fprintf(&b, "标签: %s\n\n", strings.Join(issue.Labels, ", "))
	}
	b.WriteString("## 内容\n\n")
	if strings.TrimSpace(issue.Body) == "" {
		b.WriteString("无内容")
	} else {
		b.WriteString(issue.Body)
	}
	fmt.Fprintf(&b, "\n\n## 评论 (%d)\n\n", len(issue.Comments))
	if len(issue.Comments) == 0 {
		b.WriteString("无评论")
	} else {
		b.WriteString(FormatComments(issue.Comments))
	}
	b.WriteString("\n")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create context dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("issue_%d.md", issue.Number))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write issue context: %w", err)
	}
	return path, nil
}
