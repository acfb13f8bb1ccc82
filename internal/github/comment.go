package github

import (
	"fmt"
	"strings"
)

const (
	MaxCommentLength = 65000
	TruncationMarker = "\n\n---\n_（内容过长，已截断）_"
)

// AgentPrefix is the marker at the head of every comment an agent posts.
func AgentPrefix(agent string) string {
	return fmt.Sprintf("[Agent: %s]", agent)
}

// WithAgentPrefix prepends AgentPrefix unless body already starts with it.
func WithAgentPrefix(agent, body string) string {
	prefix := AgentPrefix(agent)
	if strings.HasPrefix(body, prefix) {
		return body
	}
	return prefix + "\n\n" + body
}

// Truncate limits body to max runes. It cuts at the last paragraph break in
// the second half of the remaining budget when there is one and appends
// TruncationMarker.
func Truncate(body string, max int) string {
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	marker := []rune(TruncationMarker)
	budget := max - len(marker)
	if budget <= 0 {
		return string(marker[:max])
	}

	cut := string(runes[:budget])
	if idx := strings.LastIndex(cut, "\n\n"); idx >= 0 {
		if len([]rune(cut[:idx])) >= budget/2 {
			cut = cut[:idx]
		}
	}
	return cut + TruncationMarker
}
