package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BuildPrompt is the task prompt each agent receives for an issue.
func BuildPrompt(issue int, context string, commentCount int, agentName, triggerComment string) string {
	full := context
	if commentCount > 0 {
		full += fmt.Sprintf("\n\n**重要提示**: 本 Issue 已有 %d 条历史评论。Summarizer 代理应读取并分析这些评论，提取共识、分歧和行动项。", commentCount)
	}
	if strings.TrimSpace(triggerComment) != "" {
		full += "\n\n**触发评论**:\n" + triggerComment
	}
	return fmt.Sprintf("请对 GitHub Issue #%d 执行以下任务：\n\n%s\n\n请以 [Agent: %s] 为前缀发布你的回复。", issue, full, agentName)
}

// IssueFileContext points the agent at the issue context file instead of inlining it.
func IssueFileContext(title, path string) string {
	return fmt.Sprintf("**Issue 标题**: %s\n\n**Issue 内容与评论**: 已保存至文件 %s\n请使用 Read 工具读取该文件后再执行任务。", title, path)
}

// InvitationContext is the context for an agent invited to an issue in another repository.
func InvitationContext(issue int, title, body string, availableAgents []map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "你被邀请参与 GitHub Issue #%d 的讨论。\n\n", issue)
	fmt.Fprintf(&b, "**Issue 标题**: %s\n\n", title)
	fmt.Fprintf(&b, "**Issue 内容**:\n%s\n\n", body)
	b.WriteString(`**你的任务**:
基于你的专业知识和经验，对这个Issue提供有价值的见解、建议或评审意见。

**回复要求**:
1. 直接针对Issue的具体内容发表观点
2. 提供建设性的建议或可行的解决方案
3. 如相关可分享类似案例或最佳实践
4. 保持专业、友好、简洁的语气

请直接给出你的专业回复，不需要任何前缀或说明。`)

	if len(availableAgents) > 0 {
		data, err := json.MarshalIndent(availableAgents, "", "  ")
		if err == nil {
			fmt.Fprintf(&b, "\n\n**系统中可协作的智能体**:\n```json\n%s\n```", data)
		}
	}
	return b.String()
}
