package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Decision
	}{
		{
			name: "flat mapping synthesizes comment",
			raw:  "should_trigger: true\nagent: moderator\nreason: new issue",
			want: Decision{Issue: 1, ShouldTrigger: true, Agent: "moderator", Comment: "@Moderator 请分诊", Reason: "new issue"},
		},
		{
			name: "yaml fence with aliases",
			raw:  "Here is my decision:\n```yaml\nshould_trigger: true\ntrigger_agent: reviewer_b\ntrigger_comment: \"@ReviewerB check the tests\"\nanalysis: needs review\n```\nthanks",
			want: Decision{Issue: 1, ShouldTrigger: true, Agent: "reviewer_b", Comment: "@ReviewerB check the tests", Analysis: "needs review"},
		},
		{
			name: "document start",
			raw:  "---\nshould_trigger: false\nskip_reason: already handled\nagent: summarizer\n",
			want: Decision{Issue: 1, Agent: "summarizer", Reason: "already handled"},
		},
		{
			name: "unknown agent falls back to mention",
			raw:  "should_trigger: true\nagent: gqy20",
			want: Decision{Issue: 1, ShouldTrigger: true, Agent: "gqy20", Comment: "@gqy20"},
		},
		{
			name: "action trigger in structured form",
			raw:  "action: trigger\nagent: summarizer",
			want: Decision{Issue: 1, ShouldTrigger: true, Agent: "summarizer", Comment: "@Summarizer 汇总"},
		},
		{
			name: "line scan",
			raw:  "I looked at this issue.\nACTION: TRIGGER\nagent: Reviewer_A\nreason: design question\nanalysis: first\nanalysis: second",
			want: Decision{Issue: 1, ShouldTrigger: true, Agent: "reviewer_a", Comment: "@ReviewerA 评审", Reason: "design question", Analysis: "first"},
		},
		{
			name: "line scan skip returns early",
			raw:  "Summary of the thread\nshould_trigger: false\nagent: moderator\nreason: quiet",
			want: Decision{Issue: 1},
		},
		{
			name: "broken fence falls back to line scan",
			raw:  "Decision\n```yaml\nshould_trigger: true\ncomment: [oops\n```",
			want: Decision{Issue: 1, ShouldTrigger: true, Comment: "[oops"},
		},
		{
			name: "empty",
			raw:  "",
			want: Decision{Issue: 1},
		},
		{
			name: "prose",
			raw:  "Nothing to do here. All good",
			want: Decision{Issue: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.raw, 1))
		})
	}
}

func TestDefaultComment(t *testing.T) {
	assert.Equal(t, "@Observer", DefaultComment("observer"))
	assert.Equal(t, "@Moderator 请分诊", DefaultComment("Moderator"))
	assert.Equal(t, "@alice", DefaultComment("alice"))
}
