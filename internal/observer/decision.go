// Package observer decides whether an issue needs an agent and which one.
package observer

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Decision is the observer's verdict on one issue.
type Decision struct {
	Issue         int    `json:"issue_number"`
	ShouldTrigger bool   `json:"should_trigger"`
	Agent         string `json:"agent"`
	Comment       string `json:"comment"`
	Reason        string `json:"reason"`
	Analysis      string `json:"analysis"`
	Error         string `json:"error,omitempty"`
}

var defaultComments = map[string]string{
	"moderator":  "@Moderator 请分诊",
	"reviewer_a": "@ReviewerA 评审",
	"reviewer_b": "@ReviewerB 找问题",
	"summarizer": "@Summarizer 汇总",
	"observer":   "@Observer",
}

// DefaultComment is the trigger comment used when the observer names an
// agent without writing one.
func DefaultComment(agent string) string {
	if c, ok := defaultComments[strings.ToLower(agent)]; ok {
		return c
	}
	return "@" + agent
}

const (
	yamlFence     = "```yaml"
	fence         = "```"
	documentStart = "---"
)

// Parse reads an observer response. Unrecognized text yields a zero decision,
// never an error.
func Parse(raw string, issue int) Decision {
	if doc, ok := structured(raw); ok {
		d := fromMapping(doc, issue)
		if !d.ShouldTrigger && d.Reason != "" {
			return d
		}
		d.fillComment()
		return d
	}
	d := scanLines(raw, issue)
	d.fillComment()
	return d
}

func (d *Decision) fillComment() {
	if d.ShouldTrigger && d.Agent != "" && d.Comment == "" {
		d.Comment = DefaultComment(d.Agent)
	}
}

// structured tries, in order, a yaml fence, a whole document starting with
// "---", and text that looks like flat key: value lines.
func structured(raw string) (map[string]any, bool) {
	text := strings.TrimSpace(raw)

	if start := strings.Index(text, yamlFence); start >= 0 {
		end := strings.LastIndex(text, fence)
		if end > start {
			block := text[start:end]
			if _, body, ok := strings.Cut(block, "\n"); ok {
				if doc, ok := decodeMapping(body); ok {
					return doc, true
				}
			}
		}
	} else if strings.HasPrefix(text, documentStart) {
		if doc, ok := decodeMapping(text); ok {
			return doc, true
		}
	}

	if looksLikeMapping(text) {
		return decodeMapping(text)
	}
	return nil, false
}

func looksLikeMapping(text string) bool {
	for line := range strings.SplitSeq(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(line, ":") {
			return false
		}
	}
	return true
}

func decodeMapping(text string) (map[string]any, bool) {
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil || doc == nil {
		return nil, false
	}
	return doc, true
}

func fromMapping(doc map[string]any, issue int) Decision {
	d := Decision{
		Issue:    issue,
		Agent:    firstString(doc, "agent", "trigger_agent"),
		Comment:  firstString(doc, "comment", "trigger_comment"),
		Reason:   firstString(doc, "reason", "skip_reason"),
		Analysis: firstString(doc, "analysis"),
	}
	if v, ok := doc["should_trigger"]; ok {
		d.ShouldTrigger = truthy(v)
	} else {
		d.ShouldTrigger = strings.EqualFold(firstString(doc, "action"), "trigger")
	}
	return d
}

func firstString(doc map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := doc[k]
		if !ok || v == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		if s != "" {
			return s
		}
	}
	return ""
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "on", "1":
			return true
		}
	case int:
		return t != 0
	}
	return false
}

var fieldPrefixes = []struct {
	prefixes []string
	set      func(d *Decision, v string)
}{
	{[]string{"agent:", "trigger_agent:"}, func(d *Decision, v string) { d.Agent = strings.ToLower(v) }},
	{[]string{"comment:", "trigger_comment:"}, func(d *Decision, v string) { d.Comment = v }},
	{[]string{"reason:", "skip_reason:"}, func(d *Decision, v string) { d.Reason = v }},
	{[]string{"analysis:"}, func(d *Decision, v string) { d.Analysis = v }},
}

func scanLines(raw string, issue int) Decision {
	d := Decision{Issue: issue}
	lines := strings.Split(raw, "\n")

	for _, line := range lines {
		l := strings.ToLower(strings.TrimSpace(line))
		switch {
		case strings.Contains(l, "action: trigger"), strings.Contains(l, "should_trigger: true"):
			d.ShouldTrigger = true
		case strings.Contains(l, "action: skip"), strings.Contains(l, "should_trigger: false"):
			d.ShouldTrigger = false
			return d
		}
	}

	for _, f := range fieldPrefixes {
	scan:
		for _, line := range lines {
			trimmed := strings.TrimSpace(line)
			lower := strings.ToLower(trimmed)
			for _, p := range f.prefixes {
				if strings.HasPrefix(lower, p) {
					f.set(&d, strings.TrimSpace(trimmed[len(p):]))
					break scan
				}
			}
		}
	}
	return d
}
