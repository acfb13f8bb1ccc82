// Package mention extracts @username tokens from issue and comment text.
package mention

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Mode selects which grammar and which part of the text Extract reads.
type Mode int

const (
	// ModeStrict follows the GitHub username grammar: the token starts and ends
	// with an alphanumeric or underscore, hyphens only inside.
	ModeStrict Mode = iota
	// ModePermissive accepts any run of alphanumerics, underscores and hyphens.
	ModePermissive
	// ModeControlled applies the strict grammar to the trailing collaboration section only.
	ModeControlled
)

func (m Mode) String() string {
	switch m {
	case ModeStrict:
		return "strict"
	case ModePermissive:
		return "permissive"
	case ModeControlled:
		return "controlled"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode maps a CLI value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return ModeStrict, nil
	case "permissive":
		return ModePermissive, nil
	case "controlled":
		return ModeControlled, nil
	default:
		return 0, fmt.Errorf("unknown mention mode %q", s)
	}
}

var (
	strictPattern     = regexp.MustCompile(`@([a-zA-Z0-9_](?:[a-zA-Z0-9_-]*[a-zA-Z0-9_])?)`)
	permissivePattern = regexp.MustCompile(`@([a-zA-Z0-9_-]+)`)
	listItemPattern   = regexp.MustCompile(`^\s*-\s+@`)
)

const (
	labeledMarker = "相关人员:"
	listHeader    = "协作请求:"
)

// Extract returns the distinct mentions of text in first-occurrence order.
// Case is preserved and purely numeric tokens are dropped.
func Extract(text string, mode Mode) []string {
	if text == "" {
		return []string{}
	}
	switch mode {
	case ModePermissive:
		return dedup(tokens(permissivePattern, text))
	case ModeControlled:
		return extractControlled(text)
	default:
		return dedup(tokens(strictPattern, text))
	}
}

func tokens(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if isNumeric(m[1]) {
			continue
		}
		out = append(out, m[1])
	}
	return out
}

func dedup(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// extractControlled reads either a final "相关人员: @a @b" line or a final
// "- @a" list directly under a "协作请求:" header. Anything else yields nothing.
func extractControlled(text string) []string {
	lines := splitLines(text)
	end := len(lines) - 1
	for end >= 0 && strings.TrimSpace(lines[end]) == "" {
		end--
	}
	if end < 0 {
		return []string{}
	}

	tail := strings.TrimSpace(lines[end])
	if _, suffix, ok := strings.Cut(tail, labeledMarker); ok {
		return dedup(tokens(strictPattern, suffix))
	}

	idx := end
	for idx >= 0 && listItemPattern.MatchString(lines[idx]) {
		idx--
	}
	if idx == end || idx < 0 || !strings.HasPrefix(strings.TrimSpace(lines[idx]), listHeader) {
		return []string{}
	}
	var names []string
	for _, line := range lines[idx+1 : end+1] {
		names = append(names, tokens(strictPattern, line)...)
	}
	return dedup(names)
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

// Rank orders mentions by descending count, ties broken by first occurrence.
// Names are grouped case-insensitively and reported in their first-seen casing.
func Rank(text string) []string {
	all := tokens(permissivePattern, text)
	if len(all) == 0 {
		return []string{}
	}
	type entry struct {
		name  string
		count int
		first int
	}
	byKey := map[string]*entry{}
	var keys []string
	for i, m := range all {
		k := strings.ToLower(m)
		e, ok := byKey[k]
		if !ok {
			e = &entry{name: m, first: i}
			byKey[k] = e
			keys = append(keys, k)
		}
		e.count++
	}
	sort.SliceStable(keys, func(i, j int) bool {
		a, b := byKey[keys[i]], byKey[keys[j]]
		if a.count != b.count {
			return a.count > b.count
		}
		return a.first < b.first
	})
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = byKey[k].name
	}
	return out
}

// DefaultReplacement is the Clean replacement used when none is given.
const DefaultReplacement = "用户 {username}"

// Clean rewrites every non-numeric mention using replacement, where {username}
// is substituted with the mentioned name.
func Clean(text, replacement string) string {
	if text == "" {
		return text
	}
	if replacement == "" {
		replacement = DefaultReplacement
	}
	return permissivePattern.ReplaceAllStringFunc(text, func(match string) string {
		name := match[1:]
		if isNumeric(name) {
			return match
		}
		return strings.ReplaceAll(replacement, "{username}", name)
	})
}

// SectionFormat is the layout of a generated mention section.
type SectionFormat string

const (
	SectionLabeled SectionFormat = "labeled"
	SectionSimple  SectionFormat = "simple"
	SectionList    SectionFormat = "list"
)

// BuildSection renders a trailing mention block that Extract in ModeControlled
// reads back. Unknown formats render as SectionLabeled.
func BuildSection(mentions []string, format SectionFormat) string {
	if len(mentions) == 0 {
		return ""
	}
	at := make([]string, len(mentions))
	for i, m := range mentions {
		at[i] = "@" + m
	}
	switch format {
	case SectionSimple:
		return "---\n" + strings.Join(at, " ")
	case SectionList:
		return "---\n" + listHeader + "\n- " + strings.Join(at, "\n- ")
	default:
		return "---\n" + labeledMarker + " " + strings.Join(at, " ")
	}
}

// Resolver maps a mention to a registered agent.
type Resolver interface {
	// Canonical returns the registered name for mention and whether it is registered.
	Canonical(mention string) (string, bool)
}

// ResolveAgents returns the lowercased canonical names of every registered
// agent mentioned in text, deduplicated in order.
func ResolveAgents(text string, r Resolver) []string {
	var agents []string
	for _, m := range Extract(text, ModeStrict) {
		name, ok := r.Canonical(m)
		if !ok {
			continue
		}
		agents = append(agents, strings.ToLower(name))
	}
	return dedup(agents)
}

// HasMentions reports whether text contains any strict-grammar mention.
func HasMentions(text string) bool {
	return strictPattern.MatchString(text)
}
