package github

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate_ShortBodyUnchanged(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 100))
}

func TestTruncate_CutsAtParagraphBreak(t *testing.T) {
	max := 200
	budget := max - len([]rune(TruncationMarker))
	first := strings.Repeat("a", budget*3/4)
	body := first + "\n\n" + strings.Repeat("b", 500)

	got := Truncate(body, max)
	assert.LessOrEqual(t, len([]rune(got)), max)
	assert.True(t, strings.HasSuffix(got, TruncationMarker))
	assert.Equal(t, first+TruncationMarker, got)
}

func TestTruncate_HardCutWhenBreakTooEarly(t *testing.T) {
	max := 200
	budget := max - len([]rune(TruncationMarker))
	body := "intro\n\n" + strings.Repeat("x", 1000)

	got := Truncate(body, max)
	assert.Equal(t, max, len([]rune(got)))
	assert.Equal(t, budget, len([]rune(strings.TrimSuffix(got, TruncationMarker))))
}

func TestTruncate_CountsRunes(t *testing.T) {
	body := strings.Repeat("汉", 300)
	got := Truncate(body, 100)
	assert.LessOrEqual(t, len([]rune(got)), 100)
	assert.True(t, strings.HasSuffix(got, TruncationMarker))
}

func TestWithAgentPrefix(t *testing.T) {
	assert.Equal(t, "[Agent: moderator]\n\nhi", WithAgentPrefix("moderator", "hi"))
	assert.Equal(t, "[Agent: moderator]\nhi", WithAgentPrefix("moderator", "[Agent: moderator]\nhi"))
}
