package clog

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextHandler_ContextAttributes(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(buf, FormatText, slog.LevelDebug, false)

	ctx := WithAgent(WithIssue(ContextWithSlog(context.Background()), 42), "moderator")
	AddError(ctx, errors.New("boom"))
	logger.InfoContext(ctx, "agent finished", "turns", 3)

	out := buf.String()
	assert.Contains(t, out, "INFO issue=42 agent=moderator agent finished boom\n")
	assert.Contains(t, out, "    turns=3\n")
}

func TestTextHandler_LevelFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(buf, FormatText, slog.LevelWarn, false)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "WARN shown")
}

func TestWithIssue_DoesNotLeakIntoParent(t *testing.T) {
	parent := ContextWithSlog(context.Background())
	AddAttribute(parent, "run", "r1")
	child := WithIssue(parent, 7)

	require.Equal(t, 7, GetAttribute[int](child, IssueAttributeKey))
	assert.Equal(t, "r1", GetAttribute[string](child, "run"))
	assert.Zero(t, GetAttribute[int](parent, IssueAttributeKey))
}

func TestHTTPStatusToLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, HTTPStatusToLevel(204))
	assert.Equal(t, slog.LevelWarn, HTTPStatusToLevel(404))
	assert.Equal(t, slog.LevelError, HTTPStatusToLevel(502))
}
