package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeClaude(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claude")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestCLIInvoker(t *testing.T) {
	cli := fakeClaude(t, `echo '{"type":"assistant","message":{"content":[{"type":"text","text":"[Agent: reviewer_a] LGTM"},{"type":"tool_use","id":"1","name":"Read","input":{}}]}}'
echo '{"type":"result","subtype":"success","num_turns":2,"total_cost_usd":0.031,"session_id":"abc"}'
`)
	inv, err := NewInvoker(BackendCLI, BackendOptions{CLIPath: cli})
	require.NoError(t, err)

	resp, err := inv.Invoke(context.Background(), Request{Agent: "reviewer_a", Prompt: "review", MaxTurns: 3, Timeout: 10 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "[Agent: reviewer_a] LGTM", resp.Text)
	assert.Equal(t, 2, resp.NumTurns)
	assert.Equal(t, 1, resp.ToolCalls)
	assert.Equal(t, "0.031", resp.CostUSD.String())
	assert.Equal(t, "abc", resp.SessionID)
}

func TestCLIInvoker_ReportedError(t *testing.T) {
	cli := fakeClaude(t, `echo '{"type":"result","subtype":"error_max_turns","is_error":true,"num_turns":3}'`+"\n")
	resp, err := NewCLIInvoker(BackendOptions{CLIPath: cli}).Invoke(context.Background(), Request{Agent: "a", Prompt: "p"})
	require.ErrorIs(t, err, ErrRunFailed)
	require.NotNil(t, resp)
	assert.Equal(t, 3, resp.NumTurns)
}

func TestNewInvoker_Unknown(t *testing.T) {
	_, err := NewInvoker("grpc", BackendOptions{})
	assert.Error(t, err)
	inv, err := NewInvoker(BackendSDK, BackendOptions{})
	require.NoError(t, err)
	assert.IsType(t, &SDKInvoker{}, inv)
}

type stubInvoker struct {
	calls int
	err   error
}

func (s *stubInvoker) Invoke(context.Context, Request) (*Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &Response{Text: "ok"}, nil
}

func TestBreakerInvoker_OpensAfterConsecutiveFailures(t *testing.T) {
	stub := &stubInvoker{err: errors.New("connection refused")}
	b := NewBreakerInvoker(stub, BreakerSettings{ConsecutiveFailures: 2, Timeout: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := b.Invoke(context.Background(), Request{})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.Invoke(context.Background(), Request{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, stub.calls)
}

func TestBreakerInvoker_RunFailuresDoNotTrip(t *testing.T) {
	stub := &stubInvoker{err: ErrRunFailed}
	b := NewBreakerInvoker(stub, BreakerSettings{ConsecutiveFailures: 1})
	for i := 0; i < 3; i++ {
		_, err := b.Invoke(context.Background(), Request{})
		assert.ErrorIs(t, err, ErrRunFailed)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, 3, stub.calls)
}

func TestBreakerInvoker_CancelDoesNotTrip(t *testing.T) {
	stub := &stubInvoker{err: fmt.Errorf("claude run: %w", context.Canceled)}
	b := NewBreakerInvoker(stub, BreakerSettings{ConsecutiveFailures: 1, Timeout: time.Minute})
	for i := 0; i < 3; i++ {
		_, err := b.Invoke(context.Background(), Request{})
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, 3, stub.calls)
}
