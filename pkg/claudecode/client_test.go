package claudecode

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeCLI(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claude")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestQuery_CollectsTranscript(t *testing.T) {
	cli := fakeCLI(t, `cat <<'JSON'
{"type":"system","subtype":"init","data":{"model":"sonnet"}}
{"type":"assistant","message":{"content":[{"type":"text","text":"[Agent: moderator]"},{"type":"tool_use","id":"t1","name":"Bash","input":{"command":"ls"}}]}}
not json
{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"ok"}]}}
{"type":"assistant","message":{"content":[{"type":"text","text":"triage done"}]}}
{"type":"result","subtype":"success","is_error":false,"num_turns":2,"total_cost_usd":0.0125,"session_id":"s1"}
JSON
`)
	stream, err := NewClient().Query(context.Background(), "hello", &Options{CLIPath: cli, MaxTurns: 2})
	require.NoError(t, err)

	tr, err := Collect(stream)
	require.NoError(t, err)
	assert.Equal(t, "[Agent: moderator]\ntriage done", tr.Text)
	assert.Equal(t, 1, tr.ToolCalls)
	require.NotNil(t, tr.Result)
	assert.Equal(t, 2, tr.Result.NumTurns)
	require.NotNil(t, tr.Result.TotalCostUSD)
	assert.InDelta(t, 0.0125, *tr.Result.TotalCostUSD, 1e-9)
}

func TestQuery_ResultTextWins(t *testing.T) {
	cli := fakeCLI(t, `echo '{"type":"assistant","message":{"content":[{"type":"text","text":"draft"}]}}'
echo '{"type":"result","subtype":"success","num_turns":1,"result":"final answer"}'
`)
	stream, err := NewClient().Query(context.Background(), "p", &Options{CLIPath: cli})
	require.NoError(t, err)
	tr, err := Collect(stream)
	require.NoError(t, err)
	assert.Equal(t, "final answer", tr.Text)
}

func TestQuery_ProcessError(t *testing.T) {
	cli := fakeCLI(t, "echo 'rate limited' >&2\nexit 3\n")
	stream, err := NewClient().Query(context.Background(), "p", &Options{CLIPath: cli})
	require.NoError(t, err)

	_, err = Collect(stream)
	var perr *ProcessError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 3, perr.ExitCode)
	assert.Equal(t, "rate limited", perr.Stderr)
}

func TestQuery_CLINotFound(t *testing.T) {
	_, err := NewClient().Query(context.Background(), "p", &Options{CLIPath: filepath.Join(t.TempDir(), "missing")})
	var nf *CLINotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestBuildCommand(t *testing.T) {
	tr := newSubprocessTransport("do it", &Options{
		Model:          "sonnet",
		MaxTurns:       3,
		AllowedTools:   []string{"Bash", "Read"},
		PermissionMode: PermissionModeBypassPermissions,
	})
	assert.Equal(t, []string{
		"-p", "do it",
		"--output-format", "stream-json",
		"--verbose",
		"--model", "sonnet",
		"--max-turns", "3",
		"--allowedTools", "Bash,Read",
		"--permission-mode", "bypassPermissions",
	}, tr.buildCommand())
}
