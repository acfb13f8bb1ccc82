package event

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookExecutor_Execute(t *testing.T) {
	out := filepath.Join(t.TempDir(), "hook_output.txt")
	executor := NewHookExecutor([]Hook{{
		Name:    "notify",
		Event:   AgentCompleted,
		Command: `echo "$ISSUELAB_EVENT_TYPE $ISSUELAB_EVENT_SOURCE" > ` + out,
		Timeout: 5,
	}})

	msg, err := NewEvent("orchestrator", AgentCompletedData{Issue: 1, Agent: "moderator", OK: true}).ToMessage()
	require.NoError(t, err)
	require.NoError(t, executor.Execute(context.Background(), msg))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "agent.completed orchestrator\n", string(data))
}

func TestHookExecutor_SkipsOtherEventsAndConditions(t *testing.T) {
	dir := t.TempDir()
	hooks := []Hook{
		{Name: "other-event", Event: DispatchCompleted, Command: "touch " + filepath.Join(dir, "a")},
		{Name: "matching", Event: AgentCompleted, Condition: "agent=moderator", Command: "touch " + filepath.Join(dir, "b")},
		{Name: "not-matching", Event: AgentCompleted, Condition: "agent=reviewer", Command: "touch " + filepath.Join(dir, "c")},
		{Name: "bool", Event: AgentCompleted, Condition: "ok = true", Command: "touch " + filepath.Join(dir, "d")},
	}
	msg, err := NewEvent("orchestrator", AgentCompletedData{Agent: "moderator", OK: true}).ToMessage()
	require.NoError(t, err)
	require.NoError(t, NewHookExecutor(hooks).Execute(context.Background(), msg))

	assert.NoFileExists(t, filepath.Join(dir, "a"))
	assert.FileExists(t, filepath.Join(dir, "b"))
	assert.NoFileExists(t, filepath.Join(dir, "c"))
	assert.FileExists(t, filepath.Join(dir, "d"))
}

func TestHookExecutor_CommandFailure(t *testing.T) {
	executor := NewHookExecutor([]Hook{{Name: "broken", Event: ObserverDecided, Command: "echo boom; exit 3"}})
	msg, err := NewEvent("observer", ObserverDecidedData{}).ToMessage()
	require.NoError(t, err)

	err = executor.Execute(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Contains(t, err.Error(), "boom")
}

func TestLoadHooksFile(t *testing.T) {
	dir := t.TempDir()

	hooks, err := LoadHooksFile(filepath.Join(dir, "missing.yml"))
	require.NoError(t, err)
	assert.Nil(t, hooks)

	path := filepath.Join(dir, "hooks.yml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
		"hooks:",
		"  - name: notify",
		"    event: dispatch.completed",
		"    command: echo done",
		"    timeout: 3",
	}, "\n")), 0o644))
	hooks, err = LoadHooksFile(path)
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.Equal(t, DispatchCompleted, hooks[0].Event)
	assert.Equal(t, 3, hooks[0].Timeout)

	require.NoError(t, os.WriteFile(path, []byte("hooks:\n  - name: empty\n    event: agent.completed\n"), 0o644))
	_, err = LoadHooksFile(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("hooks:\n  - name: broken\n    event: agent.completed\n    command: \"echo 'unterminated\"\n"), 0o644))
	_, err = LoadHooksFile(path)
	assert.ErrorContains(t, err, "invalid command")
}
