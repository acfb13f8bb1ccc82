package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/issuelab/pkg/cerr"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeAgent(t *testing.T, root, dir, yml string) {
	t.Helper()
	writeFile(t, filepath.Join(root, dir, configFileName), yml)
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	writeAgent(t, root, "moderator", "owner: moderator\nagent_type: system\ndescription: 分诊\noutput_template: triage\n")
	writeAgent(t, root, "gqy20", "username: gqy20\nrepository: gqy20/IssueLab\ndispatch_mode: workflow_dispatch\nextra_field: 7\n")
	writeAgent(t, root, "sleepy", "owner: sleepy\nenabled: false\n")
	writeAgent(t, root, "_template", "owner: template\n")
	writeAgent(t, root, "empty", "")
	writeAgent(t, root, "nameless", "description: who am i\n")
	writeAgent(t, root, "broken", "owner: [unterminated\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "no_config"), 0o755))
	writeFile(t, filepath.Join(root, "moderator", promptFileName), "---\nagent: moderator\n---\n# Moderator\nTriage issues.\n")

	r, err := Load(root, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"gqy20", "moderator"}, r.Names())
	assert.Len(t, r.Problems(), 3)

	mod, ok := r.Get("MODERATOR")
	require.True(t, ok)
	assert.True(t, mod.IsSystem())
	assert.Equal(t, "# Moderator\nTriage issues.", mod.Prompt)
	assert.Equal(t, filepath.Join(root, "moderator"), mod.Dir)

	user, ok := r.Get("gqy20")
	require.True(t, ok)
	assert.False(t, user.IsSystem())
	assert.Equal(t, DispatchModeWorkflow, user.Mode())
	assert.Equal(t, DefaultBranch, user.TargetBranch())
	assert.Equal(t, DefaultWorkflowFile, user.Workflow())
	assert.Equal(t, 7, user.Metadata["extra_field"])

	_, ok = r.Get("sleepy")
	assert.False(t, ok)

	all, err := Load(root, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"gqy20", "moderator", "sleepy"}, all.Names())
}

func TestLoad_MissingDirectory(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "absent"), false)
	require.NoError(t, err)
	assert.Zero(t, r.Len())
}

func TestLoad_DuplicateCanonicalNameFails(t *testing.T) {
	root := t.TempDir()
	writeAgent(t, root, "alice", "owner: alice\n")
	writeAgent(t, root, "alice2", "username: Alice\n")

	_, err := Load(root, false)
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.AlreadyExists))
	assert.Contains(t, err.Error(), "alice")
}

func TestLoad_InvalidAgentTypeIsNonSystem(t *testing.T) {
	root := t.TempDir()
	writeAgent(t, root, "odd", "owner: odd\nagent_type: admin\n")
	writeAgent(t, root, "spaced", "owner: spaced\nagent_type: ' System '\n")

	r, err := Load(root, false)
	require.NoError(t, err)

	odd, ok := r.Get("odd")
	require.True(t, ok)
	assert.Equal(t, AgentTypeUser, odd.Type)
	assert.False(t, r.IsSystem("odd"))
	require.Len(t, r.Problems(), 1)
	assert.Contains(t, r.Problems()[0].Msg, `invalid agent_type "admin"`)

	assert.True(t, r.IsSystem("spaced"))
}

func TestParseAgentType(t *testing.T) {
	tests := []struct {
		in      string
		want    AgentType
		wantErr bool
	}{
		{in: "", want: AgentTypeUser},
		{in: "user", want: AgentTypeUser},
		{in: "SYSTEM", want: AgentTypeSystem},
		{in: "robot", want: AgentTypeUser, wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseAgentType(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.wantErr, err != nil, tt.in)
	}
}

func TestTriggerConditions(t *testing.T) {
	root := t.TempDir()
	writeAgent(t, root, "a", "owner: a\ntrigger_conditions: 论文讨论\n")
	writeAgent(t, root, "b", "owner: b\ntrigger_conditions:\n  - bug\n  - review\n")
	writeAgent(t, root, "observer", "owner: observer\ntrigger_conditions: []\n")

	r, err := Load(root, false)
	require.NoError(t, err)
	a, _ := r.Get("a")
	b, _ := r.Get("b")
	assert.Equal(t, Conditions{"论文讨论"}, a.TriggerConditions)
	assert.Equal(t, Conditions{"bug", "review"}, b.TriggerConditions)

	matrix := r.MatrixMarkdown()
	assert.Contains(t, matrix, "| **a** |  | 论文讨论 |")
	assert.Contains(t, matrix, "| **b** |  | bug, review |")
	assert.NotContains(t, matrix, "observer")
}

func TestLoader_QueriesSeeEdits(t *testing.T) {
	root := t.TempDir()
	writeAgent(t, root, "moderator", "owner: Moderator\n")
	l := NewLoader(root)

	assert.Equal(t, "Moderator", l.NormalizeName("moderator"))
	assert.Equal(t, "unknown", l.NormalizeName("unknown"))

	isSys, cfg, err := l.IsSystemAgent("moderator")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.False(t, isSys)

	writeAgent(t, root, "moderator", "owner: Moderator\nagent_type: system\nenabled: false\n")
	isSys, _, err = l.IsSystemAgent("moderator")
	require.NoError(t, err)
	assert.True(t, isSys)

	ok, _, err := l.IsRegistered("moderator")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveOutputTemplate(t *testing.T) {
	root := t.TempDir()
	global := filepath.Join(root, "output_templates.yml")
	writeFile(t, global, "templates:\n  triage: |\n    ## 分诊结论\n  review:\n    sections: [summary, risks]\n")
	writeAgent(t, root, "agents/moderator", "owner: moderator\nagent_type: system\noutput_template: triage\n")
	writeAgent(t, root, "agents/reviewer", "owner: reviewer\nagent_type: system\noutput_template: review\n")
	writeAgent(t, root, "agents/video", "owner: video\nagent_type: system\noutput_template: local:video_report\n")
	writeFile(t, filepath.Join(root, "agents/video", outputConfigFileName), "templates:\n  video_report: \"## 视频\"\n")
	writeAgent(t, root, "agents/broken", "owner: broken\nagent_type: system\noutput_template: local:missing\n")
	writeAgent(t, root, "agents/user", "owner: user\n")

	r, err := Load(filepath.Join(root, "agents"), true)
	require.NoError(t, err)

	get := func(name string) *Config {
		cfg, ok := r.Get(name)
		require.True(t, ok)
		return cfg
	}
	tmpl, err := ResolveOutputTemplate(get("moderator"), global)
	require.NoError(t, err)
	assert.Equal(t, "## 分诊结论\n", tmpl)

	tmpl, err = ResolveOutputTemplate(get("reviewer"), global)
	require.NoError(t, err)
	assert.True(t, strings.Contains(tmpl, "sections:"))

	tmpl, err = ResolveOutputTemplate(get("video"), global)
	require.NoError(t, err)
	assert.Equal(t, "## 视频", tmpl)

	_, err = ResolveOutputTemplate(get("broken"), global)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	problems, err := Validate(filepath.Join(root, "agents"), global)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0].Path, "broken")
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	prev := WatchDebounce
	WatchDebounce = 20 * time.Millisecond
	t.Cleanup(func() { WatchDebounce = prev })

	root := t.TempDir()
	writeAgent(t, root, "alice", "owner: alice\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan *Registry, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, root, func(r *Registry, err error) {
			if err == nil {
				changes <- r
			}
		})
	}()

	time.Sleep(100 * time.Millisecond)
	writeAgent(t, root, "alice", "owner: alice\nagent_type: system\n")

	select {
	case r := <-changes:
		assert.True(t, r.IsSystem("alice"))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestMatrixDiff(t *testing.T) {
	root := t.TempDir()
	writeAgent(t, root, "alice", "owner: alice\ndescription: first\n")
	writeAgent(t, root, "observer", "owner: observer\nagent_type: system\n")
	before, err := Load(root, false)
	require.NoError(t, err)

	assert.Empty(t, MatrixDiff(before, before))

	writeAgent(t, root, "alice", "owner: alice\ndescription: second\n")
	after, err := Load(root, false)
	require.NoError(t, err)

	diff := MatrixDiff(before, after)
	assert.Contains(t, diff, "-| **alice** | first | 自动判断 |")
	assert.Contains(t, diff, "+| **alice** | second | 自动判断 |")
	assert.NotContains(t, diff, "observer")

	assert.Contains(t, MatrixDiff(nil, after), "+| Agent | 描述 | 何时触发 |")
}
