package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_Defaults(t *testing.T) {
	t.Setenv("GITHUB_APP_ID", "12345")
	t.Setenv("ISSUELAB_POST_FAILURE_COMMENT", "Yes")
	t.Setenv("ISSUELAB_OBSERVER_MAX_PARALLEL", "3")

	env, err := LoadEnv(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)

	assert.Equal(t, "12345", env.AppID)
	assert.Equal(t, "https://api.github.com", env.APIBaseURL)
	assert.Equal(t, "agents", env.AgentsDir)
	assert.Equal(t, "config/mention_policy.yml", env.PolicyFile())
	assert.Equal(t, "memory", env.RateStore)
	assert.Equal(t, 3, env.ObserverMaxPar)
	assert.True(t, env.PostFailureComment.Enabled())
	assert.Equal(t, slog.LevelInfo, env.SlogLevel())
}

func TestLoadEnv_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ISSUELAB_LOG_LEVEL=debug\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("ISSUELAB_LOG_LEVEL") })

	env, err := LoadEnv(path)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, env.SlogLevel())
}

func TestToggle(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "on", " On "} {
		assert.True(t, Toggle(v).Enabled(), v)
	}
	for _, v := range []string{"", "0", "false", "no", "off", "enabled"} {
		assert.False(t, Toggle(v).Enabled(), v)
	}
}
