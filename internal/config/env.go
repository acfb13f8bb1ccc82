package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/kazz187/issuelab/pkg/storage"
)

type BaseEnv struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogColor  bool   `envconfig:"LOG_COLOR" default:"true"`
	AgentsDir string `envconfig:"AGENTS_DIR" default:"agents"`
	ConfigDir string `envconfig:"CONFIG_DIR" default:"config"`
}

// GitHubEnv uses the names GitHub Actions exports, so the unprefixed fallback of envconfig applies.
type GitHubEnv struct {
	AppID         string `envconfig:"GITHUB_APP_ID"`
	AppPrivateKey string `envconfig:"GITHUB_APP_PRIVATE_KEY"`
	Token         string `envconfig:"GITHUB_TOKEN"`
	Repository    string `envconfig:"GITHUB_REPOSITORY"`
	OutputPath    string `envconfig:"GITHUB_OUTPUT"`
	APIBaseURL    string `envconfig:"GITHUB_API_URL" default:"https://api.github.com"`
	RunnerTemp    string `envconfig:"RUNNER_TEMP"`
	// DispatchRPS paces outbound GitHub API calls.
	DispatchRPS float64 `envconfig:"DISPATCH_RPS" default:"5"`
}

type AgentEnv struct {
	Backend            string        `envconfig:"AGENT_BACKEND" default:"cli"`
	CLIPath            string        `envconfig:"CLAUDE_CLI_PATH"`
	Model              string        `envconfig:"MODEL"`
	Scene              string        `envconfig:"SCENE" default:"review"`
	PostFailureComment Toggle        `envconfig:"POST_FAILURE_COMMENT"`
	TriggerComment     string        `envconfig:"TRIGGER_COMMENT"`
	ObserverMaxPar     int           `envconfig:"OBSERVER_MAX_PARALLEL" default:"5"`
	BreakerTimeout     time.Duration `envconfig:"BREAKER_TIMEOUT" default:"60s"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".issuelab/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"issuelab/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

type PolicyEnv struct {
	// RateStore selects the rate ledger: memory, file or redis.
	RateStore string `envconfig:"RATE_STORE" default:"memory"`
	RedisURL  string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
}

type Env struct {
	BaseEnv
	GitHubEnv
	AgentEnv
	StorageEnv
	PolicyEnv
}

const namespace = "ISSUELAB"

// LoadEnv reads an optional .env file and then the process environment.
func LoadEnv(dotenvFiles ...string) (*Env, error) {
	// A missing .env is the normal case in CI.
	_ = godotenv.Load(dotenvFiles...)

	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (e *BaseEnv) PolicyFile() string {
	return e.ConfigDir + "/mention_policy.yml"
}

func (e *BaseEnv) OutputTemplatesFile() string {
	return e.ConfigDir + "/output_templates.yml"
}

func (e *BaseEnv) HooksFile() string {
	return e.ConfigDir + "/hooks.yml"
}

func (e *StorageEnv) Options() storage.Options {
	return storage.Options{
		Type:     e.Type,
		BaseDir:  e.BaseDir,
		S3Bucket: e.S3Bucket,
		S3Prefix: e.S3Prefix,
		S3Region: e.S3Region,
	}
}

// Toggle is an on/off flag accepting 1, true, yes and on.
type Toggle string

func (t Toggle) Enabled() bool {
	switch strings.ToLower(strings.TrimSpace(string(t))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
