package agent

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/issuelab/pkg/cerr"
)

const (
	configFileName       = "agent.yml"
	promptFileName       = "prompt.md"
	outputConfigFileName = "output_config.yml"
	excludedDirPrefix    = "_"

	DefaultBranch       = "main"
	DefaultWorkflowFile = "user_agent.yml"
)

// AgentType routes an agent either to the in-repo orchestrator or to cross-repo dispatch.
type AgentType int

const (
	AgentTypeUser AgentType = iota
	AgentTypeSystem
)

func (t AgentType) String() string {
	if t == AgentTypeSystem {
		return "system"
	}
	return "user"
}

// ParseAgentType accepts "system" and "user" in any case. Empty means user.
func ParseAgentType(s string) (AgentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "user":
		return AgentTypeUser, nil
	case "system":
		return AgentTypeSystem, nil
	default:
		return AgentTypeUser, fmt.Errorf("invalid agent_type %q", s)
	}
}

type DispatchMode string

const (
	DispatchModeRepository DispatchMode = "repository_dispatch"
	DispatchModeWorkflow   DispatchMode = "workflow_dispatch"
)

// Conditions accepts either a single string or a list in YAML.
type Conditions []string

func (c *Conditions) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value == "" || node.Tag == "!!null" {
			*c = nil
			return nil
		}
		*c = Conditions{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*c = list
		return nil
	default:
		return fmt.Errorf("trigger_conditions must be a string or a list")
	}
}

// Config is one agents/<dir>/agent.yml.
type Config struct {
	Name              string       `yaml:"name"`
	Owner             string       `yaml:"owner"`
	Username          string       `yaml:"username"`
	RawType           string       `yaml:"agent_type"`
	Enabled           *bool        `yaml:"enabled"`
	Repository        string       `yaml:"repository"`
	Branch            string       `yaml:"branch"`
	DispatchMode      DispatchMode `yaml:"dispatch_mode"`
	WorkflowFile      string       `yaml:"workflow_file"`
	Description       string       `yaml:"description"`
	TriggerConditions Conditions   `yaml:"trigger_conditions"`
	OutputTemplate    string       `yaml:"output_template"`
	// Metadata keeps every key this struct does not model.
	Metadata map[string]any `yaml:",inline"`

	Type   AgentType `yaml:"-"`
	Dir    string    `yaml:"-"`
	Prompt string    `yaml:"-"`
}

// CanonicalName is owner, falling back to username.
func (c *Config) CanonicalName() string {
	if c.Owner != "" {
		return c.Owner
	}
	return c.Username
}

func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

func (c *Config) IsSystem() bool {
	return c.Type == AgentTypeSystem
}

func (c *Config) TargetBranch() string {
	if c.Branch == "" {
		return DefaultBranch
	}
	return c.Branch
}

func (c *Config) Mode() DispatchMode {
	if c.DispatchMode == DispatchModeWorkflow {
		return DispatchModeWorkflow
	}
	return DispatchModeRepository
}

func (c *Config) Workflow() string {
	if c.WorkflowFile == "" {
		return DefaultWorkflowFile
	}
	return c.WorkflowFile
}

// Problem is a non-fatal defect found while loading one agent directory.
type Problem struct {
	Path string
	Msg  string
}

func (p Problem) String() string {
	return p.Path + ": " + p.Msg
}

// Registry maps lowercased canonical names to configs.
type Registry struct {
	dir      string
	agents   map[string]*Config
	problems []Problem
}

// Load scans dir/<agent>/agent.yml. One broken agent never blocks the others;
// its defect is logged and kept in Problems. Two directories declaring the same
// canonical name (case-insensitively) fail the whole load.
func Load(dir string, includeDisabled bool) (*Registry, error) {
	r := &Registry{dir: dir, agents: map[string]*Config{}}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("agents directory not found", "dir", dir)
			return r, nil
		}
		return nil, cerr.NewError(cerr.FailedPrecondition, "failed to read agents directory", err)
	}

	seen := map[string]string{}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), excludedDirPrefix) {
			continue
		}
		agentDir := filepath.Join(dir, entry.Name())
		path := filepath.Join(agentDir, configFileName)
		if _, err := os.Stat(path); err != nil {
			continue
		}

		cfg, err := loadConfig(path)
		if err != nil {
			r.warn(path, err.Error())
			continue
		}
		if cfg == nil {
			r.warn(path, "empty config")
			continue
		}
		name := cfg.CanonicalName()
		if name == "" {
			r.warn(path, "missing 'owner' or 'username'")
			continue
		}
		key := strings.ToLower(name)
		if prev, ok := seen[key]; ok {
			return nil, cerr.NewError(cerr.AlreadyExists,
				fmt.Sprintf("duplicate agent name %q", name),
				fmt.Errorf("declared in both %s and %s", prev, agentDir))
		}
		seen[key] = agentDir

		if cfg.Type, err = ParseAgentType(cfg.RawType); err != nil {
			r.warn(path, err.Error()+", treating as user")
		}
		if cfg.DispatchMode != "" && cfg.DispatchMode != DispatchModeRepository && cfg.DispatchMode != DispatchModeWorkflow {
			r.warn(path, fmt.Sprintf("unknown dispatch_mode %q, using %s", cfg.DispatchMode, DispatchModeRepository))
		}
		cfg.Dir = agentDir
		if cfg.Prompt, err = loadPrompt(filepath.Join(agentDir, promptFileName)); err != nil {
			r.warn(path, err.Error())
		}

		if !includeDisabled && !cfg.IsEnabled() {
			slog.Debug("agent is disabled, skipping", "agent", name)
			continue
		}
		r.agents[key] = cfg
	}
	return r, nil
}

func (r *Registry) warn(path, msg string) {
	slog.Warn("skipping agent config problem", "path", path, "problem", msg)
	r.problems = append(r.problems, Problem{Path: path, Msg: msg})
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// loadPrompt reads prompt.md without its YAML front matter. A missing file is no prompt.
func loadPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read prompt: %w", err)
	}
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	if strings.HasPrefix(content, "---\n") {
		if end := strings.Index(content[4:], "\n---\n"); end >= 0 {
			content = content[4+end+5:]
		}
	}
	return strings.TrimSpace(content), nil
}

func (r *Registry) Dir() string {
	return r.dir
}

func (r *Registry) Len() int {
	return len(r.agents)
}

func (r *Registry) Problems() []Problem {
	return r.problems
}

// Get looks name up case-insensitively.
func (r *Registry) Get(name string) (*Config, bool) {
	if name == "" {
		return nil, false
	}
	cfg, ok := r.agents[strings.ToLower(name)]
	return cfg, ok
}

// Canonical returns the registered casing of name.
func (r *Registry) Canonical(name string) (string, bool) {
	cfg, ok := r.Get(name)
	if !ok {
		return "", false
	}
	return cfg.CanonicalName(), true
}

// IsSystem reports whether name resolves to an agent with agent_type system.
func (r *Registry) IsSystem(name string) bool {
	cfg, ok := r.Get(name)
	return ok && cfg.IsSystem()
}

// Configs returns all agents sorted by canonical name.
func (r *Registry) Configs() []*Config {
	out := make([]*Config, 0, len(r.agents))
	for _, cfg := range r.agents {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].CanonicalName()) < strings.ToLower(out[j].CanonicalName())
	})
	return out
}

// Names returns the canonical names in Configs order.
func (r *Registry) Names() []string {
	cfgs := r.Configs()
	names := make([]string, len(cfgs))
	for i, cfg := range cfgs {
		names[i] = cfg.CanonicalName()
	}
	return names
}
