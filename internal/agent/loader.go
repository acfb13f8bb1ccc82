package agent

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/issuelab/pkg/cerr"
)

// Loader re-reads the agents directory on every query so edits show up immediately.
type Loader struct {
	dir string
}

func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

func (l *Loader) Dir() string {
	return l.dir
}

func (l *Loader) Load(includeDisabled bool) (*Registry, error) {
	return Load(l.dir, includeDisabled)
}

// GetConfig returns the config registered under name, or nil.
func (l *Loader) GetConfig(name string, includeDisabled bool) (*Config, error) {
	r, err := l.Load(includeDisabled)
	if err != nil {
		return nil, err
	}
	cfg, _ := r.Get(name)
	return cfg, nil
}

// IsSystemAgent considers disabled agents too: disabling an agent does not change how it is routed.
func (l *Loader) IsSystemAgent(name string) (bool, *Config, error) {
	cfg, err := l.GetConfig(name, true)
	if err != nil || cfg == nil {
		return false, nil, err
	}
	return cfg.IsSystem(), cfg, nil
}

func (l *Loader) IsRegistered(name string) (bool, *Config, error) {
	cfg, err := l.GetConfig(name, false)
	if err != nil || cfg == nil {
		return false, nil, err
	}
	return true, cfg, nil
}

// NormalizeName returns the registered casing of name, or name itself when unknown.
func (l *Loader) NormalizeName(name string) string {
	if name == "" {
		return name
	}
	cfg, err := l.GetConfig(name, true)
	if err != nil || cfg == nil {
		return name
	}
	return cfg.CanonicalName()
}

const localTemplatePrefix = "local:"

type templatesDoc struct {
	Templates map[string]any `yaml:"templates"`
}

// ResolveOutputTemplate returns the template an agent's output_template points
// at. "local:<name>" is looked up in the agent's output_config.yml, anything
// else in globalFile.
func ResolveOutputTemplate(cfg *Config, globalFile string) (string, error) {
	ref := strings.TrimSpace(cfg.OutputTemplate)
	if ref == "" {
		return "", cerr.NewError(cerr.NotFound, fmt.Sprintf("agent %s has no output_template", cfg.CanonicalName()), nil)
	}
	file := globalFile
	if name, ok := strings.CutPrefix(ref, localTemplatePrefix); ok {
		ref = strings.TrimSpace(name)
		file = filepath.Join(cfg.Dir, outputConfigFileName)
	}

	doc, err := readTemplates(file)
	if err != nil {
		return "", err
	}
	v, ok := doc.Templates[ref]
	if !ok {
		return "", cerr.NewError(cerr.NotFound, fmt.Sprintf("template %q not found in %s", ref, file), nil)
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", ref, err)
	}
	return string(out), nil
}

func readTemplates(path string) (*templatesDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &templatesDoc{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var doc templatesDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("malformed templates file %s", path), err)
	}
	return &doc, nil
}

// Validate reports load problems plus system agents whose output template does not resolve.
func Validate(dir, globalTemplates string) ([]Problem, error) {
	r, err := Load(dir, true)
	if err != nil {
		return nil, err
	}
	problems := append([]Problem(nil), r.Problems()...)
	for _, cfg := range r.Configs() {
		if !cfg.IsSystem() {
			continue
		}
		if _, err := ResolveOutputTemplate(cfg, globalTemplates); err != nil {
			problems = append(problems, Problem{Path: filepath.Join(cfg.Dir, configFileName), Msg: err.Error()})
		}
	}
	return problems, nil
}

const observerName = "observer"

// MatrixMarkdown renders the agent table handed to the observer prompt.
func (r *Registry) MatrixMarkdown() string {
	lines := []string{
		"| Agent | 描述 | 何时触发 |",
		"|-------|------|---------|",
	}
	for _, cfg := range r.Configs() {
		name := cfg.CanonicalName()
		if strings.EqualFold(name, observerName) {
			continue
		}
		trigger := "自动判断"
		if len(cfg.TriggerConditions) > 0 {
			trigger = strings.Join(cfg.TriggerConditions, ", ")
		}
		lines = append(lines, fmt.Sprintf("| **%s** | %s | %s |", name, cfg.Description, trigger))
	}
	return strings.Join(lines, "\n")
}
