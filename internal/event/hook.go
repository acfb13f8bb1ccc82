package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"mvdan.cc/sh/v3/syntax"
)

// Hook represents an event hook configuration
type Hook struct {
	Name  string    `yaml:"name"`
	Event EventType `yaml:"event"`
	// Condition is an optional "field=value" match against the event data.
	Condition string `yaml:"condition,omitempty"`
	Command   string `yaml:"command"`
	Timeout   int    `yaml:"timeout,omitempty"` // in seconds
}

type hooksFile struct {
	Hooks []Hook `yaml:"hooks"`
}

// LoadHooksFile reads hook definitions. A missing file means no hooks.
func LoadHooksFile(path string) ([]Hook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read hooks file: %w", err)
	}
	var f hooksFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse hooks file %s: %w", path, err)
	}
	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))
	for i, h := range f.Hooks {
		if h.Command == "" {
			return nil, fmt.Errorf("hook %d (%s) has no command", i, h.Name)
		}
		// hooks run under sh -c, so reject anything POSIX sh cannot parse
		if _, err := parser.Parse(strings.NewReader(h.Command), h.Name); err != nil {
			return nil, fmt.Errorf("hook %d (%s) has an invalid command: %w", i, h.Name, err)
		}
	}
	return f.Hooks, nil
}

// HookExecutor executes hooks in response to events
type HookExecutor struct {
	hooks []Hook
}

func NewHookExecutor(hooks []Hook) *HookExecutor {
	return &HookExecutor{hooks: hooks}
}

// Execute runs all hooks that match the given event
func (he *HookExecutor) Execute(ctx context.Context, eventMsg *EventMessage) error {
	var errs []error
	for _, hook := range he.hooks {
		if hook.Event != eventMsg.Type || !matchCondition(hook.Condition, eventMsg.Data) {
			continue
		}
		if err := he.executeHook(ctx, hook, eventMsg); err != nil {
			errs = append(errs, fmt.Errorf("failed to execute hook %s: %w", hook.Name, err))
		}
	}
	return errors.Join(errs...)
}

func matchCondition(cond string, data json.RawMessage) bool {
	if cond == "" {
		return true
	}
	key, want, ok := strings.Cut(cond, "=")
	if !ok {
		return false
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return false
	}
	v, ok := fields[strings.TrimSpace(key)]
	if !ok {
		return false
	}
	return fmt.Sprint(v) == strings.TrimSpace(want)
}

func (he *HookExecutor) executeHook(ctx context.Context, hook Hook, eventMsg *EventMessage) error {
	env := []string{
		fmt.Sprintf("ISSUELAB_EVENT_TYPE=%s", eventMsg.Type),
		fmt.Sprintf("ISSUELAB_EVENT_ID=%s", eventMsg.ID),
		fmt.Sprintf("ISSUELAB_EVENT_SOURCE=%s", eventMsg.Source),
		fmt.Sprintf("ISSUELAB_EVENT_TIMESTAMP=%s", eventMsg.Timestamp.Format(time.RFC3339)),
		fmt.Sprintf("ISSUELAB_EVENT_DATA=%s", string(eventMsg.Data)),
	}

	timeout := 30 * time.Second
	if hook.Timeout > 0 {
		timeout = time.Duration(hook.Timeout) * time.Second
	}
	hookCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(hookCtx, "sh", "-c", hook.Command)
	cmd.Env = append(os.Environ(), env...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("hook command failed: %w, output: %s", err, string(output))
	}
	return nil
}

// RegisterHooks registers hooks with the event bus
func RegisterHooks(eventBus *EventBus, executor *HookExecutor) {
	for _, eventType := range AllTypes {
		eventBus.Subscribe(eventType, fmt.Sprintf("hook-%s", eventType), executor.Execute)
	}
}
