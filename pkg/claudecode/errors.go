package claudecode

import (
	"fmt"
)

// CLINotFoundError is returned when no claude binary can be located.
type CLINotFoundError struct {
	CLIPath string
}

func (e *CLINotFoundError) Error() string {
	if e.CLIPath == "" {
		return "Claude Code CLI not found. Please install it with: npm install -g @anthropic-ai/claude-code"
	}
	return fmt.Sprintf("Claude Code CLI not found at '%s'", e.CLIPath)
}

// ProcessError is returned when the CLI exits non-zero.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("claude exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("claude exited with code %d: %s", e.ExitCode, e.Stderr)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// JSONDecodeError is returned when a stdout line is not valid stream-json.
type JSONDecodeError struct {
	Line string
	Err  error
}

func (e *JSONDecodeError) Error() string {
	return fmt.Sprintf("failed to decode JSON from CLI: %v", e.Err)
}

func (e *JSONDecodeError) Unwrap() error {
	return e.Err
}
