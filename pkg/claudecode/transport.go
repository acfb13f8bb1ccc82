package claudecode

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Stream delivers parsed messages of a running CLI process.
type Stream struct {
	messages chan Message
	done     chan struct{}
	err      error
}

// Messages is closed when the process has exited.
func (s *Stream) Messages() <-chan Message {
	return s.messages
}

// Err blocks until the process has exited and returns its failure, if any.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

type subprocessTransport struct {
	prompt  string
	options *Options
	cmd     *exec.Cmd
	stderr  bytes.Buffer
	stream  *Stream
}

func newSubprocessTransport(prompt string, options *Options) *subprocessTransport {
	return &subprocessTransport{
		prompt:  prompt,
		options: options,
		stream: &Stream{
			messages: make(chan Message),
			done:     make(chan struct{}),
		},
	}
}

func (t *subprocessTransport) start(ctx context.Context) error {
	cliPath, err := findCLI(t.options.CLIPath)
	if err != nil {
		return err
	}

	t.cmd = exec.CommandContext(ctx, cliPath, t.buildCommand()...)
	t.cmd.Env = append(os.Environ(), "CLAUDE_CODE_ENTRYPOINT=sdk-go")
	t.cmd.Env = append(t.cmd.Env, t.options.Env...)
	if t.options.Cwd != "" {
		t.cmd.Dir = t.options.Cwd
	}
	t.cmd.Stderr = &t.stderr

	stdout, err := t.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := t.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start CLI process: %w", err)
	}

	go t.pump(ctx, stdout)
	return nil
}

func (t *subprocessTransport) pump(ctx context.Context, stdout io.Reader) {
	s := t.stream
	defer close(s.done)
	defer close(s.messages)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		msg, err := parseMessage(line)
		if err != nil {
			slog.Debug("skipping unparsable CLI line", "error", err)
			continue
		}
		select {
		case s.messages <- msg:
		case <-ctx.Done():
			_, _ = io.Copy(io.Discard, stdout)
		}
	}
	if err := scanner.Err(); err != nil {
		_, _ = io.Copy(io.Discard, stdout)
	}

	if err := t.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			s.err = &ProcessError{
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(t.stderr.String()),
				Err:      err,
			}
			return
		}
		s.err = fmt.Errorf("claude process failed: %w", err)
	}
}

func (t *subprocessTransport) buildCommand() []string {
	args := []string{
		"-p", t.prompt,
		"--output-format", "stream-json",
		"--verbose",
	}
	if t.options.Model != "" {
		args = append(args, "--model", t.options.Model)
	}
	if t.options.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(t.options.MaxTurns))
	}
	if t.options.AppendSystemPrompt != "" {
		args = append(args, "--append-system-prompt", t.options.AppendSystemPrompt)
	}
	if len(t.options.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(t.options.AllowedTools, ","))
	}
	if t.options.PermissionMode != "" {
		args = append(args, "--permission-mode", string(t.options.PermissionMode))
	}
	return args
}

func findCLI(override string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", &CLINotFoundError{CLIPath: override}
		}
		return override, nil
	}
	if path, err := exec.LookPath("claude"); err == nil {
		return path, nil
	}
	home := os.Getenv("HOME")
	for _, path := range []string{
		filepath.Join(home, ".npm", "bin", "claude"),
		filepath.Join(home, ".claude", "local", "claude"),
		filepath.Join(home, "node_modules", ".bin", "claude"),
		"/usr/local/bin/claude",
		"/usr/bin/claude",
	} {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", &CLINotFoundError{}
}
