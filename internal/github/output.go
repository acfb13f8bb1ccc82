package github

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Output is one key=value line for the GITHUB_OUTPUT file.
type Output struct {
	Key   string
	Value string
}

// EscapeOutput encodes line breaks the way workflow commands expect.
func EscapeOutput(v string) string {
	v = strings.ReplaceAll(v, "\r", "%0D")
	return strings.ReplaceAll(v, "\n", "%0A")
}

// WriteOutputs appends outputs to path. An empty path is a no-op. Failures
// are logged and returned; callers treat them as non-fatal.
func WriteOutputs(ctx context.Context, path string, outputs ...Output) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		slog.WarnContext(ctx, "failed to open GITHUB_OUTPUT", "path", path, "error", err)
		return err
	}
	defer f.Close()

	var b strings.Builder
	for _, o := range outputs {
		fmt.Fprintf(&b, "%s=%s\n", o.Key, EscapeOutput(o.Value))
	}
	if _, err := f.WriteString(b.String()); err != nil {
		slog.WarnContext(ctx, "failed to write GITHUB_OUTPUT", "path", path, "error", err)
		return err
	}
	return nil
}
