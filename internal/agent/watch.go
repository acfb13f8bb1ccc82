package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pmezard/go-difflib/difflib"
)

// WatchDebounce is how long Watch waits for a burst of file events to settle.
var WatchDebounce = 300 * time.Millisecond

// Watch reloads the registry whenever a file under dir changes and passes the
// result to onChange. It blocks until ctx is done.
func Watch(ctx context.Context, dir string, onChange func(*Registry, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := addTree(watcher, dir); err != nil {
		return err
	}

	reload := make(chan struct{}, 1)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				// new agent directories need their own watch
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			slog.Debug("agents directory changed", "op", event.Op.String(), "path", event.Name)
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(WatchDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			onChange(Load(dir, true))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("fsnotify error", "error", err)
		}
	}
}

func addTree(w *fsnotify.Watcher, dir string) error {
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), excludedDirPrefix) {
			continue
		}
		if err := w.Add(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("failed to watch %s: %w", e.Name(), err)
		}
	}
	return nil
}

// MatrixDiff is a unified diff of the agent matrix between two loads. It is
// empty when nothing visible changed. A nil registry renders as no agents.
func MatrixDiff(prev, next *Registry) string {
	lines := func(r *Registry) []string {
		if r == nil {
			return nil
		}
		return difflib.SplitLines(r.MatrixMarkdown() + "\n")
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        lines(prev),
		B:        lines(next),
		FromFile: "before",
		ToFile:   "after",
		Context:  1,
	})
	if err != nil {
		return ""
	}
	return diff
}
