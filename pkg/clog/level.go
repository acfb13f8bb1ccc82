package clog

import "log/slog"

// HTTPStatusToLevel picks the level an outbound GitHub API response is logged at.
func HTTPStatusToLevel(status int) slog.Level {
	switch {
	case status >= 100 && status < 400:
		return slog.LevelDebug
	case status >= 400 && status < 500:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
