package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/kazz187/issuelab/pkg/storage"
)

const logPrefix = "events"

// EventLogger appends events to daily NDJSON files in storage.
type EventLogger struct {
	store storage.Storage
	mu    sync.Mutex
}

func NewEventLogger(store storage.Storage) *EventLogger {
	return &EventLogger{store: store}
}

type logEntry struct {
	*EventMessage
	LoggedAt string `json:"logged_at"`
}

// LogEvent logs an event message to a file
func (el *EventLogger) LogEvent(ctx context.Context, eventMsg *EventMessage) error {
	el.mu.Lock()
	defer el.mu.Unlock()

	data, err := json.Marshal(logEntry{
		EventMessage: eventMsg,
		LoggedAt:     time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	data = append(data, '\n')

	if err := el.store.Append(ctx, logFilePath(eventMsg.Timestamp), data); err != nil {
		return fmt.Errorf("failed to write event to log: %w", err)
	}
	return nil
}

func logFilePath(timestamp time.Time) string {
	return path.Join(logPrefix, fmt.Sprintf("events_%s.ndjson", timestamp.Format("2006-01-02")))
}

// RegisterEventLogger registers the event logger with the event bus
func RegisterEventLogger(eventBus *EventBus, logger *EventLogger) {
	for _, eventType := range AllTypes {
		eventBus.Subscribe(eventType, fmt.Sprintf("logger-%s", eventType), logger.LogEvent)
	}
}

// EventLogReader reads events from log files
type EventLogReader struct {
	store storage.Storage
}

func NewEventLogReader(store storage.Storage) *EventLogReader {
	return &EventLogReader{store: store}
}

// ReadEvents reads events from a specific date
func (elr *EventLogReader) ReadEvents(ctx context.Context, date time.Time) ([]*EventMessage, error) {
	data, err := elr.store.Read(ctx, logFilePath(date))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return []*EventMessage{}, nil
		}
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	events := []*EventMessage{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var entry logEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil || entry.EventMessage == nil {
			slog.Warn("skipping malformed event log line", "date", date.Format("2006-01-02"), "error", err)
			continue
		}
		events = append(events, entry.EventMessage)
	}
	return events, nil
}

// ReadEventsByType reads events of a specific type
func (elr *EventLogReader) ReadEventsByType(ctx context.Context, date time.Time, eventType EventType) ([]*EventMessage, error) {
	all, err := elr.ReadEvents(ctx, date)
	if err != nil {
		return nil, err
	}
	filtered := []*EventMessage{}
	for _, e := range all {
		if e.Type == eventType {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}
