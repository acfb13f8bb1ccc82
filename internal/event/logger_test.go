package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/issuelab/pkg/storage"
)

func newLogStore(t *testing.T) *storage.LocalStorage {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestEventLogger_LogAndRead(t *testing.T) {
	ctx := context.Background()
	store := newLogStore(t)
	logger := NewEventLogger(store)

	first, err := NewEvent("policy", MentionFilteredData{Issue: 1, Allowed: []string{"a"}}).ToMessage()
	require.NoError(t, err)
	second, err := NewEvent("orchestrator", AgentCompletedData{Issue: 1, Agent: "a", OK: true}).ToMessage()
	require.NoError(t, err)

	require.NoError(t, logger.LogEvent(ctx, first))
	require.NoError(t, logger.LogEvent(ctx, second))

	exists, err := store.Exists(ctx, "events/events_"+first.Timestamp.Format("2006-01-02")+".ndjson")
	require.NoError(t, err)
	assert.True(t, exists)

	reader := NewEventLogReader(store)
	events, err := reader.ReadEvents(ctx, first.Timestamp)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, first.ID, events[0].ID)
	assert.Equal(t, second.ID, events[1].ID)

	byType, err := reader.ReadEventsByType(ctx, first.Timestamp, AgentCompleted)
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, second.ID, byType[0].ID)
}

func TestEventLogReader_MissingDay(t *testing.T) {
	reader := NewEventLogReader(newLogStore(t))
	events, err := reader.ReadEvents(context.Background(), time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEventLogReader_SkipsMalformedLines(t *testing.T) {
	ctx := context.Background()
	store := newLogStore(t)
	day := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Write(ctx, logFilePath(day), []byte("not json\n{\"id\":\"x\",\"type\":\"agent.completed\"}\n")))

	events, err := NewEventLogReader(store).ReadEvents(ctx, day)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "x", events[0].ID)
}

func TestRegisterEventLogger(t *testing.T) {
	ctx := context.Background()
	store := newLogStore(t)
	eb := startBus(t, func(eb *EventBus) {
		RegisterEventLogger(eb, NewEventLogger(store))
	})

	require.NoError(t, eb.Publish(ctx, "observer", ObserverDecidedData{Issue: 9}))

	events, err := NewEventLogReader(store).ReadEventsByType(ctx, time.Now(), ObserverDecided)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "observer", events[0].Source)
}
