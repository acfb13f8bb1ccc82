package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func TestLimiter_Disabled(t *testing.T) {
	ledger := NewMemoryLedger()
	ok, err := NewLimiter(ledger).Allow(context.Background(), "a", 1, RateLimit{Enabled: false, MaxPerIssue: 0})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, ledger.Snapshot().IssueCounts)
}

func TestLimiter_HourlyWindow(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
	ledger := NewMemoryLedger()
	l := NewLimiter(ledger).WithClock(clock.Now)
	rl := RateLimit{Enabled: true, MaxPerIssue: 100, MaxPerHour: 2}

	for i := range 2 {
		ok, err := l.Allow(ctx, "Moderator", i, rl)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	clock.t = clock.t.Add(30 * time.Minute)
	ok, err := l.Allow(ctx, "moderator", 3, rl)
	require.NoError(t, err)
	assert.False(t, ok, "two events inside the window")
	_, counted := ledger.Snapshot().IssueCounts[issueKey("moderator", 3)]
	assert.False(t, counted, "a rejection does not count")

	clock.t = clock.t.Add(31 * time.Minute)
	ok, err = l.Allow(ctx, "moderator", 3, rl)
	require.NoError(t, err)
	assert.True(t, ok, "earlier events left the window")

	snap := ledger.Snapshot()
	assert.Len(t, snap.HourlyEvents["moderator"], 1)
	assert.Equal(t, 1, snap.IssueCounts["moderator#3"])
}

func TestLimiter_IssueCapCheckedBeforeWindow(t *testing.T) {
	ledger := NewMemoryLedger()
	old := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	ledger.Seed(&RateState{
		IssueCounts:  map[string]int{"moderator#1": 1},
		HourlyEvents: map[string][]time.Time{"moderator": {old}},
	})
	l := NewLimiter(ledger).WithClock(func() time.Time { return old.Add(2 * time.Hour) })

	ok, err := l.Allow(context.Background(), "moderator", 1, RateLimit{Enabled: true, MaxPerIssue: 1, MaxPerHour: 5})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []time.Time{old}, ledger.Snapshot().HourlyEvents["moderator"], "stale events untouched when the issue cap rejects")
}

func TestMemoryLedger_ErrorDiscardsChanges(t *testing.T) {
	ledger := NewMemoryLedger()
	err := ledger.Update(context.Background(), func(s *RateState) error {
		s.IssueCounts["x#1"] = 5
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, ledger.Snapshot().IssueCounts)

	ledger.Seed(&RateState{IssueCounts: map[string]int{"x#1": 2}})
	ledger.Reset()
	assert.Empty(t, ledger.Snapshot().IssueCounts)
}
