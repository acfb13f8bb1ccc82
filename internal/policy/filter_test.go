package policy

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/issuelab/internal/event"
)

type agents []string

func (a agents) Canonical(name string) (string, bool) {
	for _, n := range a {
		if strings.EqualFold(n, name) {
			return n, true
		}
	}
	return "", false
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (r *recordingPublisher) Publish(_ context.Context, _ string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, data)
	return nil
}

type brokenLedger struct{}

func (brokenLedger) Update(context.Context, func(*RateState) error) error {
	return errors.New("ledger down")
}

func rateLimited(maxPerIssue, maxPerHour int) Policy {
	p := DefaultPolicy()
	p.RateLimit = RateLimit{Enabled: true, MaxPerIssue: maxPerIssue, MaxPerHour: maxPerHour}
	return p
}

func TestFilter_UnregisteredIsFiltered(t *testing.T) {
	f := NewFilter(DefaultPolicy())
	allowed, filtered := f.Apply(context.Background(), []string{"gqy20", "ghost"}, agents{"gqy20"}, mo.None[int]())
	assert.Equal(t, []string{"gqy20"}, allowed)
	assert.Equal(t, []string{"ghost"}, filtered)
}

func TestFilter_Blacklist(t *testing.T) {
	p := DefaultPolicy()
	p.Blacklist = []string{"Spam-User"}
	f := NewFilter(p)

	allowed, filtered := f.Apply(context.Background(), []string{"spam-user", "Moderator"}, agents{"spam-user", "moderator"}, mo.None[int]())
	assert.Equal(t, []string{"Moderator"}, allowed)
	assert.Equal(t, []string{"spam-user"}, filtered)
}

func TestFilter_RegistryCheckRunsFirst(t *testing.T) {
	ledger := NewMemoryLedger()
	f := NewFilter(rateLimited(1, 1), WithLimiter(NewLimiter(ledger)))

	_, filtered := f.Apply(context.Background(), []string{"ghost"}, agents{}, mo.Some(1))
	assert.Equal(t, []string{"ghost"}, filtered)
	assert.Empty(t, ledger.Snapshot().IssueCounts)
}

func TestFilter_RateLimitPerIssue(t *testing.T) {
	ctx := context.Background()
	f := NewFilter(rateLimited(2, 100))

	var got []bool
	for range 3 {
		allowed, _ := f.Apply(ctx, []string{"moderator"}, agents{"moderator"}, mo.Some(42))
		got = append(got, len(allowed) == 1)
	}
	assert.Equal(t, []bool{true, true, false}, got)

	allowed, _ := f.Apply(ctx, []string{"moderator"}, agents{"moderator"}, mo.Some(43))
	assert.Equal(t, []string{"moderator"}, allowed, "another issue has its own count")
}

func TestFilter_NoIssueSkipsRateLimit(t *testing.T) {
	f := NewFilter(rateLimited(0, 0))
	allowed, filtered := f.Apply(context.Background(), []string{"moderator"}, agents{"moderator"}, mo.None[int]())
	assert.Equal(t, []string{"moderator"}, allowed)
	assert.Empty(t, filtered)
}

func TestFilter_LedgerErrorFailsClosed(t *testing.T) {
	f := NewFilter(rateLimited(10, 10), WithLimiter(NewLimiter(brokenLedger{})))
	allowed, filtered := f.Apply(context.Background(), []string{"moderator"}, agents{"moderator"}, mo.Some(1))
	assert.Empty(t, allowed)
	assert.Equal(t, []string{"moderator"}, filtered)
}

func TestFilter_PublishesEvent(t *testing.T) {
	pub := &recordingPublisher{}
	f := NewFilter(DefaultPolicy(), WithPublisher(pub))
	f.Apply(context.Background(), []string{"a", "b"}, agents{"a"}, mo.Some(5))

	require.Len(t, pub.events, 1)
	assert.Equal(t, event.MentionFilteredData{
		Issue:    5,
		Allowed:  []string{"a"},
		Filtered: []string{"b"},
	}, pub.events[0])
}

func TestFilter_EmptyInput(t *testing.T) {
	allowed, filtered := NewFilter(DefaultPolicy()).Apply(context.Background(), nil, agents{}, mo.None[int]())
	assert.NotNil(t, allowed)
	assert.NotNil(t, filtered)
	assert.Empty(t, allowed)
	assert.Empty(t, filtered)
}
