package policy

import (
	"context"
	"log/slog"
	"strings"

	"github.com/samber/mo"

	"github.com/kazz187/issuelab/internal/event"
	"github.com/kazz187/issuelab/internal/mention"
)

// Filter splits mentions into allowed and filtered sets.
type Filter struct {
	policy    Policy
	limiter   *Limiter
	publisher event.Publisher
}

type FilterOption func(*Filter)

func WithLimiter(l *Limiter) FilterOption {
	return func(f *Filter) { f.limiter = l }
}

func WithPublisher(p event.Publisher) FilterOption {
	return func(f *Filter) { f.publisher = p }
}

// NewFilter uses an in-memory ledger unless WithLimiter is given.
func NewFilter(p Policy, opts ...FilterOption) *Filter {
	f := &Filter{
		policy:    p,
		limiter:   NewLimiter(NewMemoryLedger()),
		publisher: event.Nop{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Filter) Policy() Policy {
	return f.policy
}

// Apply checks, in order, registry membership, the blacklist and, when an
// issue number is present, the rate limit. Both result slices are non-nil.
func (f *Filter) Apply(ctx context.Context, mentions []string, agents mention.Resolver, issue mo.Option[int]) (allowed, filtered []string) {
	allowed, filtered = []string{}, []string{}

	blacklist := make(map[string]struct{}, len(f.policy.Blacklist))
	for _, name := range f.policy.Blacklist {
		blacklist[strings.ToLower(name)] = struct{}{}
	}

	for _, username := range mentions {
		if _, ok := agents.Canonical(username); !ok {
			slog.DebugContext(ctx, "filtered unregistered agent", "mention", username)
			filtered = append(filtered, username)
			continue
		}
		if _, ok := blacklist[strings.ToLower(username)]; ok {
			slog.DebugContext(ctx, "filtered blacklisted mention", "mention", username)
			filtered = append(filtered, username)
			continue
		}
		if n, ok := issue.Get(); ok {
			pass, err := f.limiter.Allow(ctx, username, n, f.policy.RateLimit)
			if err != nil {
				slog.ErrorContext(ctx, "rate ledger unavailable, filtering mention", "mention", username, "error", err)
				filtered = append(filtered, username)
				continue
			}
			if !pass {
				slog.DebugContext(ctx, "filtered by rate limit", "mention", username, "issue", n)
				filtered = append(filtered, username)
				continue
			}
		}
		allowed = append(allowed, username)
	}

	slog.InfoContext(ctx, "mention filter result", "allowed", allowed, "filtered", filtered)

	if err := f.publisher.Publish(ctx, "policy", event.MentionFilteredData{
		Issue:    issue.OrEmpty(),
		Allowed:  allowed,
		Filtered: filtered,
	}); err != nil {
		slog.WarnContext(ctx, "failed to publish filter event", "error", err)
	}
	return allowed, filtered
}
