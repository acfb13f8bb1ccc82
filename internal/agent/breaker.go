package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerInvoker stops calling a failing backend for a cool-down period.
// Once open every Invoke fails fast with gobreaker.ErrOpenState.
type BreakerInvoker struct {
	next Invoker
	cb   *gobreaker.CircuitBreaker[*Response]
}

type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// Timeout is how long the breaker stays open.
	Timeout time.Duration
}

func NewBreakerInvoker(next Invoker, s BreakerSettings) *BreakerInvoker {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	return &BreakerInvoker{
		next: next,
		cb: gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
			Name:        "agent-backend",
			MaxRequests: 1,
			Timeout:     s.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= s.ConsecutiveFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
			// a reported run failure is the agent's problem, and a cancel is the caller's
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrRunFailed) || errors.Is(err, context.Canceled)
			},
		}),
	}
}

func (b *BreakerInvoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	return b.cb.Execute(func() (*Response, error) {
		return b.next.Invoke(ctx, req)
	})
}

func (b *BreakerInvoker) State() gobreaker.State {
	return b.cb.State()
}
