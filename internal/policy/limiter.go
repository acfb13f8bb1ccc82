package policy

import (
	"context"
	"strings"
	"time"
)

const rateWindow = time.Hour

// Limiter applies RateLimit against a Ledger.
type Limiter struct {
	ledger Ledger
	now    func() time.Time
}

func NewLimiter(ledger Ledger) *Limiter {
	return &Limiter{ledger: ledger, now: time.Now}
}

// WithClock replaces the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow reports whether username may trigger on issue. The ledger is only
// modified when the answer is true.
func (l *Limiter) Allow(ctx context.Context, username string, issue int, rl RateLimit) (bool, error) {
	if !rl.Enabled {
		return true, nil
	}

	user := strings.ToLower(username)
	key := issueKey(username, issue)
	now := l.now()
	allowed := false

	err := l.ledger.Update(ctx, func(s *RateState) error {
		if s.IssueCounts[key] >= rl.MaxPerIssue {
			return nil
		}

		windowStart := now.Add(-rateWindow)
		recent := s.HourlyEvents[user][:0:0]
		for _, t := range s.HourlyEvents[user] {
			if !t.Before(windowStart) {
				recent = append(recent, t)
			}
		}
		if len(recent) >= rl.MaxPerHour {
			s.HourlyEvents[user] = recent
			return nil
		}

		s.IssueCounts[key]++
		s.HourlyEvents[user] = append(recent, now)
		allowed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return allowed, nil
}
