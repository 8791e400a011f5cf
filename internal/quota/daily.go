package quota

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrInvalidLimit = errors.New("limit must be positive")

type LeadCounter interface {
	CountLeadsCreatedBetween(ctx context.Context, from, to time.Time) (int, error)
}

type DailyLimit struct {
	Limit        int
	CountToday   int
	Remaining    int
	LimitReached bool
}

// Guard answers daily quota questions from the store on every call; nothing is cached between calls.
type Guard struct {
	leads LeadCounter
	now   func() time.Time
}

func NewGuard(leads LeadCounter, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{leads: leads, now: now}
}

func (g *Guard) CheckDailyLimit(ctx context.Context, maxPerDay int) (DailyLimit, error) {
	if maxPerDay <= 0 {
		return DailyLimit{}, fmt.Errorf("%w: %d", ErrInvalidLimit, maxPerDay)
	}
	from, to := DayBounds(g.now())
	count, err := g.leads.CountLeadsCreatedBetween(ctx, from, to)
	if err != nil {
		return DailyLimit{}, err
	}

	return Evaluate(maxPerDay, count), nil
}

func Evaluate(maxPerDay, countToday int) DailyLimit {
	return DailyLimit{
		Limit:        maxPerDay,
		CountToday:   countToday,
		Remaining:    max(0, maxPerDay-countToday),
		LimitReached: countToday >= maxPerDay,
	}
}

// DayBounds returns the first and last instant of t's calendar day in t's location.
func DayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()),
		time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
