package quota

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var ErrHourlyLimitReached = errors.New("hourly request limit reached")

type Counter interface {
	Increment(key string, ttl time.Duration) (uint64, error)
	Get(key string) (uint64, error)
}

// RequestBudget caps outbound navigations per fixed time window. Counter failures let the request through.
type RequestBudget struct {
	counter Counter
	limit   int
	window  time.Duration
	now     func() time.Time
	log     *slog.Logger
}

func NewRequestBudget(counter Counter, limit int, window time.Duration, log *slog.Logger) *RequestBudget {
	if window <= 0 {
		window = time.Hour
	}
	return &RequestBudget{
		counter: counter,
		limit:   limit,
		window:  window,
		now:     time.Now,
		log:     log,
	}
}

func (b *RequestBudget) Remaining() int {
	used, err := b.counter.Get(b.key())
	if err != nil {
		b.log.Warn("failed to read request counter.", slog.String("err", err.Error()))
		return b.limit
	}
	return max(0, b.limit-int(used))
}

// Take reserves one request in the current window.
func (b *RequestBudget) Take() error {
	used, err := b.counter.Increment(b.key(), b.window)
	if err != nil {
		b.log.Warn("failed to increment request counter.", slog.String("err", err.Error()))
		return nil
	}
	if int(used) > b.limit {
		return fmt.Errorf("%w: %d per %s", ErrHourlyLimitReached, b.limit, b.window)
	}
	return nil
}

func (b *RequestBudget) key() string {
	return fmt.Sprintf("lead-scrape-requests-%d", b.now().Truncate(b.window).Unix())
}
