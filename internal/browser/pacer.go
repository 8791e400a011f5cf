package browser

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// pacer produces the randomized waits between keystrokes and between actions.
type pacer struct {
	mu       sync.Mutex
	rnd      *rand.Rand
	minKey   time.Duration
	maxKey   time.Duration
	minPause time.Duration
	maxPause time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

func newPacer(minKey, maxKey, minPause, maxPause time.Duration) *pacer {
	return &pacer{
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		minKey:   minKey,
		maxKey:   maxKey,
		minPause: minPause,
		maxPause: maxPause,
		sleep:    sleepCtx,
	}
}

func (p *pacer) Keystroke(ctx context.Context) error {
	return p.sleep(ctx, p.between(p.minKey, p.maxKey))
}

func (p *pacer) Pause(ctx context.Context) error {
	return p.sleep(ctx, p.between(p.minPause, p.maxPause))
}

func (p *pacer) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo + time.Duration(p.rnd.Int63n(int64(hi-lo)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
