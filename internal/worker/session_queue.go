package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/IliaW/lead-scrape-worker/internal/model"
)

const defaultMaxResults = 50

var (
	ErrEmptyQuery  = errors.New("search query is empty")
	ErrQueueClosed = errors.New("session queue is closed")
)

type SessionCreator interface {
	CreateSession(ctx context.Context, s *model.ScrapeSession) (int64, error)
}

// SessionQueue persists new sessions as pending and hands their ids to the single session worker.
type SessionQueue struct {
	store  SessionCreator
	ids    chan int64
	log    *slog.Logger
	now    func() time.Time
	mu     sync.RWMutex
	closed bool
}

func NewSessionQueue(store SessionCreator, size int, log *slog.Logger) *SessionQueue {
	return &SessionQueue{
		store: store,
		ids:   make(chan int64, max(1, size)),
		log:   log,
		now:   time.Now,
	}
}

// StartSession validates the request, stores a pending session and enqueues it. The id is returned as soon as
// the session is queued; progress is observed through the stored session.
func (q *SessionQueue) StartSession(ctx context.Context, query string, filters model.SearchFilters) (int64, error) {
	query = SanitizeQuery(query)
	if query == "" {
		return 0, ErrEmptyQuery
	}
	if filters.MaxResults <= 0 {
		filters.MaxResults = defaultMaxResults
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return 0, ErrQueueClosed
	}

	id, err := q.store.CreateSession(ctx, model.NewSession(query, filters, q.now()))
	if err != nil {
		return 0, err
	}
	select {
	case q.ids <- id:
	case <-ctx.Done():
		q.log.Error("session stored but not queued.", slog.Int64("session_id", id),
			slog.String("err", ctx.Err().Error()))
		return id, ctx.Err()
	}
	q.log.Info("scrape session queued.", slog.Int64("session_id", id), slog.String("query", query))

	return id, nil
}

func (q *SessionQueue) IDs() <-chan int64 {
	return q.ids
}

// Close stops accepting sessions. Queued ids are still delivered to the worker.
func (q *SessionQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ids)
}

// SanitizeQuery drops markup and quoting characters and control characters from a search query.
func SanitizeQuery(query string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(`<>"'\`, r) {
			return -1
		}
		return r
	}, query))
}
