package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IliaW/lead-scrape-worker/config"
	"github.com/IliaW/lead-scrape-worker/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeCreator struct {
	created []*model.ScrapeSession
	err     error
}

func (f *fakeCreator) CreateSession(_ context.Context, s *model.ScrapeSession) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.created = append(f.created, s)
	s.ID = int64(len(f.created))
	return s.ID, nil
}

func TestSanitizeQuery(t *testing.T) {
	tests := map[string]string{
		"  cto fintech ":                  "cto fintech",
		`<script>alert("x")</script>`:     "scriptalert(x)/script",
		"head of\tsales\n":                "head ofsales",
		`o'brien \ "vp"`:                  "obrien  vp",
		"\x00\x07":                        "",
		"Geschäftsführer München":         "Geschäftsführer München",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeQuery(in), in)
	}
}

func TestStartSession(t *testing.T) {
	store := &fakeCreator{}
	q := NewSessionQueue(store, 10, discard)

	id, err := q.StartSession(context.Background(), " <cto> berlin ", model.SearchFilters{Location: "Berlin"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	require.Len(t, store.created, 1)
	s := store.created[0]
	assert.Equal(t, "cto berlin", s.SearchQuery)
	assert.Equal(t, model.StatusPending, s.Status)
	assert.Equal(t, 50, s.Filters.MaxResults)
	assert.Equal(t, "Berlin", s.Filters.Location)
	assert.Nil(t, s.CompletedAt)

	assert.Equal(t, int64(1), <-q.IDs())
}

func TestStartSessionKeepsRequestedMax(t *testing.T) {
	store := &fakeCreator{}
	q := NewSessionQueue(store, 10, discard)

	_, err := q.StartSession(context.Background(), "cto", model.SearchFilters{MaxResults: 12})
	require.NoError(t, err)
	assert.Equal(t, 12, store.created[0].Filters.MaxResults)
}

func TestStartSessionRejects(t *testing.T) {
	store := &fakeCreator{}
	q := NewSessionQueue(store, 10, discard)

	_, err := q.StartSession(context.Background(), ` <>"' `, model.SearchFilters{})
	require.ErrorIs(t, err, ErrEmptyQuery)
	assert.Empty(t, store.created)

	store.err = errors.New("db down")
	_, err = q.StartSession(context.Background(), "cto", model.SearchFilters{})
	require.ErrorIs(t, err, store.err)

	q.Close()
	q.Close()
	_, err = q.StartSession(context.Background(), "cto", model.SearchFilters{})
	require.ErrorIs(t, err, ErrQueueClosed)
}

func TestStartSessionFullQueueHonoursContext(t *testing.T) {
	store := &fakeCreator{}
	q := NewSessionQueue(store, 1, discard)
	_, err := q.StartSession(context.Background(), "first", model.SearchFilters{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	id, err := q.StartSession(ctx, "second", model.SearchFilters{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(2), id)
}

type fakeRunner struct {
	mu      sync.Mutex
	running int
	maxSeen int
	seen    []int64
	panicOn int64
}

func (r *fakeRunner) Run(ctx context.Context, id int64) (*model.ScrapeSession, error) {
	r.mu.Lock()
	r.running++
	r.maxSeen = max(r.maxSeen, r.running)
	r.seen = append(r.seen, id)
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running--
		r.mu.Unlock()
	}()

	if id == r.panicOn {
		panic("boom")
	}
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("missing session deadline")
	}
	if id%2 == 0 {
		return nil, errors.New("session not found")
	}
	now := time.Now()
	return &model.ScrapeSession{ID: id, Status: model.StatusCompleted, TotalLeads: int(id), CompletedAt: &now}, nil
}

func newTestWorker(in <-chan int64, out chan<- *model.SessionEvent, runner SessionRunner) *SessionWorker {
	return &SessionWorker{
		InputChan:  in,
		OutputChan: out,
		PanicChan:  make(chan struct{}, 1),
		Runner:     runner,
		Cfg: &config.Config{
			Version:        "1.0.0",
			WorkerSettings: &config.WorkerConfig{SessionTimeout: time.Minute},
		},
		Log: discard,
		Wg:  &sync.WaitGroup{},
	}
}

func TestSessionWorkerRunsSessionsInOrder(t *testing.T) {
	in := make(chan int64, 5)
	out := make(chan *model.SessionEvent, 5)
	runner := &fakeRunner{}
	w := newTestWorker(in, out, runner)

	for _, id := range []int64{1, 2, 3} {
		in <- id
	}
	close(in)
	w.Wg.Add(1)
	w.Run()
	close(out)

	var events []*model.SessionEvent
	for e := range out {
		events = append(events, e)
	}
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].SessionID)
	assert.Equal(t, int64(3), events[1].SessionID)
	assert.Equal(t, model.StatusCompleted, events[1].Status)
	assert.Equal(t, 3, events[1].TotalLeads)
	assert.Equal(t, "1.0.0", events[1].WorkerVer)

	assert.Equal(t, []int64{1, 2, 3}, runner.seen)
	assert.Equal(t, 1, runner.maxSeen)
}

func TestSessionWorkerReportsPanic(t *testing.T) {
	in := make(chan int64, 2)
	out := make(chan *model.SessionEvent, 2)
	w := newTestWorker(in, out, &fakeRunner{panicOn: 5})

	in <- 5
	in <- 7
	w.Wg.Add(1)
	go w.Run()

	select {
	case <-w.PanicChan:
	case <-time.After(time.Second):
		t.Fatal("worker did not report the panic")
	}
	w.Wg.Wait()

	// a restarted worker picks up the rest of the queue
	close(in)
	w.Wg.Add(1)
	w.Run()
	e := <-out
	assert.Equal(t, int64(7), e.SessionID)
}
