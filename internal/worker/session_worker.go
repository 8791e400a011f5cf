package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/IliaW/lead-scrape-worker/config"
	"github.com/IliaW/lead-scrape-worker/internal/model"
)

type SessionRunner interface {
	Run(ctx context.Context, sessionID int64) (*model.ScrapeSession, error)
}

type SessionWorker struct {
	InputChan  <-chan int64
	OutputChan chan<- *model.SessionEvent
	PanicChan  chan struct{}
	Runner     SessionRunner
	Cfg        *config.Config
	Log        *slog.Logger
	Wg         *sync.WaitGroup
}

// Run starts the session worker. It runs queued sessions one at a time and sends the final state of each to
// the output channel.
func (w *SessionWorker) Run() {
	defer func() {
		if r := recover(); r != nil {
			w.Log.Error("PANIC!", slog.Any("err", r))
			w.PanicChan <- struct{}{}
		}
	}()
	defer w.Wg.Done()
	w.Log.Debug("starting session worker.")

	for id := range w.InputChan {
		s := w.runSession(id)
		if s == nil || !s.Status.Terminal() {
			continue
		}
		w.OutputChan <- model.NewSessionEvent(s, w.Cfg.Version)
	}
	w.Log.Debug("session worker stopped.")
}

func (w *SessionWorker) runSession(id int64) *model.ScrapeSession {
	ctx := context.Background()
	if timeout := w.Cfg.WorkerSettings.SessionTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	s, err := w.Runner.Run(ctx, id)
	if err != nil {
		w.Log.Error("scrape session aborted.", slog.Int64("session_id", id), slog.String("err", err.Error()))
	}
	return s
}
