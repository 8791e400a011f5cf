package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IliaW/lead-scrape-worker/internal/browser"
	"github.com/IliaW/lead-scrape-worker/internal/model"
	"github.com/IliaW/lead-scrape-worker/internal/persistence"
	"github.com/IliaW/lead-scrape-worker/internal/quota"
)

const (
	msgDailyLimit      = "daily limit reached"
	msgHourlyLimit     = "hourly request limit reached"
	msgNoCredentials   = "credentials not configured"
	msgNoProspects     = "no prospects found"
	msgLoginFailed     = "login failed"
	msgSearchFailed    = "search failed"
	msgUnexpectedFault = "unexpected error"
)

type Store interface {
	LoadSession(ctx context.Context, id int64) (*model.ScrapeSession, error)
	SaveSession(ctx context.Context, s *model.ScrapeSession) error
	EffectiveSettings(ctx context.Context) (model.ScrapingSettings, error)
	ActiveCredentials(ctx context.Context) (*model.Credentials, error)
	MarkCredentialsUsed(ctx context.Context, id int64, at time.Time) error
	InsertLead(ctx context.Context, l *model.Lead) (*model.Lead, error)
}

type QuotaChecker interface {
	CheckDailyLimit(ctx context.Context, maxPerDay int) (quota.DailyLimit, error)
}

type Deduplicator interface {
	Exists(ctx context.Context, profileURL string) (bool, error)
}

type Parser interface {
	Parse(markup string) ([]model.Candidate, error)
}

// Archive keeps a copy of the rendered search page. It is best effort and returns an empty location on failure.
type Archive interface {
	WriteResults(ctx context.Context, sessionID int64, markup string) string
}

type Orchestrator struct {
	Store    Store
	Quota    QuotaChecker
	Dedup    Deduplicator
	Parser   Parser
	Launcher browser.Launcher
	Archive  Archive
	Counter  quota.Counter
	Window   time.Duration
	Log      *slog.Logger
	Now      func() time.Time
}

type outcomeKind int

const (
	outcomeCollected outcomeKind = iota
	outcomeEmpty
	outcomeFailed
)

// outcome separates an expected empty search from a genuine failure.
type outcome struct {
	kind    outcomeKind
	message string
}

func failed(format string, args ...any) outcome {
	return outcome{kind: outcomeFailed, message: fmt.Sprintf(format, args...)}
}

// Run drives one pending session to a terminal state. The returned error is only set when the session could not
// be loaded or its state could not be persisted; scrape failures are recorded on the session itself.
func (o *Orchestrator) Run(ctx context.Context, sessionID int64) (*model.ScrapeSession, error) {
	log := o.Log.With(slog.Int64("session_id", sessionID))

	s, err := o.Store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %d: %w", sessionID, err)
	}
	if err = s.Transition(model.StatusRunning, o.now()); err != nil {
		return s, err
	}
	if err = o.Store.SaveSession(ctx, s); err != nil {
		return s, fmt.Errorf("save session %d: %w", sessionID, err)
	}
	log.Info("scrape session started.", slog.String("query", s.SearchQuery))

	res := o.collect(ctx, s, log)

	switch res.kind {
	case outcomeFailed:
		err = s.Fail(res.message, o.now())
	case outcomeEmpty:
		if err = s.Transition(model.StatusCompleted, o.now()); err == nil {
			s.ErrorMessage = res.message
		}
	default:
		err = s.Transition(model.StatusCompleted, o.now())
	}
	if err != nil {
		return s, err
	}
	// the terminal state must be stored even when the run was cut short by ctx
	if err = o.Store.SaveSession(context.WithoutCancel(ctx), s); err != nil {
		return s, fmt.Errorf("save session %d: %w", sessionID, err)
	}

	if s.Status == model.StatusFailed {
		log.Warn("scrape session failed.", slog.String("err", s.ErrorMessage))
	} else {
		log.Info("scrape session completed.", slog.Int("total_leads", s.TotalLeads))
	}

	return s, nil
}

func (o *Orchestrator) collect(ctx context.Context, s *model.ScrapeSession, log *slog.Logger) (res outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("PANIC!", slog.Any("err", r))
			res = failed("%s: %v", msgUnexpectedFault, r)
		}
	}()

	settings, err := o.Store.EffectiveSettings(ctx)
	if err != nil {
		return failed("failed to load settings: %v", err)
	}

	limit, err := o.Quota.CheckDailyLimit(ctx, settings.MaxLeadsPerDay)
	if err != nil {
		return failed("failed to check daily limit: %v", err)
	}
	if limit.LimitReached {
		return failed("%s: %d/%d leads collected today", msgDailyLimit, limit.CountToday, limit.Limit)
	}
	if s.Filters.MaxResults <= 0 || s.Filters.MaxResults > limit.Remaining {
		log.Info("requested results clamped to daily remaining.", slog.Int("requested", s.Filters.MaxResults),
			slog.Int("remaining", limit.Remaining))
		s.Filters.MaxResults = limit.Remaining
	}

	budget := quota.NewRequestBudget(o.Counter, settings.MaxRequestsPerHour, o.Window, log)
	if budget.Remaining() <= 0 {
		return failed(msgHourlyLimit)
	}

	creds, err := o.Store.ActiveCredentials(ctx)
	if errors.Is(err, persistence.ErrNotFound) {
		return failed(msgNoCredentials)
	}
	if err != nil {
		return failed("failed to load credentials: %v", err)
	}

	minDelay, maxDelay := settings.DelayRange()
	opts := browser.Options{
		Headless: settings.Headless,
		MinDelay: minDelay,
		MaxDelay: maxDelay,
		Budget:   budget,
	}
	if settings.UseProxy {
		opts.ProxyURL = settings.ProxyURL
	}
	b := o.Launcher.NewSession(opts)
	defer b.Close()

	if err = b.Start(ctx); err != nil {
		return failed("%v", err)
	}
	if err = b.Authenticate(ctx, creds.Identifier, creds.Secret); err != nil {
		return failed("%s: %v", msgLoginFailed, err)
	}
	if err = o.Store.MarkCredentialsUsed(ctx, creds.ID, o.now()); err != nil {
		log.Warn("failed to mark credentials as used.", slog.String("err", err.Error()))
	}

	markup, err := b.Search(ctx, s.SearchQuery, s.Filters)
	if err != nil {
		return failed("%s: %v", msgSearchFailed, err)
	}
	if o.Archive != nil {
		o.Archive.WriteResults(ctx, s.ID, markup)
	}

	candidates, err := o.Parser.Parse(markup)
	if err != nil {
		return failed("%s: %v", msgSearchFailed, err)
	}
	if len(candidates) == 0 {
		log.Info("no prospects found.")
		return outcome{kind: outcomeEmpty, message: msgNoProspects}
	}
	if len(candidates) > s.Filters.MaxResults {
		candidates = candidates[:s.Filters.MaxResults]
	}
	log.Info("prospects parsed.", slog.Int("count", len(candidates)))

	return o.persist(ctx, s, settings.MaxLeadsPerDay, candidates, log)
}

func (o *Orchestrator) persist(ctx context.Context, s *model.ScrapeSession, maxPerDay int,
	candidates []model.Candidate, log *slog.Logger) outcome {
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			log.Warn("session interrupted, keeping saved leads.", slog.String("err", err.Error()))
			break
		}
		limit, err := o.Quota.CheckDailyLimit(ctx, maxPerDay)
		if err != nil {
			log.Error("failed to check daily limit, stopping.", slog.String("err", err.Error()))
			break
		}
		if limit.LimitReached {
			log.Info("daily limit reached, stopping.", slog.Int("saved", s.TotalLeads))
			break
		}

		exists, err := o.Dedup.Exists(ctx, c.ProfileURL)
		if err != nil {
			// the unique key on profile_url still rejects a real duplicate
			log.Warn("dedupe lookup failed.", slog.String("err", err.Error()))
		}
		if exists {
			log.Debug("lead already exists.", slog.String("profile_url", c.ProfileURL))
			continue
		}

		if _, err = o.Store.InsertLead(ctx, c.ToLead(s.ID, o.now())); err != nil {
			if errors.Is(err, persistence.ErrDuplicateLead) {
				log.Debug("lead already exists.", slog.String("profile_url", c.ProfileURL))
			} else {
				log.Error("failed to save lead.", slog.String("err", err.Error()), slog.String("name", c.Name))
			}
			continue
		}
		if err = s.RecordLead(); err != nil {
			return failed("%v", err)
		}
		if err = o.Store.SaveSession(ctx, s); err != nil {
			log.Warn("failed to save session progress.", slog.String("err", err.Error()))
		}
	}

	return outcome{kind: outcomeCollected}
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}
