package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IliaW/lead-scrape-worker/internal/model"
)

// EffectiveSettings returns the first settings row, or the defaults when nothing has been configured yet.
func (r *Repository) EffectiveSettings(ctx context.Context) (model.ScrapingSettings, error) {
	var (
		s        model.ScrapingSettings
		proxyURL sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT min_delay, max_delay, max_requests_per_hour, max_leads_per_day, use_proxy, proxy_url, headless_mode
		FROM scraping_settings ORDER BY id LIMIT 1`).
		Scan(&s.MinDelay, &s.MaxDelay, &s.MaxRequestsPerHour, &s.MaxLeadsPerDay, &s.UseProxy, &proxyURL, &s.Headless)
	if errors.Is(err, sql.ErrNoRows) {
		r.log.Debug("scraping settings not configured. Using defaults.")
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return model.ScrapingSettings{}, fmt.Errorf("load settings: %w", err)
	}
	s.ProxyURL = proxyURL.String

	return s.Normalize(), nil
}

func (r *Repository) ActiveCredentials(ctx context.Context) (*model.Credentials, error) {
	var (
		c        model.Credentials
		lastUsed sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT id, identifier, secret, created_at, last_used FROM scrape_credentials WHERE is_active = 1 ORDER BY id DESC LIMIT 1").
		Scan(&c.ID, &c.Identifier, &c.Secret, &c.CreatedAt, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	c.Active = true
	c.LastUsed = timePtr(lastUsed)

	return &c, nil
}

func (r *Repository) MarkCredentialsUsed(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE scrape_credentials SET last_used = ? WHERE id = ?", at, id)
	if err != nil {
		return fmt.Errorf("mark credentials used: %w", err)
	}
	return nil
}

// ActivateCredentials replaces the active credential set. Deactivation and insert share one transaction so two
// sets are never active at once.
func (r *Repository) ActivateCredentials(ctx context.Context, identifier, secret string, now time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.log.Error("failed to rollback credentials tx.", slog.String("err", rbErr.Error()))
		}
	}()

	if _, err = tx.ExecContext(ctx, "UPDATE scrape_credentials SET is_active = 0 WHERE is_active = 1"); err != nil {
		return 0, fmt.Errorf("deactivate credentials: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO scrape_credentials (identifier, secret, is_active, created_at) VALUES (?, ?, 1, ?)",
		identifier, secret, now)
	if err != nil {
		return 0, fmt.Errorf("insert credentials: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("credentials id: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit credentials: %w", err)
	}
	r.log.Info("credentials activated.", slog.Int64("credentials_id", id))

	return id, nil
}
