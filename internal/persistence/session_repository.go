package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IliaW/lead-scrape-worker/internal/model"
)

func (r *Repository) CreateSession(ctx context.Context, s *model.ScrapeSession) (int64, error) {
	filters, err := json.Marshal(s.Filters)
	if err != nil {
		return 0, fmt.Errorf("marshal filters: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO scrape_sessions (search_query, search_filters, status, total_leads, created_at) VALUES (?, ?, ?, ?, ?)",
		s.SearchQuery, string(filters), string(s.Status), s.TotalLeads, s.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("session id: %w", err)
	}
	s.ID = id
	r.log.Debug("scrape session created.", slog.Int64("session_id", id))

	return id, nil
}

func (r *Repository) LoadSession(ctx context.Context, id int64) (*model.ScrapeSession, error) {
	var (
		s           model.ScrapeSession
		filters     sql.NullString
		status      string
		completedAt sql.NullTime
		errMessage  sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT id, search_query, search_filters, status, total_leads, created_at, completed_at, error_message FROM scrape_sessions WHERE id = ?",
		id).Scan(&s.ID, &s.SearchQuery, &filters, &status, &s.TotalLeads, &s.CreatedAt, &completedAt, &errMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %d: %w", id, err)
	}
	if filters.Valid && filters.String != "" {
		if err = json.Unmarshal([]byte(filters.String), &s.Filters); err != nil {
			return nil, fmt.Errorf("unmarshal filters of session %d: %w", id, err)
		}
	}
	s.Status = model.SessionStatus(status)
	s.CompletedAt = timePtr(completedAt)
	s.ErrorMessage = errMessage.String

	return &s, nil
}

func (r *Repository) SaveSession(ctx context.Context, s *model.ScrapeSession) error {
	filters, err := json.Marshal(s.Filters)
	if err != nil {
		return fmt.Errorf("marshal filters: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		"UPDATE scrape_sessions SET search_filters = ?, status = ?, total_leads = ?, completed_at = ?, error_message = ? WHERE id = ?",
		string(filters), string(s.Status), s.TotalLeads, nullTime(s.CompletedAt), nullString(s.ErrorMessage), s.ID)
	if err != nil {
		return fmt.Errorf("update session %d: %w", s.ID, err)
	}
	r.log.Debug("scrape session saved.", slog.Int64("session_id", s.ID), slog.String("status", s.Status.String()))

	return nil
}
