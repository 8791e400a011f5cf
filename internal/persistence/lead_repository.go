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

// CountLeadsCreatedBetween counts leads whose creation time is within [from, to].
func (r *Repository) CountLeadsCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM leads WHERE created_at >= ? AND created_at <= ?", from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count leads: %w", err)
	}
	return count, nil
}

func (r *Repository) FindLeadByProfileURL(ctx context.Context, profileURL string) (*model.Lead, error) {
	var l model.Lead
	var role, company, location, industry, profile, connections, imageURL, notes sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, role, company, location, industry, profile_url, connections, profile_image_url,
		contacted, connected, notes, session_id, created_at, updated_at FROM leads WHERE profile_url = ? LIMIT 1`,
		profileURL).Scan(&l.ID, &l.Name, &role, &company, &location, &industry, &profile, &connections, &imageURL,
		&l.Contacted, &l.Connected, &notes, &l.SessionID, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find lead: %w", err)
	}
	l.Role, l.Company, l.Location, l.Industry = role.String, company.String, location.String, industry.String
	l.ProfileURL, l.Connections, l.ProfileImageURL, l.Notes = profile.String, connections.String, imageURL.String, notes.String

	return &l, nil
}

// InsertLead stores the lead. An empty profile url is written as NULL so it never trips the unique key.
func (r *Repository) InsertLead(ctx context.Context, l *model.Lead) (*model.Lead, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO leads (name, role, company, location, industry, profile_url, connections, profile_image_url,
		contacted, connected, notes, session_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.Name, nullString(l.Role), nullString(l.Company), nullString(l.Location), nullString(l.Industry),
		nullString(l.ProfileURL), nullString(l.Connections), nullString(l.ProfileImageURL),
		l.Contacted, l.Connected, nullString(l.Notes), l.SessionID, l.CreatedAt, l.UpdatedAt)
	if isDuplicateEntry(err) {
		return nil, ErrDuplicateLead
	}
	if err != nil {
		return nil, fmt.Errorf("insert lead: %w", err)
	}
	if l.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("lead id: %w", err)
	}
	r.log.Debug("lead saved to db.", slog.Int64("lead_id", l.ID), slog.Int64("session_id", l.SessionID))

	return l, nil
}
