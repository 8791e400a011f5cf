package dedup

import (
	"context"
	"errors"
	"strings"

	"github.com/IliaW/lead-scrape-worker/internal/model"
	"github.com/IliaW/lead-scrape-worker/internal/persistence"
)

type LeadFinder interface {
	FindLeadByProfileURL(ctx context.Context, profileURL string) (*model.Lead, error)
}

type Deduplicator struct {
	leads LeadFinder
}

func New(leads LeadFinder) *Deduplicator {
	return &Deduplicator{leads: leads}
}

// Exists reports whether a stored lead already carries the profile url. Records without a url have no
// identity and are never treated as duplicates.
func (d *Deduplicator) Exists(ctx context.Context, profileURL string) (bool, error) {
	if strings.TrimSpace(profileURL) == "" {
		return false, nil
	}
	_, err := d.leads.FindLeadByProfileURL(ctx, profileURL)
	if errors.Is(err, persistence.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
