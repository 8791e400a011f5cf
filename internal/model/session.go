package model

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTransition = errors.New("invalid session status transition")

type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
)

func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s SessionStatus) String() string {
	return string(s)
}

// SearchFilters narrows a people search. MaxResults is the number of records the caller asked for; the
// orchestrator may only lower it.
type SearchFilters struct {
	Role       string `json:"role,omitempty"`
	Company    string `json:"company,omitempty"`
	Location   string `json:"location,omitempty"`
	MaxResults int    `json:"max_results"`
}

type ScrapeSession struct {
	ID           int64         `json:"id"`
	SearchQuery  string        `json:"search_query"`
	Filters      SearchFilters `json:"search_filters"`
	Status       SessionStatus `json:"status"`
	TotalLeads   int           `json:"total_leads"`
	CreatedAt    time.Time     `json:"created_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

func NewSession(query string, filters SearchFilters, now time.Time) *ScrapeSession {
	return &ScrapeSession{
		SearchQuery: query,
		Filters:     filters,
		Status:      StatusPending,
		CreatedAt:   now,
	}
}

// Transition moves the session along pending -> running -> {completed, failed}. Terminal states are final and
// carry the completion timestamp.
func (s *ScrapeSession) Transition(to SessionStatus, now time.Time) error {
	allowed := false
	switch s.Status {
	case StatusPending:
		allowed = to == StatusRunning
	case StatusRunning:
		allowed = to.Terminal()
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
	}

	s.Status = to
	if to.Terminal() {
		completedAt := now
		s.CompletedAt = &completedAt
	}

	return nil
}

func (s *ScrapeSession) Fail(message string, now time.Time) error {
	if err := s.Transition(StatusFailed, now); err != nil {
		return err
	}
	s.ErrorMessage = message
	return nil
}

func (s *ScrapeSession) RecordLead() error {
	if s.Status != StatusRunning {
		return fmt.Errorf("%w: lead recorded while %s", ErrInvalidTransition, s.Status)
	}
	s.TotalLeads++
	return nil
}
