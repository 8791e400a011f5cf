package model

import "time"

// SessionRequest asks the worker to run a new scrape session.
type SessionRequest struct {
	RequestID string        `json:"request_id"`
	Query     string        `json:"query"`
	Filters   SearchFilters `json:"filters"`
}

// SessionEvent is published once a session reaches a terminal state.
type SessionEvent struct {
	SessionID    int64         `json:"session_id"`
	Status       SessionStatus `json:"status"`
	TotalLeads   int           `json:"total_leads"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	WorkerVer    string        `json:"scrape_worker_version"`
}

func NewSessionEvent(s *ScrapeSession, version string) *SessionEvent {
	return &SessionEvent{
		SessionID:    s.ID,
		Status:       s.Status,
		TotalLeads:   s.TotalLeads,
		ErrorMessage: s.ErrorMessage,
		CompletedAt:  s.CompletedAt,
		WorkerVer:    version,
	}
}
