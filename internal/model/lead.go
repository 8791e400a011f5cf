package model

import "time"

// Lead is a collected contact record. ProfileURL is the dedupe key; an empty one never collides.
type Lead struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Role            string    `json:"role,omitempty"`
	Company         string    `json:"company,omitempty"`
	Location        string    `json:"location,omitempty"`
	Industry        string    `json:"industry,omitempty"`
	ProfileURL      string    `json:"profile_url,omitempty"`
	Connections     string    `json:"connections,omitempty"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	Contacted       bool      `json:"contacted"`
	Connected       bool      `json:"connected"`
	Notes           string    `json:"notes,omitempty"`
	SessionID       int64     `json:"session_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Candidate is a record freshly extracted from a results page, before quota and dedupe filtering.
type Candidate struct {
	Name            string
	Role            string
	Company         string
	Location        string
	ProfileURL      string
	ProfileImageURL string
}

func (c Candidate) ToLead(sessionID int64, now time.Time) *Lead {
	return &Lead{
		Name:            c.Name,
		Role:            c.Role,
		Company:         c.Company,
		Location:        c.Location,
		ProfileURL:      c.ProfileURL,
		ProfileImageURL: c.ProfileImageURL,
		SessionID:       sessionID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
