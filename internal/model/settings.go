package model

import "time"

const (
	DefaultMinDelay           = 2.0
	DefaultMaxDelay           = 5.0
	DefaultMaxRequestsPerHour = 30
	DefaultMaxLeadsPerDay     = 40
)

// ScrapingSettings holds the throttling knobs. Delays are in seconds.
type ScrapingSettings struct {
	MinDelay           float64
	MaxDelay           float64
	MaxRequestsPerHour int
	MaxLeadsPerDay     int
	UseProxy           bool
	ProxyURL           string
	Headless           bool
}

func DefaultSettings() ScrapingSettings {
	return ScrapingSettings{
		MinDelay:           DefaultMinDelay,
		MaxDelay:           DefaultMaxDelay,
		MaxRequestsPerHour: DefaultMaxRequestsPerHour,
		MaxLeadsPerDay:     DefaultMaxLeadsPerDay,
		Headless:           true,
	}
}

// Normalize replaces values that would break throttling with the defaults.
func (s ScrapingSettings) Normalize() ScrapingSettings {
	d := DefaultSettings()
	if s.MinDelay < 0 {
		s.MinDelay = d.MinDelay
	}
	if s.MaxDelay <= 0 {
		s.MaxDelay = d.MaxDelay
	}
	if s.MaxDelay < s.MinDelay {
		s.MinDelay, s.MaxDelay = s.MaxDelay, s.MinDelay
	}
	if s.MaxRequestsPerHour <= 0 {
		s.MaxRequestsPerHour = d.MaxRequestsPerHour
	}
	if s.MaxLeadsPerDay <= 0 {
		s.MaxLeadsPerDay = d.MaxLeadsPerDay
	}
	if s.ProxyURL == "" {
		s.UseProxy = false
	}
	return s
}

func (s ScrapingSettings) DelayRange() (time.Duration, time.Duration) {
	return secondsToDuration(s.MinDelay), secondsToDuration(s.MaxDelay)
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

type Credentials struct {
	ID         int64
	Identifier string
	Secret     string
	Active     bool
	CreatedAt  time.Time
	LastUsed   *time.Time
}
