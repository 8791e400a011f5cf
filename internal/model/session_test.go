package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTransitions(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 30, 0, 0, time.Local)

	tests := []struct {
		name    string
		from    SessionStatus
		to      SessionStatus
		wantErr bool
	}{
		{"pending to running", StatusPending, StatusRunning, false},
		{"running to completed", StatusRunning, StatusCompleted, false},
		{"running to failed", StatusRunning, StatusFailed, false},
		{"pending to completed", StatusPending, StatusCompleted, true},
		{"pending to failed", StatusPending, StatusFailed, true},
		{"running to pending", StatusRunning, StatusPending, true},
		{"running to running", StatusRunning, StatusRunning, true},
		{"completed to failed", StatusCompleted, StatusFailed, true},
		{"failed to running", StatusFailed, StatusRunning, true},
		{"completed to completed", StatusCompleted, StatusCompleted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &ScrapeSession{Status: tt.from}
			err := s.Transition(tt.to, now)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tt.from, s.Status)
				assert.Nil(t, s.CompletedAt)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, s.Status)
			// completed_at is set exactly when the status is terminal
			assert.Equal(t, tt.to.Terminal(), s.CompletedAt != nil)
		})
	}
}

func TestSessionFailRecordsMessage(t *testing.T) {
	now := time.Now()
	s := NewSession("cto", SearchFilters{MaxResults: 10}, now)
	require.NoError(t, s.Transition(StatusRunning, now))

	require.NoError(t, s.Fail("daily limit reached", now))
	assert.Equal(t, StatusFailed, s.Status)
	assert.Equal(t, "daily limit reached", s.ErrorMessage)
	require.NotNil(t, s.CompletedAt)

	require.ErrorIs(t, s.Fail("again", now), ErrInvalidTransition)
	assert.Equal(t, "daily limit reached", s.ErrorMessage)
}

func TestRecordLeadOnlyWhileRunning(t *testing.T) {
	now := time.Now()
	s := NewSession("cto", SearchFilters{}, now)
	require.ErrorIs(t, s.RecordLead(), ErrInvalidTransition)

	require.NoError(t, s.Transition(StatusRunning, now))
	require.NoError(t, s.RecordLead())
	require.NoError(t, s.RecordLead())
	assert.Equal(t, 2, s.TotalLeads)

	require.NoError(t, s.Transition(StatusCompleted, now))
	require.ErrorIs(t, s.RecordLead(), ErrInvalidTransition)
	assert.Equal(t, 2, s.TotalLeads)
}

func TestSettingsNormalize(t *testing.T) {
	s := ScrapingSettings{}.Normalize()
	assert.Equal(t, 0.0, s.MinDelay)
	assert.Equal(t, DefaultMaxDelay, s.MaxDelay)
	assert.Equal(t, DefaultMaxRequestsPerHour, s.MaxRequestsPerHour)
	assert.Equal(t, DefaultMaxLeadsPerDay, s.MaxLeadsPerDay)

	swapped := ScrapingSettings{MinDelay: 6, MaxDelay: 3, MaxLeadsPerDay: 5, MaxRequestsPerHour: 9}.Normalize()
	assert.Equal(t, 3.0, swapped.MinDelay)
	assert.Equal(t, 6.0, swapped.MaxDelay)
	assert.Equal(t, 5, swapped.MaxLeadsPerDay)

	noProxy := ScrapingSettings{UseProxy: true}.Normalize()
	assert.False(t, noProxy.UseProxy)
}

func TestDefaultSettingsDelayRange(t *testing.T) {
	lo, hi := DefaultSettings().DelayRange()
	assert.Equal(t, 2*time.Second, lo)
	assert.Equal(t, 5*time.Second, hi)
	assert.True(t, DefaultSettings().Headless)
}
