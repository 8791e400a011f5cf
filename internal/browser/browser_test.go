package browser

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/IliaW/lead-scrape-worker/config"
	"github.com/IliaW/lead-scrape-worker/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.BrowserConfig {
	return &config.BrowserConfig{
		LoginURL:     "https://www.linkedin.com/login",
		SearchURL:    "https://www.linkedin.com/search/results/people/",
		BinaryPaths:  []string{"/opt/chrome/chrome", "/usr/bin/chromium"},
		LoginTimeout: 8 * time.Second,
		ScrollCap:    5,
		MinKeystroke: 50 * time.Millisecond,
		MaxKeystroke: 150 * time.Millisecond,
	}
}

func newTestSession(cfg *config.BrowserConfig) *ChromeSession {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newChromeSession(cfg, Options{Headless: true, MinDelay: 2 * time.Second, MaxDelay: 5 * time.Second}, log)
}

func TestBuildSearchURL(t *testing.T) {
	got, err := BuildSearchURL("https://www.linkedin.com/search/results/people/", " cto fintech ",
		model.SearchFilters{Location: "Berlin", Company: "Acme & Co"})
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/search/results/people/", u.Path)
	assert.Contains(t, u.RawQuery, "keywords=cto%20fintech")
	assert.NotContains(t, u.RawQuery, "+")
	assert.Equal(t, "cto fintech", u.Query().Get("keywords"))
	assert.Equal(t, "Berlin", u.Query().Get("geoUrn"))
	assert.Equal(t, "Acme & Co", u.Query().Get("currentCompany"))
}

func TestBuildSearchURLOmitsEmptyFilters(t *testing.T) {
	got, err := BuildSearchURL("https://www.linkedin.com/search/results/people/", "a+b", model.SearchFilters{})
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "a+b", u.Query().Get("keywords"))
	assert.False(t, u.Query().Has("geoUrn"))
	assert.False(t, u.Query().Has("currentCompany"))
}

func TestScrollCount(t *testing.T) {
	tests := []struct {
		maxResults, limit, want int
	}{
		{0, 5, 0},
		{9, 5, 0},
		{10, 5, 1},
		{30, 5, 3},
		{50, 5, 5},
		{500, 5, 5},
		{50, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ScrollCount(tt.maxResults, tt.limit), "max=%d cap=%d", tt.maxResults, tt.limit)
	}
}

type fakeInfo struct {
	os.FileInfo
	mode fs.FileMode
}

func (f fakeInfo) Mode() fs.FileMode { return f.mode }

func TestResolveBinary(t *testing.T) {
	t.Run("path lookup wins", func(t *testing.T) {
		s := newTestSession(testConfig())
		s.lookPath = func(name string) (string, error) {
			if name == "google-chrome" {
				return "/usr/bin/google-chrome", nil
			}
			return "", errors.New("not found")
		}
		s.stat = func(string) (os.FileInfo, error) { t.Fatal("unexpected stat"); return nil, nil }

		got, err := s.resolveBinary()
		require.NoError(t, err)
		assert.Equal(t, "/usr/bin/google-chrome", got)
	})

	t.Run("falls back to executable known path", func(t *testing.T) {
		s := newTestSession(testConfig())
		s.lookPath = func(string) (string, error) { return "", errors.New("not found") }
		s.stat = func(p string) (os.FileInfo, error) {
			switch p {
			case "/opt/chrome/chrome":
				return fakeInfo{mode: 0o644}, nil
			case "/usr/bin/chromium":
				return fakeInfo{mode: 0o755}, nil
			}
			return nil, fs.ErrNotExist
		}

		got, err := s.resolveBinary()
		require.NoError(t, err)
		assert.Equal(t, "/usr/bin/chromium", got)
	})

	t.Run("nothing installed", func(t *testing.T) {
		s := newTestSession(testConfig())
		s.lookPath = func(string) (string, error) { return "", errors.New("not found") }
		s.stat = func(string) (os.FileInfo, error) { return nil, fs.ErrNotExist }

		_, err := s.resolveBinary()
		require.ErrorIs(t, err, errNoBinary)
	})
}

func TestStartWithoutBinary(t *testing.T) {
	s := newTestSession(testConfig())
	s.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	s.stat = func(string) (os.FileInfo, error) { return nil, fs.ErrNotExist }

	err := s.Start(context.Background())
	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	require.ErrorIs(t, err, errNoBinary)
	assert.Contains(t, err.Error(), "failed to initialize browser driver")
}

func TestUnstartedSession(t *testing.T) {
	s := newTestSession(testConfig())

	err := s.Authenticate(context.Background(), "me@example.com", "secret")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.ErrorIs(t, err, errNotStarted)

	_, err = s.Search(context.Background(), "cto", model.SearchFilters{MaxResults: 10})
	var searchErr *SearchError
	require.ErrorAs(t, err, &searchErr)
	require.ErrorIs(t, err, errNotStarted)
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newTestSession(testConfig())
	tabCancelled, allocCancelled := 0, 0
	s.tabCtx = context.Background()
	s.tabCancel = func() { tabCancelled++ }
	s.allocCancel = func() { allocCancelled++ }

	s.Close()
	s.Close()
	assert.Equal(t, 1, tabCancelled)
	assert.Equal(t, 1, allocCancelled)

	err := s.Start(context.Background())
	require.ErrorIs(t, err, errClosed)
	_, err = s.Search(context.Background(), "cto", model.SearchFilters{})
	require.ErrorIs(t, err, errClosed)
}

func TestPacerStaysInRange(t *testing.T) {
	p := newPacer(50*time.Millisecond, 150*time.Millisecond, 2*time.Second, 5*time.Second)
	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	for i := 0; i < 200; i++ {
		require.NoError(t, p.Keystroke(context.Background()))
		require.NoError(t, p.Pause(context.Background()))
	}
	for i, d := range slept {
		if i%2 == 0 {
			assert.True(t, d >= 50*time.Millisecond && d <= 150*time.Millisecond, "keystroke %v", d)
		} else {
			assert.True(t, d >= 2*time.Second && d <= 5*time.Second, "pause %v", d)
		}
	}

	assert.Equal(t, 3*time.Second, p.between(3*time.Second, 3*time.Second))
}

func TestSleepCtxHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
	require.NoError(t, sleepCtx(context.Background(), time.Millisecond))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "timeout waiting for logged-in page", (&AuthError{Reason: AuthTimeout}).Error())
	assert.Equal(t, "request budget exhausted: boom",
		(&AuthError{Reason: AuthThrottled, Err: errors.New("boom")}).Error())
	assert.Equal(t, "no results container", (&SearchError{Err: errors.New("no results container")}).Error())
}
