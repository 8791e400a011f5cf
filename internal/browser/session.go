package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IliaW/lead-scrape-worker/config"
	"github.com/IliaW/lead-scrape-worker/internal/model"
	"github.com/IliaW/lead-scrape-worker/internal/quota"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const (
	formTimeout     = 10 * time.Second
	navigateTimeout = 30 * time.Second
	pollInterval    = 250 * time.Millisecond

	hideWebdriver = "Object.defineProperty(navigator, 'webdriver', {get: () => undefined})"
	loggedInProbe = `!!document.querySelector('.global-nav, .feed-container') ||
		window.location.href.includes('linkedin.com/feed')`
	scrollToBottom = "window.scrollTo(0, document.body.scrollHeight);"
)

var binaryNames = []string{"chromium", "google-chrome", "google-chrome-stable", "chromium-browser"}

// Session is one automated browser. It is owned by a single scrape session and must be closed by it.
type Session interface {
	Start(ctx context.Context) error
	Authenticate(ctx context.Context, identifier, secret string) error
	Search(ctx context.Context, query string, filters model.SearchFilters) (string, error)
	Close()
}

// Launcher creates unstarted sessions. Creating one allocates nothing.
type Launcher interface {
	NewSession(opts Options) Session
}

type Budget interface {
	Take() error
}

type Options struct {
	Headless bool
	ProxyURL string
	MinDelay time.Duration
	MaxDelay time.Duration
	Budget   Budget
}

type ChromeLauncher struct {
	cfg *config.BrowserConfig
	log *slog.Logger
}

func NewChromeLauncher(cfg *config.BrowserConfig, log *slog.Logger) *ChromeLauncher {
	return &ChromeLauncher{cfg: cfg, log: log}
}

func (l *ChromeLauncher) NewSession(opts Options) Session {
	return newChromeSession(l.cfg, opts, l.log)
}

type ChromeSession struct {
	cfg  *config.BrowserConfig
	opts Options
	log  *slog.Logger
	pace *pacer

	lookPath func(string) (string, error)
	stat     func(string) (os.FileInfo, error)

	mu          sync.Mutex
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	closed      atomic.Bool
}

func newChromeSession(cfg *config.BrowserConfig, opts Options, log *slog.Logger) *ChromeSession {
	return &ChromeSession{
		cfg:      cfg,
		opts:     opts,
		log:      log,
		pace:     newPacer(cfg.MinKeystroke, cfg.MaxKeystroke, opts.MinDelay, opts.MaxDelay),
		lookPath: exec.LookPath,
		stat:     os.Stat,
	}
}

// Start launches the browser process and attaches the driver to it.
func (s *ChromeSession) Start(ctx context.Context) error {
	if s.closed.Load() {
		return &LaunchError{Err: errClosed}
	}
	binary, err := s.resolveBinary()
	if err != nil {
		return &LaunchError{Err: err}
	}
	s.log.Info("found browser binary.", slog.String("path", binary))

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(binary),
		chromedp.Flag("headless", s.opts.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.UserAgent(s.cfg.UserAgent),
	)
	if s.opts.ProxyURL != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(s.opts.ProxyURL))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	s.mu.Lock()
	s.tabCtx, s.tabCancel, s.allocCancel = tabCtx, tabCancel, allocCancel
	s.mu.Unlock()

	err = chromedp.Run(tabCtx,
		enableLifeCycleEvents(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriver).Do(ctx)
			return err
		}))
	if err != nil {
		s.release()
		return &LaunchError{Err: err}
	}
	s.log.Info("browser driver initialized.", slog.Bool("headless", s.opts.Headless),
		slog.Bool("proxy", s.opts.ProxyURL != ""))

	return nil
}

// Authenticate signs in through the login form, typing like a person, and waits for a logged-in signal.
func (s *ChromeSession) Authenticate(ctx context.Context, identifier, secret string) (err error) {
	defer func() {
		if err != nil {
			s.release()
		}
	}()
	tab, done, err := s.tab(ctx)
	if err != nil {
		return &AuthError{Reason: AuthNavigation, Err: err}
	}
	defer done()

	s.log.Info("attempting to login.")
	if err = s.navigate(tab, s.cfg.LoginURL); err != nil {
		if errors.Is(err, quota.ErrHourlyLimitReached) {
			return &AuthError{Reason: AuthThrottled, Err: err}
		}
		return &AuthError{Reason: AuthNavigation, Err: err}
	}

	formCtx, cancel := context.WithTimeout(tab, formTimeout)
	err = chromedp.Run(formCtx, chromedp.WaitVisible(`#username`, chromedp.ByQuery))
	cancel()
	if err != nil {
		return &AuthError{Reason: AuthNavigation, Err: fmt.Errorf("login form not found: %w", err)}
	}

	if err = s.typeHuman(tab, `#username`, identifier); err != nil {
		return &AuthError{Reason: AuthNavigation, Err: err}
	}
	if err = s.pace.Pause(tab); err != nil {
		return &AuthError{Reason: AuthNavigation, Err: err}
	}
	if err = s.typeHuman(tab, `#password`, secret); err != nil {
		return &AuthError{Reason: AuthNavigation, Err: err}
	}
	if err = s.pace.Pause(tab); err != nil {
		return &AuthError{Reason: AuthNavigation, Err: err}
	}
	if err = chromedp.Run(tab, chromedp.Click(`button[type="submit"]`, chromedp.ByQuery)); err != nil {
		return &AuthError{Reason: AuthNavigation, Err: fmt.Errorf("submit login form: %w", err)}
	}
	if err = sleepCtx(tab, s.cfg.PostSubmitWait); err != nil {
		return &AuthError{Reason: AuthTimeout, Err: err}
	}

	if err = s.waitLoggedIn(tab, s.cfg.LoginTimeout); err != nil {
		s.log.Error("login failed - timeout waiting for main page.")
		return &AuthError{Reason: AuthTimeout}
	}
	s.log.Info("successfully logged in.")

	return nil
}

// Search opens the people search for the query, scrolls to load more results and returns the rendered markup.
func (s *ChromeSession) Search(ctx context.Context, query string, filters model.SearchFilters) (markup string,
	err error) {
	defer func() {
		if err != nil {
			s.release()
		}
	}()
	tab, done, err := s.tab(ctx)
	if err != nil {
		return "", &SearchError{Err: err}
	}
	defer done()

	searchURL, err := BuildSearchURL(s.cfg.SearchURL, query, filters)
	if err != nil {
		return "", &SearchError{Err: fmt.Errorf("build search url: %w", err)}
	}
	s.log.Info("searching.", slog.String("url", searchURL))
	if err = s.navigate(tab, searchURL); err != nil {
		return "", &SearchError{Err: err}
	}
	if err = s.pace.Pause(tab); err != nil {
		return "", &SearchError{Err: err}
	}

	scrolls := ScrollCount(filters.MaxResults, s.cfg.ScrollCap)
	for i := 0; i < scrolls; i++ {
		if err = chromedp.Run(tab, chromedp.Evaluate(scrollToBottom, nil)); err != nil {
			return "", &SearchError{Err: fmt.Errorf("scroll %d: %w", i+1, err)}
		}
		if err = s.pace.Pause(tab); err != nil {
			return "", &SearchError{Err: err}
		}
	}

	if err = chromedp.Run(tab, chromedp.OuterHTML("html", &markup, chromedp.ByQuery)); err != nil {
		return "", &SearchError{Err: fmt.Errorf("read rendered page: %w", err)}
	}
	s.log.Debug("search page rendered.", slog.Int("scrolls", scrolls), slog.Int("bytes", len(markup)))

	return markup, nil
}

// Close releases the browser process. Only the first call does anything; it is safe to race with the owner.
func (s *ChromeSession) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.release()
}

func (s *ChromeSession) release() {
	s.mu.Lock()
	tabCancel, allocCancel := s.tabCancel, s.allocCancel
	s.tabCtx, s.tabCancel, s.allocCancel = nil, nil, nil
	s.mu.Unlock()

	if tabCancel == nil && allocCancel == nil {
		return
	}
	if tabCancel != nil {
		tabCancel()
	}
	if allocCancel != nil {
		allocCancel()
	}
	s.log.Info("browser driver closed.")
}

// tab returns a context bound to the browser tab that is also cancelled together with ctx.
func (s *ChromeSession) tab(ctx context.Context) (context.Context, func(), error) {
	s.mu.Lock()
	tabCtx := s.tabCtx
	s.mu.Unlock()
	if s.closed.Load() {
		return nil, nil, errClosed
	}
	if tabCtx == nil {
		return nil, nil, errNotStarted
	}
	callCtx, cancel := context.WithCancel(tabCtx)
	stop := context.AfterFunc(ctx, cancel)

	return callCtx, func() {
		stop()
		cancel()
	}, nil
}

func (s *ChromeSession) navigate(tab context.Context, url string) error {
	if s.opts.Budget != nil {
		if err := s.opts.Budget.Take(); err != nil {
			return err
		}
	}
	ctx, cancel := context.WithTimeout(tab, navigateTimeout)
	defer cancel()
	return chromedp.Run(ctx, navigateAndWaitFor(url, "load"))
}

func enableLifeCycleEvents() chromedp.ActionFunc {
	return func(ctx context.Context) error {
		if err := page.Enable().Do(ctx); err != nil {
			return err
		}
		return page.SetLifecycleEventsEnabled(true).Do(ctx)
	}
}

func navigateAndWaitFor(url string, eventName string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		// subscribe before navigating so a fast load is not missed
		loaded := waitFor(ctx, eventName)
		if _, _, _, err := page.Navigate(url).Do(ctx); err != nil {
			return err
		}
		select {
		case <-loaded:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func waitFor(ctx context.Context, eventName string) <-chan struct{} {
	ch := make(chan struct{})
	var once sync.Once
	cctx, cancel := context.WithCancel(ctx)
	chromedp.ListenTarget(cctx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == eventName {
			once.Do(func() {
				cancel()
				close(ch)
			})
		}
	})
	return ch
}

func (s *ChromeSession) typeHuman(tab context.Context, selector, text string) error {
	if err := chromedp.Run(tab, chromedp.Clear(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("clear %s: %w", selector, err)
	}
	for _, r := range text {
		if err := chromedp.Run(tab, chromedp.SendKeys(selector, string(r), chromedp.ByQuery)); err != nil {
			return fmt.Errorf("type into %s: %w", selector, err)
		}
		if err := s.pace.Keystroke(tab); err != nil {
			return err
		}
	}
	return nil
}

func (s *ChromeSession) waitLoggedIn(tab context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(tab, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		var loggedIn bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(loggedInProbe, &loggedIn)); err == nil && loggedIn {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *ChromeSession) resolveBinary() (string, error) {
	for _, name := range binaryNames {
		if p, err := s.lookPath(name); err == nil && p != "" {
			return p, nil
		}
	}
	for _, p := range s.cfg.BinaryPaths {
		info, err := s.stat(p)
		if err != nil || !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
			continue
		}
		return p, nil
	}
	return "", errNoBinary
}
