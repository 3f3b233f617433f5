// Package session provides the per-task browsing capability: a live chromedp
// session when a browser can be launched, a degraded one otherwise.
package session

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/korostylevkirill70-stack/tgstat-parser/internal/scrape"
)

// stealthScript hides the webdriver flag that anti-bot checks probe for.
const stealthScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// WaitRange is a uniform random delay window.
type WaitRange struct {
	Min time.Duration
	Max time.Duration
}

// Duration draws one delay from the range.
func (r WaitRange) Duration() time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rand.Int63n(int64(r.Max-r.Min)))
}

// Config controls live session behavior.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// FirstLoadWait is the anti-bot settle window for the first navigation of
	// a listing type; PageLoadWait applies to subsequent pages.
	FirstLoadWait WaitRange
	PageLoadWait  WaitRange
	// Screenshots, when set, receives best-effort page screenshots.
	Screenshots scrape.BlobStore
}

// Live is a chromedp-backed session owning one headless browser.
type Live struct {
	cfg         Config
	browserCtx  context.Context
	cancelChain []context.CancelFunc
	logger      *zap.Logger
}

var _ scrape.Session = (*Live)(nil)

// Live reports that real navigation is possible.
func (s *Live) Live() bool { return true }

// Fetch navigates to the requested URL, waits out anti-bot interstitials with
// a randomized delay, and returns the fully rendered document.
func (s *Live) Fetch(ctx context.Context, req scrape.FetchRequest) (*goquery.Document, error) {
	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, s.navTimeout())
	defer cancelTimeout()

	stopForward := forwardCancel(ctx, cancelTimeout)
	defer stopForward()

	wait := s.cfg.PageLoadWait
	if req.FirstOfListing {
		wait = s.cfg.FirstLoadWait
	}

	var html string
	var shot []byte
	actions := []chromedp.Action{
		s.setupAction(),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(wait.Duration()),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if req.ScreenshotPath != "" && s.cfg.Screenshots != nil {
		actions = append(actions, chromedp.CaptureScreenshot(&shot))
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}

	s.persistScreenshot(ctx, req.ScreenshotPath, shot)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse rendered document: %w", err)
	}
	return doc, nil
}

func (s *Live) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx); err != nil {
			return fmt.Errorf("install stealth script: %w", err)
		}
		return nil
	})
}

func (s *Live) persistScreenshot(ctx context.Context, path string, shot []byte) {
	if path == "" || len(shot) == 0 || s.cfg.Screenshots == nil {
		return
	}
	uri, err := s.cfg.Screenshots.PutObject(ctx, path, "image/png", bytes.NewReader(shot))
	if err != nil {
		s.logger.Warn("screenshot persist failed", zap.String("path", path), zap.Error(err))
		return
	}
	s.logger.Debug("screenshot persisted", zap.String("uri", uri))
}

// Close tears down the browser and allocator contexts.
func (s *Live) Close(_ context.Context) error {
	for i := len(s.cancelChain) - 1; i >= 0; i-- {
		s.cancelChain[i]()
	}
	return nil
}

func (s *Live) navTimeout() time.Duration {
	if s.cfg.NavigationTimeout > 0 {
		return s.cfg.NavigationTimeout
	}
	return 60 * time.Second
}

// forwardCancel propagates cancellation of the caller context into the
// chromedp task context.
func forwardCancel(ctx context.Context, cancel context.CancelFunc) func() {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()
	return func() { close(stop) }
}

// Launcher builds sessions with chromedp, degrading when no browser can be
// launched in the current environment.
type Launcher struct {
	cfg    Config
	logger *zap.Logger
}

var _ scrape.SessionLauncher = (*Launcher)(nil)

// NewLauncher constructs a chromedp session launcher.
func NewLauncher(cfg Config, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{cfg: cfg, logger: logger}
}

// Launch attempts to start a headless browser once. Launch failure is not an
// error: the task proceeds with a degraded session and synthetic data.
func (l *Launcher) Launch(_ context.Context) (scrape.Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		l.logger.Warn("browser launch failed, entering degraded mode", zap.Error(err))
		return NewDegraded(), nil
	}
	l.logger.Info("browser session established")
	return &Live{
		cfg:         l.cfg,
		browserCtx:  browserCtx,
		cancelChain: []context.CancelFunc{cancelAlloc, cancelBrowser},
		logger:      l.logger,
	}, nil
}
