package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/trawlhq/trawl/config"
	"github.com/trawlhq/trawl/engine"
	"github.com/trawlhq/trawl/models"
	"github.com/ysmood/gson"
)

// Session owns the headless browser and its page pool. It is the single
// scoped browser resource of the process: acquired at engine start, shared
// by concurrent requests through the pool, and released on shutdown.
// It is safe for concurrent use — each request borrows its own page.
type Session struct {
	browser     *rod.Browser
	pagePool    rod.Pool[rod.Page]
	cfg         config.BrowserConfig
	proxy       string
	activePages atomic.Int32
}

// NewSession launches a headless browser and initialises the reusable page
// pool. A launch failure is the one hard error of engine construction; per
// request failures after this point always degrade to an ExtractionResult.
func NewSession(cfg config.BrowserConfig, proxy string) (*Session, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if proxy != "" {
		l = l.Proxy(proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	pool := rod.NewPagePool(cfg.MaxPages)
	slog.Info("page pool created", "maxPages", cfg.MaxPages)

	return &Session{
		browser:  browser,
		pagePool: pool,
		cfg:      cfg,
		proxy:    proxy,
	}, nil
}

// Stats returns a snapshot of the pool's current state.
func (s *Session) Stats() models.SessionStats {
	return models.SessionStats{
		MaxPages:    s.cfg.MaxPages,
		ActivePages: int(s.activePages.Load()),
	}
}

// Close drains the page pool and kills the browser process.
// Call this on graceful shutdown to prevent zombie Chrome processes.
func (s *Session) Close() {
	slog.Info("session shutting down: draining page pool")
	s.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	slog.Info("session shutting down: closing browser")
	s.browser.MustClose()
	slog.Info("session shutdown complete")
}

// Fetch renders the page in a pooled browser tab and returns its HTML.
// It satisfies engine.BrowserFetchFunc so the rod tiers can be built on top
// of one shared session.
//
// Ordering matters here: stealth injection and the resource-blocking router
// only apply to navigations installed before Navigate runs.
func (s *Session) Fetch(ctx context.Context, req *engine.Request) (*engine.Result, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// ── 1. Acquire page from pool ────────────────────────────────────
	s.activePages.Add(1)
	defer s.activePages.Add(-1)

	page, acquireErr := s.pagePool.Get(func() (*rod.Page, error) {
		return s.browser.Page(proto.TargetCreateTarget{})
	})
	if acquireErr != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to acquire page from pool",
			acquireErr,
		)
	}

	// ── 2. CRITICAL DEFER: prevent DOM memory leak + guarantee pool return.
	// about:blank uses the ORIGINAL page reference (no request context), so
	// cleanup succeeds even when the request context has expired.
	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
		}
		s.pagePool.Put(page)
	}()

	// ── 3. Stealth injection (before navigation) ─────────────────────
	if req.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr)
		}
	}

	// ── 4. Headers: custom + a search-engine Referer ─────────────────
	extraHeaders := make(map[string]string, len(req.Headers)+1)
	if _, hasReferer := req.Headers["Referer"]; !hasReferer {
		if u, parseErr := url.Parse(req.URL); parseErr == nil {
			extraHeaders["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
		}
	}
	for k, v := range req.Headers {
		extraHeaders[k] = v
	}
	if len(extraHeaders) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(extraHeaders),
		}.Call(page)
	}

	// ── 5. Block heavy resources (before navigation) ─────────────────
	router := setupHijack(page)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── 6. Bind request context and navigate ─────────────────────────
	p := page.Context(ctx)
	if navErr := p.Navigate(req.URL); navErr != nil {
		return nil, categorizeError(navErr, "navigation to marketplace failed")
	}

	// ── 7. Wait for the listing grid to settle ───────────────────────
	if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"error", stableErr)
	}

	// ── 8. Status code via the navigation performance entry ──────────
	// Avoids CDP Network listeners, which conflict with the hijack router.
	statusCode := 200
	if res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`); err == nil {
		if code := res.Value.Int(); code != 0 {
			statusCode = code
		}
	}

	// ── 9. Extract rendered HTML ─────────────────────────────────────
	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, categorizeError(htmlErr, "failed to extract page HTML")
	}

	finalURL := req.URL
	if res, err := p.Eval(`() => window.location.href`); err == nil {
		if loc := res.Value.Str(); loc != "" {
			finalURL = loc
		}
	}

	return &engine.Result{
		HTML:       rawHTML,
		StatusCode: statusCode,
		FinalURL:   finalURL,
	}, nil
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw errors into typed ScrapeErrors so the API layer
// can map them to appropriate HTTP status codes.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeBrowserCrash, msg, err)
	}
}
