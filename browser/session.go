// Package browser owns the shared Chrome session: one visible browser the
// whole service drives, launched lazily on the first page request and kept
// alive by a sentinel tab so a CAPTCHA solved by hand in one window carries
// its cookies to every later acquisition.
package browser

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/idealistaplus/backend/acquire"
	"github.com/idealistaplus/backend/config"
	"github.com/idealistaplus/backend/models"
)

// Manager is the process-wide browser session. Safe for concurrent use; the
// underlying browser is launched at most once until it dies, in which case
// the next page request relaunches it.
type Manager struct {
	mu          sync.Mutex
	browser     *rod.Browser
	sentinel    *rod.Page
	cfg         config.BrowserConfig
	activePages atomic.Int32
}

// NewManager prepares a manager without launching anything. The browser comes
// up on the first NewPage call.
func NewManager(cfg config.BrowserConfig) *Manager {
	return &Manager{cfg: cfg}
}

// NewPage creates a fresh page context on the shared session, with stealth
// masking, a plausible referer, and resource blocking installed before any
// navigation happens on it.
func (m *Manager) NewPage(ctx context.Context) (acquire.Page, error) {
	browser, err := m.ensure()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to open a page on the browser session",
			err,
		)
	}

	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		slog.Warn("stealth injection failed, proceeding without it", "error", evalErr)
	}
	setReferer(page)

	router := setupHijack(page, m.cfg.BlockedResourceTypes)

	m.activePages.Add(1)
	return &pageContext{
		page:   page,
		router: router,
		onClose: func() {
			m.activePages.Add(-1)
		},
	}, nil
}

// ensure launches and connects the browser if it is not up, or relaunches it
// if the previous process died underneath us.
func (m *Manager) ensure() (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if m.alive() {
			return m.browser, nil
		}
		slog.Warn("browser session died, relaunching")
		m.browser = nil
		m.sentinel = nil
	}

	l := launcher.New().
		Headless(m.cfg.Headless).
		NoSandbox(m.cfg.NoSandbox)

	if m.cfg.BrowserBin != "" {
		l = l.Bin(m.cfg.BrowserBin)
	}
	if m.cfg.DefaultProxy != "" {
		l = l.Proxy(m.cfg.DefaultProxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("window-size"), "1366,768")
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL, "headless", m.cfg.Headless)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	// The sentinel tab keeps the browser from exiting when every acquisition
	// page has been closed.
	sentinel, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		slog.Warn("failed to open sentinel tab", "error", err)
	}

	m.browser = browser
	m.sentinel = sentinel
	return browser, nil
}

// alive probes the browser connection. Must be called with mu held.
func (m *Manager) alive() bool {
	_, err := m.browser.Pages()
	return err == nil
}

// Stats returns a snapshot of the session for the health endpoint.
func (m *Manager) Stats() models.SessionStats {
	m.mu.Lock()
	connected := m.browser != nil && m.alive()
	m.mu.Unlock()

	return models.SessionStats{
		Connected:   connected,
		ActivePages: int(m.activePages.Load()),
	}
}

// Close kills the browser process. Call on graceful shutdown to avoid zombie
// Chrome processes; a no-op when the browser was never launched.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser == nil {
		return
	}
	slog.Info("closing browser session")
	m.browser.MustClose()
	m.browser = nil
	m.sentinel = nil
}

// setReferer makes the first navigation look like a click-through from a
// search result instead of a cold direct hit.
func setReferer(page *rod.Page) {
	referer := "https://www.google.com/search?q=" + url.QueryEscape("idealista")
	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: proto.NetworkHeaders{
			"Referer": gson.New(referer),
		},
	}.Call(page)
}
