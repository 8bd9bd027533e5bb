// Package acquire drives one listing page from navigation through challenge
// handling to a structured record.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/idealistaplus/backend/config"
	"github.com/idealistaplus/backend/extract"
	"github.com/idealistaplus/backend/models"
	"github.com/idealistaplus/backend/target"
)

// Page is one isolated navigation surface. A page context is created fresh
// for each navigation attempt and never reused across target addresses.
type Page interface {
	// Navigate loads the URL and waits for the page to settle. The ctx
	// deadline is the navigation budget.
	Navigate(ctx context.Context, url string) error

	// Content returns the current rendered document.
	Content() (string, error)

	// WaitVisible blocks until an element matching selector appears, or the
	// timeout expires.
	WaitVisible(selector string, timeout time.Duration) error

	// Close releases the page context. Must be safe to call after the page
	// navigated away or the browser dropped it.
	Close() error
}

// Session hands out page contexts on the shared browser session.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
}

// priceSelector is the soft readiness probe: a price-bearing element usually
// appears once the listing body has rendered. Its absence is logged, not
// fatal, since some layouts place the price elsewhere.
const priceSelector = `.info-data-price, .price-row, [class*="price"]`

// Acquirer runs the acquisition state machine. Safe for concurrent use;
// in-flight acquisitions are bounded by a weighted semaphore so a burst of
// requests cannot pile page contexts onto the one shared session.
type Acquirer struct {
	session  Session
	prefetch *prefetcher // nil unless the HTTP fast path is enabled
	cfg      config.AcquireConfig
	clock    Clock
	sem      *semaphore.Weighted
}

// New creates an Acquirer on the given session.
func New(session Session, cfg config.AcquireConfig) *Acquirer {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	return &Acquirer{
		session: session,
		cfg:     cfg,
		clock:   systemClock{},
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
	}
}

// EnableHTTPFastPath turns on the plain-HTTP pre-attempt that skips the
// browser when the page comes back challenge-free.
func (a *Acquirer) EnableHTTPFastPath(proxy string) {
	a.prefetch = newPrefetcher(proxy)
}

// Acquire loads the listing at addr and returns its extracted record.
//
// Errors are always typed: navigation timeout, challenge timeout, challenge
// recurrence, navigation failure, or browser crash. There are no automatic
// retries beyond the single built-in post-challenge re-navigation; anything
// else is the caller's decision.
func (a *Acquirer) Acquire(ctx context.Context, addr target.Address) (*models.Property, error) {
	start := a.clock.Now()

	prop, err := a.acquire(ctx, addr)
	elapsed := a.clock.Now().Sub(start)
	if err != nil {
		slog.Error("acquisition failed",
			"url", addr.String(),
			"elapsed", elapsed,
			"error", err,
		)
		return nil, err
	}

	slog.Info("acquisition completed",
		"url", addr.String(),
		"title", strOr(prop.Title, "no title"),
		"elapsed", elapsed,
	)
	return prop, nil
}

func (a *Acquirer) acquire(ctx context.Context, addr target.Address) (*models.Property, error) {
	url := addr.String()

	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInternal, "acquisition canceled while queued", err)
	}
	defer a.sem.Release(1)

	slog.Info("acquiring listing", "url", url)

	if a.prefetch != nil {
		if prop := a.tryFastPath(ctx, url); prop != nil {
			return a.stamp(prop, url), nil
		}
	}

	page, err := a.session.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	// Cleanup must run on every exit path; page is reassigned after a
	// challenge resolution, so close through the variable. The nil check
	// covers a failed refresh, where the old page is already closed.
	defer func() {
		if page != nil {
			_ = page.Close()
		}
	}()

	if err := a.navigate(ctx, page, url); err != nil {
		return nil, err
	}

	content, err := page.Content()
	if err != nil {
		return nil, readError(err)
	}

	if ChallengePresent(content) {
		slog.Warn("challenge detected, waiting for it to be solved in the browser window", "url", url)

		if err := a.awaitResolution(ctx, page); err != nil {
			return nil, err
		}

		// The old context may hold stale challenge DOM. A fresh one on the
		// same session carries the cookies set during resolution.
		slog.Info("challenge resolved, refreshing page context", "url", url)
		_ = page.Close()
		page, err = a.session.NewPage(ctx)
		if err != nil {
			return nil, err
		}

		if err := a.navigate(ctx, page, url); err != nil {
			return nil, err
		}
		content, err = page.Content()
		if err != nil {
			return nil, readError(err)
		}
		if ChallengePresent(content) {
			// One-shot recovery only; recurrence means the session needs a
			// fresh manual solve, not another automated loop.
			return nil, models.NewScrapeError(
				models.ErrCodeChallengeRecurred,
				"challenge appeared again after resolution; please try again so the session can be solved fresh",
				nil,
			)
		}
	}

	if err := page.WaitVisible(priceSelector, a.cfg.ContentSelectorTimeout); err != nil {
		slog.Warn("price selector not found, continuing extraction", "url", url, "error", err)
	}

	// Fixed settle for late-arriving dynamic content.
	if err := a.clock.Sleep(ctx, a.cfg.SettleDelay); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInternal, "acquisition canceled", err)
	}

	content, err = page.Content()
	if err != nil {
		return nil, readError(err)
	}
	doc, err := extract.FromHTML(content)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInternal, "failed to parse rendered document", err)
	}

	return a.stamp(extract.Property(doc), url), nil
}

// navigate loads url on page under the navigation budget and classifies
// failures.
func (a *Acquirer) navigate(ctx context.Context, page Page, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, a.cfg.NavigationTimeout)
	defer cancel()

	if err := page.Navigate(navCtx, url); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.NewScrapeError(
				models.ErrCodeNavTimeout,
				fmt.Sprintf("navigation did not settle within %s", a.cfg.NavigationTimeout),
				err,
			)
		}
		return models.NewScrapeError(models.ErrCodeNavigation, "navigation to listing failed", err)
	}
	return nil
}

// awaitResolution polls the document until the challenge marker clears, the
// page navigates away, or the budget elapses.
func (a *Acquirer) awaitResolution(ctx context.Context, page Page) error {
	waitStart := a.clock.Now()

	state := ChallengePending
	for state == ChallengePending {
		if err := a.clock.Sleep(ctx, a.cfg.ChallengePollInterval); err != nil {
			return models.NewScrapeError(models.ErrCodeInternal, "canceled while waiting for challenge resolution", err)
		}

		content, readErr := page.Content()
		state = NextChallengeState(
			a.clock.Now().Sub(waitStart),
			a.cfg.ChallengeTimeout,
			readErr == nil && ChallengePresent(content),
			readErr,
		)
	}

	if state == ChallengeTimedOut {
		return models.NewScrapeError(
			models.ErrCodeChallengeTimeout,
			fmt.Sprintf("challenge not solved: please complete the CAPTCHA in the browser window within %s and retry", a.cfg.ChallengeTimeout),
			nil,
		)
	}
	return nil
}

// tryFastPath attempts the listing over plain HTTP. Any miss (fetch error,
// challenge marker, no price in the body) falls back to the browser.
func (a *Acquirer) tryFastPath(ctx context.Context, url string) *models.Property {
	body, err := a.prefetch.fetch(ctx, url)
	if err != nil {
		slog.Debug("HTTP fast path failed, falling back to browser", "url", url, "error", err)
		return nil
	}

	content := string(body)
	if ChallengePresent(content) {
		slog.Debug("HTTP fast path hit the challenge, falling back to browser", "url", url)
		return nil
	}

	doc, err := extract.FromHTML(content)
	if err != nil {
		return nil
	}
	prop := extract.Property(doc)
	if prop.Price == nil {
		// Likely a script shell that needs rendering.
		return nil
	}

	slog.Info("listing served by HTTP fast path", "url", url)
	return prop
}

func (a *Acquirer) stamp(prop *models.Property, url string) *models.Property {
	prop.URL = url
	prop.ScrapedAt = a.clock.Now().UTC()
	return prop
}

func readError(err error) *models.ScrapeError {
	return models.NewScrapeError(models.ErrCodeNavigation, "failed to read rendered document", err)
}

func strOr(s *string, fallback string) string {
	if s != nil {
		return *s
	}
	return fallback
}
