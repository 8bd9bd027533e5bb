package browser

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
)

// pageContext wraps one rod page plus its hijack router so they are torn
// down together, exactly once, no matter how many times Close is called.
type pageContext struct {
	page      *rod.Page
	router    *rod.HijackRouter
	onClose   func()
	closeOnce sync.Once
}

// Navigate loads url and waits for the DOM to stop mutating. The ctx deadline
// bounds the whole operation.
//
// NOTE: WaitRequestIdle uses the Fetch domain which conflicts with
// HijackRequests on Chromium 145+, so DOM stability is the wait signal here.
func (p *pageContext) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)

	if err := page.Navigate(url); err != nil {
		return err
	}

	if err := page.WaitDOMStable(500*time.Millisecond, 0.1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
	}
	return nil
}

// Content returns the current rendered HTML. The short timeout keeps a hung
// renderer from stalling the challenge poll loop.
func (p *pageContext) Content() (string, error) {
	return p.page.Timeout(10 * time.Second).HTML()
}

// WaitVisible blocks until at least one element matches selector or the
// timeout expires.
func (p *pageContext) WaitVisible(selector string, timeout time.Duration) error {
	return p.page.Timeout(timeout).WaitElementsMoreThan(selector, 0)
}

// Close stops the hijack router and closes the tab. Idempotent.
func (p *pageContext) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.router != nil {
			_ = p.router.Stop()
		}
		err = p.page.Close()
		if p.onClose != nil {
			p.onClose()
		}
	})
	return err
}
