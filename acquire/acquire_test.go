package acquire

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/idealistaplus/backend/config"
	"github.com/idealistaplus/backend/models"
	"github.com/idealistaplus/backend/target"
)

const challengePage = `<html><head><script src="https://ct.captcha-delivery.com/c.js"></script></head><body>DataDome</body></html>`

const listingPage = `<html><body>
  <span class="main-info__title-main">Piso en venta en Gran Vía</span>
  <span class="info-data-price">410.000 €</span>
</body></html>`

// fakeClock advances instantly on Sleep so the poll loop runs against
// simulated time.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	return nil
}

// contentResult scripts one page.Content call.
type contentResult struct {
	html string
	err  error
}

type fakePage struct {
	contents    []contentResult
	reads       int
	navigations []string
	navErr      error
	closed      int
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.navigations = append(p.navigations, url)
	return p.navErr
}

func (p *fakePage) Content() (string, error) {
	idx := p.reads
	if idx >= len(p.contents) {
		idx = len(p.contents) - 1 // last result repeats
	}
	p.reads++
	res := p.contents[idx]
	return res.html, res.err
}

func (p *fakePage) WaitVisible(selector string, timeout time.Duration) error { return nil }

func (p *fakePage) Close() error {
	p.closed++
	return nil
}

type fakeSession struct {
	pages   []*fakePage
	created int
}

func (s *fakeSession) NewPage(ctx context.Context) (Page, error) {
	if s.created >= len(s.pages) {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "no more scripted pages", nil)
	}
	page := s.pages[s.created]
	s.created++
	return page, nil
}

func testConfig() config.AcquireConfig {
	return config.AcquireConfig{
		NavigationTimeout:      45 * time.Second,
		ChallengeTimeout:       120 * time.Second,
		ChallengePollInterval:  2 * time.Second,
		ContentSelectorTimeout: 15 * time.Second,
		SettleDelay:            2 * time.Second,
		MaxConcurrent:          1,
	}
}

func newTestAcquirer(session Session) (*Acquirer, *fakeClock) {
	a := New(session, testConfig())
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	a.clock = clock
	return a, clock
}

func mustAddr(t *testing.T) target.Address {
	t.Helper()
	addr, err := target.Parse("https://www.idealista.com/inmueble/12345678/")
	if err != nil {
		t.Fatalf("parse target: %v", err)
	}
	return addr
}

func scrapeCode(t *testing.T, err error) string {
	t.Helper()
	var se *models.ScrapeError
	if !errors.As(err, &se) {
		t.Fatalf("error %v is not a ScrapeError", err)
	}
	return se.Code
}

func TestAcquire_CleanPath(t *testing.T) {
	page := &fakePage{contents: []contentResult{{html: listingPage}}}
	session := &fakeSession{pages: []*fakePage{page}}
	a, clock := newTestAcquirer(session)

	prop, err := a.Acquire(context.Background(), mustAddr(t))
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}

	if prop.Price == nil || *prop.Price != "410.000 €" {
		t.Errorf("price = %v, want 410.000 €", prop.Price)
	}
	if prop.URL != "https://www.idealista.com/inmueble/12345678/" {
		t.Errorf("url = %q", prop.URL)
	}
	if prop.ScrapedAt.IsZero() {
		t.Error("scrapedAt not stamped")
	}

	if session.created != 1 {
		t.Errorf("pages created = %d, want 1", session.created)
	}
	if got := len(page.navigations); got != 1 {
		t.Errorf("navigations = %d, want 1", got)
	}
	if page.closed != 1 {
		t.Errorf("page closed %d times, want 1", page.closed)
	}
	// Only the fixed settle delay; no challenge polling on the clean path.
	if len(clock.sleeps) != 1 || clock.sleeps[0] != 2*time.Second {
		t.Errorf("sleeps = %v, want one settle delay", clock.sleeps)
	}
}

func TestAcquire_ChallengeResolved(t *testing.T) {
	first := &fakePage{contents: []contentResult{
		{html: challengePage}, // initial read
		{html: challengePage}, // first poll
		{html: listingPage},   // marker cleared
	}}
	second := &fakePage{contents: []contentResult{{html: listingPage}}}
	session := &fakeSession{pages: []*fakePage{first, second}}
	a, _ := newTestAcquirer(session)

	prop, err := a.Acquire(context.Background(), mustAddr(t))
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if prop.Price == nil {
		t.Error("price missing after challenge recovery")
	}

	if session.created != 2 {
		t.Fatalf("pages created = %d, want a fresh context after resolution", session.created)
	}
	if first.closed != 1 {
		t.Errorf("challenged page closed %d times, want 1", first.closed)
	}
	if second.closed != 1 {
		t.Errorf("fresh page closed %d times, want 1", second.closed)
	}
	if got := len(second.navigations); got != 1 {
		t.Errorf("fresh page navigations = %d, want 1", got)
	}
}

func TestAcquire_ChallengeTimeout(t *testing.T) {
	page := &fakePage{contents: []contentResult{{html: challengePage}}}
	session := &fakeSession{pages: []*fakePage{page}}
	a, clock := newTestAcquirer(session)

	_, err := a.Acquire(context.Background(), mustAddr(t))
	if err == nil {
		t.Fatal("expected challenge timeout error")
	}
	if code := scrapeCode(t, err); code != models.ErrCodeChallengeTimeout {
		t.Errorf("code = %q, want %q", code, models.ErrCodeChallengeTimeout)
	}
	if page.closed != 1 {
		t.Errorf("page closed %d times, want 1", page.closed)
	}
	// 2s polls must cover the 120s budget before giving up.
	var polled time.Duration
	for _, d := range clock.sleeps {
		polled += d
	}
	if polled <= 120*time.Second {
		t.Errorf("polled for %s, want more than the 120s budget", polled)
	}
}

func TestAcquire_ChallengeRecurred(t *testing.T) {
	first := &fakePage{contents: []contentResult{
		{html: challengePage},
		{html: listingPage}, // resolves on first poll
	}}
	second := &fakePage{contents: []contentResult{{html: challengePage}}}
	session := &fakeSession{pages: []*fakePage{first, second}}
	a, _ := newTestAcquirer(session)

	_, err := a.Acquire(context.Background(), mustAddr(t))
	if err == nil {
		t.Fatal("expected challenge recurrence error")
	}
	if code := scrapeCode(t, err); code != models.ErrCodeChallengeRecurred {
		t.Errorf("code = %q, want %q", code, models.ErrCodeChallengeRecurred)
	}
	if first.closed != 1 || second.closed != 1 {
		t.Errorf("closed = %d/%d, want both pages closed once", first.closed, second.closed)
	}
}

func TestAcquire_RefreshFailureAfterResolution(t *testing.T) {
	first := &fakePage{contents: []contentResult{
		{html: challengePage},
		{html: listingPage}, // resolves on first poll
	}}
	// Only one scripted page: the post-resolution refresh fails.
	session := &fakeSession{pages: []*fakePage{first}}
	a, _ := newTestAcquirer(session)

	_, err := a.Acquire(context.Background(), mustAddr(t))
	if err == nil {
		t.Fatal("expected error when the fresh page context cannot be created")
	}
	if code := scrapeCode(t, err); code != models.ErrCodeBrowserCrash {
		t.Errorf("code = %q, want %q", code, models.ErrCodeBrowserCrash)
	}
	if first.closed != 1 {
		t.Errorf("challenged page closed %d times, want 1", first.closed)
	}
}

func TestAcquire_ContextDestroyedTreatedAsResolved(t *testing.T) {
	first := &fakePage{contents: []contentResult{
		{html: challengePage},
		{err: errors.New("execution context was destroyed")},
	}}
	second := &fakePage{contents: []contentResult{{html: listingPage}}}
	session := &fakeSession{pages: []*fakePage{first, second}}
	a, _ := newTestAcquirer(session)

	prop, err := a.Acquire(context.Background(), mustAddr(t))
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if prop.Price == nil {
		t.Error("price missing; read failure during polling should count as resolution")
	}
	if session.created != 2 {
		t.Errorf("pages created = %d, want 2", session.created)
	}
}

func TestAcquire_NavigationTimeout(t *testing.T) {
	page := &fakePage{
		contents: []contentResult{{html: listingPage}},
		navErr:   context.DeadlineExceeded,
	}
	session := &fakeSession{pages: []*fakePage{page}}
	a, _ := newTestAcquirer(session)

	_, err := a.Acquire(context.Background(), mustAddr(t))
	if err == nil {
		t.Fatal("expected navigation timeout error")
	}
	if code := scrapeCode(t, err); code != models.ErrCodeNavTimeout {
		t.Errorf("code = %q, want %q", code, models.ErrCodeNavTimeout)
	}
	if page.closed != 1 {
		t.Errorf("page closed %d times, want 1", page.closed)
	}
}

func TestNextChallengeState(t *testing.T) {
	budget := 120 * time.Second
	tests := []struct {
		name    string
		elapsed time.Duration
		marker  bool
		readErr error
		want    ChallengeState
	}{
		{"marker still up", 10 * time.Second, true, nil, ChallengePending},
		{"marker cleared", 10 * time.Second, false, nil, ChallengeResolved},
		{"read error counts as resolved", 10 * time.Second, false, errors.New("context destroyed"), ChallengeResolved},
		{"budget exceeded", 121 * time.Second, true, nil, ChallengeTimedOut},
		{"budget wins over cleared marker", 121 * time.Second, false, nil, ChallengeTimedOut},
		{"budget wins over read error", 121 * time.Second, false, errors.New("gone"), ChallengeTimedOut},
		{"exactly at budget keeps pending", 120 * time.Second, true, nil, ChallengePending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextChallengeState(tt.elapsed, budget, tt.marker, tt.readErr)
			if got != tt.want {
				t.Errorf("NextChallengeState = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChallengePresent(t *testing.T) {
	if !ChallengePresent(challengePage) {
		t.Error("challenge page not detected")
	}
	if !ChallengePresent(`<html><body><iframe src="https://geo.captcha-delivery.com/x"></iframe></body></html>`) {
		t.Error("delivery host not detected")
	}
	if ChallengePresent(listingPage) {
		t.Error("false positive on a clean listing")
	}
}
