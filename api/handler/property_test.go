package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/idealistaplus/backend/cache"
	"github.com/idealistaplus/backend/models"
	"github.com/idealistaplus/backend/target"
)

type stubAcquirer struct {
	prop  *models.Property
	err   error
	calls int
}

func (s *stubAcquirer) Acquire(ctx context.Context, addr target.Address) (*models.Property, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	prop := *s.prop
	prop.URL = addr.String()
	return &prop, nil
}

func newPropertyRouter(ac PropertyAcquirer, maxAge time.Duration) (*gin.Engine, *cache.Cache) {
	gin.SetMode(gin.TestMode)
	cc := cache.New(10)
	r := gin.New()
	r.POST("/api/property", Property(ac, cc, maxAge))
	return r, cc
}

func doRequest(t *testing.T, r *gin.Engine, body string) (*httptest.ResponseRecorder, models.PropertyResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/property", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp models.PropertyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v\nbody: %s", err, w.Body.String())
	}
	return w, resp
}

func TestProperty_Success(t *testing.T) {
	price := "295.000 €"
	ac := &stubAcquirer{prop: &models.Property{Price: &price, ScrapedAt: time.Now()}}
	r, _ := newPropertyRouter(ac, time.Minute)

	w, resp := doRequest(t, r, `{"url":"https://www.idealista.com/inmueble/12345678/"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !resp.Success || resp.Data == nil {
		t.Fatalf("response = %+v, want success with data", resp)
	}
	if resp.CacheStatus != "miss" {
		t.Errorf("cache_status = %q, want miss", resp.CacheStatus)
	}
	if resp.Data.Price == nil || *resp.Data.Price != price {
		t.Errorf("price = %v, want %q", resp.Data.Price, price)
	}
}

func TestProperty_SecondRequestHitsCache(t *testing.T) {
	price := "295.000 €"
	ac := &stubAcquirer{prop: &models.Property{Price: &price}}
	r, _ := newPropertyRouter(ac, time.Minute)

	doRequest(t, r, `{"url":"https://www.idealista.com/inmueble/12345678/"}`)
	_, resp := doRequest(t, r, `{"url":"https://www.idealista.com/inmueble/12345678/"}`)

	if resp.CacheStatus != "hit" {
		t.Errorf("cache_status = %q, want hit", resp.CacheStatus)
	}
	if ac.calls != 1 {
		t.Errorf("acquirer called %d times, want 1", ac.calls)
	}
}

func TestProperty_InvalidBody(t *testing.T) {
	ac := &stubAcquirer{}
	r, _ := newPropertyRouter(ac, time.Minute)

	w, resp := doRequest(t, r, `not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeInvalidInput {
		t.Errorf("error = %+v, want %s", resp.Error, models.ErrCodeInvalidInput)
	}
	if ac.calls != 0 {
		t.Errorf("acquirer called %d times, want 0", ac.calls)
	}
}

func TestProperty_RejectsForeignURL(t *testing.T) {
	ac := &stubAcquirer{}
	r, _ := newPropertyRouter(ac, time.Minute)

	w, resp := doRequest(t, r, `{"url":"https://example.com/inmueble/123/"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeInvalidInput {
		t.Errorf("error = %+v, want %s", resp.Error, models.ErrCodeInvalidInput)
	}
}

func TestProperty_ChallengeErrorsMapTo503(t *testing.T) {
	for _, code := range []string{models.ErrCodeChallengeTimeout, models.ErrCodeChallengeRecurred} {
		t.Run(code, func(t *testing.T) {
			ac := &stubAcquirer{err: models.NewScrapeError(code, "challenge not solved", nil)}
			r, _ := newPropertyRouter(ac, time.Minute)

			w, resp := doRequest(t, r, `{"url":"https://www.idealista.com/inmueble/12345678/"}`)
			if w.Code != http.StatusServiceUnavailable {
				t.Fatalf("status = %d, want 503", w.Code)
			}
			if resp.Error == nil || resp.Error.Code != code {
				t.Errorf("error = %+v, want %s", resp.Error, code)
			}
		})
	}
}

func TestProperty_NavigationTimeoutMapsTo504(t *testing.T) {
	ac := &stubAcquirer{err: models.NewScrapeError(models.ErrCodeNavTimeout, "navigation did not settle", nil)}
	r, _ := newPropertyRouter(ac, time.Minute)

	w, _ := doRequest(t, r, `{"url":"https://www.idealista.com/inmueble/12345678/"}`)
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", w.Code)
	}
}

func TestProperty_UntypedErrorMapsTo500(t *testing.T) {
	ac := &stubAcquirer{err: context.DeadlineExceeded}
	r, _ := newPropertyRouter(ac, time.Minute)

	w, resp := doRequest(t, r, `{"url":"https://www.idealista.com/inmueble/12345678/"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeInternal {
		t.Errorf("error = %+v, want %s", resp.Error, models.ErrCodeInternal)
	}
}
