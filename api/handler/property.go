package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/idealistaplus/backend/cache"
	"github.com/idealistaplus/backend/models"
	"github.com/idealistaplus/backend/target"
)

// PropertyAcquirer is the slice of the acquisition engine the handler needs.
type PropertyAcquirer interface {
	Acquire(ctx context.Context, addr target.Address) (*models.Property, error)
}

// Property returns the handler for POST /api/property.
//
// Flow: validate the URL, serve from cache when fresh, otherwise run a full
// acquisition and cache the result.
func Property(ac PropertyAcquirer, cc *cache.Cache, cacheMaxAge time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req models.PropertyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, &models.ErrorDetail{
				Code:    models.ErrCodeInvalidInput,
				Message: "request body must be JSON with a \"url\" field",
			}, start)
			return
		}

		addr, err := target.Parse(req.URL)
		if err != nil {
			respondError(c, http.StatusBadRequest, &models.ErrorDetail{
				Code:    models.ErrCodeInvalidInput,
				Message: "invalid URL: must be an Idealista listing URL (e.g. https://www.idealista.com/inmueble/12345678/)",
			}, start)
			return
		}

		key := cache.Key(addr.String())
		if prop, hit := cc.Get(key, cacheMaxAge); hit {
			c.JSON(http.StatusOK, models.PropertyResponse{
				Success:     true,
				Data:        prop,
				CacheStatus: "hit",
				Timing: models.TimingInfo{
					TotalMs: time.Since(start).Milliseconds(),
				},
			})
			return
		}

		acquireStart := time.Now()
		prop, err := ac.Acquire(c.Request.Context(), addr)
		acquireMs := time.Since(acquireStart).Milliseconds()
		if err != nil {
			status, detail := classify(err)
			respondError(c, status, detail, start)
			return
		}

		cc.Set(key, prop)

		c.JSON(http.StatusOK, models.PropertyResponse{
			Success:     true,
			Data:        prop,
			CacheStatus: "miss",
			Timing: models.TimingInfo{
				TotalMs:   time.Since(start).Milliseconds(),
				AcquireMs: acquireMs,
			},
		})
	}
}

// classify maps a typed acquisition error to an HTTP status and its
// API-facing detail.
func classify(err error) (int, *models.ErrorDetail) {
	var se *models.ScrapeError
	if !errors.As(err, &se) {
		return http.StatusInternalServerError, &models.ErrorDetail{
			Code:    models.ErrCodeInternal,
			Message: "acquisition failed",
		}
	}

	switch se.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest, se.ToDetail()
	case models.ErrCodeChallengeTimeout, models.ErrCodeChallengeRecurred:
		// The session needs human attention; retry once someone solved the
		// CAPTCHA in the browser window.
		return http.StatusServiceUnavailable, se.ToDetail()
	case models.ErrCodeNavTimeout:
		return http.StatusGatewayTimeout, se.ToDetail()
	case models.ErrCodeNavigation, models.ErrCodeBrowserCrash:
		return http.StatusBadGateway, se.ToDetail()
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests, se.ToDetail()
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized, se.ToDetail()
	default:
		return http.StatusInternalServerError, se.ToDetail()
	}
}

func respondError(c *gin.Context, status int, detail *models.ErrorDetail, start time.Time) {
	c.JSON(status, models.PropertyResponse{
		Success: false,
		Error:   detail,
		Timing: models.TimingInfo{
			TotalMs: time.Since(start).Milliseconds(),
		},
	})
}
