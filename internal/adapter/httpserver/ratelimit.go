package httpserver

import (
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	apperrors "github.com/hogliux/collect/internal/errors"
)

const (
	unlockAttemptsPerSecond = 1
	unlockAttemptBurst      = 5
	unlockVisitorExpiry     = 5 * time.Minute

	// Same text the admin gate reports for ErrTooManyAttempts, so clients
	// see one shape whichever limit they hit.
	tooManyAttemptsMessage = "too many password attempts"
)

// newUnlockLimiter throttles admin password attempts per client address
// before they reach the admin gate.
func newUnlockLimiter(perSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(perSecond),
			Burst:     burst,
			ExpiresIn: unlockVisitorExpiry,
		},
	)
	retryAfter := strconv.Itoa(int(math.Ceil(1 / perSecond)))

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return apperrors.ForbiddenError("client address unavailable")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			c.Response().Header().Set("Retry-After", retryAfter)
			return apperrors.RateLimitedError(tooManyAttemptsMessage).WithContext("client_ip", identifier)
		},
	})
}
