package settings

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/hogliux/collect/internal/domain"
)

// ActionLogger receives user-visible actions.
type ActionLogger interface {
	LogAction(ctx context.Context, scope, action, param string)
}

// AdminGate guards the admin screen. An empty admin password leaves the
// screen open. Attempts are rate limited whether they succeed or not.
type AdminGate struct {
	admin    domain.PreferenceStore
	limiter  *rate.Limiter
	activity ActionLogger
}

// DefaultAttemptLimit allows a burst of 5 attempts, then one every 10s.
func DefaultAttemptLimit() *rate.Limiter {
	return rate.NewLimiter(rate.Every(10*time.Second), 5)
}

func NewAdminGate(admin domain.PreferenceStore, limiter *rate.Limiter, activity ActionLogger) *AdminGate {
	if limiter == nil {
		limiter = DefaultAttemptLimit()
	}
	return &AdminGate{admin: admin, limiter: limiter, activity: activity}
}

// PasswordRequired reports whether Unlock needs a password.
func (g *AdminGate) PasswordRequired(ctx context.Context) (bool, error) {
	pw, err := String(ctx, g.admin, Admin, KeyAdminPassword)
	if err != nil {
		return false, err
	}
	return pw != "", nil
}

// Unlock checks password against the stored admin password.
func (g *AdminGate) Unlock(ctx context.Context, password string) error {
	stored, err := String(ctx, g.admin, Admin, KeyAdminPassword)
	if err != nil {
		return err
	}
	if stored == "" {
		g.log(ctx, "openAdmin", "noPassword")
		return nil
	}

	if !g.limiter.Allow() {
		g.log(ctx, "adminPasswordDialog", "RATE_LIMITED")
		return domain.ErrTooManyAttempts
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(password)) != 1 {
		g.log(ctx, "adminPasswordDialog", "PASSWORD_INCORRECT")
		return fmt.Errorf("unlock admin: %w", domain.ErrAdminPassword)
	}
	g.log(ctx, "adminPasswordDialog", "PASSWORD_CORRECT")
	return nil
}

func (g *AdminGate) log(ctx context.Context, action, param string) {
	if g.activity != nil {
		g.activity.LogAction(ctx, "admin", action, param)
	}
}
