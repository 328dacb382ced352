package collect

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// ActivityLogger records user-visible actions such as opening the admin
// screen or starting a download.
type ActivityLogger struct {
	logger  *slog.Logger
	actions *prometheus.CounterVec
	enabled func(ctx context.Context) bool
}

// NewActivityLogger registers its counter on reg. enabled is consulted on
// every call so the setting can change at runtime; nil means always on.
func NewActivityLogger(logger *slog.Logger, deviceID string, reg prometheus.Registerer, enabled func(ctx context.Context) bool) *ActivityLogger {
	actions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collect_activity_actions_total",
		Help: "User-visible actions by context and action",
	}, []string{"context", "action"})
	reg.MustRegister(actions)

	if enabled == nil {
		enabled = func(context.Context) bool { return true }
	}
	return &ActivityLogger{
		logger:  logger.With("component", "activity", "device_id", deviceID),
		actions: actions,
		enabled: enabled,
	}
}

func (a *ActivityLogger) LogAction(ctx context.Context, scope, action, param string) {
	a.actions.WithLabelValues(scope, action).Inc()
	if !a.enabled(ctx) {
		return
	}
	a.logger.InfoContext(ctx, "Activity", "context", scope, "action", action, "param", param)
}
