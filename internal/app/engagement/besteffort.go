package engagement

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/vibe-dev/academy/internal/infra/metrics"
)

// BestEffort runs fn under the fail-open policy: errors and panics are
// logged and counted, and the zero value is returned instead. Non-critical
// paths (achievement checks, challenge listing, follow-up passes) go
// through here so "never raises" holds in one place.
func BestEffort[T any](log *zap.Logger, op string, fn func() (T, error)) (out T) {
	defer func() {
		if r := recover(); r != nil {
			metrics.BestEffortFailures.WithLabelValues(op).Inc()
			if log != nil {
				log.Error("best-effort operation panicked", zap.String("op", op), zap.String("panic", fmt.Sprint(r)))
			}
			var zero T
			out = zero
		}
	}()

	v, err := fn()
	if err != nil {
		metrics.BestEffortFailures.WithLabelValues(op).Inc()
		if log != nil {
			log.Warn("best-effort operation failed", zap.String("op", op), zap.Error(err))
		}
		var zero T
		return zero
	}
	return v
}
