package notify

import (
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Router fans one alert out to every configured channel and rate-limits the
// stream so a persistently unhealthy host does not flood operators. Delivery
// failures are logged, never propagated; alerting must not take the
// monitoring loop down.
type Router struct {
	channels []Notifier
	limiter  *rate.Limiter
}

// NewRouter builds a router that allows at most one alert per minInterval,
// with a burst of one. A zero or negative interval disables throttling.
func NewRouter(minInterval time.Duration, channels ...Notifier) *Router {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Router{
		channels: channels,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Alert delivers one alert to all channels, subject to throttling.
// Satisfies the diagnostic engine's alerter dependency.
func (r *Router) Alert(subject, body string) {
	if len(r.channels) == 0 {
		return
	}
	if !r.limiter.Allow() {
		log.Debugf("alert suppressed by throttle: %s", subject)
		return
	}
	for _, ch := range r.channels {
		if err := ch.Send(subject, body); err != nil {
			log.Errorf("alert delivery failed: %v", err)
		}
	}
}
