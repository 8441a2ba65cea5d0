package exact

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Rate limiter defaults, matching the upstream's documented per-app ceiling.
const (
	DefaultWindowLimit = 60
	DefaultWindow      = time.Minute
)

// Limiter paces outbound calls. Two constraints apply: a local sliding window
// of recent request timestamps, and the most recent quota the upstream
// reported in its response headers. Wait blocks for whichever is tighter.
//
// State is process-local. The upstream enforces the true ceiling; the local
// view only reduces how often we run into it.
type Limiter struct {
	mu sync.Mutex

	limit  int
	window time.Duration
	stamps []time.Time

	// Last-seen upstream quota. Zero values mean "not yet observed".
	minutelyRemaining int
	minutelyReset     time.Time
	dailyRemaining    int
	dailyReset        time.Time
	observed          bool

	now func() time.Time
}

func NewLimiter(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultWindowLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Wait blocks until a request may be sent, or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		delay := l.reserve()
		if delay <= 0 {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve records the request if allowed now, otherwise returns how long to
// wait before asking again.
func (l *Limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	var delay time.Duration

	if len(l.stamps) >= l.limit {
		delay = l.stamps[0].Add(l.window).Sub(now)
	}

	if l.observed {
		if l.minutelyRemaining <= 0 && l.minutelyReset.After(now) {
			if d := l.minutelyReset.Sub(now); d > delay {
				delay = d
			}
		}
		if l.dailyRemaining <= 0 && l.dailyReset.After(now) {
			if d := l.dailyReset.Sub(now); d > delay {
				delay = d
			}
		}
	}

	if delay > 0 {
		return delay
	}

	l.stamps = append(l.stamps, now)
	if l.observed {
		if l.minutelyRemaining > 0 {
			l.minutelyRemaining--
		}
		if l.dailyRemaining > 0 {
			l.dailyRemaining--
		}
	}
	return 0
}

func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = l.stamps[i:]
	}
}

// Observe absorbs the quota headers from an upstream response. The provider
// reports minute- and day-scoped remaining/reset values; reset timestamps are
// epoch milliseconds.
func (l *Limiter) Observe(h http.Header) {
	minRemaining, minOK := headerInt(h, "X-RateLimit-Minutely-Remaining")
	minReset := headerEpochMillis(h, "X-RateLimit-Minutely-Reset")
	dayRemaining, dayOK := headerInt(h, "X-RateLimit-Remaining")
	dayReset := headerEpochMillis(h, "X-RateLimit-Reset")

	if !minOK && !dayOK {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.observed = true
	if minOK {
		l.minutelyRemaining = minRemaining
		if !minReset.IsZero() {
			l.minutelyReset = minReset
		}
	}
	if dayOK {
		l.dailyRemaining = dayRemaining
		if !dayReset.IsZero() {
			l.dailyReset = dayReset
		}
	}
}

// RetryAfter returns the server-advised delay from a throttling response, or
// zero if absent/unparseable.
func RetryAfter(h http.Header) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func headerInt(h http.Header, key string) (int, bool) {
	raw := h.Get(key)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func headerEpochMillis(h http.Header, key string) time.Time {
	raw := h.Get(key)
	if raw == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
