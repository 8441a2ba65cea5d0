package exact

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterSlidingWindow(t *testing.T) {
	now := time.Now()
	l := NewLimiter(3, time.Minute)
	l.now = func() time.Time { return now }

	require.Zero(t, l.reserve())
	require.Zero(t, l.reserve())
	require.Zero(t, l.reserve())

	// Window full: the fourth request must wait until the oldest stamp ages out.
	delay := l.reserve()
	require.Greater(t, delay, 50*time.Second)

	now = now.Add(time.Minute + time.Second)
	require.Zero(t, l.reserve())
}

func TestLimiterHonoursUpstreamQuota(t *testing.T) {
	now := time.Now()
	l := NewLimiter(100, time.Minute)
	l.now = func() time.Time { return now }

	reset := now.Add(30 * time.Second)
	h := http.Header{}
	h.Set("X-RateLimit-Minutely-Remaining", "0")
	h.Set("X-RateLimit-Minutely-Reset", strconv.FormatInt(reset.UnixMilli(), 10))
	l.Observe(h)

	// Local window has room, but the upstream says no.
	delay := l.reserve()
	require.Greater(t, delay, 25*time.Second)
	require.LessOrEqual(t, delay, 30*time.Second)

	now = reset.Add(time.Second)
	require.Zero(t, l.reserve())
}

func TestLimiterDailyQuota(t *testing.T) {
	now := time.Now()
	l := NewLimiter(100, time.Minute)
	l.now = func() time.Time { return now }

	reset := now.Add(2 * time.Hour)
	h := http.Header{}
	h.Set("X-RateLimit-Remaining", "0")
	h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.UnixMilli(), 10))
	l.Observe(h)

	delay := l.reserve()
	require.Greater(t, delay, time.Hour)
}

func TestLimiterDecrementsQuotaBetweenResponses(t *testing.T) {
	now := time.Now()
	l := NewLimiter(100, time.Minute)
	l.now = func() time.Time { return now }

	h := http.Header{}
	h.Set("X-RateLimit-Minutely-Remaining", "2")
	h.Set("X-RateLimit-Minutely-Reset", strconv.FormatInt(now.Add(45*time.Second).UnixMilli(), 10))
	h.Set("X-RateLimit-Remaining", "2")
	h.Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(3*time.Hour).UnixMilli(), 10))
	l.Observe(h)

	// Both scopes count down locally until the next response corrects them.
	require.Zero(t, l.reserve())
	require.Zero(t, l.reserve())
	require.Greater(t, l.reserve(), 40*time.Second)

	// Past the minute reset the exhausted daily budget still blocks.
	now = now.Add(time.Minute)
	require.Greater(t, l.reserve(), 2*time.Hour)
}

func TestLimiterWaitRespectsContext(t *testing.T) {
	l := NewLimiter(1, time.Hour)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryAfter(t *testing.T) {
	h := http.Header{}
	require.Zero(t, RetryAfter(h))

	h.Set("Retry-After", "7")
	require.Equal(t, 7*time.Second, RetryAfter(h))

	h.Set("Retry-After", "not-a-number")
	require.Zero(t, RetryAfter(h))
}

func TestLimiterIgnoresGarbageHeaders(t *testing.T) {
	l := NewLimiter(10, time.Minute)

	h := http.Header{}
	h.Set("X-RateLimit-Minutely-Remaining", "banana")
	l.Observe(h)

	require.Zero(t, l.reserve())
}
