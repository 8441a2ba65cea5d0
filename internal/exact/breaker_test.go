package exact

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	now := time.Now()
	b := NewBreaker(5, time.Minute)
	b.now = func() time.Time { return now }

	const endpoint = "GET /v1/invoices"

	for i := 0; i < 4; i++ {
		require.NoError(t, b.Allow(endpoint))
		b.Record(endpoint, false)
	}

	// Four failures: still closed.
	require.NoError(t, b.Allow(endpoint))
	b.Record(endpoint, false)

	// Fifth consecutive failure opens the circuit.
	require.ErrorIs(t, b.Allow(endpoint), ErrCircuitOpen)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, time.Minute)
	const endpoint = "GET /v1/accounts"

	b.Record(endpoint, false)
	b.Record(endpoint, false)
	b.Record(endpoint, true)
	b.Record(endpoint, false)
	b.Record(endpoint, false)

	require.NoError(t, b.Allow(endpoint))
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Minute)
	b.now = func() time.Time { return now }

	const endpoint = "GET /v1/invoices"

	b.Record(endpoint, false)
	b.Record(endpoint, false)
	require.ErrorIs(t, b.Allow(endpoint), ErrCircuitOpen)

	// Open window elapses: exactly one probe is admitted.
	now = now.Add(61 * time.Second)
	require.NoError(t, b.Allow(endpoint))
	require.ErrorIs(t, b.Allow(endpoint), ErrCircuitOpen)

	t.Run("probe success closes the circuit", func(t *testing.T) {
		b.Record(endpoint, true)
		require.NoError(t, b.Allow(endpoint))
		require.NoError(t, b.Allow(endpoint))
	})
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Minute)
	b.now = func() time.Time { return now }

	const endpoint = "POST /v1/invoices"

	b.Record(endpoint, false)
	b.Record(endpoint, false)

	now = now.Add(61 * time.Second)
	require.NoError(t, b.Allow(endpoint))
	b.Record(endpoint, false)

	// Failed probe reopens for a full window.
	require.ErrorIs(t, b.Allow(endpoint), ErrCircuitOpen)
	now = now.Add(30 * time.Second)
	require.ErrorIs(t, b.Allow(endpoint), ErrCircuitOpen)
	now = now.Add(31 * time.Second)
	require.NoError(t, b.Allow(endpoint))
}

func TestBreakerReleaseReturnsProbeSlot(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	const endpoint = "GET /v1/invoices"

	b.Record(endpoint, false)
	require.ErrorIs(t, b.Allow(endpoint), ErrCircuitOpen)

	now = now.Add(61 * time.Second)
	require.NoError(t, b.Allow(endpoint))

	// The admitted probe is abandoned without an outcome. The endpoint must
	// not stay blocked forever: releasing the slot lets the next caller
	// attempt the probe.
	now = now.Add(24 * time.Hour)
	require.ErrorIs(t, b.Allow(endpoint), ErrCircuitOpen)

	b.Release(endpoint)
	require.NoError(t, b.Allow(endpoint))

	b.Record(endpoint, true)
	require.NoError(t, b.Allow(endpoint))
}

func TestBreakerEndpointsAreIndependent(t *testing.T) {
	b := NewBreaker(1, time.Minute)

	b.Record("GET /v1/invoices", false)
	require.ErrorIs(t, b.Allow("GET /v1/invoices"), ErrCircuitOpen)
	require.NoError(t, b.Allow("GET /v1/accounts"))
}
