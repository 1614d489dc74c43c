package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	require.NoError(t, cb.Allow("cryptopay"))
	cb.RecordFailure("cryptopay")
	cb.RecordFailure("cryptopay")
	require.NoError(t, cb.Allow("cryptopay"))

	cb.RecordFailure("cryptopay")
	err := cb.Allow("cryptopay")
	require.Error(t, err)
	assert.IsType(t, ErrCircuitOpen{}, err)
}

func TestCircuitHalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	require.NoError(t, cb.Allow("cryptopay"))
	cb.RecordFailure("cryptopay")
	require.Error(t, cb.Allow("cryptopay"))

	time.Sleep(20 * time.Millisecond)

	// one probe allowed, a second concurrent probe refused
	require.NoError(t, cb.Allow("cryptopay"))
	cb.RecordSuccess("cryptopay")
	require.NoError(t, cb.Allow("cryptopay"))
}

func TestCircuitReopensOnProbeFailure(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	require.NoError(t, cb.Allow("cryptopay"))
	cb.RecordFailure("cryptopay")
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cb.Allow("cryptopay"))
	cb.RecordFailure("cryptopay")
	require.Error(t, cb.Allow("cryptopay"))
}

func TestCircuitKeysIndependent(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)

	require.NoError(t, cb.Allow("cryptopay"))
	cb.RecordFailure("cryptopay")
	require.Error(t, cb.Allow("cryptopay"))
	require.NoError(t, cb.Allow("sheets"))
}
