package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var leaseEpoch = time.UnixMilli(1700000000000)

func TestAcquireLease_FirstHolderWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ok, err := s.AcquireLease(ctx, "drain", "tab-a", leaseEpoch, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLease(ctx, "drain", "tab-b", leaseEpoch.Add(time.Second), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "live lease must exclude other holders")
}

func TestAcquireLease_RenewsOwnLease(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ok, err := s.AcquireLease(ctx, "drain", "tab-a", leaseEpoch, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.AcquireLease(ctx, "drain", "tab-a", leaseEpoch.Add(50*time.Second), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// Renewal moved expiry to epoch+110s
	ok, err = s.AcquireLease(ctx, "drain", "tab-b", leaseEpoch.Add(90*time.Second), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAcquireLease_ExpiryFollowsCallerClock(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ok, err := s.AcquireLease(ctx, "drain", "tab-a", leaseEpoch, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.AcquireLease(ctx, "drain", "tab-b", leaseEpoch.Add(time.Minute-time.Millisecond), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "one millisecond before expiry")

	ok, err = s.AcquireLease(ctx, "drain", "tab-b", leaseEpoch.Add(time.Minute), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease is taken over")
}

func TestReleaseLease(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ok, err := s.AcquireLease(ctx, "drain", "tab-a", leaseEpoch, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Releasing someone else's lease does nothing
	require.NoError(t, s.ReleaseLease(ctx, "drain", "tab-b"))
	ok, err = s.AcquireLease(ctx, "drain", "tab-b", leaseEpoch, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ReleaseLease(ctx, "drain", "tab-a"))
	ok, err = s.AcquireLease(ctx, "drain", "tab-b", leaseEpoch, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
