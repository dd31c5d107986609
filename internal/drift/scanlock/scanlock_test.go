package scanlock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "crosswalk/pkg/domain"
)

func TestKeyIsStablePerTuple(t *testing.T) {
	frameworkID := id.NewFrameworkID()
	oldV, newV := id.NewVersionID(), id.NewVersionID()

	key := Key(frameworkID, oldV, newV)
	assert.Equal(t, key, Key(frameworkID, oldV, newV))
	assert.NotEqual(t, key, Key(frameworkID, newV, oldV), "direction matters")
}

func TestInMemoryLockExcludesSecondHolder(t *testing.T) {
	ctx := context.Background()
	lock := NewInMemoryLock()

	ok, err := lock.TryAcquire(ctx, "tuple-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.TryAcquire(ctx, "tuple-a", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// A different tuple is independent.
	ok, err = lock.TryAcquire(ctx, "tuple-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, lock.Release(ctx, "tuple-a"))
	ok, err = lock.TryAcquire(ctx, "tuple-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInMemoryLockExpires(t *testing.T) {
	ctx := context.Background()
	lock := NewInMemoryLock()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	lock.clockFn = func() time.Time { return now }

	ok, err := lock.TryAcquire(ctx, "tuple-a", 5*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(4 * time.Minute)
	ok, err = lock.TryAcquire(ctx, "tuple-a", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "still within the TTL")

	// A crashed holder's lock falls off once the TTL passes.
	now = now.Add(2 * time.Minute)
	ok, err = lock.TryAcquire(ctx, "tuple-a", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
