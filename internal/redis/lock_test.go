package redisclient

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	err := l.WithLock(ctx, "k", func(ctx context.Context) error {
		inner := l.WithLock(ctx, "k", func(context.Context) error { return nil })
		assert.ErrorIs(t, inner, ErrLockNotAcquired)

		other := l.WithLock(ctx, "other", func(context.Context) error { return nil })
		assert.NoError(t, other)
		return nil
	})
	require.NoError(t, err)

	// released after fn returns
	assert.NoError(t, l.WithLock(ctx, "k", func(context.Context) error { return nil }))
}

func TestLockKeys(t *testing.T) {
	id := uuid.MustParse("9b2f0c1e-0000-4000-8000-000000000001")
	assert.Equal(t, "lock:provider:9b2f0c1e-0000-4000-8000-000000000001", ProviderLockKey(id))
	assert.Equal(t, "lock:job:reminders", JobLockKey("reminders"))
}
