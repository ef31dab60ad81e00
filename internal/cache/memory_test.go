package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryExpiresEntries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemory()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "components/header.html", []byte("<header></header>"), time.Minute))
	require.NoError(t, store.Set(ctx, "components/footer.html", []byte("<footer></footer>"), 0))

	got, err := store.Get(ctx, "components/header.html")
	require.NoError(t, err)
	require.Equal(t, "<header></header>", string(got))

	now = now.Add(2 * time.Minute)
	_, err = store.Get(ctx, "components/header.html")
	require.True(t, errors.Is(err, ErrMiss))

	got, err = store.Get(ctx, "components/footer.html")
	require.NoError(t, err)
	require.Equal(t, "<footer></footer>", string(got))
	require.Equal(t, 1, store.Len())
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	value := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", value, 0))
	value[0] = 'z'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	got[1] = 'z'

	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "abc", string(again))

	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	require.ErrorIs(t, err, ErrMiss)
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not-a-url://")
	require.Error(t, err)
}
