package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_HashRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	require.NoError(t, s.HSet(ctx, "k", map[string]string{"a": "1", "b": "2"}))
	got, ok, err := s.HGetAll(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got)

	_, ok, err = s.HGetAll(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemStore_HIncrBy(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	v, err := s.HIncrBy(ctx, "k", "approvals", 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)

	v, err = s.HIncrBy(ctx, "k", "approvals", 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}

func TestMemStore_SetNX(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	ok, err := s.SetNX(ctx, "k", "v1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX(ctx, "k", "v2", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "second SetNX on the same key must fail")

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", v)
}

func TestMemStore_SetTTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	require.NoError(t, s.Set(ctx, "k", "v", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "key must be gone after its TTL elapses")
}

func TestMemStore_Sets(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	require.NoError(t, s.SAdd(ctx, "active", "a", "b", "c"))
	members, err := s.SMembers(ctx, "active")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, members)

	require.NoError(t, s.SRem(ctx, "active", "b"))
	members, err = s.SMembers(ctx, "active")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, members)
}

func TestMemStore_ScanKeys(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	require.NoError(t, s.HSet(ctx, "recovery:share:g1:owner1", map[string]string{"x": "1"}))
	require.NoError(t, s.HSet(ctx, "recovery:share:g1:owner2", map[string]string{"x": "1"}))
	require.NoError(t, s.HSet(ctx, "recovery:share:g2:owner1", map[string]string{"x": "1"}))

	keys, err := s.ScanKeys(ctx, "recovery:share:g1:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"recovery:share:g1:owner1", "recovery:share:g1:owner2"}, keys)
}

func TestMemStore_Del(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	require.NoError(t, s.Set(ctx, "a", "1", 0))
	require.NoError(t, s.HSet(ctx, "b", map[string]string{"x": "1"}))
	require.NoError(t, s.Del(ctx, "a", "b"))

	_, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.HGetAll(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)
}
