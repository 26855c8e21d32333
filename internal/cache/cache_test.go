package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMemory(clock *fakeClock) *Memory {
	m := NewMemory()
	m.now = clock.now
	return m
}

func TestMemory_ValidBeforeTTLAbsentAfter(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	m := newTestMemory(clock)

	m.Set(ctx, "k", []byte("v"), time.Minute)

	clock.advance(59 * time.Second)
	got, ok := m.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	clock.advance(time.Second)
	_, ok = m.Get(ctx, "k")
	assert.False(t, ok, "entry must be absent at storedAt+ttl")
	assert.Equal(t, 1, m.Len(), "expired entries are not evicted by Get")
}

func TestMemory_DefaultTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(0, 0)}
	m := newTestMemory(clock)

	m.Set(ctx, "k", []byte("v"), 0)
	clock.advance(DefaultTTL - time.Nanosecond)
	_, ok := m.Get(ctx, "k")
	assert.True(t, ok)

	clock.advance(time.Nanosecond)
	_, ok = m.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemory_SetOverwritesAndResetsTimestamp(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(0, 0)}
	m := newTestMemory(clock)

	m.Set(ctx, "k", []byte("old"), time.Minute)
	clock.advance(50 * time.Second)
	m.Set(ctx, "k", []byte("new"), time.Minute)
	clock.advance(50 * time.Second)

	got, ok := m.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), got)
}

func TestMemory_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(0, 0)}
	m := newTestMemory(clock)

	m.Set(ctx, "short", []byte("a"), time.Second)
	m.Set(ctx, "long", []byte("b"), time.Hour)
	clock.advance(2 * time.Second)

	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())
	_, ok := m.Get(ctx, "long")
	assert.True(t, ok)
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(StoreTypeMemory)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = NewStore(StoreTypeRedis)
	assert.Error(t, err)

	_, err = NewStore("bogus")
	assert.ErrorIs(t, err, ErrInvalidStoreType)
}
