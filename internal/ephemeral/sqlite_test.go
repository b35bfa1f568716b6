package ephemeral

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "session:voice:s1", []byte("v1"), time.Minute))

	got, ok, err := s.Get(ctx, "session:voice:s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)

	_, ok, err = s.Get(ctx, "session:voice:missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutReplacesValue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "topic:web", []byte("old"), time.Minute))
	require.NoError(t, s.Put(ctx, "topic:web", []byte("new"), time.Minute))

	got, ok, err := s.Get(ctx, "topic:web")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("new"), got)
}

func TestTTLExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Control the clock instead of sleeping.
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Put(ctx, "k", []byte("v"), 100*time.Millisecond))

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok, "observable before ttl")

	now = now.Add(99 * time.Millisecond)
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok, "still observable just before ttl")

	now = now.Add(2 * time.Millisecond)
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "absent after ttl")
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, s.Delete(ctx, "k"))

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting an absent key is a no-op.
	require.NoError(t, s.Delete(ctx, "k"))
}

func TestCompareAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "handoff:u1", []byte("sig"), time.Minute))

	won, err := s.CompareAndDelete(ctx, "handoff:u1", []byte("other"))
	require.NoError(t, err)
	assert.False(t, won, "mismatched value must not delete")

	won, err = s.CompareAndDelete(ctx, "handoff:u1", []byte("sig"))
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.CompareAndDelete(ctx, "handoff:u1", []byte("sig"))
	require.NoError(t, err)
	assert.False(t, won, "second delete must lose")
}

func TestCompareAndDeleteConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "handoff:u1", []byte("sig"), time.Minute))

	const callers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.CompareAndDelete(ctx, "handoff:u1", []byte("sig"))
			assert.NoError(t, err)
			wins <- won
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent caller may win")
}

func TestScan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Put(ctx, "session:voice:s1", []byte("a"), time.Minute))
	require.NoError(t, s.Put(ctx, "session:web:s2", []byte("b"), 10*time.Millisecond))
	require.NoError(t, s.Put(ctx, "topic:voice", []byte("c"), time.Minute))

	got, err := s.Scan(ctx, "session:")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Expired entries drop out of the snapshot.
	now = now.Add(20 * time.Millisecond)
	got, err = s.Scan(ctx, "session:")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []byte("a"), got["session:voice:s1"])
}

func TestScanEscapesWildcards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a%b:x", []byte("1"), time.Minute))
	require.NoError(t, s.Put(ctx, "axb:y", []byte("2"), time.Minute))

	got, err := s.Scan(ctx, "a%b:")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got, "a%b:x")
}

func TestPutRejectsNonPositiveTTL(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Put(context.Background(), "k", []byte("v"), 0))
}
