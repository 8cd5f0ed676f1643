package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultCache_GetPutInvalidate(t *testing.T) {
	c := NewResultCache(2, time.Minute)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Put("a", Result{Payload: []byte(`{}`), Found: true})
	r, ok := c.Get("a")
	require.True(t, ok)
	assert.True(t, r.Found)

	c.Invalidate("a")
	_, ok = c.Get("a")
	assert.False(t, ok)

	// bounded by size
	c.Put("a", Result{})
	c.Put("b", Result{})
	c.Put("c", Result{})
	assert.Equal(t, 2, c.Len())
}

func TestResultCache_Expiry(t *testing.T) {
	c := NewResultCache(8, 20*time.Millisecond)
	c.Put("a", Result{Found: true})

	assert.Eventually(t, func() bool {
		_, ok := c.Get("a")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestResultCache_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("absent results are not cached", func(t *testing.T) {
		c := NewResultCache(8, time.Minute)
		found := false
		calls := 0
		load := func(context.Context) (Result, error) {
			calls++
			if found {
				return Result{Payload: []byte(`{"max":10}`), Found: true}, nil
			}
			return Result{}, nil
		}

		r, err := c.Load(ctx, "t", load)
		require.NoError(t, err)
		assert.False(t, r.Found)
		assert.Zero(t, c.Len())

		found = true
		r, err = c.Load(ctx, "t", load)
		require.NoError(t, err)
		assert.True(t, r.Found)
		assert.Equal(t, `{"max":10}`, string(r.Payload))

		// served from cache
		_, err = c.Load(ctx, "t", load)
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("invalidate during load keeps the result out", func(t *testing.T) {
		c := NewResultCache(8, time.Minute)
		entered := make(chan struct{})
		release := make(chan struct{})

		done := make(chan Result)
		go func() {
			r, err := c.Load(ctx, "t", func(context.Context) (Result, error) {
				close(entered)
				<-release
				return Result{Payload: []byte(`{"max":10}`), Found: true}, nil
			})
			assert.NoError(t, err)
			done <- r
		}()

		<-entered
		c.Invalidate("t")
		close(release)
		<-done

		_, ok := c.Get("t")
		assert.False(t, ok)

		r, err := c.Load(ctx, "t", func(context.Context) (Result, error) { return Result{}, nil })
		require.NoError(t, err)
		assert.False(t, r.Found)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		c := NewResultCache(8, time.Minute)
		boom := errors.New("redis down")

		_, err := c.Load(ctx, "t", func(context.Context) (Result, error) { return Result{}, boom })
		assert.ErrorIs(t, err, boom)

		_, ok := c.Get("t")
		assert.False(t, ok)
	})

	t.Run("concurrent loads share one call", func(t *testing.T) {
		c := NewResultCache(8, time.Minute)
		var calls atomic.Int32
		release := make(chan struct{})
		load := func(context.Context) (Result, error) {
			calls.Add(1)
			<-release
			return Result{Found: true}, nil
		}

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r, err := c.Load(ctx, "t", load)
				assert.NoError(t, err)
				assert.True(t, r.Found)
			}()
		}
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.LessOrEqual(t, calls.Load(), int32(2))
	})
}
