package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, size int) *Pool {
	t.Helper()
	p, err := NewPool(size)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p
}

func TestNewPoolRejectsInvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := NewPool(size)
		require.Error(t, err)
	}
}

func TestSubmitResolvesHandle(t *testing.T) {
	p := newTestPool(t, 2)

	h, err := p.Submit(t.Context(), func(ctx context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)

	v, err := h.Wait(t.Context())
	require.NoError(t, err)
	require.Equal(t, 42, v)

	boom := errors.New("boom")
	h, err = p.Submit(t.Context(), func(ctx context.Context) (any, error) {
		return nil, boom
	})
	require.NoError(t, err)
	_, err = h.Wait(t.Context())
	require.ErrorIs(t, err, boom)
}

func TestSingleWorkerRunsInSubmissionOrder(t *testing.T) {
	p := newTestPool(t, 1)

	var mu sync.Mutex
	var order []int
	handles := make([]*Handle, 0, 10)
	for i := 0; i < 10; i++ {
		h, err := p.Submit(t.Context(), func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil, nil
		})
		require.NoError(t, err)
		handles = append(handles, h)
	}
	for _, h := range handles {
		_, err := h.Wait(t.Context())
		require.NoError(t, err)
	}
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestConcurrencyNeverExceedsSize(t *testing.T) {
	const size = 3
	p := newTestPool(t, size)

	var running, peak atomic.Int32
	for i := 0; i < 12; i++ {
		_, err := p.Submit(t.Context(), func(ctx context.Context) (any, error) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			return nil, nil
		})
		require.NoError(t, err)
	}

	require.NoError(t, p.Join(t.Context()))
	require.LessOrEqual(t, peak.Load(), int32(size))
	require.Equal(t, int32(size), peak.Load())
}

func TestCancelBeforeDispatch(t *testing.T) {
	p := newTestPool(t, 1)

	release := make(chan struct{})
	blocker, err := p.Submit(t.Context(), func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	var ran atomic.Bool
	queued, err := p.Submit(t.Context(), func(ctx context.Context) (any, error) {
		ran.Store(true)
		return nil, nil
	})
	require.NoError(t, err)

	require.True(t, queued.Cancel())
	require.True(t, queued.Cancelled())
	_, err = queued.Wait(t.Context())
	require.ErrorIs(t, err, ErrCancelled)

	close(release)
	_, err = blocker.Wait(t.Context())
	require.NoError(t, err)
	require.NoError(t, p.Join(t.Context()))
	require.False(t, ran.Load())
	require.False(t, blocker.Cancel())
}

func TestShutdownDrainsQueue(t *testing.T) {
	p, err := NewPool(2)
	require.NoError(t, err)

	var done atomic.Int32
	for i := 0; i < 5; i++ {
		_, err := p.Submit(t.Context(), func(ctx context.Context) (any, error) {
			time.Sleep(10 * time.Millisecond)
			done.Add(1)
			return nil, nil
		})
		require.NoError(t, err)
	}

	require.False(t, p.Closed())
	require.NoError(t, p.Shutdown(t.Context()))
	require.True(t, p.Closed())
	require.Equal(t, int32(5), done.Load())
	require.Zero(t, p.Pending())
	require.Zero(t, p.Active())

	_, err = p.Submit(t.Context(), func(ctx context.Context) (any, error) { return nil, nil })
	require.ErrorIs(t, err, ErrPoolClosed)

	require.NoError(t, p.Shutdown(t.Context()))
}

func TestShutdownHonoursContext(t *testing.T) {
	p, err := NewPool(1)
	require.NoError(t, err)

	release := make(chan struct{})
	_, err = p.Submit(t.Context(), func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, p.Shutdown(t.Context()))
}

func TestPanicIsIsolated(t *testing.T) {
	p := newTestPool(t, 1)

	bad, err := p.Submit(t.Context(), func(ctx context.Context) (any, error) {
		panic("kaboom")
	})
	require.NoError(t, err)
	good, err := p.Submit(t.Context(), func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)

	_, err = bad.Wait(t.Context())
	require.ErrorIs(t, err, ErrPanic)

	v, err := good.Wait(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ok", v)
}

func TestJoinOnIdlePool(t *testing.T) {
	p := newTestPool(t, 2)
	require.NoError(t, p.Join(t.Context()))
}
