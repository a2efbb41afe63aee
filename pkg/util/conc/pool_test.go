package conc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestPool(t *testing.T) {
	pool, err := NewPool[int](4, WithPreAlloc(true))
	require.NoError(t, err)
	defer pool.Release()
	assert.Equal(t, 4, pool.Cap())

	futures := make([]*Future[int], 0, 10)
	for i := 0; i < 10; i++ {
		futures = append(futures, pool.Submit(func() (int, error) {
			return i * i, nil
		}))
	}
	require.NoError(t, AwaitAll(futures...))
	for i, f := range futures {
		assert.Equal(t, i*i, f.Value())
		assert.True(t, f.OK())
	}
}

func TestPoolError(t *testing.T) {
	pool, err := NewPool[string](2)
	require.NoError(t, err)
	defer pool.Release()

	boom := errors.New("boom")
	ok := pool.Submit(func() (string, error) { return "ok", nil })
	bad := pool.Submit(func() (string, error) { return "", boom })

	assert.ErrorIs(t, AwaitAll(ok, bad), boom)
	v, err := ok.Await()
	assert.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.ErrorIs(t, bad.Err(), boom)
}

func TestPoolPanicConcealed(t *testing.T) {
	pool, err := NewPool[int](1, WithConcealPanic(true))
	require.NoError(t, err)
	defer pool.Release()

	f := pool.Submit(func() (int, error) { panic("bad task") })
	assert.Error(t, f.Err())
	assert.Contains(t, f.Err().Error(), "bad task")
}

func TestFutureAwaitCtx(t *testing.T) {
	pool, err := NewPool[int](1)
	require.NoError(t, err)
	defer pool.Release()

	release := make(chan struct{})
	f := pool.Submit(func() (int, error) {
		<-release
		return 1, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = f.AwaitCtx(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	v, err := f.AwaitCtx(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestPoolPreHandler(t *testing.T) {
	calls := atomic.NewInt32(0)
	pool, err := NewPool[int](2, WithPreHandler(func() { calls.Inc() }))
	require.NoError(t, err)
	defer pool.Release()

	futures := []*Future[int]{
		pool.Submit(func() (int, error) { return 1, nil }),
		pool.Submit(func() (int, error) { return 2, nil }),
		pool.Submit(func() (int, error) { return 3, nil }),
	}
	require.NoError(t, AwaitAll(futures...))
	assert.EqualValues(t, 3, calls.Load())
}
