package mediaqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewQueueClampsConcurrency(t *testing.T) {
	assert.Equal(t, 1, NewQueue("q", 0, nil).Concurrency())
	assert.Equal(t, 1, NewQueue("q", -3, nil).Concurrency())
	assert.Equal(t, 4, NewQueue("q", 4, nil).Concurrency())
}

func TestQueueAdmitsInFIFOOrder(t *testing.T) {
	q := NewQueue("fifo", 1, nil)
	require.NoError(t, q.Acquire(context.Background()))

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, q.Acquire(context.Background()))
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			q.Release()
		}()
		// queue each waiter before the next one
		require.Eventually(t, func() bool { return q.Pending() == i+1 }, time.Second, time.Millisecond)
	}

	q.Release()
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3}, order)
	assert.Equal(t, 0, q.Active())
}

func TestQueueBoundsRunningJobs(t *testing.T) {
	q := NewQueue("bounded", 2, nil)
	gate := make(chan struct{})

	var (
		mu      sync.Mutex
		running int
		peak    int
		wg      sync.WaitGroup
	)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Do(context.Background(), q, func(context.Context) (struct{}, error) {
				mu.Lock()
				running++
				peak = max(peak, running)
				mu.Unlock()

				<-gate

				mu.Lock()
				running--
				mu.Unlock()
				return struct{}{}, nil
			})
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return q.Active() == 2 && q.Pending() == 3 }, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, 2, peak)
	assert.Equal(t, 0, q.Active())
	assert.Equal(t, 0, q.Pending())
}

func TestSetConcurrencyAdmitsWaiters(t *testing.T) {
	q := NewQueue("mutable", 1, nil)
	require.NoError(t, q.Acquire(context.Background()))

	admitted := make(chan struct{})
	go func() {
		assert.NoError(t, q.Acquire(context.Background()))
		close(admitted)
	}()
	require.Eventually(t, func() bool { return q.Pending() == 1 }, time.Second, time.Millisecond)

	q.SetConcurrency(2)

	select {
	case <-admitted:
	case <-time.After(time.Second):
		t.Fatal("waiter was not admitted after raising the limit")
	}
	assert.Equal(t, 2, q.Active())

	q.SetConcurrency(1)
	assert.Equal(t, 2, q.Active(), "lowering the limit must not interrupt running jobs")
	q.Release()
	q.Release()
}

func TestLoweredConcurrencyAppliesToLaterWork(t *testing.T) {
	q := NewQueue("lowered", 2, nil)
	q.SetConcurrency(1)

	require.NoError(t, q.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Acquire(ctx), context.DeadlineExceeded)
	q.Release()
}

func TestAcquireCancellationLeavesQueue(t *testing.T) {
	q := NewQueue("cancel", 1, nil)
	require.NoError(t, q.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- q.Acquire(ctx) }()
	require.Eventually(t, func() bool { return q.Pending() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errs, context.Canceled)
	assert.Equal(t, 0, q.Pending())

	q.Release()
	assert.Equal(t, 0, q.Active())
}

func TestReleaseWithoutAcquirePanics(t *testing.T) {
	q := NewQueue("panic", 1, nil)
	assert.Panics(t, q.Release)
}
