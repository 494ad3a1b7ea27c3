package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestBurstCollapsesToOnePass(t *testing.T) {
	defer goleak.VerifyNone(t)

	var runs atomic.Int32
	c := New(func(context.Context) error {
		runs.Add(1)
		return nil
	}, 20*time.Millisecond, time.Hour)
	defer c.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.RequestRefresh(context.Background()))
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(time.Second)
	assert.Equal(t, int32(1), runs.Load())
}

func TestAtMostOnePassInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	var active, peak, runs atomic.Int32
	release := make(chan struct{})
	c := New(func(context.Context) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if runs.Add(1) == 1 {
			<-release
		}
		active.Add(-1)
		return nil
	}, 10*time.Millisecond, 0)
	defer c.Close()

	go func() { _ = c.RequestRefresh(context.Background()) }()
	assert.Eventually(t, func() bool { return c.State() == InFlight }, time.Second, time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.RequestRefresh(context.Background()))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), runs.Load())

	close(release)

	assert.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), runs.Load())
	assert.Equal(t, int32(1), peak.Load())
}

func TestMinGapDefersUntilGapElapses(t *testing.T) {
	defer goleak.VerifyNone(t)

	var runs atomic.Int32
	c := New(func(context.Context) error {
		runs.Add(1)
		return nil
	}, time.Millisecond, 80*time.Millisecond)
	defer c.Close()

	require.NoError(t, c.RequestRefresh(context.Background()))
	require.NoError(t, c.RequestRefresh(context.Background()))
	assert.Equal(t, int32(1), runs.Load())

	assert.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestFailedPassReturnsErrorAndGoesIdle(t *testing.T) {
	defer goleak.VerifyNone(t)

	boom := errors.New("customers unavailable")
	c := New(func(context.Context) error { return boom }, time.Millisecond, 0)
	defer c.Close()

	assert.ErrorIs(t, c.RequestRefresh(context.Background()), boom)
	assert.Equal(t, Idle, c.State())
}

func TestCloseCancelsScheduledPass(t *testing.T) {
	defer goleak.VerifyNone(t)

	var runs atomic.Int32
	c := New(func(context.Context) error {
		runs.Add(1)
		return nil
	}, time.Millisecond, 50*time.Millisecond)

	require.NoError(t, c.RequestRefresh(context.Background()))
	require.NoError(t, c.RequestRefresh(context.Background()))
	c.Close()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
	assert.NoError(t, c.RequestRefresh(context.Background()))
	assert.Equal(t, int32(1), runs.Load())
}

func TestRunPeriodic(t *testing.T) {
	defer goleak.VerifyNone(t)

	var runs atomic.Int32
	c := New(func(context.Context) error {
		runs.Add(1)
		return nil
	}, time.Millisecond, 0)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.RunPeriodic(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
