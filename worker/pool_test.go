package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsValue(t *testing.T) {
	p := NewPool(2)

	got, err := Run(context.Background(), p, func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestRunPropagatesError(t *testing.T) {
	p := NewPool(1)
	boom := errors.New("boom")

	_, err := Run(context.Background(), p, func() (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrPanicked)
}

func TestRunConvertsPanic(t *testing.T) {
	p := NewPool(1)

	_, err := Run(context.Background(), p, func() (int, error) {
		panic("decoder exploded")
	})
	require.ErrorIs(t, err, ErrPanicked)
	assert.Contains(t, err.Error(), "decoder exploded")

	cause := errors.New("bad frame")
	_, err = Run(context.Background(), p, func() (int, error) {
		panic(cause)
	})
	assert.ErrorIs(t, err, ErrPanicked)
	assert.ErrorIs(t, err, cause)

	// The slot is released after a panic.
	v, err := Run(context.Background(), p, func() (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestRunBoundsConcurrency(t *testing.T) {
	const size = 3
	p := NewPool(size)

	var running, peak atomic.Int32
	release := make(chan struct{})
	errs := make(chan error, 10)

	for i := 0; i < 10; i++ {
		go func() {
			_, err := Run(context.Background(), p, func() (struct{}, error) {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				<-release
				running.Add(-1)
				return struct{}{}, nil
			})
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return running.Load() == size }, time.Second, time.Millisecond)
	close(release)
	for i := 0; i < 10; i++ {
		require.NoError(t, <-errs)
	}
	assert.LessOrEqual(t, peak.Load(), int32(size))
}

func TestRunHonoursContextWhileWaitingForSlot(t *testing.T) {
	p := NewPool(1)
	block := make(chan struct{})
	defer close(block)

	started := make(chan struct{})

	go func() {
		_, _ = Run(context.Background(), p, func() (int, error) {
			close(started)
			<-block
			return 0, nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := Run(ctx, p, func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunHonoursContextWhileRunning(t *testing.T) {
	p := NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	block := make(chan struct{})
	defer close(block)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Run(ctx, p, func() (int, error) {
		<-block
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPoolDefaultsToCPUCount(t *testing.T) {
	assert.Positive(t, NewPool(0).Size())
	assert.Equal(t, 4, NewPool(4).Size())
}
