package tasks

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covelabs/docdex/internal/logging"
)

func TestRunnerInline(t *testing.T) {
	r, err := NewRunner(0, logging.NewTestLogger().Logger)
	require.NoError(t, err)
	defer r.Close()

	var ran atomic.Bool
	require.NoError(t, r.Submit(func(ctx context.Context) {
		ran.Store(true)
	}))
	// Inline mode completes before Submit returns.
	assert.True(t, ran.Load())
}

func TestRunnerQueued(t *testing.T) {
	r, err := NewRunner(4, logging.NewTestLogger().Logger)
	require.NoError(t, err)
	defer r.Close()

	var count atomic.Int64
	for i := 0; i < 50; i++ {
		require.NoError(t, r.Submit(func(ctx context.Context) {
			count.Add(1)
		}))
	}
	r.Wait()
	assert.Equal(t, int64(50), count.Load())
}

func TestRunnerPanicRecovered(t *testing.T) {
	logger := logging.NewTestLogger()
	r, err := NewRunner(1, logger.Logger)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Submit(func(ctx context.Context) {
		panic("index exploded")
	}))
	r.Wait()

	// The pool survives a panicking task.
	var ran atomic.Bool
	require.NoError(t, r.Submit(func(ctx context.Context) {
		ran.Store(true)
	}))
	r.Wait()
	assert.True(t, ran.Load())
}

func TestRunnerContextOutlivesSubmitters(t *testing.T) {
	r, err := NewRunner(1, logging.NewTestLogger().Logger)
	require.NoError(t, err)
	defer r.Close()

	done := make(chan error, 1)
	require.NoError(t, r.Submit(func(ctx context.Context) {
		// The task context belongs to the runner, so it is still live
		// even though the submitting "request" has returned.
		done <- ctx.Err()
	}))
	r.Wait()
	assert.NoError(t, <-done)
}
