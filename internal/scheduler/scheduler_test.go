package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvery_RunsJob(t *testing.T) {
	s := New(zerolog.Nop())
	var runs atomic.Int32
	require.NoError(t, s.Every("@every 1s", "tick", func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("keeps schedule")
	}))
	assert.True(t, s.IsRunning())

	s.Start()
	defer s.Stop()
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestEvery_InvalidSpec(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.Every("not a schedule", "bad", func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.False(t, s.IsRunning())
}

func TestStop_CancelsJobContext(t *testing.T) {
	s := New(zerolog.Nop())
	s.Start()
	s.Stop()
	assert.ErrorIs(t, s.ctx.Err(), context.Canceled)
}
