package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	BannerOutput = nil
}

func TestRunDrainsOnCancel(t *testing.T) {
	drained := make(chan struct{})
	var stopped bool
	r := NewLifecycleRunner(DrainerFunc(func(ctx context.Context) error {
		close(drained)
		return nil
	}), Hooks{OnStop: func() { stopped = true }}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return r.State() == StateRunning }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)
	<-drained
	assert.True(t, stopped)
	assert.Equal(t, StateStopped, r.State())
	assert.Equal(t, "stopped", r.State().String())
}

func TestRunTwiceFails(t *testing.T) {
	r := NewLifecycleRunner(nil, Hooks{}, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx))
	assert.Error(t, r.Run(context.Background()))
}

func TestDrainErrorIsReturned(t *testing.T) {
	boom := errors.New("boom")
	r := NewLifecycleRunner(DrainerFunc(func(context.Context) error { return boom }), Hooks{}, time.Second)
	assert.ErrorIs(t, r.Stop(), boom)
	assert.ErrorIs(t, r.Stop(), boom)
}
