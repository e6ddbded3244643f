package signal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyBeforeWait(t *testing.T) {
	s := New()
	s.Notify()
	require.NoError(t, s.Wait(context.Background()))
}

func TestNotifyCoalesces(t *testing.T) {
	s := New()
	s.Notify()
	s.Notify()
	s.Notify()
	require.NoError(t, s.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
}

func TestWaitReleasedByNotify(t *testing.T) {
	s := New()
	done := make(chan error, 1)
	go func() { done <- s.Wait(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	s.Notify()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait was not released")
	}
}

func TestReset(t *testing.T) {
	s := New()
	s.Notify()
	s.Reset()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, s.Wait(ctx))
}
