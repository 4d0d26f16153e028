package worker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewCPUStartsUninitialized(t *testing.T) {
	c := NewCPU(0, 0)
	require.Equal(t, StateUninitialized, c.State())
}

func TestEnableThenAcquireRunning(t *testing.T) {
	c := NewCPU(1, 0)
	c.Enable()
	require.Equal(t, StateEnabled, c.State())

	c.AcquireRunning()
	require.Equal(t, StateAcquiredRunning, c.State())
}

func TestBecomeIdleReChecksHasWorkUnderLock(t *testing.T) {
	c := NewCPU(0, 0)
	c.Enable()

	parked := c.BecomeIdle(func() bool { return true })
	require.False(t, parked, "work already available means the CPU never actually parks")
	require.Equal(t, StateEnabled, c.State(), "state is untouched when the recheck finds work")
}

func TestResumeWakesParkedCPU(t *testing.T) {
	c := NewCPU(0, 0)
	c.Enable()

	var wg sync.WaitGroup
	wg.Add(1)
	result := make(chan bool, 1)
	go func() {
		defer wg.Done()
		result <- c.BecomeIdle(func() bool { return false })
	}()

	require.Eventually(t, func() bool {
		return c.State() == StateAcquiredIdle
	}, time.Second, time.Millisecond)

	c.Resume()
	wg.Wait()

	require.True(t, <-result)
	require.Equal(t, StateAcquiredRunning, c.State())
}

func TestShutdownWakesParkedCPU(t *testing.T) {
	c := NewCPU(0, 0)
	c.Enable()

	done := make(chan struct{})
	go func() {
		c.BecomeIdle(func() bool { return false })
		close(done)
	}()

	require.Eventually(t, func() bool {
		return c.State() == StateAcquiredIdle
	}, time.Second, time.Millisecond)

	c.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("BecomeIdle never returned after Shutdown")
	}
	require.Equal(t, StateShuttingDown, c.State())
}

func TestResumeIsNoopWhenNotIdle(t *testing.T) {
	c := NewCPU(0, 0)
	c.Enable()
	c.Resume()
	require.Equal(t, StateEnabled, c.State(), "resume does nothing to a CPU that was never parked")
}

func TestBlockUnblockTogglesFlag(t *testing.T) {
	c := NewCPU(0, 0)
	c.Enable()
	c.Block()
	require.True(t, c.blocked)
	c.Unblock()
	require.False(t, c.blocked)
}

func TestTerminateSetsState(t *testing.T) {
	c := NewCPU(0, 0)
	c.Enable()
	c.Terminate()
	require.Equal(t, StateTerminated, c.State())
}
