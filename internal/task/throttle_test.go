package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestThrottleAdmitsUpToCapacity(t *testing.T) {
	th := NewThrottle(2)
	ctx := context.Background()

	require.NoError(t, th.AdmitOrDrain(ctx, func() bool { return false }))
	require.NoError(t, th.AdmitOrDrain(ctx, func() bool { return false }))

	drained := false
	require.NoError(t, th.AdmitOrDrain(ctx, func() bool {
		if drained {
			return false
		}
		drained = true
		th.Release()
		return true
	}))
	require.True(t, drained, "third admission should drain before blocking")
}

func TestThrottleReleaseFreesSlot(t *testing.T) {
	th := NewThrottle(1)
	ctx := context.Background()

	require.NoError(t, th.AdmitOrDrain(ctx, func() bool { return false }))
	th.Release()
	require.NoError(t, th.AdmitOrDrain(ctx, func() bool { return false }))
}
