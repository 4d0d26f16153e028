package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corert/corert/internal/task"
)

func TestBufferedTransferSizedToRegion(t *testing.T) {
	region := task.Region{Start: 0, Size: 128}
	tr := newBufferedTransfer(region)
	defer tr.Release()

	require.Equal(t, region, tr.Region())
	require.Len(t, tr.Bytes(), 128)
	require.False(t, tr.Done())
}

func TestBufferedTransferOnCompleteRunsInlineWhenAlreadyDone(t *testing.T) {
	tr := newBufferedTransfer(task.Region{Start: 0, Size: 8})
	defer tr.Release()
	tr.MarkDone()

	var ran bool
	tr.OnComplete(func() { ran = true })
	require.True(t, ran)
}

func TestBufferedTransferOnCompleteFiresInRegistrationOrder(t *testing.T) {
	tr := newBufferedTransfer(task.Region{Start: 0, Size: 8})
	defer tr.Release()

	var order []int
	tr.OnComplete(func() { order = append(order, 1) })
	tr.OnComplete(func() { order = append(order, 2) })

	require.False(t, tr.Done())
	tr.MarkDone()

	require.Equal(t, []int{1, 2}, order)
	require.True(t, tr.Done())
}

func TestBufferedTransferMarkDoneIsIdempotent(t *testing.T) {
	tr := newBufferedTransfer(task.Region{Start: 0, Size: 8})
	defer tr.Release()

	var calls int
	tr.OnComplete(func() { calls++ })
	tr.MarkDone()
	tr.MarkDone()

	require.Equal(t, 1, calls)
}

func TestBufferedTransferReleaseIsIdempotent(t *testing.T) {
	tr := newBufferedTransfer(task.Region{Start: 0, Size: 8})
	tr.Release()
	tr.Release()
}
