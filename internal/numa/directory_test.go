package numa

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corert/corert/internal/task"
)

func TestHomeNodeOfUnknownRegionIsNegativeOne(t *testing.T) {
	d := NewDirectory(16)
	require.Equal(t, -1, d.HomeNodeOf(task.Region{Start: 0, Size: 64}))
}

func TestSetAndGetHomeNode(t *testing.T) {
	d := NewDirectory(16)
	r := task.Region{Start: 128, Size: 64}

	d.SetHomeNode(r, 3)
	require.Equal(t, 3, d.HomeNodeOf(r))

	d.SetHomeNode(r, 5)
	require.Equal(t, 5, d.HomeNodeOf(r), "overwrites the previous owner")
}

func TestForgetRemovesEntry(t *testing.T) {
	d := NewDirectory(16)
	r := task.Region{Start: 256, Size: 8}

	d.SetHomeNode(r, 1)
	d.Forget(r)

	require.Equal(t, -1, d.HomeNodeOf(r))
}

func TestZeroSizeCacheStillWorks(t *testing.T) {
	d := NewDirectory(0)
	r := task.Region{Start: 0, Size: 16}

	d.SetHomeNode(r, 2)
	require.Equal(t, 2, d.HomeNodeOf(r))
}
