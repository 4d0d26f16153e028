package depend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corert/corert/internal/task"
)

func TestReductionCombinerRunsOnceAfterAllContributors(t *testing.T) {
	e := NewEngine()
	region := task.Region{Start: 0, Size: 8}

	labels := []string{"contrib-0", "contrib-1", "contrib-2", "contrib-3"}
	contributors := make([]*task.Task, len(labels))
	for i, label := range labels {
		contributors[i] = newTestTask(label, region, task.Reduction)
		e.RegisterAccesses(contributors[i])
	}

	reader := newTestTask("reader", region, task.In)
	e.RegisterAccesses(reader)
	require.False(t, reader.Accesses[0].Satisfied(), "reader must wait for the combine step")

	var cdd CPUDependencyData
	for i := 0; i < len(contributors)-1; i++ {
		e.UnregisterAccesses(contributors[i], &cdd)
	}
	require.False(t, reader.Accesses[0].Satisfied(), "combine step must not run before every contributor finishes")

	e.UnregisterAccesses(contributors[len(contributors)-1], &cdd)
	require.True(t, reader.Accesses[0].Satisfied(), "combine step runs once every contributor has finished")
	require.Contains(t, cdd.SatisfiedOriginators, reader)
}

func TestReductionSlotsAreReusedAcrossContributors(t *testing.T) {
	e := NewEngine()
	region := task.Region{Start: 0, Size: 8}

	first := newTestTask("first", region, task.Reduction)
	e.RegisterAccesses(first)
	firstSlot := first.Accesses[0].ReductionIdx

	var cdd CPUDependencyData
	e.UnregisterAccesses(first, &cdd)

	second := newTestTask("second", region, task.Reduction)
	e.RegisterAccesses(second)
	require.Equal(t, firstSlot, second.Accesses[0].ReductionIdx, "a released slot is reused rather than growing the bitmap")
}

func TestCommutativeAccessesAreMutuallyExclusive(t *testing.T) {
	e := NewEngine()
	region := task.Region{Start: 0, Size: 8}

	first := newTestTask("first", region, task.Commutative)
	e.RegisterAccesses(first)
	require.True(t, first.Accesses[0].Satisfied(), "first commutative access over a fresh region is granted immediately")

	second := newTestTask("second", region, task.Commutative)
	e.RegisterAccesses(second)
	require.False(t, second.Accesses[0].Satisfied(), "second commutative access must wait for the first to release")

	var cdd CPUDependencyData
	e.UnregisterAccesses(first, &cdd)

	require.True(t, second.Accesses[0].Satisfied())
	require.Contains(t, cdd.SatisfiedCommutativeOriginators, TaskAndRegion{Task: second, Region: region})
}

func TestCommutativeScoreboardGrantsNeverOverlap(t *testing.T) {
	e := NewEngine()
	region := task.Region{Start: 0, Size: 8}

	first := newTestTask("first", region, task.Commutative)
	e.RegisterAccesses(first)
	second := newTestTask("second", region, task.Commutative)
	e.RegisterAccesses(second)
	third := newTestTask("third", region, task.Commutative)
	e.RegisterAccesses(third)

	var cdd1 CPUDependencyData
	e.UnregisterAccesses(first, &cdd1)
	require.Equal(t, second, e.commutative.held[region], "the scoreboard's held holder must match whoever the chain just granted")

	var cdd2 CPUDependencyData
	e.UnregisterAccesses(second, &cdd2)
	require.Equal(t, third, e.commutative.held[region])
}
