package sched

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corert/corert/internal/task"
)

type fixedHomeNodes map[task.Region]int

func (f fixedHomeNodes) HomeNodeOf(r task.Region) int {
	if n, ok := f[r]; ok {
		return n
	}
	return -1
}

type allDSM struct{ except []task.Region }

func (a allDSM) IsDSMAddress(r task.Region) bool {
	for _, e := range a.except {
		if e == r {
			return false
		}
	}
	return true
}

func withAccess(region task.Region, typ task.AccessType) *task.Task {
	t := task.New("t", noopBody, nil, nil, 0)
	t.Accesses = []*task.DataAccess{task.NewDataAccess(region, typ, false)}
	return t
}

func TestLocalityAssignerPinsNonDSMAccessesLocal(t *testing.T) {
	region := task.Region{Start: 0, Size: 64}
	tsk := withAccess(region, task.In)

	a := NewLocalityAssigner(fixedHomeNodes{region: 1}, allDSM{except: []task.Region{region}}, []int{0, 1}, 2.0)
	d := a.AssignDevice(tsk)

	require.Equal(t, Device{Kind: DeviceHost}, d)
}

func TestLocalityAssignerPicksMaxBytesNode(t *testing.T) {
	big := task.Region{Start: 0, Size: 1000}
	small := task.Region{Start: 2000, Size: 10}

	tsk := task.New("t", noopBody, nil, nil, 0)
	tsk.Accesses = []*task.DataAccess{
		task.NewDataAccess(big, task.In, false),
		task.NewDataAccess(small, task.In, false),
	}

	homes := fixedHomeNodes{big: 1, small: 2}
	a := NewLocalityAssigner(homes, allDSM{}, []int{1, 2}, 2.0)

	d := a.AssignDevice(tsk)
	require.Equal(t, Device{Kind: DeviceCluster, NodeID: 1}, d)
}

func TestLocalityAssignerFirstTouchDeficitFallsBackToRoundRobin(t *testing.T) {
	untouched := task.Region{Start: 0, Size: 1000}
	tsk := withAccess(untouched, task.In)

	a := NewLocalityAssigner(fixedHomeNodes{}, allDSM{}, []int{5, 6}, 2.0)

	first := a.AssignDevice(tsk)
	second := a.AssignDevice(tsk)

	require.Equal(t, DeviceCluster, first.Kind)
	require.Equal(t, DeviceCluster, second.Kind)
	require.NotEqual(t, first.NodeID, second.NodeID, "round robin alternates across calls")
}
