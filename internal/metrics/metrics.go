// Package metrics defines the OpenCensus measures and views corert
// records, following the same Timer/Record shape lotus's metrics
// package uses to instrument its sealing scheduler.
package metrics

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var millisecondsDistribution = view.Distribution(
	0.05, 0.1, 0.3, 0.6, 0.8, 1, 2, 3, 4, 5, 6, 8,
	10, 20, 30, 40, 50, 60, 70, 80, 90, 100,
	150, 200, 250, 300, 400, 500, 700, 900, 1200, 1600, 2000,
	3000, 5000, 8000, 13000, 20000, 30000,
)

var queueDepthDistribution = view.Distribution(0, 1, 2, 3, 5, 7, 10, 15, 25, 35, 50, 70, 90, 130, 200, 300, 500, 1000, 2000, 5000)

var (
	// Tags.
	TaskType, _  = tag.NewKey("task_type")
	NodeID, _    = tag.NewKey("node_id")
	CPUID, _     = tag.NewKey("cpu_id")
	Component, _ = tag.NewKey("component")
)

var (
	SchedAssignCycleDuration = stats.Float64("sched/assign_cycle_ms", "Duration of one scheduler assign cycle", stats.UnitMilliseconds)
	SchedReadyQueueDepth     = stats.Int64("sched/ready_queue_depth", "Number of ready tasks waiting in the scheduler queue", stats.UnitDimensionless)
	SchedImmediateSuccessor  = stats.Int64("sched/immediate_successor_hits", "Number of tasks dispatched through the immediate-successor slot", stats.UnitDimensionless)

	DependencyRegisterDuration   = stats.Float64("depend/register_ms", "Duration of register_accesses", stats.UnitMilliseconds)
	DependencyUnregisterDuration = stats.Float64("depend/unregister_ms", "Duration of unregister_accesses", stats.UnitMilliseconds)
	DependencyFragmentCount      = stats.Int64("depend/fragment_count", "Number of fragments produced by a registration call", stats.UnitDimensionless)

	WorkerUtilization = stats.Float64("worker/utilization", "Fraction of a worker CPU's resources in use", stats.UnitDimensionless)
	WorkerIdleCycles  = stats.Int64("worker/idle_cycles", "Number of times a CPU transitioned to acquired_idle", stats.UnitDimensionless)

	ClusterOffloadRoundTrip = stats.Float64("cluster/offload_round_trip_ms", "Time from TaskNew send to TaskFinished receive", stats.UnitMilliseconds)
	ClusterBytesTransferred = stats.Int64("cluster/bytes_transferred", "Bytes moved by data-fetch/data-send steps", stats.UnitBytes)
)

var Views = []*view.View{
	{Measure: SchedAssignCycleDuration, Aggregation: millisecondsDistribution, TagKeys: []tag.Key{Component}},
	{Measure: SchedReadyQueueDepth, Aggregation: queueDepthDistribution},
	{Measure: SchedImmediateSuccessor, Aggregation: view.Count()},
	{Measure: DependencyRegisterDuration, Aggregation: millisecondsDistribution},
	{Measure: DependencyUnregisterDuration, Aggregation: millisecondsDistribution},
	{Measure: DependencyFragmentCount, Aggregation: view.Distribution(0, 1, 2, 3, 4, 5, 8, 13, 21)},
	{Measure: WorkerUtilization, Aggregation: view.Distribution(0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0), TagKeys: []tag.Key{CPUID}},
	{Measure: WorkerIdleCycles, Aggregation: view.Count(), TagKeys: []tag.Key{CPUID}},
	{Measure: ClusterOffloadRoundTrip, Aggregation: millisecondsDistribution, TagKeys: []tag.Key{NodeID}},
	{Measure: ClusterBytesTransferred, Aggregation: view.Sum(), TagKeys: []tag.Key{NodeID}},
}

// Timer starts a measurement, returning a func to record it against m when
// the timed section completes; the shape mirrors lotus's metrics.Timer,
// used at every "trySched" and dependency critical-section boundary in
// this repo.
func Timer(ctx context.Context, m *stats.Float64Measure) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		elapsed := time.Since(start)
		stats.Record(ctx, m.M(float64(elapsed.Microseconds())/1000.0))
		return elapsed
	}
}
