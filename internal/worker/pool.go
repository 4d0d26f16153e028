package worker

import (
	"context"
	"strconv"
	"sync"

	"go.opencensus.io/stats"
	"go.opencensus.io/tag"

	"github.com/corert/corert/internal/depend"
	"github.com/corert/corert/internal/metrics"
	"github.com/corert/corert/internal/sched"
	"github.com/corert/corert/internal/task"
	"github.com/corert/corert/internal/workflow"
)

// Pool owns one CPU per usable core and the goroutines driving them,
// tying together the Scheduler (where ready tasks come from) and the
// dependency Engine (where a finished task's side effects go). It plays
// the role lotus's Scheduler.runWorker loop plays for a WorkerHandle,
// generalized to arbitrary task bodies instead of seal-task RPCs.
type Pool struct {
	sched  *sched.Scheduler
	engine *depend.Engine

	mu   sync.Mutex
	cpus []*CPU

	blockedMu sync.Mutex
	blocked   map[*task.Task]*blockedTask

	wg sync.WaitGroup

	shutdown chan struct{}
}

// NewPool builds a pool with one CPU per entry in nodeIDs (index i's
// value is the NUMA node CPU i belongs to). Call Start to launch the
// per-CPU goroutines.
func NewPool(s *sched.Scheduler, engine *depend.Engine, nodeIDs []int) *Pool {
	cpus := make([]*CPU, len(nodeIDs))
	for i, node := range nodeIDs {
		cpus[i] = NewCPU(int32(i), node)
	}
	return &Pool{
		sched:    s,
		engine:   engine,
		cpus:     cpus,
		blocked:  make(map[*task.Task]*blockedTask),
		shutdown: make(chan struct{}),
	}
}

// CPUs returns the pool's CPU slots, exposed read-only for the locality
// assigner and diagnostics.
func (p *Pool) CPUs() []*CPU { return p.cpus }

// Start enables every CPU and launches its driving goroutine.
func (p *Pool) Start(ctx context.Context) {
	for _, c := range p.cpus {
		c.Enable()
		p.wg.Add(1)
		go p.runCPU(ctx, c)
	}
}

// Shutdown sets the cooperative shutdown flag described in §5
// ("Shutdown is cooperative ... workers drain the scheduler to empty,
// then terminate") and waits for every CPU goroutine to exit.
func (p *Pool) Shutdown() {
	close(p.shutdown)
	for _, c := range p.cpus {
		c.Shutdown()
	}
	p.wg.Wait()
}

func (p *Pool) shuttingDown() bool {
	select {
	case <-p.shutdown:
		return true
	default:
		return false
	}
}

// runCPU is the per-CPU driving loop: acquire a ready task, run it,
// drain its dependency side effects, repeat; park on BecomeIdle when
// the scheduler has nothing and re-check on wakeup.
func (p *Pool) runCPU(ctx context.Context, c *CPU) {
	defer p.wg.Done()
	defer c.Terminate()

	cctx, _ := tag.New(ctx, tag.Upsert(metrics.CPUID, strconv.Itoa(int(c.ID))))
	cctx = contextWithCPU(cctx, c.ID)

	for {
		t := p.sched.GetReadyTask(c.ID)
		if t == nil {
			if p.shuttingDown() {
				return
			}
			c.BecomeIdle(func() bool { return p.sched.HasAvailableWork(c.ID) })
			continue
		}

		c.AcquireRunning()
		p.runTask(cctx, c, t)
	}
}

// runTask hands t to its workflow if it has one, driving the step DAG
// from §4.4 to completion (data-link, data-fetch, execute, release all
// run inline since ctx carries the worker marker). Tasks with no
// attached workflow (e.g. tests constructing a bare *task.Task) fall
// back to running the body and unregistering directly, the same two
// operations release_step and execute_step would otherwise perform.
func (p *Pool) runTask(ctx context.Context, c *CPU, t *task.Task) {
	stop := metrics.Timer(ctx, metrics.SchedAssignCycleDuration)
	defer stop()

	wctx := workflow.ContextWithWorker(ctx)

	if wf, ok := t.Workflow.(*workflow.Workflow); ok && wf != nil {
		wf.Start(wctx)
		// A task re-dequeued after its execute step deferred from a
		// non-worker context runs its body here; otherwise this is a
		// no-op, since execute already ran inside Start.
		wf.RetryExecute(wctx)
	} else {
		if err := t.Body(ctx, t.Args); err != nil {
			log.Errorw("task body returned error", "task", t.ID, "label", t.Label, "err", err)
		}
		t.SetFlag(task.FlagFinished)

		var cdd depend.CPUDependencyData
		p.engine.UnregisterAccesses(t, &cdd)
		p.drain(ctx, &cdd)
	}

	stats.Record(ctx, metrics.WorkerUtilization.M(1))
}

// Submit registers t's declared accesses with the dependency engine and,
// if every access is already satisfied, pushes it straight onto the
// scheduler; otherwise the engine's own drain path will do so once the
// last blocking predecessor releases it. This is the entry point
// task-creation code (including internal/cluster's namespace task) uses
// once a *task.Task has been built but not yet handed to the runtime.
func (p *Pool) Submit(t *task.Task) {
	p.engine.RegisterAccesses(t)
	if t.Ready() {
		p.sched.AddReadyTask(t, sched.HintNone)
	}
}

// AttachWorkflow wires t.Workflow to a workflow built by this pool,
// letting callers outside internal/worker (e.g. internal/cluster) give a
// task a workflow without importing internal/workflow's concrete type
// themselves — task.Task only ever holds the narrow task.Workflow
// capability.
func (p *Pool) AttachWorkflow(t *task.Task) {
	t.Workflow = p.NewWorkflow(t)
}

// NewWorkflow builds a workflow.Workflow for t whose reenqueue and
// drain callbacks route back through this pool's scheduler, so
// task-creation code can attach a workflow without importing
// internal/worker back (New lives in internal/workflow; this factory is
// the one-way edge from worker → workflow → task).
func (p *Pool) NewWorkflow(t *task.Task) *workflow.Workflow {
	reenqueue := func(t *task.Task) { p.sched.AddReadyTask(t, sched.HintUnblocked) }
	drain := func(ctx context.Context, cdd *depend.CPUDependencyData) { p.drain(ctx, cdd) }
	return workflow.New(t, p.engine, reenqueue, drain)
}

// drain posts every side effect the dependency engine batched during
// UnregisterAccesses back into the scheduler and disposes removable
// tasks, run entirely after the engine's internal locks were released.
// The current CPU id, if any, is pulled from ctx so a release triggered
// from within a running task's own workflow can still resolve the
// immediate-successor hint correctly.
func (p *Pool) drain(ctx context.Context, cdd *depend.CPUDependencyData) {
	cpuID, hasCPU := cpuIDFromContext(ctx)

	for _, t := range cdd.SatisfiedOriginators {
		p.postReady(cpuID, hasCPU, t)
	}
	for _, tr := range cdd.SatisfiedCommutativeOriginators {
		p.postReady(cpuID, hasCPU, tr.Task)
	}
	for _, t := range cdd.RemovableTasks {
		t.Dispose()
	}
	for _, sink := range cdd.CompletedTaskwaits {
		if sink.Owner != nil {
			p.Unblock(sink.Owner)
		}
	}
}

func (p *Pool) postReady(cpuID int32, hasCPU bool, t *task.Task) {
	hint := sched.HintUnblocked
	if hasCPU && t.ImmediateSuccessorCPU == cpuID {
		hint = sched.HintImmediateSuccessor
	}
	p.sched.AddReadyTask(t, hint)
}

// BlockCurrentTask implements §4.3's block_current_task: the calling
// CPU is released to run other ready work while t waits on some
// external condition (e.g. a taskwait sink).
func (p *Pool) BlockCurrentTask(c *CPU, t *task.Task) {
	c.Block()
	p.blockedMu.Lock()
	p.blocked[t] = &blockedTask{t: t, cpu: c}
	p.blockedMu.Unlock()
}

// Unblock re-enqueues t with the unblocked hint, per §4.3: "When
// unblocked, the task is re-enqueued with the unblocked hint."
func (p *Pool) Unblock(t *task.Task) {
	p.blockedMu.Lock()
	bt, ok := p.blocked[t]
	if ok {
		delete(p.blocked, t)
	}
	p.blockedMu.Unlock()

	if ok {
		bt.cpu.Unblock()
		bt.cpu.Resume()
	}
	p.sched.AddReadyTask(t, sched.HintUnblocked)
}
