package depend

import (
	"sync"

	"github.com/corert/corert/internal/rterrors"
	"github.com/corert/corert/internal/task"
)

// commutativeScoreboard tracks which regions are currently held by an
// executing commutative access, per §4.1 "Commutative scoreboard": "a
// global-per-region set tracking which regions are 'in use'". Mutual
// exclusion itself is already enforced by the region chain (a
// commutative fragment only becomes satisfied once its chain
// predecessor finishes and forwards commutative_satisfied), so the
// scoreboard here is the independent bookkeeping the design calls for:
// it records acquisitions/releases and is the concrete home for the
// debug-mode mutual-exclusion invariant check from §8 ("at any instant,
// the number of tasks simultaneously executing with a commutative
// access to the same region is at most 1").
type commutativeScoreboard struct {
	mu   sync.Mutex
	held map[task.Region]*task.Task
}

func newCommutativeScoreboard() *commutativeScoreboard {
	return &commutativeScoreboard{held: make(map[task.Region]*task.Task)}
}

// grantWaiters drains cdd's commutative acquire/release batches,
// recording each newly-granted holder and clearing released ones. It is
// called once per unregister batch, after the chain propagation has
// already decided who is satisfied — this only maintains the
// scoreboard's bookkeeping and invariant check.
func (c *commutativeScoreboard) grantWaiters(cdd *CPUDependencyData) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, tr := range cdd.ReleasedCommutativeRegions {
		delete(c.held, tr.Region)
	}

	for _, tr := range cdd.SatisfiedCommutativeOriginators {
		if holder, ok := c.held[tr.Region]; ok && holder != tr.Task {
			rterrors.CheckInvariant("depend", false,
				"commutative mutual exclusion violated for region "+regionString(tr.Region))
		}
		c.held[tr.Region] = tr.Task
	}
}

func regionString(r task.Region) string {
	return uintToStr(r.Start) + "+" + uintToStr(r.Size)
}

func uintToStr(v uintptr) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
