// Package numa implements the address-to-home-node directory described
// in the design's §5 ("NUMA directory: a read-write lock, read-mostly
// access pattern"), whose HomeNodeOf satisfies internal/sched's
// HomeNodeResolver for the locality assigner. It is grounded on lotus's
// storage/sealer/stores.Index, an RWMutex-protected map from sector
// reference to a set of storage-path candidates; here the map is from
// memory region to a single owning cluster node.
package numa

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/corert/corert/internal/rtlog"
	"github.com/corert/corert/internal/task"
)

var log = rtlog.Named("numa")

// regionKey flattens a Region into a comparable map/cache key. Regions
// are looked up by exact match; the directory records home nodes at the
// granularity fragments were split to by internal/depend, not at
// arbitrary sub-ranges.
type regionKey struct {
	start uintptr
	size  uintptr
}

func keyOf(r task.Region) regionKey { return regionKey{start: r.Start, size: r.Size} }

// Directory maps memory regions to the cluster node that most recently
// wrote them ("home node" / first-touch owner). Reads dominate writes
// once a run's working set stabilizes, so the backing map is guarded by
// an RWMutex rather than a plain Mutex, and a bounded LRU front-caches
// the hottest lookups to keep the common path off the map's read lock
// entirely.
type Directory struct {
	mu    sync.RWMutex
	homes map[regionKey]int

	cache *lru.Cache[regionKey, int]
}

// NewDirectory builds an empty directory with a front cache sized to
// cacheSize recently resolved regions. A cacheSize of 0 disables the
// cache and every lookup goes straight to the map.
func NewDirectory(cacheSize int) *Directory {
	d := &Directory{homes: make(map[regionKey]int)}
	if cacheSize > 0 {
		c, err := lru.New[regionKey, int](cacheSize)
		if err != nil {
			// Only returns an error for a non-positive size, already
			// excluded above.
			panic(err)
		}
		d.cache = c
	}
	return d
}

// HomeNodeOf returns the node that owns region, or -1 if it has never
// been touched. Satisfies internal/sched.HomeNodeResolver structurally.
func (d *Directory) HomeNodeOf(region task.Region) int {
	k := keyOf(region)

	if d.cache != nil {
		if n, ok := d.cache.Get(k); ok {
			return n
		}
	}

	d.mu.RLock()
	n, ok := d.homes[k]
	d.mu.RUnlock()
	if !ok {
		return -1
	}
	if d.cache != nil {
		d.cache.Add(k, n)
	}
	return n
}

// SetHomeNode records node as the owner of region, overwriting any
// previous owner. No other package in this repository calls it.
func (d *Directory) SetHomeNode(region task.Region, node int) {
	k := keyOf(region)

	d.mu.Lock()
	d.homes[k] = node
	d.mu.Unlock()

	if d.cache != nil {
		d.cache.Add(k, node)
	}
	log.Debugw("home node set", "start", region.Start, "size", region.Size, "node", node)
}

// Forget removes region from the directory, used when a region's
// backing memory is released and its home-node record would otherwise
// go stale.
func (d *Directory) Forget(region task.Region) {
	k := keyOf(region)

	d.mu.Lock()
	delete(d.homes, k)
	d.mu.Unlock()

	if d.cache != nil {
		d.cache.Remove(k)
	}
}
