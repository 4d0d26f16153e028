//go:build !linux

package worker

import "runtime"

// CPUQuota falls back to the Go runtime's CPU count on platforms
// without cgroup v2 (§1's topology discovery is out of scope beyond
// CPU count on Linux).
func CPUQuota() (int, error) {
	return runtime.NumCPU(), nil
}
