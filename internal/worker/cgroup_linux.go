//go:build linux

package worker

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	cgroupv2 "github.com/containerd/cgroups/v2"
)

// cgroupV2MountPoint locates the cgroup2 filesystem mount, the same way
// lotus's storage/sealer/cgroups_linux.go does it (scanning
// /proc/self/mountinfo for the cgroup2 fstype).
func cgroupV2MountPoint() (string, error) {
	f, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := bytes.Fields(scanner.Bytes())
		if len(fields) >= 9 && bytes.Equal(fields[8], []byte("cgroup2")) {
			return string(fields[4]), nil
		}
	}
	return "", os.ErrNotExist
}

// cpuMax reads cpu.max from the cgroup at mp/path, returning
// (quota, period) in microseconds. quota is 0 if the entry reads "max"
// (no limit).
func cpuMax(mp, path string) (quota, period float64, err error) {
	data, err := os.ReadFile(filepath.Join(mp, path, "cpu.max"))
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(strings.TrimSpace(string(data)))
	if len(fields) != 2 {
		return 0, 0, nil
	}
	if fields[0] == "max" {
		return 0, 0, nil
	}
	q, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, err
	}
	p, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, err
	}
	return q, p, nil
}

// CPUQuota reads the effective CPU quota from the process's cgroup v2
// controller, the ambient half of SPEC_FULL's topology note: only CPU
// *count* is in scope here, not full NUMA/cache discovery. Falls back
// to runtime.NumCPU() whenever no cgroup limit applies or the hierarchy
// can't be read, mirroring lotus's cgroup helpers' "fall through to an
// unlimited default" behavior.
func CPUQuota() (int, error) {
	path, err := cgroupv2.PidGroupPath(os.Getpid())
	if err != nil {
		return runtime.NumCPU(), nil
	}

	mp, err := cgroupV2MountPoint()
	if err != nil {
		return runtime.NumCPU(), nil
	}

	quota, period, err := cpuMax(mp, path)
	if err != nil || quota <= 0 || period <= 0 {
		return runtime.NumCPU(), nil
	}

	n := int(quota / period)
	if n < 1 {
		n = 1
	}
	if n > runtime.NumCPU() {
		n = runtime.NumCPU()
	}
	return n, nil
}
