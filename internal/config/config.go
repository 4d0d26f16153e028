// Package config loads the TOML runtime policy file described in the
// design's ambient configuration section. It is deliberately the only
// package that touches a filesystem path for configuration; every core
// package (internal/sched, internal/worker, internal/depend, ...) takes
// plain Go values in its constructors so it stays testable without one,
// exactly the split lotus draws between its config.toml loader and the
// scheduler/worker packages that never import it. Grounded on lotus's
// own use of github.com/BurntSushi/toml for config.toml.
package config

import (
	"github.com/BurntSushi/toml"
)

// AssignerKind selects which internal/sched.Assigner cmd/corertd wires
// up.
type AssignerKind string

const (
	AssignerPriority AssignerKind = "priority"
	AssignerLocality AssignerKind = "locality"
)

type SchedulerConfig struct {
	Assigner     AssignerKind
	SchedWindows int
}

type ThrottleConfig struct {
	MaxInFlightTasks int64
}

type ClusterConfig struct {
	Enabled                        bool
	NodeCount                      int
	SelfRank                       int
	LocalityFirstTouchDeficitRatio float64
}

type WisdomConfig struct {
	Path      string
	MaxLabels int
}

// Config is the top-level shape of the TOML file; every field has a
// sane zero-cluster, non-priority-locality default so an empty file
// still produces a runnable single-node configuration.
type Config struct {
	Scheduler SchedulerConfig
	Throttle  ThrottleConfig
	Cluster   ClusterConfig
	Wisdom    WisdomConfig
}

// Default returns the configuration cmd/corertd falls back to when no
// file is given: single-node, priority scheduling, a generous throttle.
func Default() Config {
	return Config{
		Scheduler: SchedulerConfig{
			Assigner:     AssignerPriority,
			SchedWindows: 2,
		},
		Throttle: ThrottleConfig{
			MaxInFlightTasks: 4096,
		},
		Cluster: ClusterConfig{
			Enabled:                        false,
			NodeCount:                      1,
			SelfRank:                       0,
			LocalityFirstTouchDeficitRatio: 2.0,
		},
		Wisdom: WisdomConfig{
			Path:      "corert-wisdom.json",
			MaxLabels: 4096,
		},
	}
}

// Load reads and decodes a TOML config file at path, starting from
// Default() so any field the file omits keeps its default value.
func Load(path string) (Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}
