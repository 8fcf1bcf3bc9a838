package state

import (
	"runtime"
	"time"
)

// EngineCfg controls a single data plane computation
type EngineCfg struct {
	MaxRounds int           `yaml:"max_rounds,omitempty"` // a computation that needs more rounds fails to converge
	Timeout   time.Duration `yaml:",omitempty"`           // wall clock budget, unlimited when zero
	Workers   int           `yaml:",omitempty"`
	// AlwaysCompareMed compares MED between paths from different neighbouring ASes
	AlwaysCompareMed bool `yaml:"always_compare_med,omitempty"`
	// CompareRouterIdBeforeAge prefers the lower router id over the older path
	CompareRouterIdBeforeAge bool  `yaml:"compare_router_id_before_age,omitempty"`
	ComputeBackups           *bool `yaml:"compute_backups,omitempty"`
	ComputeAggregates        *bool `yaml:"compute_aggregates,omitempty"`
	// DebugInvariants checks RIB and comparator invariants after every round
	DebugInvariants bool `yaml:"debug_invariants,omitempty"`
	// WarningInterval suppresses logging a repeated policy failure, results still list it on every run
	WarningInterval time.Duration `yaml:"warning_interval,omitempty"`
}

func (e EngineCfg) WithDefaults() EngineCfg {
	if e.MaxRounds <= 0 {
		e.MaxRounds = DefaultMaxRounds
	}
	if e.Workers <= 0 {
		e.Workers = runtime.GOMAXPROCS(0)
	}
	if e.ComputeBackups == nil {
		e.ComputeBackups = ptr(true)
	}
	if e.ComputeAggregates == nil {
		e.ComputeAggregates = ptr(true)
	}
	if e.WarningInterval <= 0 {
		e.WarningInterval = DefaultWarningInterval
	}
	return e
}

func (e EngineCfg) BackupsEnabled() bool {
	return e.ComputeBackups == nil || *e.ComputeBackups
}

func (e EngineCfg) AggregatesEnabled() bool {
	return e.ComputeAggregates == nil || *e.ComputeAggregates
}

func ptr[T any](v T) *T {
	return &v
}
