package core

import (
	"fmt"
	"log/slog"

	"github.com/encodeous/spindle/policy"
	"github.com/encodeous/spindle/rib"
	"github.com/encodeous/spindle/state"
	"github.com/google/uuid"
)

// EngineContext carries everything a single computation needs. It is built once per computation and is never
// shared between computations.
type EngineContext struct {
	Network  *state.NetworkCfg
	Topology *state.BgpTopology
	Policies *policy.Library
	// Evaluator returns the policy callback of a node, defaults to Policies.Evaluator
	Evaluator func(node string) policy.Evaluator
	Options   state.EngineCfg
	Log       *slog.Logger
	RunId     uuid.UUID
}

// NewEngineContext expands and validates cfg, compiles its policies and builds the session topology
func NewEngineContext(cfg *state.NetworkCfg, log *slog.Logger) (*EngineContext, error) {
	state.ExpandNetworkConfig(cfg)
	if err := state.NetworkConfigValidator(cfg); err != nil {
		return nil, fmt.Errorf("invalid network configuration: %w", err)
	}
	lib, err := policy.NewLibrary(cfg)
	if err != nil {
		return nil, err
	}
	topo := state.TopologyFromConfig(cfg)
	if err := state.ValidateTopology(topo, cfg); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	runId := uuid.New()
	return &EngineContext{
		Network:   cfg,
		Topology:  topo,
		Policies:  lib,
		Evaluator: lib.Evaluator,
		Options:   cfg.Engine.WithDefaults(),
		Log:       log.With("run", runId.String()),
		RunId:     runId,
	}, nil
}

func (e *EngineContext) Comparator() rib.Comparator {
	return rib.NewComparator(e.Options)
}
