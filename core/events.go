package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/encodeous/spindle/state"
)

type EngineEvent int

// trace events

const (
	BestRouteChanged EngineEvent = iota
	BestRouteWithdrawn
	BackupPromoted
	LocalRouteChanged
	LeakChanged
	RoundComplete
	Converged
)

// warn events

const (
	PolicyFailure EngineEvent = iota + 1000
	InvariantViolation
	ConvergenceFailure
)

var eventNames = map[EngineEvent]string{
	BestRouteChanged:   "BestRouteChanged",
	BestRouteWithdrawn: "BestRouteWithdrawn",
	BackupPromoted:     "BackupPromoted",
	LocalRouteChanged:  "LocalRouteChanged",
	LeakChanged:        "LeakChanged",
	RoundComplete:      "RoundComplete",
	Converged:          "Converged",
	PolicyFailure:      "PolicyFailure",
	InvariantViolation: "InvariantViolation",
	ConvergenceFailure: "ConvergenceFailure",
}

func (e EngineEvent) String() string {
	if s, ok := eventNames[e]; ok {
		return s
	}
	return fmt.Sprintf("EngineEvent(%d)", int(e))
}

func (e EngineEvent) IsWarning() bool {
	return e >= 1000
}

// Observer sees every advertisement the engine delivers and every event it logs
type Observer interface {
	Advertise(round int, edge state.BgpEdge, adv state.RouteAdvertisement[state.Route])
	Log(event EngineEvent, desc string, args ...any)
}

type logObserver struct {
	log *slog.Logger
}

func (o logObserver) Advertise(round int, edge state.BgpEdge, adv state.RouteAdvertisement[state.Route]) {
	if !o.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	kind := "advertise"
	if adv.Withdrawn {
		kind = "withdraw"
	}
	o.log.Debug(kind, "round", round, "edge", edge.String(), "route", adv.Route.String())
}

func (o logObserver) Log(event EngineEvent, desc string, args ...any) {
	args = append([]any{"event", event.String()}, args...)
	if event.IsWarning() {
		o.log.Warn(desc, args...)
	} else {
		o.log.Debug(desc, args...)
	}
}
