package policy

import (
	"errors"
	"fmt"
	"slices"

	"github.com/encodeous/spindle/state"
)

// ErrDiscard is returned when a policy rejects a route
var ErrDiscard = errors.New("route discarded by policy")

// Env is what a policy can see besides the route
type Env struct {
	PrefixLists map[string]*PrefixList
}

// Evaluate runs p against r. It returns the possibly rewritten route when accepted, ErrDiscard when rejected, or
// another error when the policy cannot be evaluated.
func Evaluate(p *Policy, r state.Route, env *Env) (state.Route, error) {
	action, done, err := run(p.Statements, &r, env)
	if err != nil {
		return state.Route{}, err
	}
	if !done {
		action = p.Default
	}
	if action != ActionAccept {
		return state.Route{}, ErrDiscard
	}
	return r, nil
}

func run(stmts []Statement, r *state.Route, env *Env) (Action, bool, error) {
	for _, s := range stmts {
		switch s.Kind {
		case StmtAccept:
			return ActionAccept, true, nil
		case StmtReject:
			return ActionReject, true, nil
		case StmtSet:
			if err := apply(s.Set, r); err != nil {
				return ActionReject, false, err
			}
		case StmtIf:
			ok, err := match(s.Cond, r, env)
			if err != nil {
				return ActionReject, false, err
			}
			branch := s.Else
			if ok {
				branch = s.Then
			}
			action, done, err := run(branch, r, env)
			if err != nil || done {
				return action, done, err
			}
		default:
			return ActionReject, false, fmt.Errorf("unknown statement kind %d", s.Kind)
		}
	}
	return ActionReject, false, nil
}

func match(e Expr, r *state.Route, env *Env) (bool, error) {
	switch e.Kind {
	case ExprTrue:
		return true, nil
	case ExprMatchPrefixList:
		var pl *PrefixList
		if env != nil {
			pl = env.PrefixLists[e.Name]
		}
		if pl == nil {
			return false, fmt.Errorf("prefix list %s not defined", e.Name)
		}
		return pl.Permits(r.Prefix), nil
	case ExprMatchPrefix:
		return slices.Contains(e.Prefixes, r.Prefix), nil
	case ExprMatchCommunity:
		if r.Bgp == nil {
			return false, nil
		}
		return slices.ContainsFunc(e.Communities, r.Bgp.Communities.Has), nil
	case ExprMatchAsPathContains:
		if r.Bgp == nil {
			return false, nil
		}
		return slices.ContainsFunc(e.Asns, r.Bgp.AsPath.Contains), nil
	case ExprMatchNeighborAs:
		if r.Bgp == nil {
			return false, nil
		}
		return slices.Contains(e.Asns, r.Bgp.AsPath.First()), nil
	case ExprMatchProtocol:
		return slices.Contains(e.Protocols, r.Protocol), nil
	case ExprMatchTag:
		return r.Tag == e.Value, nil
	case ExprAnd:
		for _, a := range e.Args {
			ok, err := match(a, r, env)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case ExprOr:
		for _, a := range e.Args {
			ok, err := match(a, r, env)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case ExprNot:
		if len(e.Args) != 1 {
			return false, fmt.Errorf("not expects one argument, got %d", len(e.Args))
		}
		ok, err := match(e.Args[0], r, env)
		return !ok, err
	}
	return false, fmt.Errorf("unknown expression kind %d", e.Kind)
}

// apply rewrites r in place. BGP attributes are copied before modification, setters for them do nothing on
// routes without BGP attributes.
func apply(s Setter, r *state.Route) error {
	bgpSet := func(f func(a *state.BgpAttrs)) {
		if r.Bgp != nil {
			*r = r.WithBgp(f)
		}
	}
	switch s.Kind {
	case SetLocalPref:
		bgpSet(func(a *state.BgpAttrs) { a.LocalPref = s.Value })
	case SetWeight:
		bgpSet(func(a *state.BgpAttrs) { a.Weight = s.Value })
	case SetMed:
		bgpSet(func(a *state.BgpAttrs) { a.Med = s.Value })
	case SetOrigin:
		bgpSet(func(a *state.BgpAttrs) { a.Origin = uint8(s.Value) })
	case AddCommunity:
		bgpSet(func(a *state.BgpAttrs) { a.Communities = a.Communities.With(s.Communities...) })
	case DeleteCommunity:
		bgpSet(func(a *state.BgpAttrs) { a.Communities = a.Communities.Without(s.Communities...) })
	case PrependAsPath:
		bgpSet(func(a *state.BgpAttrs) { a.AsPath = a.AsPath.Prepend(s.Asns...) })
	case SetTag:
		r.Tag = s.Value
	case SetMetric:
		r.Metric = s.Value
	case SetNextHopIp:
		r.NextHop = state.NhIp(s.NextHop)
	case SetNextHopDiscard:
		r.NextHop = state.NhDiscard()
	default:
		return fmt.Errorf("unknown set kind %d", s.Kind)
	}
	return nil
}
