package policy

import (
	"errors"
	"fmt"

	"github.com/encodeous/spindle/state"
)

type Direction uint8

const (
	Import Direction = iota
	Export
	Leak
	Redistribute
)

func (d Direction) String() string {
	switch d {
	case Import:
		return "import"
	case Export:
		return "export"
	case Leak:
		return "leak"
	case Redistribute:
		return "redistribute"
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

// PolicyError means a policy could not be evaluated, the caller should treat the route as rejected
type PolicyError struct {
	Node      string
	Policy    string
	Direction Direction
	Err       error
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s policy %s on %s: %v", e.Direction, e.Policy, e.Node, e.Err)
}

func (e *PolicyError) Unwrap() error {
	return e.Err
}

var ErrUndefined = errors.New("policy not defined")

// Evaluator applies the named policy to a route. It returns the rewritten route and true when accepted, false when
// rejected, and a *PolicyError when the policy is missing or malformed. An empty name accepts the route unchanged.
type Evaluator func(r state.Route, name string, dir Direction) (state.Route, bool, error)

type nodeLibrary struct {
	policies map[string]*Policy
	env      *Env
}

// Library holds the compiled policies and prefix lists of every node. It is immutable once built.
type Library struct {
	nodes map[string]*nodeLibrary
}

func NewLibrary(cfg *state.NetworkCfg) (*Library, error) {
	lib := &Library{nodes: make(map[string]*nodeLibrary)}
	for _, node := range cfg.Nodes {
		nl := &nodeLibrary{
			policies: make(map[string]*Policy),
			env:      &Env{PrefixLists: make(map[string]*PrefixList)},
		}
		for _, pc := range node.Policies {
			p, err := Compile(pc)
			if err != nil {
				return nil, fmt.Errorf("node %s: %w", node.Hostname, err)
			}
			nl.policies[p.Name] = p
		}
		for _, plc := range node.PrefixLists {
			pl, err := CompilePrefixList(plc)
			if err != nil {
				return nil, fmt.Errorf("node %s: %w", node.Hostname, err)
			}
			nl.env.PrefixLists[pl.Name] = pl
		}
		lib.nodes[node.Hostname] = nl
	}
	return lib, nil
}

func (l *Library) Policy(node, name string) (*Policy, bool) {
	nl, ok := l.nodes[node]
	if !ok {
		return nil, false
	}
	p, ok := nl.policies[name]
	return p, ok
}

// Evaluator returns the policy callback for node, safe for concurrent use
func (l *Library) Evaluator(node string) Evaluator {
	nl := l.nodes[node]
	return func(r state.Route, name string, dir Direction) (state.Route, bool, error) {
		if name == "" {
			return r, true, nil
		}
		var p *Policy
		if nl != nil {
			p = nl.policies[name]
		}
		if p == nil {
			return state.Route{}, false, &PolicyError{Node: node, Policy: name, Direction: dir, Err: ErrUndefined}
		}
		var env *Env
		if nl != nil {
			env = nl.env
		}
		out, err := Evaluate(p, r, env)
		if errors.Is(err, ErrDiscard) {
			return state.Route{}, false, nil
		}
		if err != nil {
			return state.Route{}, false, &PolicyError{Node: node, Policy: name, Direction: dir, Err: err}
		}
		return out, true, nil
	}
}
