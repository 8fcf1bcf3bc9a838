package policy

import (
	"fmt"
	"net/netip"

	"github.com/encodeous/spindle/state"
)

// Compile turns a policy declaration into its AST
func Compile(cfg state.PolicyCfg) (*Policy, error) {
	p := &Policy{Name: cfg.Name}
	switch cfg.Default {
	case "", "reject":
		p.Default = ActionReject
	case "accept":
		p.Default = ActionAccept
	default:
		return nil, fmt.Errorf("policy %s: unknown default action %s", cfg.Name, cfg.Default)
	}
	stmts, err := compileStatements(cfg.Statements)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", cfg.Name, err)
	}
	p.Statements = stmts
	return p, nil
}

func compileStatements(cfgs []state.StatementCfg) ([]Statement, error) {
	out := make([]Statement, 0, len(cfgs))
	for i, c := range cfgs {
		kinds := 0
		for _, b := range []bool{c.If != nil, c.Set != nil, c.Accept, c.Reject} {
			if b {
				kinds++
			}
		}
		if kinds != 1 {
			return nil, fmt.Errorf("statement %d must be exactly one of if, set, accept or reject", i)
		}
		if c.If == nil && (len(c.Then) > 0 || len(c.Else) > 0) {
			return nil, fmt.Errorf("statement %d has then/else without if", i)
		}
		switch {
		case c.Accept:
			out = append(out, Accept())
		case c.Reject:
			out = append(out, Reject())
		case c.Set != nil:
			setters, err := compileSet(c.Set)
			if err != nil {
				return nil, fmt.Errorf("statement %d: %w", i, err)
			}
			for _, s := range setters {
				out = append(out, Set(s))
			}
		default:
			cond := compileCondition(c.If)
			then, err := compileStatements(c.Then)
			if err != nil {
				return nil, err
			}
			els, err := compileStatements(c.Else)
			if err != nil {
				return nil, err
			}
			out = append(out, If(cond, then, els))
		}
	}
	return out, nil
}

func compileCondition(c *state.ConditionCfg) Expr {
	parts := make([]Expr, 0)
	if c.PrefixList != "" {
		parts = append(parts, Expr{Kind: ExprMatchPrefixList, Name: c.PrefixList})
	}
	if len(c.Prefixes) > 0 {
		prefixes := make([]netip.Prefix, len(c.Prefixes))
		for i, p := range c.Prefixes {
			prefixes[i] = p.Masked()
		}
		parts = append(parts, Expr{Kind: ExprMatchPrefix, Prefixes: prefixes})
	}
	if len(c.Communities) > 0 {
		parts = append(parts, Expr{Kind: ExprMatchCommunity, Communities: c.Communities})
	}
	if len(c.AsPathContains) > 0 {
		parts = append(parts, Expr{Kind: ExprMatchAsPathContains, Asns: c.AsPathContains})
	}
	if c.NeighborAs != nil {
		parts = append(parts, Expr{Kind: ExprMatchNeighborAs, Asns: []uint32{*c.NeighborAs}})
	}
	if len(c.Protocols) > 0 {
		parts = append(parts, Expr{Kind: ExprMatchProtocol, Protocols: c.Protocols})
	}
	if c.Tag != nil {
		parts = append(parts, Expr{Kind: ExprMatchTag, Value: *c.Tag})
	}
	if len(c.And) > 0 {
		parts = append(parts, And(compileConditions(c.And)...))
	}
	if len(c.Or) > 0 {
		parts = append(parts, Or(compileConditions(c.Or)...))
	}
	if c.Not != nil {
		parts = append(parts, Not(compileCondition(c.Not)))
	}
	switch len(parts) {
	case 0:
		return True()
	case 1:
		return parts[0]
	}
	return And(parts...)
}

func compileConditions(cs []state.ConditionCfg) []Expr {
	out := make([]Expr, len(cs))
	for i := range cs {
		out[i] = compileCondition(&cs[i])
	}
	return out
}

func compileSet(c *state.SetCfg) ([]Setter, error) {
	out := make([]Setter, 0)
	val := func(kind SetKind, v *uint32) {
		if v != nil {
			out = append(out, Setter{Kind: kind, Value: *v})
		}
	}
	val(SetLocalPref, c.LocalPref)
	val(SetWeight, c.Weight)
	val(SetMed, c.Med)
	val(SetTag, c.Tag)
	val(SetMetric, c.Metric)
	if c.Origin != "" {
		o, err := state.ParseOrigin(c.Origin)
		if err != nil {
			return nil, err
		}
		out = append(out, Setter{Kind: SetOrigin, Value: uint32(o)})
	}
	if len(c.AddCommunities) > 0 {
		out = append(out, Setter{Kind: AddCommunity, Communities: c.AddCommunities})
	}
	if len(c.DeleteCommunities) > 0 {
		out = append(out, Setter{Kind: DeleteCommunity, Communities: c.DeleteCommunities})
	}
	if len(c.Prepend) > 0 {
		out = append(out, Setter{Kind: PrependAsPath, Asns: c.Prepend})
	}
	if c.NextHopIp.IsValid() && c.NextHopDiscard {
		return nil, fmt.Errorf("set cannot have both next_hop_ip and next_hop_discard")
	}
	if c.NextHopIp.IsValid() {
		out = append(out, Setter{Kind: SetNextHopIp, NextHop: c.NextHopIp})
	}
	if c.NextHopDiscard {
		out = append(out, Setter{Kind: SetNextHopDiscard})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("set is empty")
	}
	return out, nil
}
