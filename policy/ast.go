package policy

import (
	"net/netip"

	"github.com/encodeous/spindle/state"
)

type Action uint8

const (
	ActionReject Action = iota
	ActionAccept
)

func (a Action) String() string {
	if a == ActionAccept {
		return "accept"
	}
	return "reject"
}

// Policy is a compiled routing policy
type Policy struct {
	Name       string
	Statements []Statement
	Default    Action
}

type StmtKind uint8

const (
	StmtIf StmtKind = iota
	StmtAccept
	StmtReject
	StmtSet
)

// Statement is a tagged variant, the fields used depend on Kind
type Statement struct {
	Kind StmtKind
	Cond Expr        // StmtIf
	Then []Statement // StmtIf
	Else []Statement // StmtIf
	Set  Setter      // StmtSet
}

type ExprKind uint8

const (
	ExprTrue ExprKind = iota
	ExprMatchPrefixList
	ExprMatchPrefix
	ExprMatchCommunity
	ExprMatchAsPathContains
	ExprMatchNeighborAs
	ExprMatchProtocol
	ExprMatchTag
	ExprAnd
	ExprOr
	ExprNot
)

type Expr struct {
	Kind        ExprKind
	Name        string            // ExprMatchPrefixList
	Prefixes    []netip.Prefix    // ExprMatchPrefix
	Communities []state.Community // ExprMatchCommunity
	Asns        []uint32          // ExprMatchAsPathContains, ExprMatchNeighborAs
	Protocols   []state.Protocol  // ExprMatchProtocol
	Value       uint32            // ExprMatchTag
	Args        []Expr            // ExprAnd, ExprOr, ExprNot
}

type SetKind uint8

const (
	SetLocalPref SetKind = iota
	SetWeight
	SetMed
	SetTag
	SetMetric
	SetOrigin
	AddCommunity
	DeleteCommunity
	PrependAsPath
	SetNextHopIp
	SetNextHopDiscard
)

type Setter struct {
	Kind        SetKind
	Value       uint32
	Asns        []uint32
	Communities []state.Community
	NextHop     netip.Addr
}

func True() Expr {
	return Expr{Kind: ExprTrue}
}

func And(args ...Expr) Expr {
	return Expr{Kind: ExprAnd, Args: args}
}

func Or(args ...Expr) Expr {
	return Expr{Kind: ExprOr, Args: args}
}

func Not(e Expr) Expr {
	return Expr{Kind: ExprNot, Args: []Expr{e}}
}

func If(cond Expr, then []Statement, els []Statement) Statement {
	return Statement{Kind: StmtIf, Cond: cond, Then: then, Else: els}
}

func Accept() Statement {
	return Statement{Kind: StmtAccept}
}

func Reject() Statement {
	return Statement{Kind: StmtReject}
}

func Set(s Setter) Statement {
	return Statement{Kind: StmtSet, Set: s}
}
