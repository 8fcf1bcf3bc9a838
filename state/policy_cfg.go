package state

import "net/netip"

// PolicyCfg declares a routing policy. Statements run in order, the first accept or reject ends evaluation and
// falling off the end applies Default.
type PolicyCfg struct {
	Name       string
	Default    string         `yaml:",omitempty"` // accept or reject, reject when empty
	Statements []StatementCfg `yaml:",omitempty"`
}

// StatementCfg is one policy statement. Exactly one of If, Set, Accept or Reject should be set.
type StatementCfg struct {
	If     *ConditionCfg  `yaml:"if,omitempty"`
	Then   []StatementCfg `yaml:"then,omitempty"`
	Else   []StatementCfg `yaml:"else,omitempty"`
	Set    *SetCfg        `yaml:"set,omitempty"`
	Accept bool           `yaml:"accept,omitempty"`
	Reject bool           `yaml:"reject,omitempty"`
}

// ConditionCfg matches a route. Every field that is set must match, an empty condition always matches.
type ConditionCfg struct {
	PrefixList     string         `yaml:"prefix_list,omitempty"`
	Prefixes       []netip.Prefix `yaml:"prefixes,omitempty"`
	Communities    []Community    `yaml:"communities,omitempty"` // any of
	AsPathContains []uint32       `yaml:"as_path_contains,omitempty"`
	NeighborAs     *uint32        `yaml:"neighbor_as,omitempty"`
	Protocols      []Protocol     `yaml:"protocols,omitempty"`
	Tag            *uint32        `yaml:"tag,omitempty"`
	And            []ConditionCfg `yaml:"and,omitempty"`
	Or             []ConditionCfg `yaml:"or,omitempty"`
	Not            *ConditionCfg  `yaml:"not,omitempty"`
}

type SetCfg struct {
	LocalPref         *uint32     `yaml:"local_pref,omitempty"`
	Weight            *uint32     `yaml:"weight,omitempty"`
	Med               *uint32     `yaml:"med,omitempty"`
	Tag               *uint32     `yaml:"tag,omitempty"`
	Metric            *uint32     `yaml:"metric,omitempty"`
	Origin            string      `yaml:"origin,omitempty"`
	AddCommunities    []Community `yaml:"add_communities,omitempty"`
	DeleteCommunities []Community `yaml:"delete_communities,omitempty"`
	Prepend           []uint32    `yaml:"prepend,omitempty"`
	NextHopIp         netip.Addr  `yaml:"next_hop_ip,omitempty"`
	NextHopDiscard    bool        `yaml:"next_hop_discard,omitempty"`
}

type PrefixListCfg struct {
	Name    string
	Entries []PrefixListEntryCfg
}

// PrefixListEntryCfg matches prefixes covered by Prefix whose length is within [Ge, Le]. Ge defaults to the length
// of Prefix, Le defaults to Ge.
type PrefixListEntryCfg struct {
	Prefix netip.Prefix
	Ge     uint8  `yaml:"ge,omitempty"`
	Le     uint8  `yaml:"le,omitempty"`
	Action string `yaml:"action,omitempty"` // permit or deny, permit when empty
}
