package state

import (
	"fmt"
	"strings"
)

// Protocol identifies the source of a route
type Protocol uint8

const (
	Connected Protocol = iota
	Local
	Static
	Ospf
	OspfIA
	OspfE1
	OspfE2
	Bgp
	Ibgp
	Aggregate
)

var protocolNames = map[Protocol]string{
	Connected: "connected",
	Local:     "local",
	Static:    "static",
	Ospf:      "ospf",
	OspfIA:    "ospf-ia",
	OspfE1:    "ospf-e1",
	OspfE2:    "ospf-e2",
	Bgp:       "bgp",
	Ibgp:      "ibgp",
	Aggregate: "aggregate",
}

// DefaultAdminDistance returns the administrative distance a route of this protocol gets when none is configured.
func (p Protocol) DefaultAdminDistance() uint8 {
	switch p {
	case Connected, Local:
		return 0
	case Static:
		return 1
	case Bgp:
		return 20
	case Ospf, OspfIA, OspfE1, OspfE2:
		return 110
	case Ibgp, Aggregate:
		return 200
	}
	return 255
}

func (p Protocol) IsBgp() bool {
	return p == Bgp || p == Ibgp
}

func (p Protocol) IsOspf() bool {
	return p == Ospf || p == OspfIA || p == OspfE1 || p == OspfE2
}

// IsIgp is true for every protocol that has to be settled before BGP best path selection can read next hop distances.
func (p Protocol) IsIgp() bool {
	return p == Connected || p == Local || p == Static || p.IsOspf()
}

func (p Protocol) String() string {
	if s, ok := protocolNames[p]; ok {
		return s
	}
	return fmt.Sprintf("protocol(%d)", uint8(p))
}

func ParseProtocol(s string) (Protocol, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, name := range protocolNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown protocol %q", s)
}

func (p Protocol) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Protocol) UnmarshalText(text []byte) error {
	v, err := ParseProtocol(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
