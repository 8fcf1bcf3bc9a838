package state

import (
	"cmp"
	"net/netip"
)

type NextHopKind uint8

const (
	// NextHopNone is used by routes that have not been resolved yet, e.g. locally originated BGP routes
	NextHopNone NextHopKind = iota
	NextHopIp
	NextHopDiscard
	NextHopInterface
	NextHopVrf
)

// NextHop is a tagged variant. Only the fields relevant to Kind are set.
type NextHop struct {
	Kind      NextHopKind
	Ip        netip.Addr
	Interface string
	Vrf       string
}

func NhIp(ip netip.Addr) NextHop {
	return NextHop{Kind: NextHopIp, Ip: ip}
}

func NhDiscard() NextHop {
	return NextHop{Kind: NextHopDiscard}
}

func NhInterface(itf string) NextHop {
	return NextHop{Kind: NextHopInterface, Interface: itf}
}

func NhVrf(vrf string) NextHop {
	return NextHop{Kind: NextHopVrf, Vrf: vrf}
}

func (n NextHop) IsValid() bool {
	return n.Kind != NextHopNone
}

// Compare orders next hops by kind and then by their fields
func (n NextHop) Compare(o NextHop) int {
	if c := cmp.Compare(n.Kind, o.Kind); c != 0 {
		return c
	}
	if c := n.Ip.Compare(o.Ip); c != 0 {
		return c
	}
	if c := cmp.Compare(n.Interface, o.Interface); c != 0 {
		return c
	}
	return cmp.Compare(n.Vrf, o.Vrf)
}

func (n NextHop) String() string {
	switch n.Kind {
	case NextHopIp:
		return n.Ip.String()
	case NextHopDiscard:
		return "discard"
	case NextHopInterface:
		return "iface:" + n.Interface
	case NextHopVrf:
		return "vrf:" + n.Vrf
	}
	return "none"
}

func (n NextHop) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}
