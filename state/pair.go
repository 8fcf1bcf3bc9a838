package state

import "cmp"

type Pair[Ty1, Ty2 any] struct {
	V1 Ty1
	V2 Ty2
}

// NodeVrf names one VRF of a node
type NodeVrf struct {
	Hostname string
	Vrf      string
}

func (n NodeVrf) Compare(o NodeVrf) int {
	if c := cmp.Compare(n.Hostname, o.Hostname); c != 0 {
		return c
	}
	return cmp.Compare(n.Vrf, o.Vrf)
}

func (n NodeVrf) String() string {
	return n.Hostname + "/" + n.Vrf
}
