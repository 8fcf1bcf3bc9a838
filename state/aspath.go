package state

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"
)

const (
	AsSequence uint8 = bgp.BGP_ASPATH_ATTR_TYPE_SEQ
	AsSet      uint8 = bgp.BGP_ASPATH_ATTR_TYPE_SET
)

// AsSegment is either an ordered AS sequence or an unordered AS set
type AsSegment struct {
	Type uint8
	Asns []uint32
}

// AsPath is an immutable list of segments. The first ASN of the first sequence is the neighbouring AS and
// the last ASN is the route's origin.
type AsPath struct {
	segs []AsSegment
}

// NewAsPath returns a path that consists of a single sequence.
func NewAsPath(asns ...uint32) AsPath {
	if len(asns) == 0 {
		return AsPath{}
	}
	return AsPath{segs: []AsSegment{{Type: AsSequence, Asns: slices.Clone(asns)}}}
}

func NewAsPathFromSegments(segs ...AsSegment) AsPath {
	out := make([]AsSegment, 0, len(segs))
	for _, s := range segs {
		if len(s.Asns) == 0 {
			continue
		}
		asns := slices.Clone(s.Asns)
		if s.Type == AsSet {
			slices.Sort(asns)
			asns = slices.Compact(asns)
		}
		out = append(out, AsSegment{Type: s.Type, Asns: asns})
	}
	if len(out) == 0 {
		return AsPath{}
	}
	return AsPath{segs: out}
}

func (p AsPath) Segments() []AsSegment {
	out := make([]AsSegment, len(p.segs))
	for i, s := range p.segs {
		out[i] = AsSegment{Type: s.Type, Asns: slices.Clone(s.Asns)}
	}
	return out
}

// Length is the number of ASNs in sequences plus one for every AS set.
func (p AsPath) Length() int {
	l := 0
	for _, s := range p.segs {
		if s.Type == AsSet {
			l++
		} else {
			l += len(s.Asns)
		}
	}
	return l
}

func (p AsPath) IsEmpty() bool {
	return len(p.segs) == 0
}

// Count returns how many times asn occurs anywhere in the path
func (p AsPath) Count(asn uint32) int {
	n := 0
	for _, s := range p.segs {
		for _, a := range s.Asns {
			if a == asn {
				n++
			}
		}
	}
	return n
}

func (p AsPath) Contains(asn uint32) bool {
	return p.Count(asn) > 0
}

// First returns the neighbouring AS, or 0 when the path does not start with a sequence.
func (p AsPath) First() uint32 {
	if len(p.segs) == 0 || p.segs[0].Type != AsSequence {
		return 0
	}
	return p.segs[0].Asns[0]
}

// Origin returns the AS that originated the route, or 0 for an empty path or one that ends in a set.
func (p AsPath) Origin() uint32 {
	if len(p.segs) == 0 {
		return 0
	}
	last := p.segs[len(p.segs)-1]
	if last.Type != AsSequence {
		return 0
	}
	return last.Asns[len(last.Asns)-1]
}

// Prepend returns a new path with asns inserted at the front of the leading sequence
func (p AsPath) Prepend(asns ...uint32) AsPath {
	if len(asns) == 0 {
		return p
	}
	segs := p.Segments()
	if len(segs) > 0 && segs[0].Type == AsSequence {
		segs[0].Asns = append(slices.Clone(asns), segs[0].Asns...)
		return AsPath{segs: segs}
	}
	return AsPath{segs: append([]AsSegment{{Type: AsSequence, Asns: slices.Clone(asns)}}, segs...)}
}

// Asns flattens the path. Sets are included in their sorted order.
func (p AsPath) Asns() []uint32 {
	out := make([]uint32, 0)
	for _, s := range p.segs {
		out = append(out, s.Asns...)
	}
	return out
}

func (p AsPath) Equal(o AsPath) bool {
	return slices.EqualFunc(p.segs, o.segs, func(a, b AsSegment) bool {
		return a.Type == b.Type && slices.Equal(a.Asns, b.Asns)
	})
}

// String renders sequences space separated and sets in braces, e.g. "2 4 {3,5}"
func (p AsPath) String() string {
	parts := make([]string, 0, len(p.segs))
	for _, s := range p.segs {
		asns := make([]string, len(s.Asns))
		for i, a := range s.Asns {
			asns[i] = strconv.FormatUint(uint64(a), 10)
		}
		if s.Type == AsSet {
			parts = append(parts, "{"+strings.Join(asns, ",")+"}")
		} else {
			parts = append(parts, strings.Join(asns, " "))
		}
	}
	return strings.Join(parts, " ")
}

func ParseAsPath(s string) (AsPath, error) {
	var segs []AsSegment
	var seq []uint32
	flush := func() {
		if len(seq) > 0 {
			segs = append(segs, AsSegment{Type: AsSequence, Asns: seq})
			seq = nil
		}
	}
	fields := strings.Fields(strings.ReplaceAll(s, ",", ", "))
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if strings.HasPrefix(f, "{") {
			flush()
			var set []uint32
			for {
				tok := strings.Trim(fields[i], "{},")
				if tok != "" {
					v, err := strconv.ParseUint(tok, 10, 32)
					if err != nil {
						return AsPath{}, fmt.Errorf("invalid asn %q in as-set: %w", tok, err)
					}
					set = append(set, uint32(v))
				}
				if strings.HasSuffix(fields[i], "}") {
					break
				}
				i++
				if i >= len(fields) {
					return AsPath{}, fmt.Errorf("unterminated as-set in %q", s)
				}
			}
			segs = append(segs, AsSegment{Type: AsSet, Asns: set})
			continue
		}
		v, err := strconv.ParseUint(strings.Trim(f, ","), 10, 32)
		if err != nil {
			return AsPath{}, fmt.Errorf("invalid asn %q: %w", f, err)
		}
		seq = append(seq, uint32(v))
	}
	flush()
	return NewAsPathFromSegments(segs...), nil
}

func (p AsPath) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *AsPath) UnmarshalText(text []byte) error {
	v, err := ParseAsPath(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Compare is a structural order over paths, it does not rank them for best path selection
func (p AsPath) Compare(o AsPath) int {
	return slices.CompareFunc(p.segs, o.segs, func(a, b AsSegment) int {
		if a.Type != b.Type {
			return int(a.Type) - int(b.Type)
		}
		return slices.Compare(a.Asns, b.Asns)
	})
}
