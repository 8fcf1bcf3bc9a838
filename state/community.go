package state

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"
)

// Community is an RFC 1997 community value.
type Community struct {
	Origin uint16
	Value  uint16
}

var (
	NoExport    = CommunityFromUint32(uint32(bgp.COMMUNITY_NO_EXPORT))
	NoAdvertise = CommunityFromUint32(uint32(bgp.COMMUNITY_NO_ADVERTISE))
)

func CommunityFromUint32(v uint32) Community {
	return Community{Origin: uint16(v >> 16), Value: uint16(v)}
}

func (c Community) Uint32() uint32 {
	return uint32(c.Origin)<<16 | uint32(c.Value)
}

func (c Community) Compare(o Community) int {
	return cmp.Compare(c.Uint32(), o.Uint32())
}

func (c Community) IsWellKnown() bool {
	_, ok := bgp.WellKnownCommunityNameMap[bgp.WellKnownCommunity(c.Uint32())]
	return ok
}

// String returns the well known name for reserved communities, and origin:value otherwise
func (c Community) String() string {
	if name, ok := bgp.WellKnownCommunityNameMap[bgp.WellKnownCommunity(c.Uint32())]; ok {
		return name
	}
	return fmt.Sprintf("%d:%d", c.Origin, c.Value)
}

// ParseCommunity parses a community in "origin:value" notation, or one of the well known names such as "no-export".
func ParseCommunity(s string) (Community, error) {
	s = strings.TrimSpace(s)
	if v, ok := bgp.WellKnownCommunityValueMap[strings.ToLower(s)]; ok {
		return CommunityFromUint32(uint32(v)), nil
	}
	origin, value, ok := strings.Cut(s, ":")
	if !ok {
		return Community{}, fmt.Errorf("invalid community %q, expected origin:value", s)
	}
	o, err := strconv.ParseUint(origin, 10, 16)
	if err != nil {
		return Community{}, fmt.Errorf("invalid community origin %q: %w", origin, err)
	}
	v, err := strconv.ParseUint(value, 10, 16)
	if err != nil {
		return Community{}, fmt.Errorf("invalid community value %q: %w", value, err)
	}
	return Community{Origin: uint16(o), Value: uint16(v)}, nil
}

func (c Community) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Community) UnmarshalText(text []byte) error {
	v, err := ParseCommunity(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// CommunitySet is an immutable sorted set of communities
type CommunitySet struct {
	items []Community
}

func NewCommunitySet(cs ...Community) CommunitySet {
	items := slices.Clone(cs)
	slices.SortFunc(items, Community.Compare)
	items = slices.Compact(items)
	if len(items) == 0 {
		return CommunitySet{}
	}
	return CommunitySet{items: items}
}

func (s CommunitySet) Has(c Community) bool {
	_, found := slices.BinarySearchFunc(s.items, c, Community.Compare)
	return found
}

func (s CommunitySet) With(cs ...Community) CommunitySet {
	return NewCommunitySet(append(slices.Clone(s.items), cs...)...)
}

func (s CommunitySet) Without(cs ...Community) CommunitySet {
	out := make([]Community, 0, len(s.items))
	for _, c := range s.items {
		if !slices.Contains(cs, c) {
			out = append(out, c)
		}
	}
	return NewCommunitySet(out...)
}

func (s CommunitySet) Len() int {
	return len(s.items)
}

func (s CommunitySet) Slice() []Community {
	return slices.Clone(s.items)
}

func (s CommunitySet) Equal(o CommunitySet) bool {
	return slices.Equal(s.items, o.items)
}

func (s CommunitySet) Compare(o CommunitySet) int {
	return slices.CompareFunc(s.items, o.items, Community.Compare)
}

func (s CommunitySet) String() string {
	parts := make([]string, len(s.items))
	for i, c := range s.items {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

func (s CommunitySet) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *CommunitySet) UnmarshalText(text []byte) error {
	fields := strings.Fields(string(text))
	cs := make([]Community, 0, len(fields))
	for _, f := range fields {
		c, err := ParseCommunity(f)
		if err != nil {
			return err
		}
		cs = append(cs, c)
	}
	*s = NewCommunitySet(cs...)
	return nil
}
