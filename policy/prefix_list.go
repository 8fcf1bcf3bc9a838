package policy

import (
	"fmt"
	"net/netip"

	"github.com/encodeous/spindle/state"
	"go4.org/netipx"
)

type prefixListEntry struct {
	set    *netipx.IPSet
	ge, le int
	permit bool
}

// PrefixList matches route prefixes against an ordered list of entries, the first matching entry decides
type PrefixList struct {
	Name    string
	entries []prefixListEntry
}

func CompilePrefixList(cfg state.PrefixListCfg) (*PrefixList, error) {
	pl := &PrefixList{Name: cfg.Name}
	for _, e := range cfg.Entries {
		if err := state.PrefixListEntryValidator(e); err != nil {
			return nil, fmt.Errorf("prefix list %s: %w", cfg.Name, err)
		}
		var b netipx.IPSetBuilder
		b.AddPrefix(e.Prefix.Masked())
		set, err := b.IPSet()
		if err != nil {
			return nil, fmt.Errorf("prefix list %s: %w", cfg.Name, err)
		}
		ge, le := e.Prefix.Bits(), e.Prefix.Bits()
		if e.Ge != 0 {
			ge = int(e.Ge)
			le = e.Prefix.Addr().BitLen()
		}
		if e.Le != 0 {
			le = int(e.Le)
		}
		pl.entries = append(pl.entries, prefixListEntry{
			set:    set,
			ge:     ge,
			le:     le,
			permit: e.Action != "deny",
		})
	}
	return pl, nil
}

// Permits reports whether p is matched by a permit entry before any deny entry
func (pl *PrefixList) Permits(p netip.Prefix) bool {
	for _, e := range pl.entries {
		if p.Bits() < e.ge || p.Bits() > e.le {
			continue
		}
		if e.set.ContainsPrefix(p) {
			return e.permit
		}
	}
	return false
}
