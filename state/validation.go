package state

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
)

var namePattern, _ = regexp.Compile("^[0-9a-z._-]+$")

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(\"%s\") = %d > 100 is too long", s, len(s))
	}
	return nil
}

func duplicates[T any](items []T, key func(T) string) error {
	seen := make(map[string]struct{})
	for _, it := range items {
		k := key(it)
		if _, ok := seen[k]; ok {
			return fmt.Errorf("duplicate %s", k)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// NetworkConfigValidator checks the network description, returning the first problem found. References to undefined
// policies are not errors, such sessions reject everything in that direction.
func NetworkConfigValidator(cfg *NetworkCfg) error {
	if err := duplicates(cfg.Nodes, func(n NodeCfg) string { return "node " + n.Hostname }); err != nil {
		return err
	}
	for i := range cfg.Nodes {
		if err := NodeConfigValidator(&cfg.Nodes[i]); err != nil {
			return fmt.Errorf("node %s: %w", cfg.Nodes[i].Hostname, err)
		}
	}
	if cfg.Engine.MaxRounds < 0 {
		return fmt.Errorf("engine.max_rounds must not be negative")
	}
	if cfg.Engine.Timeout < 0 {
		return fmt.Errorf("engine.timeout must not be negative")
	}
	if cfg.Engine.WarningInterval < 0 {
		return fmt.Errorf("engine.warning_interval must not be negative")
	}
	for _, e := range cfg.Topology {
		if !e.From.Ip.IsValid() || !e.To.Ip.IsValid() {
			return fmt.Errorf("topology edge %s has an invalid address", BgpEdge(e))
		}
	}
	return nil
}

func NodeConfigValidator(node *NodeCfg) error {
	err := NameValidator(node.Hostname)
	if err != nil {
		return err
	}
	if err := duplicates(node.Vrfs, func(v VrfCfg) string { return "vrf " + v.Name }); err != nil {
		return err
	}
	if err := duplicates(node.Policies, func(p PolicyCfg) string { return "policy " + p.Name }); err != nil {
		return err
	}
	if err := duplicates(node.PrefixLists, func(p PrefixListCfg) string { return "prefix list " + p.Name }); err != nil {
		return err
	}
	for _, p := range node.Policies {
		if err := NameValidator(p.Name); err != nil {
			return err
		}
		if p.Default != "" && p.Default != "accept" && p.Default != "reject" {
			return fmt.Errorf("policy %s: default must be accept or reject, got %s", p.Name, p.Default)
		}
	}
	for _, pl := range node.PrefixLists {
		if err := NameValidator(pl.Name); err != nil {
			return err
		}
		for _, e := range pl.Entries {
			if err := PrefixListEntryValidator(e); err != nil {
				return fmt.Errorf("prefix list %s: %w", pl.Name, err)
			}
		}
	}
	for i := range node.Vrfs {
		if err := VrfConfigValidator(node, &node.Vrfs[i]); err != nil {
			return fmt.Errorf("vrf %s: %w", node.Vrfs[i].Name, err)
		}
	}
	return nil
}

func PrefixListEntryValidator(e PrefixListEntryCfg) error {
	if !e.Prefix.IsValid() {
		return fmt.Errorf("entry has an invalid prefix")
	}
	maxBits := uint8(e.Prefix.Addr().BitLen())
	if e.Ge != 0 && (e.Ge < uint8(e.Prefix.Bits()) || e.Ge > maxBits) {
		return fmt.Errorf("entry %s: ge %d out of range", e.Prefix, e.Ge)
	}
	if e.Le != 0 && (e.Le < max(e.Ge, uint8(e.Prefix.Bits())) || e.Le > maxBits) {
		return fmt.Errorf("entry %s: le %d out of range", e.Prefix, e.Le)
	}
	if e.Action != "" && e.Action != "permit" && e.Action != "deny" {
		return fmt.Errorf("entry %s: action must be permit or deny, got %s", e.Prefix, e.Action)
	}
	return nil
}

func VrfConfigValidator(node *NodeCfg, vrf *VrfCfg) error {
	if err := NameValidator(vrf.Name); err != nil {
		return err
	}
	if err := duplicates(vrf.Interfaces, func(i InterfaceCfg) string { return "interface " + i.Name }); err != nil {
		return err
	}
	for _, sr := range vrf.StaticRoutes {
		if !sr.Prefix.IsValid() {
			return fmt.Errorf("static route has an invalid prefix")
		}
		set := 0
		for _, b := range []bool{sr.NextHopIp.IsValid(), sr.NextHopInterface != "", sr.Discard, sr.NextVrf != ""} {
			if b {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("static route %s must have exactly one next hop", sr.Prefix)
		}
		if sr.NextVrf != "" {
			if _, ok := node.Vrf(sr.NextVrf); !ok || sr.NextVrf == vrf.Name {
				return fmt.Errorf("static route %s: next vrf %s not defined", sr.Prefix, sr.NextVrf)
			}
		}
	}
	for _, o := range vrf.OspfRoutes {
		if _, err := o.Protocol(); err != nil {
			return err
		}
		if !o.Prefix.IsValid() || !o.NextHopIp.IsValid() {
			return fmt.Errorf("ospf route %s must have a prefix and a next hop", o.Prefix)
		}
	}
	for _, rg := range vrf.RibGroups {
		if err := NameValidator(rg.Name); err != nil {
			return err
		}
		for _, t := range rg.Targets {
			if t == vrf.Name {
				return fmt.Errorf("rib group %s leaks into its own vrf", rg.Name)
			}
			if _, ok := node.Vrf(t); !ok {
				return fmt.Errorf("rib group %s: vrf %s not defined", rg.Name, t)
			}
		}
	}
	if vrf.Bgp != nil {
		return BgpConfigValidator(vrf.Bgp)
	}
	return nil
}

func BgpConfigValidator(b *BgpProcessCfg) error {
	if b.Asn == 0 {
		return fmt.Errorf("bgp asn must not be 0")
	}
	if !b.RouterId.IsValid() || !b.RouterId.Is4() {
		return fmt.Errorf("bgp router_id must be an ipv4 address")
	}
	for _, r := range b.Redistribute {
		if r.Protocol.IsBgp() {
			return fmt.Errorf("bgp cannot redistribute %s", r.Protocol)
		}
	}
	seen := make([]Pair[string, string], 0)
	for _, p := range b.Peers {
		if !p.LocalIp.IsValid() || !p.RemoteIp.IsValid() {
			return fmt.Errorf("bgp peer must have local_ip and remote_ip")
		}
		if RouteFamily(p.LocalIp) != RouteFamily(p.RemoteIp) {
			return fmt.Errorf("bgp peer %s: local_ip %s is a different address family", p.RemoteIp, p.LocalIp)
		}
		if p.RemoteAsn == 0 {
			return fmt.Errorf("bgp peer %s: remote_asn must not be 0", p.RemoteIp)
		}
		if p.AllowAsIn < 0 || p.AllowAsIn > MaxAllowAsIn {
			return fmt.Errorf("bgp peer %s: allow_as_in must be between 0 and %d", p.RemoteIp, MaxAllowAsIn)
		}
		key := Pair[string, string]{p.LocalIp.String(), p.RemoteIp.String()}
		if slices.Contains(seen, key) {
			return fmt.Errorf("duplicate bgp peer %s", p.RemoteIp)
		}
		seen = append(seen, key)
	}
	return nil
}

// UnresolvedPolicies lists the policy references that do not name a defined policy
func UnresolvedPolicies(cfg *NetworkCfg) []string {
	out := make([]string, 0)
	for _, node := range cfg.Nodes {
		defined := func(name string) bool {
			return name == "" || slices.ContainsFunc(node.Policies, func(p PolicyCfg) bool {
				return p.Name == name
			})
		}
		for _, vrf := range node.Vrfs {
			for _, rg := range vrf.RibGroups {
				if !defined(rg.Policy) {
					out = append(out, fmt.Sprintf("%s/%s rib group %s: policy %s not defined", node.Hostname, vrf.Name, rg.Name, rg.Policy))
				}
			}
			if vrf.Bgp == nil {
				continue
			}
			for _, r := range vrf.Bgp.Redistribute {
				if !defined(r.Policy) {
					out = append(out, fmt.Sprintf("%s/%s redistribute %s: policy %s not defined", node.Hostname, vrf.Name, r.Protocol, r.Policy))
				}
			}
			for _, p := range vrf.Bgp.Peers {
				for _, name := range []string{p.ImportPolicy, p.ExportPolicy} {
					if !defined(name) {
						out = append(out, fmt.Sprintf("%s/%s peer %s: policy %s not defined", node.Hostname, vrf.Name, p.RemoteIp, name))
					}
				}
			}
		}
	}
	return out
}
