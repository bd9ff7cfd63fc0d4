// Package iptablesutil holds small parsing helpers shared by every
// component that installs and later has to find-and-remove its own
// iptables rules by comment tag (netd's NAT/MASQUERADE rules, the
// firecracker runtime's per-lab DNAT rules).
package iptablesutil

import "strings"

// ContainsComment reports whether an iptables-save style rule line
// carries the given --comment value.
func ContainsComment(ruleLine, comment string) bool {
	return strings.Contains(ruleLine, `--comment `+comment) || strings.Contains(ruleLine, `--comment "`+comment+`"`)
}

// ParseChainRuleArgs turns a "-A <chain> ..." rule-save line back into
// the []string rulespec go-iptables' Delete expects. It assumes no
// argument (in particular, the UUID-based comment text these packages
// generate) contains whitespace.
func ParseChainRuleArgs(ruleLine string) []string {
	fields := strings.Fields(ruleLine)
	for i, f := range fields {
		if f == "-A" && i+1 < len(fields) {
			return fields[i+2:]
		}
	}
	return nil
}
