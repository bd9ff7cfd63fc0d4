package firecracker

import (
	"fmt"
	"strconv"

	"github.com/coreos/go-iptables/iptables"
	"github.com/google/uuid"

	"octolab/internal/iptablesutil"
)

const dnatBasePort = 20000

// dnatHostPort deterministically maps a lab to a host port in
// [20000, 65000) so a restarted control plane recomputes the
// same mapping instead of needing to persist a separately-allocated one.
func dnatHostPort(labID uuid.UUID) int {
	b := labID[4:6]
	offset := (int(b[0])<<8 | int(b[1])) % (65000 - dnatBasePort)
	return dnatBasePort + offset
}

func dnatComment(labID uuid.UUID) string {
	return "octolab-lab-" + labID.String()
}

// installDNAT adds a host PREROUTING rule forwarding hostPort to
// guestIP:guestPort, tagged with the same comment convention netd uses
// for its own NAT rules so both can be audited the same way.
func installDNAT(labID uuid.UUID, hostPort int, guestIP string, guestPort int) error {
	ipt, err := iptables.New()
	if err != nil {
		return fmt.Errorf("initializing iptables: %w", err)
	}

	rule := []string{
		"-p", "tcp",
		"--dport", strconv.Itoa(hostPort),
		"-m", "comment", "--comment", dnatComment(labID),
		"-j", "DNAT",
		"--to-destination", fmt.Sprintf("%s:%d", guestIP, guestPort),
	}

	exists, err := ipt.Exists("nat", "PREROUTING", rule...)
	if err != nil {
		return fmt.Errorf("checking existing dnat rule: %w", err)
	}
	if exists {
		return nil
	}
	return ipt.Append("nat", "PREROUTING", rule...)
}

// removeDNAT deletes the PREROUTING rule installed by installDNAT for
// this lab, tolerating a rule that is already gone.
func removeDNAT(labID uuid.UUID, hostPort int) error {
	ipt, err := iptables.New()
	if err != nil {
		return fmt.Errorf("initializing iptables: %w", err)
	}

	rules, err := ipt.List("nat", "PREROUTING")
	if err != nil {
		return fmt.Errorf("listing prerouting rules: %w", err)
	}

	comment := dnatComment(labID)
	for _, line := range rules {
		if !iptablesutil.ContainsComment(line, comment) {
			continue
		}
		args := iptablesutil.ParseChainRuleArgs(line)
		if len(args) == 0 {
			continue
		}
		_ = ipt.Delete("nat", "PREROUTING", args...)
	}
	return nil
}
