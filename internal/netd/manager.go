package netd

import (
	"fmt"
	"net"

	"github.com/coreos/go-iptables/iptables"
	"github.com/google/uuid"
	"github.com/vishvananda/netlink"

	"octolab/internal/iptablesutil"
	"octolab/internal/netname"
)

// Manager owns the actual netlink/iptables mutations. It is the only
// type in the process that is allowed to touch kernel network state;
// the server wraps it with the wire protocol and request validation.
type Manager struct {
	ipt *iptables.IPTables
}

// NewManager constructs a Manager backed by the host's iptables binary.
func NewManager() (*Manager, error) {
	ipt, err := iptables.New()
	if err != nil {
		return nil, fmt.Errorf("initializing iptables: %w", err)
	}
	return &Manager{ipt: ipt}, nil
}

// subnetFor deterministically derives a /30 host-only subnet for a lab
// from the first byte of its UUID, so every lab gets a distinct link
// without a central IPAM allocation step.
func subnetFor(labID uuid.UUID) (bridgeAddr *net.IPNet, network *net.IPNet) {
	b := labID[:]
	octet3 := b[0]
	bridgeIP := net.IPv4(10, 200, octet3, 1)
	network = &net.IPNet{IP: net.IPv4(10, 200, octet3, 0), Mask: net.CIDRMask(30, 32)}
	bridgeAddr = &net.IPNet{IP: bridgeIP, Mask: net.CIDRMask(30, 32)}
	return
}

// natComment tags every iptables rule this Manager installs so Destroy
// can remove exactly the rules it created, and nothing else.
func natComment(labID uuid.UUID) string {
	return "octolab-lab-" + labID.String()
}

// Create is idempotent: if the bridge/TAP already exist for labID, it
// returns their names without erroring.
func (m *Manager) Create(labID uuid.UUID) (bridge, tap string, err error) {
	bridgeName := netname.BridgeName(labID)
	tapName := netname.TapName(labID)
	bridgeAddr, network := subnetFor(labID)

	br, err := ensureBridge(bridgeName, bridgeAddr)
	if err != nil {
		return "", "", fmt.Errorf("ensuring bridge %s: %w", bridgeName, err)
	}

	if err := ensureTap(tapName, br); err != nil {
		// Roll back the bridge whether this call created it or found
		// it already present: a bridge with no TAP is never a valid end
		// state for create.
		_ = deleteLink(bridgeName)
		return "", "", fmt.Errorf("ensuring tap %s: %w", tapName, err)
	}

	if err := m.ensureNAT(labID, network); err != nil {
		_ = deleteLink(tapName)
		_ = deleteLink(bridgeName)
		return "", "", fmt.Errorf("installing NAT rules for %s: %w", labID, err)
	}

	return bridgeName, tapName, nil
}

// Destroy is idempotent: missing devices or rules are not an error.
func (m *Manager) Destroy(labID uuid.UUID) (bridgeDeleted, tapDeleted string, err error) {
	bridgeName := netname.BridgeName(labID)
	tapName := netname.TapName(labID)

	if err := m.removeNAT(labID); err != nil {
		return "", "", fmt.Errorf("removing NAT rules for %s: %w", labID, err)
	}
	if err := deleteLink(tapName); err != nil {
		return "", "", fmt.Errorf("deleting tap %s: %w", tapName, err)
	}
	if err := deleteLink(bridgeName); err != nil {
		return "", "", fmt.Errorf("deleting bridge %s: %w", bridgeName, err)
	}
	return bridgeName, tapName, nil
}

func ensureBridge(name string, addr *net.IPNet) (*netlink.Bridge, error) {
	link, err := netlink.LinkByName(name)
	if err == nil {
		if br, ok := link.(*netlink.Bridge); ok {
			return br, nil
		}
		return nil, fmt.Errorf("existing link %s is not a bridge", name)
	}
	if _, ok := err.(netlink.LinkNotFoundError); !ok {
		return nil, err
	}

	br := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: name}}
	if err := netlink.LinkAdd(br); err != nil {
		return nil, fmt.Errorf("creating bridge: %w", err)
	}
	if err := netlink.AddrAdd(br, &netlink.Addr{IPNet: addr}); err != nil {
		return nil, fmt.Errorf("assigning address: %w", err)
	}
	if err := netlink.LinkSetUp(br); err != nil {
		return nil, fmt.Errorf("bringing bridge up: %w", err)
	}
	return br, nil
}

func ensureTap(name string, bridge *netlink.Bridge) error {
	if link, err := netlink.LinkByName(name); err == nil {
		if link.Attrs().MasterIndex == bridge.Attrs().Index {
			return nil
		}
		return netlink.LinkSetMaster(link, bridge)
	}

	tap := &netlink.Tuntap{
		LinkAttrs: netlink.LinkAttrs{Name: name, MasterIndex: bridge.Attrs().Index},
		Mode:      netlink.TUNTAP_MODE_TAP,
		Flags:     netlink.TUNTAP_ONE_QUEUE | netlink.TUNTAP_VNET_HDR,
	}
	if err := netlink.LinkAdd(tap); err != nil {
		return fmt.Errorf("creating tap: %w", err)
	}
	return netlink.LinkSetUp(tap)
}

func deleteLink(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		if _, ok := err.(netlink.LinkNotFoundError); ok {
			return nil
		}
		return err
	}
	return netlink.LinkDel(link)
}

func (m *Manager) ensureNAT(labID uuid.UUID, network *net.IPNet) error {
	comment := natComment(labID)
	rule := []string{
		"-s", network.String(),
		"-m", "comment", "--comment", comment,
		"-j", "MASQUERADE",
	}
	exists, err := m.ipt.Exists("nat", "POSTROUTING", rule...)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return m.ipt.Append("nat", "POSTROUTING", rule...)
}

func (m *Manager) removeNAT(labID uuid.UUID) error {
	comment := natComment(labID)
	rules, err := m.ipt.List("nat", "POSTROUTING")
	if err != nil {
		return err
	}
	for _, r := range rules {
		if !iptablesutil.ContainsComment(r, comment) {
			continue
		}
		args := iptablesutil.ParseChainRuleArgs(r)
		if len(args) == 0 {
			continue
		}
		if err := m.ipt.Delete("nat", "POSTROUTING", args...); err != nil {
			return err
		}
	}
	return nil
}
