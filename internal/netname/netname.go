// Package netname derives the deterministic, collision-free bridge and
// TAP interface names used by netd, from a lab's UUID alone. netd is
// the only importer; callers such as the firecracker runtime receive
// the names in netd's create response.
package netname

import (
	"strings"

	"github.com/google/uuid"
)

const (
	bridgePrefix = "obr"
	tapPrefix    = "otp"
	hexLen       = 10
)

// shortHex returns the first 10 hex characters of u, dashes stripped.
func shortHex(u uuid.UUID) string {
	return strings.ReplaceAll(u.String(), "-", "")[:hexLen]
}

// BridgeName returns the deterministic bridge name for a lab, e.g.
// "obr0123456789" — 13 characters, within IFNAMSIZ=15.
func BridgeName(labID uuid.UUID) string {
	return bridgePrefix + shortHex(labID)
}

// TapName returns the deterministic TAP device name for a lab.
func TapName(labID uuid.UUID) string {
	return tapPrefix + shortHex(labID)
}
