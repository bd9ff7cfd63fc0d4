package firecracker

import (
	"os"
	"strings"
)

// writeToken persists the per-VM boot token to the lab's state dir
// (mode 0700, root-owned) rather than the Lab row's RuntimeMeta, which
// is a database column that can end up in an admin API response. The
// token is written once at provision time and read back by DestroyLab
// and InspectLab so they can still authenticate to the guest agent
// after a control-plane restart.
func writeToken(d labDir, token string) error {
	return os.WriteFile(d.tokenPath(), []byte(token), 0o600)
}

func readToken(d labDir) (string, bool) {
	raw, err := os.ReadFile(d.tokenPath())
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(raw)), true
}
