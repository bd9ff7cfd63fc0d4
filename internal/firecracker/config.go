// Package firecracker implements the production VM-isolation runtime:
// one microVM per lab, booted from a COW rootfs overlay, networked
// through netd-managed bridge/TAP devices, and driven over vsock by
// the guest agent.
package firecracker

import (
	"fmt"
	"time"

	"octolab/internal/apperr"
)

// Config is this runtime's slice of AppConfig, passed through the
// generic map every runtime.Creator receives.
type Config struct {
	KernelPath       string
	RootfsBasePath   string
	StateDir         string
	FirecrackerPath  string
	JailerPath       string
	VCPUCount        int64
	MemMiB           int64
	BootTimeout      time.Duration
	VsockPort        uint32
	NetdSocketPath   string
	UnsafeNoJailer   bool
	Env              string
}

func configFromMap(cfg map[string]interface{}) (Config, error) {
	c := Config{
		VCPUCount:   2,
		MemMiB:      1024,
		BootTimeout: 30 * time.Second,
		VsockPort:   5000,
	}

	str := func(key string) (string, bool) {
		v, ok := cfg[key].(string)
		return v, ok
	}

	var ok bool
	if c.KernelPath, ok = str("kernel_path"); !ok || c.KernelPath == "" {
		return Config{}, fmt.Errorf("firecracker: missing kernel_path")
	}
	if c.RootfsBasePath, ok = str("rootfs_base_path"); !ok || c.RootfsBasePath == "" {
		return Config{}, fmt.Errorf("firecracker: missing rootfs_base_path")
	}
	if c.StateDir, ok = str("state_dir"); !ok || c.StateDir == "" {
		return Config{}, fmt.Errorf("firecracker: missing state_dir")
	}
	if v, ok := str("firecracker_path"); ok && v != "" {
		c.FirecrackerPath = v
	} else {
		c.FirecrackerPath = "firecracker"
	}
	if v, ok := str("jailer_path"); ok && v != "" {
		c.JailerPath = v
	} else {
		c.JailerPath = "jailer"
	}
	if v, ok := str("netd_socket"); ok && v != "" {
		c.NetdSocketPath = v
	} else {
		c.NetdSocketPath = "/run/octolab/microvm-netd.sock"
	}
	if v, ok := cfg["vcpu_count"].(int64); ok && v > 0 {
		c.VCPUCount = v
	}
	if v, ok := cfg["mem_mib"].(int64); ok && v > 0 {
		c.MemMiB = v
	}
	if v, ok := cfg["boot_timeout_secs"].(int64); ok && v > 0 {
		c.BootTimeout = time.Duration(v) * time.Second
	}
	if v, ok := cfg["vsock_port"].(int64); ok && v > 0 {
		c.VsockPort = uint32(v)
	}
	c.UnsafeNoJailer, _ = cfg["unsafe_allow_no_jailer"].(bool)
	c.Env, _ = cfg["env"].(string)

	if c.UnsafeNoJailer && c.Env != "development" {
		return Config{}, apperr.Validation("firecracker.configFromMap",
			fmt.Errorf("unsafe_allow_no_jailer requires env=development, got %q", c.Env))
	}

	return c, nil
}
