package firecracker

import (
	"encoding/binary"
	"fmt"

	sdk "github.com/firecracker-microvm/firecracker-go-sdk"
	"github.com/firecracker-microvm/firecracker-go-sdk/client/models"
	"github.com/google/uuid"

	"octolab/internal/utils"
)

// cidFor derives a deterministic, collision-resistant vsock CID from a
// lab's UUID. CIDs 0-2 are reserved by the vsock address family.
func cidFor(labID uuid.UUID) uint32 {
	b := labID[:4]
	v := binary.BigEndian.Uint32(b)
	if v < 3 {
		v += 3
	}
	return v
}

// bootToken generates a fresh per-VM secret. It is handed to the guest
// only via the kernel cmdline and is never written to any log.
func bootToken() (string, error) {
	token, err := utils.GenerateSecureToken(32)
	if err != nil {
		return "", fmt.Errorf("generating boot token: %w", err)
	}
	return token, nil
}

func kernelArgs(token string) string {
	return fmt.Sprintf("console=ttyS0 reboot=k panic=1 pci=off ip=dhcp octolab.token=%s", token)
}

// buildMachineConfig assembles the firecracker-go-sdk configuration for
// a lab's microVM: one rootfs drive (a COW overlay prepared by the
// caller), one TAP-backed network interface, and one vsock device for
// the guest agent.
func buildMachineConfig(cfg Config, d labDir, tapName string, labID uuid.UUID, token string) sdk.Config {
	return sdk.Config{
		SocketPath:      d.socketPath(),
		KernelImagePath: cfg.KernelPath,
		KernelArgs:      kernelArgs(token),
		Drives: []models.Drive{
			{
				DriveID:      sdk.String("rootfs"),
				PathOnHost:   sdk.String(d.rootfsPath()),
				IsRootDevice: sdk.Bool(true),
				IsReadOnly:   sdk.Bool(false),
			},
		},
		NetworkInterfaces: sdk.NetworkInterfaces{
			{
				StaticConfiguration: &sdk.StaticNetworkConfiguration{
					HostDevName: tapName,
				},
			},
		},
		VsockDevices: []sdk.VsockDevice{
			{Path: d.root + "/vsock.sock", CID: cidFor(labID)},
		},
		MachineCfg: models.MachineConfiguration{
			VcpuCount:  sdk.Int64(cfg.VCPUCount),
			MemSizeMib: sdk.Int64(cfg.MemMiB),
		},
	}
}

