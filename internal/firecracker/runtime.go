package firecracker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	sdk "github.com/firecracker-microvm/firecracker-go-sdk"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"octolab/internal/apperr"
	"octolab/internal/ent"
	"octolab/internal/enum"
	"octolab/internal/guestagent"
	"octolab/internal/logger"
	"octolab/internal/netd"
	"octolab/internal/runtime"
)

func init() {
	runtime.Register(enum.RuntimeFirecracker, func(ctx context.Context, cfg map[string]interface{}) (runtime.Runtime, error) {
		return New(cfg)
	})
}

// Runtime implements runtime.Runtime by launching one Firecracker
// microVM per lab, wired through netd for networking and the guest
// agent over vsock for in-VM orchestration. It keeps no in-memory
// record of running VMs: everything it needs to find and signal a VM
// again is re-derived from the lab's persisted RuntimeMeta and the
// on-disk state dir, per the PID-reuse guard in pidguard.go.
type Runtime struct {
	cfg        Config
	netdClient *netd.Client
}

func New(cfgMap map[string]interface{}) (*Runtime, error) {
	cfg, err := configFromMap(cfgMap)
	if err != nil {
		return nil, err
	}
	return &Runtime{
		cfg:        cfg,
		netdClient: netd.NewClient(cfg.NetdSocketPath),
	}, nil
}

func (r *Runtime) Name() enum.RuntimeType { return enum.RuntimeFirecracker }

// Doctor is a pure check: kvm access, kernel/rootfs presence, netd
// reachability, jailer binary (unless unsafe-no-jailer dev mode).
func (r *Runtime) Doctor(ctx context.Context) (runtime.DoctorReport, error) {
	report := runtime.DoctorReport{Runtime: enum.RuntimeFirecracker}
	add := func(name string, ok bool, sev runtime.Severity, details, hint string) {
		report.Checks = append(report.Checks, runtime.DoctorCheck{Name: name, OK: ok, Severity: sev, Details: details, Hint: hint})
	}

	if _, err := os.Stat("/dev/kvm"); err != nil {
		add("/dev/kvm", false, runtime.SeverityFatal, err.Error(), "enable KVM and grant the service user access")
	} else {
		add("/dev/kvm", true, runtime.SeverityInfo, "", "")
	}

	if _, err := os.Stat("/dev/vhost-vsock"); err != nil {
		add("/dev/vhost-vsock", false, runtime.SeverityFatal, err.Error(), "load the vhost_vsock kernel module")
	} else {
		add("/dev/vhost-vsock", true, runtime.SeverityInfo, "", "")
	}

	if _, err := os.Stat(r.cfg.KernelPath); err != nil {
		add("kernel image", false, runtime.SeverityFatal, err.Error(), "set microvm.kernel_path to a valid uncompressed kernel image")
	} else {
		add("kernel image", true, runtime.SeverityInfo, "", "")
	}

	if _, err := os.Stat(r.cfg.RootfsBasePath); err != nil {
		add("base rootfs", false, runtime.SeverityFatal, err.Error(), "set microvm.rootfs_base_path to a valid base rootfs image")
	} else {
		add("base rootfs", true, runtime.SeverityInfo, "", "")
	}

	if _, err := exec.LookPath(r.cfg.FirecrackerPath); err != nil {
		add("firecracker binary", false, runtime.SeverityFatal, err.Error(), "install firecracker or set microvm.firecracker_path")
	} else {
		add("firecracker binary", true, runtime.SeverityInfo, "", "")
	}

	if r.cfg.UnsafeNoJailer {
		add("jailer", true, runtime.SeverityWarn, "dev.unsafe_allow_no_jailer is set", "never enable this outside development")
	} else if _, err := exec.LookPath(r.cfg.JailerPath); err != nil {
		add("jailer binary", false, runtime.SeverityFatal, err.Error(), "install jailer or set microvm.jailer_path")
	} else {
		add("jailer binary", true, runtime.SeverityInfo, "", "")
	}

	if err := r.netdClient.Ping(); err != nil {
		add("netd", false, runtime.SeverityFatal, err.Error(), "ensure the netd daemon is running and its socket is reachable")
	} else {
		add("netd", true, runtime.SeverityInfo, "", "")
	}

	return report, nil
}

// Smoke boots and destroys a throwaway microVM end to end, including
// the guest-agent ping, to catch integration failures Doctor can't see.
func (r *Runtime) Smoke(ctx context.Context) (runtime.SmokeResult, error) {
	start := time.Now()
	labID := uuid.New()

	lab := &ent.Lab{ID: labID}

	bootStart := time.Now()
	if err := r.ProvisionLab(ctx, lab); err != nil {
		return runtime.SmokeResult{Runtime: enum.RuntimeFirecracker, OK: false, Error: err.Error(), TotalDuration: time.Since(start)}, nil
	}
	bootDuration := time.Since(bootStart)

	if err := r.DestroyLab(ctx, lab); err != nil {
		return runtime.SmokeResult{Runtime: enum.RuntimeFirecracker, OK: false, Error: err.Error(), BootDuration: bootDuration, TotalDuration: time.Since(start)}, nil
	}

	return runtime.SmokeResult{
		Runtime:       enum.RuntimeFirecracker,
		OK:            true,
		BootDuration:  bootDuration,
		TotalDuration: time.Since(start),
	}, nil
}

// ProvisionLab runs the full sequence from spec.md §4.4: netd-backed
// networking, state dir, VM boot, guest agent handshake, bundle
// upload, compose up inside the guest, then sets a connection URL
// computed from the host-side DNAT mapping; the caller persists READY.
func (r *Runtime) ProvisionLab(ctx context.Context, lab *ent.Lab) error {
	ctx = logger.WithFields(ctx, zap.String("lab_id", lab.ID.String()))
	log := logger.GetLogger(ctx)

	netRes, err := r.netdClient.Create(lab.ID)
	if err != nil {
		return apperr.ExternalFailure("firecracker.ProvisionLab", fmt.Errorf("netd create: %w", err))
	}

	d := newLabDir(r.cfg.StateDir, lab.ID)
	if err := d.ensure(); err != nil {
		_, _ = r.netdClient.Destroy(lab.ID)
		return apperr.ExternalFailure("firecracker.ProvisionLab", err)
	}

	if err := prepareRootfsOverlay(r.cfg.RootfsBasePath, d.rootfsPath()); err != nil {
		_ = d.remove()
		_, _ = r.netdClient.Destroy(lab.ID)
		return apperr.ExternalFailure("firecracker.ProvisionLab", err)
	}

	token, err := bootToken()
	if err != nil {
		_ = d.remove()
		_, _ = r.netdClient.Destroy(lab.ID)
		return apperr.ExternalFailure("firecracker.ProvisionLab", err)
	}
	if err := writeToken(d, token); err != nil {
		_ = d.remove()
		_, _ = r.netdClient.Destroy(lab.ID)
		return apperr.ExternalFailure("firecracker.ProvisionLab", err)
	}

	fcCfg := buildMachineConfig(r.cfg, d, netRes.Tap, lab.ID, token)

	cmd, err := r.launch(ctx, d, lab.ID.String())
	if err != nil {
		_ = d.remove()
		_, _ = r.netdClient.Destroy(lab.ID)
		return apperr.ExternalFailure("firecracker.ProvisionLab", fmt.Errorf("launching vmm: %w", err))
	}
	if err := writePID(d, cmd.Process.Pid); err != nil {
		log.Warn("failed recording vmm pid", zap.Error(err))
	}

	rollback := func(cause error) error {
		_ = signalVM(d, syscall.SIGKILL)
		_ = d.remove()
		_, _ = r.netdClient.Destroy(lab.ID)
		return apperr.ExternalFailure("firecracker.ProvisionLab", cause)
	}

	machine, err := sdk.NewMachine(ctx, fcCfg, sdk.WithProcessRunner(cmd))
	if err != nil {
		return rollback(fmt.Errorf("configuring machine: %w", err))
	}
	if err := machine.Start(ctx); err != nil {
		return rollback(fmt.Errorf("starting machine: %w", err))
	}

	cid := cidFor(lab.ID)
	agent := guestagent.NewClient(cid, token)

	bootCtx, cancel := context.WithTimeout(ctx, r.cfg.BootTimeout)
	defer cancel()
	if err := waitForAgent(bootCtx, agent); err != nil {
		return rollback(fmt.Errorf("guest agent did not come up within %s: %w", r.cfg.BootTimeout, err))
	}

	bundle, err := buildComposeBundle(lab)
	if err != nil {
		return rollback(fmt.Errorf("building compose bundle: %w", err))
	}
	if _, err := agent.UploadProject(ctx, bundle); err != nil {
		return rollback(fmt.Errorf("uploading project: %w", err))
	}
	if _, err := agent.ComposeUp(ctx); err != nil {
		return rollback(fmt.Errorf("compose up in guest: %w", err))
	}

	hostPort := dnatHostPort(lab.ID)
	guestIP := "172.16.0.2"
	if err := installDNAT(lab.ID, hostPort, guestIP, 6080); err != nil {
		return rollback(fmt.Errorf("installing dnat: %w", err))
	}

	lab.ConnectionURL = fmt.Sprintf("vnc://127.0.0.1:%d", hostPort)
	lab.RuntimeMeta = map[string]interface{}{
		"vm_id":               lab.ID.String(),
		"state_dir_basename":  lab.ID.String(),
		"firecracker_pid":     cmd.Process.Pid,
		"vsock_cid":           cid,
		"bridge":              netRes.Bridge,
		"tap":                 netRes.Tap,
		"dnat_host_port":      hostPort,
	}

	log.Info("lab provisioned", zap.Int("host_port", hostPort))
	return nil
}

// launch starts the firecracker (or jailer-wrapped firecracker)
// process without waiting for it; the caller hands the *exec.Cmd to
// the SDK via WithProcessRunner so the SDK's own start logic is
// bypassed but its socket-wait and configuration logic still apply.
func (r *Runtime) launch(ctx context.Context, d labDir, labIDShort string) (*exec.Cmd, error) {
	if r.cfg.UnsafeNoJailer {
		return launchUnjailed(ctx, r.cfg, d)
	}
	return launchJailed(ctx, r.cfg, d, labIDShort)
}

func waitForAgent(ctx context.Context, agent *guestagent.Client) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := agent.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// DestroyLab idempotently tears down a microVM: best-effort compose
// down over vsock, SIGTERM then SIGKILL via the PID-reuse guard,
// removal of the DNAT mapping, netd.Destroy, and finally the state
// dir. Every step tolerates partial or already-cleaned-up state.
func (r *Runtime) DestroyLab(ctx context.Context, lab *ent.Lab) error {
	ctx = logger.WithFields(ctx, zap.String("lab_id", lab.ID.String()))
	log := logger.GetLogger(ctx)

	d := newLabDir(r.cfg.StateDir, lab.ID)

	if token, ok := readToken(d); ok {
		agent := guestagent.NewClient(cidFor(lab.ID), token)
		downCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := agent.ComposeDown(downCtx); err != nil {
			log.Warn("best-effort compose_down failed", zap.Error(err))
		}
		cancel()
	}

	if err := signalVM(d, syscall.SIGTERM); err != nil {
		log.Warn("sigterm failed", zap.Error(err))
	}
	time.Sleep(2 * time.Second)
	if err := signalVM(d, syscall.SIGKILL); err != nil {
		log.Warn("sigkill failed", zap.Error(err))
	}

	if hostPort, ok := hostPortFromMeta(lab); ok {
		if err := removeDNAT(lab.ID, hostPort); err != nil {
			log.Warn("failed removing dnat entry", zap.Error(err))
		}
	}

	if _, err := r.netdClient.Destroy(lab.ID); err != nil {
		return apperr.ExternalFailure("firecracker.DestroyLab", fmt.Errorf("netd destroy: %w", err))
	}

	if err := d.remove(); err != nil {
		return apperr.ExternalFailure("firecracker.DestroyLab", fmt.Errorf("removing state dir: %w", err))
	}

	return nil
}

// InspectLab pings the guest agent; a failing or timed-out ping means
// the VM is no longer healthy even though the Lab row may still say
// READY until the next reconciliation pass.
func (r *Runtime) InspectLab(ctx context.Context, lab *ent.Lab) (runtime.Status, error) {
	d := newLabDir(r.cfg.StateDir, lab.ID)
	token, ok := readToken(d)
	if !ok {
		return runtime.Status{Healthy: false, Details: "no boot token recorded for lab"}, nil
	}

	agent := guestagent.NewClient(cidFor(lab.ID), token)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := agent.Ping(pingCtx); err != nil {
		return runtime.Status{Healthy: false, Details: err.Error()}, nil
	}

	status, err := agent.Status(pingCtx)
	if err != nil {
		return runtime.Status{Healthy: false, Details: err.Error()}, nil
	}

	ids := make([]string, 0, len(status.Containers))
	healthy := true
	for name, state := range status.Containers {
		ids = append(ids, name)
		if state != "running" {
			healthy = false
		}
	}
	return runtime.Status{Healthy: healthy, ContainerIDs: ids}, nil
}

func hostPortFromMeta(lab *ent.Lab) (int, bool) {
	if lab.RuntimeMeta == nil {
		return 0, false
	}
	v, ok := lab.RuntimeMeta["dnat_host_port"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
