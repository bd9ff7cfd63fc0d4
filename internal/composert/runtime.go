// Package composert implements the "compose" runtime: the dev backend
// that runs each lab as a docker compose project on the host, verified
// against the strict label/network naming pattern spec.md §4.3 requires
// before any cleanup code is allowed to touch a resource.
package composert

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	networktypes "github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"octolab/internal/apperr"
	"octolab/internal/ent"
	"octolab/internal/enum"
	"octolab/internal/logger"
	"octolab/internal/runtime"
)

const (
	labelLabID   = "octolab.lab_id"
	networkRegex = `^octolab_[0-9a-fA-F-]+_(lab_net|egress_net)$`

	defaultComposeTimeout = 120 * time.Second
)

var networkPattern = regexp.MustCompile(networkRegex)

func init() {
	runtime.Register(enum.RuntimeCompose, func(ctx context.Context, cfg map[string]interface{}) (runtime.Runtime, error) {
		return New(cfg)
	})
}

// Config is the compose runtime's own configuration, parsed out of the
// generic map the selector passes to every Creator.
type Config struct {
	DockerHost   string
	ProjectsRoot string
}

// Runtime implements runtime.Runtime against the local docker daemon.
type Runtime struct {
	docker *client.Client
	cfg    Config
}

// New builds a Runtime, following the control plane's pattern of
// negotiating the Docker API version rather than pinning one.
func New(cfg map[string]interface{}) (*Runtime, error) {
	host, _ := cfg["docker_host"].(string)
	if host == "" {
		host = "unix:///var/run/docker.sock"
	}
	projectsRoot, _ := cfg["projects_root"].(string)
	if projectsRoot == "" {
		projectsRoot = "/var/lib/octolab/compose-projects"
	}

	cli, err := client.NewClientWithOpts(client.WithHost(host), client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	return &Runtime{docker: cli, cfg: Config{DockerHost: host, ProjectsRoot: projectsRoot}}, nil
}

func (r *Runtime) Name() enum.RuntimeType { return enum.RuntimeCompose }

// Doctor is a pure check: docker daemon reachable and the docker CLI on
// PATH. It does not check versions.
func (r *Runtime) Doctor(ctx context.Context) (runtime.DoctorReport, error) {
	report := runtime.DoctorReport{Runtime: enum.RuntimeCompose}

	if _, err := r.docker.Ping(ctx); err != nil {
		report.Checks = append(report.Checks, runtime.DoctorCheck{
			Name: "docker daemon", OK: false, Severity: runtime.SeverityFatal,
			Details: err.Error(), Hint: "ensure the docker daemon is running and reachable at " + r.cfg.DockerHost,
		})
		return report, nil
	}
	report.Checks = append(report.Checks, runtime.DoctorCheck{Name: "docker daemon", OK: true, Severity: runtime.SeverityInfo})

	if _, err := exec.LookPath("docker"); err != nil {
		report.Checks = append(report.Checks, runtime.DoctorCheck{
			Name: "docker compose cli", OK: false, Severity: runtime.SeverityFatal,
			Details: err.Error(), Hint: "install the docker CLI with the compose plugin",
		})
	} else {
		report.Checks = append(report.Checks, runtime.DoctorCheck{Name: "docker compose cli", OK: true, Severity: runtime.SeverityInfo})
	}

	return report, nil
}

// Smoke boots and tears down a throwaway lab-shaped project to verify
// the end-to-end path, timing each phase.
func (r *Runtime) Smoke(ctx context.Context) (runtime.SmokeResult, error) {
	start := time.Now()
	labID := "smoke-" + fmt.Sprint(start.UnixNano())
	projectDir := filepath.Join(r.cfg.ProjectsRoot, labID)

	bootStart := time.Now()
	if err := os.MkdirAll(projectDir, 0o700); err != nil {
		return runtime.SmokeResult{Runtime: enum.RuntimeCompose, OK: false, Error: err.Error()}, nil
	}
	defer os.RemoveAll(projectDir)

	composeFile := filepath.Join(projectDir, "docker-compose.yml")
	if err := os.WriteFile(composeFile, []byte(smokeComposeYAML), 0o600); err != nil {
		return runtime.SmokeResult{Runtime: enum.RuntimeCompose, OK: false, Error: err.Error()}, nil
	}

	projectName := "octolab_smoke_" + fmt.Sprint(start.UnixNano())
	up := exec.CommandContext(ctx, "docker", "compose", "-p", projectName, "-f", composeFile, "up", "-d")
	if out, err := up.CombinedOutput(); err != nil {
		return runtime.SmokeResult{Runtime: enum.RuntimeCompose, OK: false, Error: fmt.Sprintf("%v: %s", err, out)}, nil
	}
	bootDuration := time.Since(bootStart)

	down := exec.CommandContext(ctx, "docker", "compose", "-p", projectName, "-f", composeFile, "down", "-v")
	_, _ = down.CombinedOutput()

	return runtime.SmokeResult{
		Runtime:       enum.RuntimeCompose,
		OK:            true,
		BootDuration:  bootDuration,
		TotalDuration: time.Since(start),
	}, nil
}

const smokeComposeYAML = `services:
  smoke:
    image: alpine:3.20
    command: ["sleep", "5"]
`

// ProvisionLab materializes and starts a compose project for lab, then
// sets its connection URL and runtime_meta; the caller persists READY.
func (r *Runtime) ProvisionLab(ctx context.Context, lab *ent.Lab) error {
	ctx = logger.WithFields(ctx, zap.String("lab_id", lab.ID.String()))
	log := logger.GetLogger(ctx)

	projectName := composeProjectName(lab.ID.String())
	projectDir := filepath.Join(r.cfg.ProjectsRoot, lab.ID.String())

	if err := os.MkdirAll(projectDir, 0o700); err != nil {
		return apperr.ExternalFailure("composert.ProvisionLab", err)
	}

	composeFile := filepath.Join(projectDir, "docker-compose.yml")
	yaml := renderComposeFile(lab)
	if err := os.WriteFile(composeFile, []byte(yaml), 0o600); err != nil {
		return apperr.ExternalFailure("composert.ProvisionLab", err)
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, defaultComposeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctxTimeout, "docker", "compose", "-p", projectName, "-f", composeFile, "up", "-d")
	if out, err := cmd.CombinedOutput(); err != nil {
		log.Error("compose up failed, rolling back", zap.Error(err), zap.ByteString("output", out))
		_ = r.teardownProject(context.Background(), projectName, composeFile)
		return apperr.ExternalFailure("composert.ProvisionLab", fmt.Errorf("compose up: %w: %s", err, out))
	}

	connectionURL := fmt.Sprintf("compose://%s/attacker", projectName)
	log.Info("lab provisioned", zap.String("connection_url", connectionURL))

	lab.ConnectionURL = connectionURL
	lab.RuntimeMeta = map[string]interface{}{"compose_project": projectName}
	return nil
}

// DestroyLab idempotently tears down the compose project and verifies,
// by label and by the strict network name pattern, that nothing
// matching this lab is left behind.
func (r *Runtime) DestroyLab(ctx context.Context, lab *ent.Lab) error {
	projectName := composeProjectName(lab.ID.String())
	projectDir := filepath.Join(r.cfg.ProjectsRoot, lab.ID.String())
	composeFile := filepath.Join(projectDir, "docker-compose.yml")

	if err := r.teardownProject(ctx, projectName, composeFile); err != nil {
		return err
	}

	remaining, err := r.countManagedContainers(ctx, lab.ID.String())
	if err != nil {
		return apperr.ExternalFailure("composert.DestroyLab", err)
	}
	if remaining > 0 {
		return apperr.Conflict("composert.DestroyLab", fmt.Errorf("remaining_final=%d containers still labeled for lab %s", remaining, lab.ID))
	}

	if err := r.removeStrayNetworks(ctx, lab.ID.String()); err != nil {
		return apperr.ExternalFailure("composert.DestroyLab", err)
	}

	_ = os.RemoveAll(projectDir)
	return nil
}

func (r *Runtime) teardownProject(ctx context.Context, projectName, composeFile string) error {
	if _, err := os.Stat(composeFile); os.IsNotExist(err) {
		return nil
	}
	cmd := exec.CommandContext(ctx, "docker", "compose", "-p", projectName, "-f", composeFile, "down", "-v", "--remove-orphans")
	if out, err := cmd.CombinedOutput(); err != nil {
		return apperr.ExternalFailure("composert.teardownProject", fmt.Errorf("compose down: %w: %s", err, out))
	}
	return nil
}

func (r *Runtime) countManagedContainers(ctx context.Context, labID string) (int, error) {
	f := filters.NewArgs(filters.Arg("label", fmt.Sprintf("%s=%s", labelLabID, labID)))
	containers, err := r.docker.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return 0, err
	}
	return len(containers), nil
}

// removeStrayNetworks deletes only networks matching the exact strict
// pattern octolab_<uuid>_(lab_net|egress_net); cleanup code refuses to
// touch anything else, per spec.md §4.3.
func (r *Runtime) removeStrayNetworks(ctx context.Context, labID string) error {
	networks, err := r.docker.NetworkList(ctx, networktypes.ListOptions{})
	if err != nil {
		return err
	}
	for _, n := range networks {
		if !networkPattern.MatchString(n.Name) {
			continue
		}
		if !strings.Contains(n.Name, labID) {
			continue
		}
		if err := r.docker.NetworkRemove(ctx, n.ID); err != nil && !client.IsErrNotFound(err) {
			return err
		}
	}
	return nil
}

// InspectLab reports container health for an already-provisioned lab.
func (r *Runtime) InspectLab(ctx context.Context, lab *ent.Lab) (runtime.Status, error) {
	f := filters.NewArgs(filters.Arg("label", fmt.Sprintf("%s=%s", labelLabID, lab.ID.String())))
	containers, err := r.docker.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return runtime.Status{}, apperr.ExternalFailure("composert.InspectLab", err)
	}

	ids := make([]string, 0, len(containers))
	healthy := len(containers) > 0
	for _, c := range containers {
		ids = append(ids, c.ID)
		if c.State != "running" {
			healthy = false
		}
	}
	return runtime.Status{Healthy: healthy, ContainerIDs: ids}, nil
}

func composeProjectName(labID string) string {
	return "octolab_" + labID
}

func renderComposeFile(lab *ent.Lab) string {
	labID := lab.ID.String()
	var b strings.Builder
	fmt.Fprintf(&b, "networks:\n  lab_net:\n    name: octolab_%s_lab_net\n  egress_net:\n    name: octolab_%s_egress_net\n", labID, labID)
	fmt.Fprintf(&b, "services:\n  attacker:\n    image: octolab/octobox:latest\n    labels:\n      %s: %q\n    networks: [lab_net]\n", labelLabID, labID)
	return b.String()
}
