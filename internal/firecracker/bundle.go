package firecracker

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"

	"octolab/internal/ent"
)

// buildComposeBundle renders the lab's recipe into a docker-compose.yml
// and tars+gzips it for upload_project. The lab service is expected to
// have eager-loaded the recipe edge before calling ProvisionLab; a
// missing edge falls back to a minimal attacker-only project so a
// malformed recipe still produces a bootable (if useless) lab rather
// than a confusing failure deep inside the guest agent.
func buildComposeBundle(lab *ent.Lab) ([]byte, error) {
	yaml := defaultComposeYAML
	if lab.Edges.Recipe != nil {
		if rendered, ok := lab.Edges.Recipe.Blueprint["compose_yaml"].(string); ok && rendered != "" {
			yaml = rendered
		}
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	hdr := &tar.Header{
		Name: "docker-compose.yml",
		Mode: 0o600,
		Size: int64(len(yaml)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, fmt.Errorf("writing bundle tar header: %w", err)
	}
	if _, err := tw.Write([]byte(yaml)); err != nil {
		return nil, fmt.Errorf("writing bundle tar body: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing bundle tar writer: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("closing bundle gzip writer: %w", err)
	}

	return buf.Bytes(), nil
}

const defaultComposeYAML = `services:
  attacker:
    image: octolab/octobox:latest
    ports:
      - "6080:6080"
`
