// Package runtime defines the polymorphic boundary over lab backends
// (compose, firecracker), the operator-controlled runtime selector,
// and the doctor/smoke preflight contracts.
package runtime

import (
	"context"
	"time"

	"octolab/internal/ent"
	"octolab/internal/enum"
)

// Severity classifies a single DoctorReport check.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityFatal Severity = "fatal"
)

// DoctorCheck is one read-only preflight check result.
type DoctorCheck struct {
	Name     string
	OK       bool
	Severity Severity
	Details  string
	Hint     string
}

// DoctorReport is the full preflight result for a runtime. It is ok
// iff no check has Severity == fatal and OK == false.
type DoctorReport struct {
	Runtime   enum.RuntimeType
	Checks    []DoctorCheck
	CheckedAt time.Time
}

// OK reports whether the report contains no failing fatal checks.
func (r DoctorReport) OK() bool {
	for _, c := range r.Checks {
		if c.Severity == SeverityFatal && !c.OK {
			return false
		}
	}
	return true
}

// SmokeResult is the outcome of a destructive boot/destroy preflight.
type SmokeResult struct {
	Runtime      enum.RuntimeType
	OK           bool
	BootDuration time.Duration
	TotalDuration time.Duration
	Error        string
}

// Status is a read-only snapshot of a running lab's health, independent
// of the Lab row's own status column.
type Status struct {
	Healthy      bool
	ContainerIDs []string
	Details      string
}

// Runtime is the polymorphic boundary every backend implements.
type Runtime interface {
	// Name identifies the backend ("compose" or "firecracker").
	Name() enum.RuntimeType

	// Doctor runs a pure, non-mutating preflight check.
	Doctor(ctx context.Context) (DoctorReport, error)

	// Smoke actually boots and destroys a throwaway instance.
	Smoke(ctx context.Context) (SmokeResult, error)

	// ProvisionLab allocates everything the lab needs and, on success,
	// sets ConnectionURL and RuntimeMeta on lab; the caller persists the
	// READY status.
	ProvisionLab(ctx context.Context, lab *ent.Lab) error

	// DestroyLab idempotently tears down a lab's resources.
	DestroyLab(ctx context.Context, lab *ent.Lab) error

	// InspectLab returns a read-only health snapshot.
	InspectLab(ctx context.Context, lab *ent.Lab) (Status, error)
}
