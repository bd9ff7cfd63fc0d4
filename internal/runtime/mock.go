package runtime

import (
	"context"

	"octolab/internal/ent"
	"octolab/internal/enum"
)

// Mock is a configurable no-op Runtime for tests, in the shape of the
// control plane's MockRuntime: each method call is overridable via a
// Func field and falls back to an innocuous default.
type Mock struct {
	NameFunc         func() enum.RuntimeType
	DoctorFunc       func(ctx context.Context) (DoctorReport, error)
	SmokeFunc        func(ctx context.Context) (SmokeResult, error)
	ProvisionLabFunc func(ctx context.Context, lab *ent.Lab) error
	DestroyLabFunc   func(ctx context.Context, lab *ent.Lab) error
	InspectLabFunc   func(ctx context.Context, lab *ent.Lab) (Status, error)
}

var _ Runtime = (*Mock)(nil)

func (m *Mock) Name() enum.RuntimeType {
	if m.NameFunc != nil {
		return m.NameFunc()
	}
	return "mock"
}

func (m *Mock) Doctor(ctx context.Context) (DoctorReport, error) {
	if m.DoctorFunc != nil {
		return m.DoctorFunc(ctx)
	}
	return DoctorReport{Runtime: m.Name()}, nil
}

func (m *Mock) Smoke(ctx context.Context) (SmokeResult, error) {
	if m.SmokeFunc != nil {
		return m.SmokeFunc(ctx)
	}
	return SmokeResult{Runtime: m.Name(), OK: true}, nil
}

func (m *Mock) ProvisionLab(ctx context.Context, lab *ent.Lab) error {
	if m.ProvisionLabFunc != nil {
		return m.ProvisionLabFunc(ctx, lab)
	}
	return nil
}

func (m *Mock) DestroyLab(ctx context.Context, lab *ent.Lab) error {
	if m.DestroyLabFunc != nil {
		return m.DestroyLabFunc(ctx, lab)
	}
	return nil
}

func (m *Mock) InspectLab(ctx context.Context, lab *ent.Lab) (Status, error) {
	if m.InspectLabFunc != nil {
		return m.InspectLabFunc(ctx, lab)
	}
	return Status{Healthy: true}, nil
}
