// Package labsvc owns the Lab row's state machine: it is the only
// component allowed to create a lab, and the only caller-facing entry
// point into the runtime abstraction. The background teardown worker
// shares write access to the terminal transitions (spec.md §3's
// lifecycle note), but every other column mutation goes through here.
package labsvc

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"octolab/internal/apperr"
	"octolab/internal/ent"
	entlab "octolab/internal/ent/lab"
	"octolab/internal/enum"
	"octolab/internal/logger"
	"octolab/internal/runtime"
	"octolab/internal/scopeguard"
)

// Service is the lab lifecycle state machine owner described in
// spec.md §4.1. It holds no long-lived runtime instance: the selector
// is consulted fresh on every CreateLab, honoring the "NO FALLBACK"
// operator-override rule.
type Service struct {
	client     *ent.Client
	selector   *runtime.Selector
	runtimeCfg map[string]interface{}
	publicHost string
}

// New builds a Service. runtimeCfg is passed through verbatim to
// runtime.Create on every Effective() call (kernel paths, state dirs,
// and so on); publicHost, if set, rewrites the host portion of a
// connection URL for a caller reaching the API through a different
// address than the one the runtime used internally.
func New(client *ent.Client, selector *runtime.Selector, runtimeCfg map[string]interface{}, publicHost string) *Service {
	return &Service{client: client, selector: selector, runtimeCfg: runtimeCfg, publicHost: publicHost}
}

// CreateLab validates intent against the recipe's schema, selects the
// effective runtime, inserts a REQUESTED row, and synchronously drives
// it through PROVISIONING to READY or FAILED. No row is created at all
// if validation or runtime selection fails first — spec.md's "no
// allocation may outlive a failed commit" rule is trivially satisfied
// for that path since nothing has been allocated yet.
func (s *Service) CreateLab(ctx context.Context, ownerID, recipeID uuid.UUID, intent map[string]interface{}) (*ent.Lab, error) {
	recipe, err := s.client.Recipe.Get(ctx, recipeID)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, apperr.NotFound("labsvc.CreateLab", err)
		}
		return nil, apperr.Internal("labsvc.CreateLab", err)
	}

	if err := validateIntent(recipe, intent); err != nil {
		return nil, err
	}

	rt, _, err := s.selector.Effective(ctx, s.runtimeCfg)
	if err != nil {
		return nil, err
	}

	created, err := s.client.Lab.Create().
		SetOwnerID(ownerID).
		SetRecipeID(recipeID).
		SetRuntime(rt.Name()).
		SetRequestedIntent(intent).
		Save(ctx)
	if err != nil {
		return nil, apperr.Internal("labsvc.CreateLab", fmt.Errorf("inserting lab row: %w", err))
	}

	log := logger.GetLogger(ctx)
	guard := scopeguard.New()
	defer func() {
		if rbErr := guard.Close(); rbErr != nil {
			log.Error("labsvc.CreateLab rollback failed, lab row may be stuck in a non-terminal state", loggerFields(created.ID, rbErr)...)
		}
	}()
	guard.Add(func() error {
		_, uerr := s.client.Lab.UpdateOneID(created.ID).SetStatus(enum.LabStatusFailed).Save(context.WithoutCancel(ctx))
		return uerr
	})

	row, err := s.client.Lab.UpdateOneID(created.ID).
		SetStatus(enum.LabStatusProvisioning).
		Save(ctx)
	if err != nil {
		return nil, apperr.Internal("labsvc.CreateLab", fmt.Errorf("marking lab provisioning: %w", err))
	}
	row, err = s.client.Lab.Query().Where(entlab.IDEQ(row.ID)).WithRecipe().WithOwner().Only(ctx)
	if err != nil {
		return nil, apperr.Internal("labsvc.CreateLab", fmt.Errorf("reloading lab with edges: %w", err))
	}

	if err := rt.ProvisionLab(ctx, row); err != nil {
		return nil, apperr.Internal("labsvc.CreateLab", fmt.Errorf("provisioning lab: %w", err))
	}

	final, err := s.client.Lab.UpdateOneID(row.ID).
		SetStatus(enum.LabStatusReady).
		SetConnectionURL(row.ConnectionURL).
		SetRuntimeMeta(row.RuntimeMeta).
		Save(ctx)
	if err != nil {
		// The VM is already up but we failed to record it; best-effort
		// tear it back down rather than leave an un-tracked allocation
		// that no runtime_meta will ever point the reaper at.
		if destroyErr := rt.DestroyLab(context.WithoutCancel(ctx), row); destroyErr != nil {
			log.Error("labsvc.CreateLab failed to persist READY and failed to roll back the provisioned lab", loggerFields(row.ID, destroyErr)...)
		}
		return nil, apperr.Internal("labsvc.CreateLab", fmt.Errorf("persisting ready state: %w", err))
	}

	guard.Commit()
	return final, nil
}

// GetLab returns the lab only if it belongs to ownerID, unless admin is
// true. A lookup that fails the ownership check returns the same
// NotFound kind as a genuinely missing row, so existence never leaks
// across tenants.
func (s *Service) GetLab(ctx context.Context, ownerID, labID uuid.UUID, admin bool) (*ent.Lab, error) {
	q := s.client.Lab.Query().Where(entlab.IDEQ(labID))
	if !admin {
		q = q.Where(entlab.OwnerIDEQ(ownerID))
	}
	row, err := q.Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, apperr.NotFound("labsvc.GetLab", err)
		}
		return nil, apperr.Internal("labsvc.GetLab", err)
	}
	return row, nil
}

// ListLabs returns every lab owned by ownerID, most recently created first.
func (s *Service) ListLabs(ctx context.Context, ownerID uuid.UUID) ([]*ent.Lab, error) {
	rows, err := s.client.Lab.Query().
		Where(entlab.OwnerIDEQ(ownerID)).
		Order(ent.Desc(entlab.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, apperr.Internal("labsvc.ListLabs", err)
	}
	return rows, nil
}

// TerminateLab moves a lab to ENDING and returns immediately; the
// teardown worker does the actual work. Idempotent: calling it again
// on a lab already ENDING or terminal is a no-op, not an error.
func (s *Service) TerminateLab(ctx context.Context, ownerID, labID uuid.UUID) error {
	row, err := s.client.Lab.Query().
		Where(entlab.IDEQ(labID), entlab.OwnerIDEQ(ownerID)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return apperr.NotFound("labsvc.TerminateLab", err)
		}
		return apperr.Internal("labsvc.TerminateLab", err)
	}

	if row.Status == enum.LabStatusEnding || row.Status.Terminal() {
		return nil
	}
	if !terminable(row.Status) {
		return apperr.Conflict("labsvc.TerminateLab", fmt.Errorf("lab %s is in status %s, which cannot be terminated", labID, row.Status))
	}

	affected, err := s.client.Lab.Update().
		Where(entlab.IDEQ(labID), entlab.OwnerIDEQ(ownerID), entlab.StatusEQ(row.Status)).
		SetStatus(enum.LabStatusEnding).
		Save(ctx)
	if err != nil {
		return apperr.Internal("labsvc.TerminateLab", err)
	}
	if affected == 0 {
		// Someone else's concurrent write beat us to it; re-entry into
		// ENDING must never be treated as a failure.
		return nil
	}
	return nil
}

// Connect returns the lab's connection URL, rewriting the host portion
// to publicHost when the caller is reaching the API through a
// different address than the one the runtime recorded internally.
func (s *Service) Connect(ctx context.Context, ownerID, labID uuid.UUID) (string, error) {
	row, err := s.GetLab(ctx, ownerID, labID, false)
	if err != nil {
		return "", err
	}
	if !connectable(row.Status) {
		return "", apperr.Conflict("labsvc.Connect", fmt.Errorf("lab %s is in status %s, which has no usable connection", labID, row.Status))
	}
	if row.ConnectionURL == "" {
		return "", apperr.Internal("labsvc.Connect", fmt.Errorf("lab %s is %s but has no connection_url", labID, row.Status))
	}
	return rewriteHost(row.ConnectionURL, s.publicHost), nil
}

func terminable(status enum.LabStatus) bool {
	for _, s := range enum.TerminableStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

func connectable(status enum.LabStatus) bool {
	for _, s := range enum.ConnectableStatuses() {
		if s == status {
			return true
		}
	}
	return false
}
