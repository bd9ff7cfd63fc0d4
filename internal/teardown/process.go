package teardown

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	octoent "octolab/internal/ent"
	entlab "octolab/internal/ent/lab"
	"octolab/internal/enum"
	"octolab/internal/logger"
	"octolab/internal/runtime"
)

// processLab destroys one lab's runtime resources, archives its
// evidence, and records the terminal outcome. Every error path ends in
// a FAILED transition rather than a returned error: the worker's own
// loop must keep going regardless of any single lab's fate.
func (w *Worker) processLab(ctx context.Context, lab *octoent.Lab) {
	log := logger.GetLogger(ctx).With(zap.String("lab_id", lab.ID.String()), zap.String("runtime", string(lab.Runtime)))

	destroyCtx, cancel := context.WithTimeout(ctx, w.perLabTimeout)
	defer cancel()

	rt, err := runtime.Create(destroyCtx, lab.Runtime, w.runtimeCfg)
	if err != nil {
		log.Error("building runtime for teardown failed", zap.Error(err))
		w.finalizeEvidence(ctx, lab)
		w.failLab(ctx, lab, "runtime_unavailable")
		return
	}

	destroyErr := rt.DestroyLab(destroyCtx, lab)
	w.finalizeEvidence(ctx, lab)

	switch {
	case destroyErr == nil:
		w.finishLab(ctx, lab)
	case errors.Is(destroyErr, context.DeadlineExceeded):
		log.Error("teardown timed out", zap.Duration("timeout", w.perLabTimeout))
		w.failLab(ctx, lab, "teardown_timeout")
	default:
		log.Error("teardown failed", zap.Error(destroyErr))
		w.failLab(ctx, lab, "teardown_error")
	}
}

func (w *Worker) finalizeEvidence(ctx context.Context, lab *octoent.Lab) {
	if w.evidence == nil {
		return
	}
	// Finalization runs with its own context, detached from the
	// per-lab destroy timeout, so a slow object store cannot be blamed
	// for a FAILED status that destroy itself earned cleanly.
	w.evidence.Finalize(context.WithoutCancel(ctx), lab)
}

// finishLab commits the ENDING -> FINISHED transition, guarded by a
// compare-and-set on the lab's current status so a concurrent second
// worker that also reached this point affects zero rows instead of
// erroring or double-finishing.
func (w *Worker) finishLab(ctx context.Context, lab *octoent.Lab) {
	affected, err := w.client.Lab.Update().
		Where(entlab.IDEQ(lab.ID), entlab.StatusEQ(enum.LabStatusEnding)).
		SetStatus(enum.LabStatusFinished).
		Save(ctx)
	if err != nil {
		logger.GetLogger(ctx).Error("persisting FINISHED failed", zap.String("lab_id", lab.ID.String()), zap.Error(err))
		return
	}
	if affected == 0 {
		logger.GetLogger(ctx).Debug("lab already finalized by another worker", zap.String("lab_id", lab.ID.String()))
	}
}

func (w *Worker) failLab(ctx context.Context, lab *octoent.Lab, reason string) {
	meta := map[string]interface{}{}
	for k, v := range lab.RuntimeMeta {
		meta[k] = v
	}
	meta["teardown_failure_reason"] = reason
	meta["teardown_failed_at"] = time.Now().UTC().Format(time.RFC3339)

	affected, err := w.client.Lab.Update().
		Where(entlab.IDEQ(lab.ID), entlab.StatusEQ(enum.LabStatusEnding)).
		SetStatus(enum.LabStatusFailed).
		SetRuntimeMeta(meta).
		Save(ctx)
	if err != nil {
		logger.GetLogger(ctx).Error("persisting FAILED failed", zap.String("lab_id", lab.ID.String()), zap.Error(err))
		return
	}
	if affected == 0 {
		logger.GetLogger(ctx).Debug("lab already finalized by another worker", zap.String("lab_id", lab.ID.String()))
	}
}
