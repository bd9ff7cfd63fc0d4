package evidence

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"octolab/internal/ent"
	"octolab/internal/enum"
	"octolab/internal/logger"
)

// Finalizer archives a lab's evidence directory to object storage and
// records the outcome on the lab row. It is invoked once per lab, by
// the teardown worker, as the very last step before a lab leaves
// ENDING - its own failures are never allowed to block that transition.
type Finalizer struct {
	client    *ent.Client
	store     *ObjectStore
	stateRoot string
}

// NewFinalizer builds a Finalizer. store may be nil, which models an
// evidence object store that was never configured: Finalize then
// always reports EvidenceStateUnavailable without attempting a dial.
func NewFinalizer(client *ent.Client, store *ObjectStore, stateRoot string) *Finalizer {
	return &Finalizer{client: client, store: store, stateRoot: stateRoot}
}

// Finalize archives lab's evidence directory and persists the
// resulting evidence_state. It never returns an error that should stop
// a caller's teardown: every failure mode here degrades the recorded
// state instead of propagating.
func (f *Finalizer) Finalize(ctx context.Context, lab *ent.Lab) {
	log := logger.GetLogger(ctx).With(zap.String("lab_id", lab.ID.String()))

	state := f.archiveAndUpload(ctx, lab, log)

	upd := f.client.Lab.UpdateOneID(lab.ID).
		SetEvidenceState(state).
		SetEvidenceFinalizedAt(time.Now())
	if _, err := upd.Save(ctx); err != nil {
		log.Error("persisting evidence state failed", zap.Error(err))
	}
}

func (f *Finalizer) archiveAndUpload(ctx context.Context, lab *ent.Lab, log *zap.Logger) enum.EvidenceState {
	if f.store == nil {
		log.Warn("evidence object store not configured, marking unavailable")
		return enum.EvidenceStateUnavailable
	}

	dir := NewDir(f.stateRoot, lab.ID)
	if err := dir.Ensure(); err != nil {
		log.Error("evidence dir unusable", zap.Error(err))
		return enum.EvidenceStateUnavailable
	}

	pr, pw := io.Pipe()
	packErrCh := make(chan error, 1)
	var result packResult

	go func() {
		defer pw.Close()
		var err error
		result, err = pack(dir.Path(), pw)
		packErrCh <- err
	}()

	uploadErr := f.store.Upload(ctx, lab.ID, pr, -1)
	// Close the read side so a pack goroutine still writing after a
	// failed upload gets an error instead of blocking forever.
	_ = pr.Close()
	packErr := <-packErrCh

	if uploadErr != nil {
		log.Error("evidence upload failed", zap.Error(uploadErr))
		return enum.EvidenceStateUnavailable
	}
	if packErr != nil {
		log.Error("evidence archive failed", zap.Error(packErr))
		return enum.EvidenceStateUnavailable
	}
	if len(result.skipped) > 0 {
		log.Warn("evidence archive partially incomplete", zap.Strings("skipped", result.skipped))
		return enum.EvidenceStatePartial
	}
	return enum.EvidenceStateReady
}
