package teardown

import (
	"context"
	"fmt"
	"time"

	"entgo.io/ent"
	"github.com/google/uuid"

	octoent "octolab/internal/ent"
	entlab "octolab/internal/ent/lab"
	"octolab/internal/enum"
)

// claimBatch finds up to limit ENDING labs, oldest first, and claims
// each one with a per-row compare-and-set before returning it: a lab
// is eligible if it has never been claimed, or its claim is older than
// staleAfter (meaning whatever worker claimed it previously never
// reached a terminal state, most likely because it crashed or was
// killed mid-teardown). The claim itself is the UPDATE, not the
// SELECT, so two ticks racing on the same row can both see it as a
// candidate but only one's UPDATE actually matches and affects a row -
// the loser's affected count is zero and it moves on. This is what
// gives teardown its at-most-one-DestroyLab-call guarantee without
// needing SELECT ... FOR UPDATE SKIP LOCKED, which sqlite lacks.
func claimBatch(ctx context.Context, client *octoent.Client, limit int, staleAfter time.Duration) ([]*octoent.Lab, error) {
	cutoff := time.Now().Add(-staleAfter)

	candidateIDs, err := client.Lab.Query().
		Where(
			entlab.StatusEQ(enum.LabStatusEnding),
			entlab.Or(
				entlab.TeardownClaimedAtIsNil(),
				entlab.TeardownClaimedAtLT(cutoff),
			),
		).
		Order(ent.Asc(entlab.FieldUpdatedAt)).
		Limit(limit).
		IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying ENDING labs: %w", err)
	}

	claimed := make([]*octoent.Lab, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		ok, err := tryClaim(ctx, client, id, cutoff)
		if err != nil {
			return nil, fmt.Errorf("claiming lab %s: %w", id, err)
		}
		if !ok {
			continue
		}
		row, err := client.Lab.Query().Where(entlab.IDEQ(id)).WithRecipe().WithOwner().Only(ctx)
		if err != nil {
			return nil, fmt.Errorf("reloading claimed lab %s: %w", id, err)
		}
		claimed = append(claimed, row)
	}
	return claimed, nil
}

// tryClaim attempts the compare-and-set that makes a claim exclusive:
// it only succeeds if the row is still ENDING and still unclaimed-or-
// stale exactly as it was when selected. affected == 0 means another
// worker's tick won the race in between.
func tryClaim(ctx context.Context, client *octoent.Client, id uuid.UUID, cutoff time.Time) (bool, error) {
	affected, err := client.Lab.Update().
		Where(
			entlab.IDEQ(id),
			entlab.StatusEQ(enum.LabStatusEnding),
			entlab.Or(
				entlab.TeardownClaimedAtIsNil(),
				entlab.TeardownClaimedAtLT(cutoff),
			),
		).
		SetTeardownClaimedAt(time.Now()).
		Save(ctx)
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
