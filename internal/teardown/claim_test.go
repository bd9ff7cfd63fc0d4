package teardown

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestClaimBatch_ConcurrentTicksClaimExactlyOnce exercises the property
// spec §8 names: two concurrent worker ticks racing on the same ENDING
// lab must produce exactly one successful claim, not two. Each claim
// attempt's UPDATE is the actual compare-and-set; this asserts the
// race resolves to a single winner regardless of goroutine scheduling.
func TestClaimBatch_ConcurrentTicksClaimExactlyOnce(t *testing.T) {
	client := newTestClient(t)
	lab := seedEndingLab(t, client)

	const attempts = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var totalClaimed int

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := claimBatch(context.Background(), client, 10, time.Hour)
			assert.NoError(t, err)
			mu.Lock()
			totalClaimed += len(rows)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, totalClaimed, "exactly one concurrent claimBatch call should have won the race for lab %s", lab.ID)
}

// TestClaimBatch_ReclaimsAbandonedClaim verifies a claim older than
// staleAfter is treated as abandoned (its worker presumably crashed
// mid-teardown) and is claimable again, matching Start's documented
// startup-tick retry behavior.
func TestClaimBatch_ReclaimsAbandonedClaim(t *testing.T) {
	client := newTestClient(t)
	lab := seedEndingLab(t, client)

	staleClaim := time.Now().Add(-time.Hour)
	_, err := client.Lab.UpdateOneID(lab.ID).SetTeardownClaimedAt(staleClaim).Save(context.Background())
	require.NoError(t, err)

	rows, err := claimBatch(context.Background(), client, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, lab.ID, rows[0].ID)
}

// TestClaimBatch_FreshClaimIsNotReclaimed verifies a claim made within
// staleAfter is left alone: a second tick must not also process it.
func TestClaimBatch_FreshClaimIsNotReclaimed(t *testing.T) {
	client := newTestClient(t)
	seedEndingLab(t, client)

	first, err := claimBatch(context.Background(), client, 10, time.Hour)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := claimBatch(context.Background(), client, 10, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, second)
}
