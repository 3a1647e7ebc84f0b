package snapshots

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigpay/treasuryops/internal/entity"
)

func newTestStore(t *testing.T, chainID uint64, treasury string) (*WALStore, *time.Time) {
	t.Helper()
	store, err := NewWALStore(t.TempDir(), chainID, treasury, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }
	return store, &clock
}

func testTotals(total int64) entity.Totals {
	return entity.Totals{
		Total:         decimal.NewFromInt(total),
		Idle:          decimal.NewFromInt(total / 2),
		YieldDeployed: decimal.NewFromInt(total / 4),
		EscrowLocked:  decimal.NewFromInt(total - total/2 - total/4),
	}
}

func TestSample_IdempotentWithinInterval(t *testing.T) {
	store, clock := newTestStore(t, 84532, "0xabc")

	require.NoError(t, store.Sample(testTotals(1000)))
	*clock = clock.Add(30 * time.Second)
	require.NoError(t, store.Sample(testTotals(2000)))

	snaps, err := store.GetRange(entity.RangeAll)
	require.NoError(t, err)
	require.Len(t, snaps, 1, "second sample within the interval must not create a row")
	assert.True(t, snaps[0].Total.Equal(decimal.NewFromInt(1000)))
}

func TestSample_AppendsAfterInterval(t *testing.T) {
	store, clock := newTestStore(t, 84532, "0xabc")

	require.NoError(t, store.Sample(testTotals(1000)))
	*clock = clock.Add(61 * time.Second)
	require.NoError(t, store.Sample(testTotals(2000)))

	snaps, err := store.GetRange(entity.RangeAll)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.True(t, snaps[1].Total.Equal(decimal.NewFromInt(2000)))
}

func TestGetRange_FiltersAndSortsAscending(t *testing.T) {
	store, clock := newTestStore(t, 84532, "0xabc")

	// one sample outside the 7d window, two inside
	require.NoError(t, store.Sample(testTotals(100)))
	*clock = clock.Add(8 * 24 * time.Hour)
	require.NoError(t, store.Sample(testTotals(200)))
	*clock = clock.Add(24 * time.Hour)
	require.NoError(t, store.Sample(testTotals(300)))

	snaps, err := store.GetRange(entity.Range7d)
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	cutoff := clock.Add(-7 * 24 * time.Hour)
	for i, snap := range snaps {
		assert.False(t, snap.Timestamp.Before(cutoff))
		if i > 0 {
			assert.True(t, snaps[i-1].Timestamp.Before(snap.Timestamp), "snapshots must be oldest first")
		}
	}
}

func TestScopes_DoNotMixHistory(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a, err := NewWALStore(dir, 84532, "0xaaa", time.Minute)
	require.NoError(t, err)
	a.now = func() time.Time { return clock }
	require.NoError(t, a.Sample(testTotals(111)))
	require.NoError(t, a.Close())

	// same WAL directory, different treasury: rows must stay invisible to
	// the other scope
	b, err := NewWALStore(dir, 1, "0xbbb", time.Minute)
	require.NoError(t, err)
	b.now = a.now
	require.NoError(t, b.Sample(testTotals(999)))

	snaps, err := b.GetRange(entity.RangeAll)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Total.Equal(decimal.NewFromInt(999)))
	require.NoError(t, b.Close())

	a, err = NewWALStore(dir, 84532, "0xaaa", time.Minute)
	require.NoError(t, err)
	defer a.Close()
	a.now = b.now
	snaps, err = a.GetRange(entity.RangeAll)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Total.Equal(decimal.NewFromInt(111)))
}

func TestLatest_EmptySeries(t *testing.T) {
	store, _ := newTestStore(t, 84532, "0xabc")

	_, ok, err := store.Latest()
	require.NoError(t, err)
	assert.False(t, ok, "a scope that never sampled has an empty series")
}
