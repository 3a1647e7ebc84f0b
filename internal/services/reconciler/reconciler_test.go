package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gigpay/treasuryops/internal/entity"
)

type fakePrimary struct {
	mu      sync.Mutex
	delay   time.Duration
	err     error
	totals  entity.Totals
	jobs    []entity.Job
	jobsErr error
	calls   int
}

func (f *fakePrimary) settle(ctx context.Context) error {
	f.mu.Lock()
	delay, err := f.delay, f.err
	f.calls++
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakePrimary) Overview(ctx context.Context) (entity.Totals, entity.PerAssetTotals, error) {
	if err := f.settle(ctx); err != nil {
		return entity.Totals{}, nil, err
	}
	return f.totals, entity.PerAssetTotals{"IDRX": f.totals}, nil
}

func (f *fakePrimary) History(ctx context.Context, _ entity.Range) ([]entity.Snapshot, error) {
	if err := f.settle(ctx); err != nil {
		return nil, err
	}
	return []entity.Snapshot{{Total: f.totals.Total}}, nil
}

func (f *fakePrimary) Activity(ctx context.Context, _ int) ([]entity.ActivityEvent, error) {
	if err := f.settle(ctx); err != nil {
		return nil, err
	}
	return []entity.ActivityEvent{{ID: "a1", Source: "backend"}}, nil
}

func (f *fakePrimary) PaymentIntents(ctx context.Context) ([]entity.PaymentIntent, error) {
	if err := f.settle(ctx); err != nil {
		return nil, err
	}
	return []entity.PaymentIntent{{ID: "p1"}}, nil
}

func (f *fakePrimary) Jobs(ctx context.Context, _ string) ([]entity.Job, error) {
	return f.jobs, f.jobsErr
}

type fakeFallback struct {
	totals entity.Totals
}

func (f *fakeFallback) Totals(_ context.Context) (entity.Totals, entity.PerAssetTotals, error) {
	return f.totals, entity.PerAssetTotals{"IDRX": f.totals}, nil
}

func (f *fakeFallback) Activity(_ context.Context, _ int) ([]entity.ActivityEvent, error) {
	return []entity.ActivityEvent{{ID: "chain-1", Source: "treasury"}}, nil
}

func (f *fakeFallback) PaymentIntents(_ context.Context, _ int) ([]entity.PaymentIntent, error) {
	return nil, nil
}

type fakeHistory struct {
	mu      sync.Mutex
	samples []entity.Totals
	stored  []entity.Snapshot
}

func (f *fakeHistory) Sample(current entity.Totals) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, current)
	return nil
}

func (f *fakeHistory) GetRange(_ entity.Range) ([]entity.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored, nil
}

func totalsOf(n int64) entity.Totals {
	v := decimal.NewFromInt(n)
	return entity.Totals{Total: v, Idle: v}
}

func newController(primary *fakePrimary, fb *fakeFallback, hist *fakeHistory, timeout time.Duration) *Controller {
	return New(primary, fb, hist, nil, timeout, zap.NewNop())
}

func TestRefresh_PrimaryHappyPath(t *testing.T) {
	primary := &fakePrimary{totals: totalsOf(9000)}
	ctrl := newController(primary, &fakeFallback{}, &fakeHistory{}, 200*time.Millisecond)

	view := ctrl.Refresh(context.Background(), entity.Range30d)

	assert.Equal(t, entity.ModePrimary, view.Mode)
	assert.Empty(t, view.Error)
	assert.True(t, view.Totals.Total.Equal(decimal.NewFromInt(9000)))
	assert.Len(t, view.Activity, 1)
	assert.Len(t, view.Payments, 1)
	assert.False(t, view.Loading)
}

func TestRefresh_TimeoutSwitchesToFallback(t *testing.T) {
	primary := &fakePrimary{delay: 300 * time.Millisecond, totals: totalsOf(9000)}
	fb := &fakeFallback{totals: totalsOf(500)}
	hist := &fakeHistory{stored: []entity.Snapshot{{Total: decimal.NewFromInt(400)}}}
	ctrl := newController(primary, fb, hist, 30*time.Millisecond)

	view := ctrl.Refresh(context.Background(), entity.Range7d)

	assert.Equal(t, entity.ModeFallback, view.Mode)
	assert.NotEmpty(t, view.Error, "fallback must surface an advisory message")
	assert.True(t, view.Totals.Total.Equal(decimal.NewFromInt(500)))
	require.Len(t, view.History, 1, "fallback history comes from the local store")
	assert.Equal(t, "chain-1", view.Activity[0].ID)
}

func TestRefresh_RemoteErrorSwitchesToFallback(t *testing.T) {
	primary := &fakePrimary{err: errors.New("backend returned status 500")}
	ctrl := newController(primary, &fakeFallback{totals: totalsOf(7)}, &fakeHistory{}, 200*time.Millisecond)

	view := ctrl.Refresh(context.Background(), entity.Range30d)

	assert.Equal(t, entity.ModeFallback, view.Mode)
	assert.Contains(t, view.Error, "Backend unavailable")
}

func TestRefresh_RecoveryClearsAdvisory(t *testing.T) {
	primary := &fakePrimary{err: errors.New("boom"), totals: totalsOf(100)}
	ctrl := newController(primary, &fakeFallback{}, &fakeHistory{}, 200*time.Millisecond)

	view := ctrl.Refresh(context.Background(), entity.Range30d)
	require.Equal(t, entity.ModeFallback, view.Mode)

	// next refresh re-attempts the primary source
	primary.mu.Lock()
	primary.err = nil
	primary.mu.Unlock()

	view = ctrl.Refresh(context.Background(), entity.Range30d)
	assert.Equal(t, entity.ModePrimary, view.Mode)
	assert.Empty(t, view.Error)
}

func TestRefresh_SamplesHistoryStore(t *testing.T) {
	primary := &fakePrimary{totals: totalsOf(1234)}
	hist := &fakeHistory{}
	ctrl := newController(primary, &fakeFallback{}, hist, 200*time.Millisecond)

	ctrl.Refresh(context.Background(), entity.Range30d)

	hist.mu.Lock()
	defer hist.mu.Unlock()
	require.Len(t, hist.samples, 1)
	assert.True(t, hist.samples[0].Total.Equal(decimal.NewFromInt(1234)))
}

func TestCommit_StaleGenerationDropped(t *testing.T) {
	s := newState()

	gen1 := s.begin()
	gen2 := s.begin()

	ok := s.commit(gen2, entity.View{Mode: entity.ModePrimary, Totals: totalsOf(2)})
	require.True(t, ok)

	ok = s.commit(gen1, entity.View{Mode: entity.ModeFallback, Totals: totalsOf(1)})
	assert.False(t, ok, "an older invocation must not overwrite a newer commit")
	assert.Equal(t, entity.ModePrimary, s.view().Mode)
	assert.True(t, s.view().Totals.Total.Equal(decimal.NewFromInt(2)))
}

func TestRefreshJobs_OffPrimaryDegradesToEmpty(t *testing.T) {
	primary := &fakePrimary{err: errors.New("down"), jobs: []entity.Job{{ID: "j1"}}}
	ctrl := newController(primary, &fakeFallback{}, &fakeHistory{}, 100*time.Millisecond)

	ctrl.Refresh(context.Background(), entity.Range30d) // enters fallback

	jobs := ctrl.RefreshJobs(context.Background(), "0xowner")
	assert.Empty(t, jobs, "jobs are explicitly unsupported off-primary")
}

func TestRefreshJobs_RequiresOwner(t *testing.T) {
	primary := &fakePrimary{totals: totalsOf(1), jobs: []entity.Job{{ID: "j1"}}}
	ctrl := newController(primary, &fakeFallback{}, &fakeHistory{}, 100*time.Millisecond)

	ctrl.Refresh(context.Background(), entity.Range30d)

	assert.Empty(t, ctrl.RefreshJobs(context.Background(), ""))

	jobs := ctrl.RefreshJobs(context.Background(), "0xowner")
	require.Len(t, jobs, 1)
	assert.Equal(t, "j1", jobs[0].ID)
	assert.Len(t, ctrl.View().Jobs, 1)
}
