// Package reconciler keeps the unified treasury view consistent. It races
// the primary backend source against a latency bound, falls back to
// ledger-derived data when the backend fails, and republishes the result
// to subscribers. Primary failures are never fatal: every refresh resolves
// to a usable, possibly degraded, view.
package reconciler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gigpay/treasuryops/internal/entity"
	"github.com/gigpay/treasuryops/internal/services/bounded"
)

const (
	activityLimit   = 100
	paymentsMax     = 20
	defaultInterval = 30 * time.Second
)

// PrimarySource is the backend API serving indexed treasury state.
type PrimarySource interface {
	Overview(ctx context.Context) (entity.Totals, entity.PerAssetTotals, error)
	History(ctx context.Context, r entity.Range) ([]entity.Snapshot, error)
	Activity(ctx context.Context, limit int) ([]entity.ActivityEvent, error)
	PaymentIntents(ctx context.Context) ([]entity.PaymentIntent, error)
	Jobs(ctx context.Context, owner string) ([]entity.Job, error)
}

// FallbackSource reconstructs the same views from the ledger.
type FallbackSource interface {
	Totals(ctx context.Context) (entity.Totals, entity.PerAssetTotals, error)
	Activity(ctx context.Context, limit int) ([]entity.ActivityEvent, error)
	PaymentIntents(ctx context.Context, maxItems int) ([]entity.PaymentIntent, error)
}

// HistoryStore is the locally persisted snapshot series.
type HistoryStore interface {
	Sample(current entity.Totals) error
	GetRange(r entity.Range) ([]entity.Snapshot, error)
}

// Publisher fans the unified view out to consumers.
type Publisher interface {
	Publish(view entity.View)
}

// Controller orchestrates source reconciliation for one treasury.
type Controller struct {
	primary   PrimarySource
	fallback  FallbackSource
	history   HistoryStore
	publisher Publisher
	timeout   time.Duration
	logger    *zap.Logger

	state *state
}

// New creates a controller. publisher may be nil when nothing subscribes.
func New(primary PrimarySource, fb FallbackSource, history HistoryStore, publisher Publisher, timeout time.Duration, logger *zap.Logger) *Controller {
	if timeout <= 0 {
		timeout = bounded.DefaultTimeout
	}
	return &Controller{
		primary:   primary,
		fallback:  fb,
		history:   history,
		publisher: publisher,
		timeout:   timeout,
		logger:    logger,
		state:     newState(),
	}
}

// View returns the last committed unified view.
func (c *Controller) View() entity.View {
	return c.state.view()
}

// Refresh re-attempts the primary source for the given range and commits
// either the primary result or the fallback reconstruction. A refresh
// started after this one supersedes it: stale results are dropped
// silently instead of overwriting newer state.
func (c *Controller) Refresh(ctx context.Context, r entity.Range) entity.View {
	gen := c.state.begin()

	fetched, err := c.fetchPrimary(ctx, r)
	if err != nil {
		c.logger.Warn("primary source failed, switching to fallback", zap.String("range", string(r)), zap.Error(err))
		fetched = c.fetchFallback(ctx, r, err)
	}

	if !c.state.commit(gen, fetched) {
		c.logger.Debug("discarding stale refresh result", zap.String("range", string(r)), zap.Uint64("generation", gen))
		return c.state.view()
	}

	if err := c.history.Sample(fetched.Totals); err != nil {
		c.logger.Warn("snapshot sampling failed", zap.Error(err))
	}

	view := c.state.view()
	if c.publisher != nil {
		c.publisher.Publish(view)
	}
	return view
}

// fetchPrimary issues the four primary reads in parallel under the latency
// bound. All four must succeed; the first failure fails the whole fetch so
// partial-primary states are never exposed.
func (c *Controller) fetchPrimary(ctx context.Context, r entity.Range) (entity.View, error) {
	var (
		totals   entity.Totals
		perAsset entity.PerAssetTotals
		history  []entity.Snapshot
		activity []entity.ActivityEvent
		payments []entity.PaymentIntent
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		totals, perAsset, err = boundedPair(gctx, c.timeout, c.primary.Overview)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = bounded.Call(gctx, c.timeout, func(ctx context.Context) ([]entity.Snapshot, error) {
			return c.primary.History(ctx, r)
		})
		return err
	})
	g.Go(func() error {
		var err error
		activity, err = bounded.Call(gctx, c.timeout, func(ctx context.Context) ([]entity.ActivityEvent, error) {
			return c.primary.Activity(ctx, activityLimit)
		})
		return err
	})
	g.Go(func() error {
		var err error
		payments, err = bounded.Call(gctx, c.timeout, c.primary.PaymentIntents)
		return err
	})

	if err := g.Wait(); err != nil {
		return entity.View{}, err
	}

	return entity.View{
		Mode:      entity.ModePrimary,
		Totals:    totals,
		PerAsset:  perAsset,
		History:   history,
		Activity:  activity,
		Payments:  payments,
		UpdatedAt: time.Now(),
	}, nil
}

// fetchFallback rebuilds every view from local providers. Individual
// fallback failures degrade to empty data rather than propagating; the
// advisory message from the primary failure is what the user sees.
func (c *Controller) fetchFallback(ctx context.Context, r entity.Range, cause error) entity.View {
	view := entity.View{
		Mode:      entity.ModeFallback,
		Error:     advisory(cause),
		UpdatedAt: time.Now(),
	}

	totals, perAsset, err := c.fallback.Totals(ctx)
	if err != nil {
		c.logger.Warn("fallback totals unavailable", zap.Error(err))
	} else {
		view.Totals = totals
		view.PerAsset = perAsset
	}

	history, err := c.history.GetRange(r)
	if err != nil {
		c.logger.Warn("fallback history unavailable", zap.Error(err))
	} else {
		view.History = history
	}

	activity, err := c.fallback.Activity(ctx, activityLimit)
	if err != nil {
		c.logger.Warn("fallback activity unavailable", zap.Error(err))
	} else {
		view.Activity = activity
	}

	payments, err := c.fallback.PaymentIntents(ctx, paymentsMax)
	if err != nil {
		c.logger.Warn("fallback payment intents unavailable", zap.Error(err))
	} else {
		view.Payments = payments
	}

	return view
}

// RefreshJobs loads the owner's jobs from the primary source. There is no
// ledger derivation for jobs: off-primary or without an owner identity the
// result degrades to an empty list.
func (c *Controller) RefreshJobs(ctx context.Context, owner string) []entity.Job {
	if c.state.mode() != entity.ModePrimary || owner == "" {
		c.state.setJobs(nil)
		return nil
	}

	jobs, err := bounded.Call(ctx, c.timeout, func(ctx context.Context) ([]entity.Job, error) {
		return c.primary.Jobs(ctx, owner)
	})
	if err != nil {
		c.logger.Warn("jobs fetch failed", zap.String("owner", owner), zap.Error(err))
		c.state.setJobs(nil)
		return nil
	}

	c.state.setJobs(jobs)
	return jobs
}

// Run refreshes the view on a fixed cadence until ctx is cancelled. Each
// tick re-attempts the primary source, so recovery from fallback needs no
// separate health probe.
func (c *Controller) Run(ctx context.Context, interval time.Duration, r entity.Range) error {
	if interval <= 0 {
		interval = defaultInterval
	}

	c.logger.Info("starting reconciliation loop", zap.Duration("interval", interval), zap.String("range", string(r)))
	c.Refresh(ctx, r)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context done, stopping reconciliation loop")
			return ctx.Err()
		case <-ticker.C:
			c.Refresh(ctx, r)
		}
	}
}

func advisory(err error) string {
	if err == nil || err.Error() == "" {
		return "Backend unavailable, showing on-chain fallback data."
	}
	return "Backend unavailable, showing on-chain fallback data: " + err.Error()
}

func boundedPair(ctx context.Context, timeout time.Duration, fn func(context.Context) (entity.Totals, entity.PerAssetTotals, error)) (entity.Totals, entity.PerAssetTotals, error) {
	type pair struct {
		totals   entity.Totals
		perAsset entity.PerAssetTotals
	}
	res, err := bounded.Call(ctx, timeout, func(ctx context.Context) (pair, error) {
		t, pa, err := fn(ctx)
		return pair{totals: t, perAsset: pa}, err
	})
	return res.totals, res.perAsset, err
}
