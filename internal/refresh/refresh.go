package refresh

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"oauth-refresh/internal/database"
	"oauth-refresh/internal/metrics"
	"oauth-refresh/internal/models"
	svcerrors "oauth-refresh/pkg/errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Refresher discovers connections whose tokens expire inside the lookahead
// window and fans out one refresh attempt per connection. Cycles are
// serialized: a manual refresh racing the scheduled one waits its turn
// instead of double-refreshing the same connections.
type Refresher struct {
	repo          database.Repository
	trigger       *Trigger
	metrics       *metrics.Metrics
	logger        *zap.Logger
	maxConcurrent int

	cycleMu sync.Mutex
	stateMu sync.RWMutex
	state   models.AggregateState
}

// NewRefresher creates a new refresh orchestrator
func NewRefresher(repo database.Repository, trigger *Trigger, m *metrics.Metrics, logger *zap.Logger, maxConcurrent int) *Refresher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	return &Refresher{
		repo:          repo,
		trigger:       trigger,
		metrics:       m,
		logger:        logger,
		maxConcurrent: maxConcurrent,
		state: models.AggregateState{
			State:       json.RawMessage("null"),
			LastUpdated: time.Now(),
		},
	}
}

// Refresh runs one discovery cycle over the window (now, now+lookahead].
// Individual connection failures are counted and reported, never escalated;
// only a failed discovery query or a failure to serialize the aggregate
// surfaces as an error.
func (r *Refresher) Refresh(ctx context.Context, lookaheadMinutes int) error {
	r.cycleMu.Lock()
	defer r.cycleMu.Unlock()

	refreshBefore := time.Now()
	refreshAfter := refreshBefore.Add(time.Duration(lookaheadMinutes) * time.Minute)

	r.logger.Info("Searching for connections to refresh",
		zap.Time("refresh_before", refreshBefore),
		zap.Time("refresh_after", refreshAfter),
	)

	connections, err := r.repo.GetConnectionsToRefresh(ctx, refreshBefore, refreshAfter)
	if err != nil {
		return svcerrors.Wrap(err, svcerrors.ErrInternalServer)
	}

	r.logger.Info("Found connections to refresh", zap.Int("count", len(connections)))

	outcomes := make([]models.Outcome, len(connections))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrent)
	for i, conn := range connections {
		g.Go(func() error {
			outcomes[i] = r.trigger.Trigger(gctx, conn)
			return nil
		})
	}

	// Trigger never returns an error, so Wait only joins the attempts
	if err := g.Wait(); err != nil {
		return svcerrors.Wrap(err, svcerrors.ErrInternalServer)
	}

	refreshed := 0
	failed := 0
	for _, outcome := range outcomes {
		if outcome.IsSuccess() {
			refreshed++
		} else {
			failed++
		}
	}

	r.metrics.AddRefreshed(refreshed)
	r.metrics.AddFailed(failed)

	serialized, err := json.Marshal(outcomes)
	if err != nil {
		return svcerrors.Wrap(err, svcerrors.ErrSerialization)
	}

	r.stateMu.Lock()
	r.state = models.AggregateState{
		State:       serialized,
		LastUpdated: time.Now(),
	}
	r.stateMu.Unlock()

	r.logger.Info("Refresh cycle complete",
		zap.Int("refreshed", refreshed),
		zap.Int("failed", failed),
		zap.Int("total", len(outcomes)),
	)

	return nil
}

// Query returns the last aggregate snapshot. Before the first cycle it is
// a null state, not an error.
func (r *Refresher) Query() models.AggregateState {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.state
}
