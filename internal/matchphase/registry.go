package matchphase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const defaultRefreshConcurrency = 4

var ErrMatchNotOpen = errors.New("match is not open for live operation")

// Source is what the registry needs from the backend: a way to read the
// current match state and a way to change it.
type Source interface {
	Backend
	MatchReport(ctx context.Context, matchID int64) (Report, error)
}

type RegistryConfig struct {
	Source   Source
	Observer Observer
	Journal  Journal
	// RefreshConcurrency bounds concurrent backend fetches in Refresh.
	RefreshConcurrency int
	Now                func() time.Time
}

// Registry holds the controllers of matches currently being operated.
type Registry struct {
	cfg RegistryConfig

	mu          sync.Mutex
	controllers map[int64]*Controller
}

func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Source == nil {
		return nil, errors.New("match registry requires a backend source")
	}
	if cfg.RefreshConcurrency <= 0 {
		cfg.RefreshConcurrency = defaultRefreshConcurrency
	}
	return &Registry{
		cfg:         cfg,
		controllers: make(map[int64]*Controller),
	}, nil
}

// Open returns the controller for matchID, creating it from the backend's
// current state on first use.
func (r *Registry) Open(ctx context.Context, matchID int64) (*Controller, error) {
	if matchID <= 0 {
		return nil, errors.New("match ID is required")
	}
	if c, err := r.Get(matchID); err == nil {
		return c, nil
	}

	report, err := r.cfg.Source.MatchReport(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("load match %d: %w", matchID, err)
	}

	c, err := New(Config{
		MatchID:  matchID,
		Backend:  r.cfg.Source,
		Observer: r.cfg.Observer,
		Journal:  r.cfg.Journal,
		Initial:  report,
		Now:      r.cfg.Now,
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.controllers[matchID]; ok {
		return existing, nil
	}
	r.controllers[matchID] = c
	log.Ctx(ctx).Info().
		Int64("match_id", matchID).
		Str("phase", report.Phase.String()).
		Msg("Opened live match")
	return c, nil
}

func (r *Registry) Get(matchID int64) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.controllers[matchID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrMatchNotOpen, matchID)
	}
	return c, nil
}

func (r *Registry) Close(matchID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.controllers, matchID)
}

// MatchIDs returns the open matches in ascending order.
func (r *Registry) MatchIDs() []int64 {
	r.mu.Lock()
	ids := make([]int64, 0, len(r.controllers))
	for id := range r.controllers {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Refresh refetches every open match and reconciles its controller.
// Matches that reach a terminal phase are closed afterwards. Fetch
// failures are logged and do not stop the other matches.
func (r *Registry) Refresh(ctx context.Context) (int, error) {
	logger := log.Ctx(ctx).With().Str("component", "match_registry").Logger()

	r.mu.Lock()
	open := make([]*Controller, 0, len(r.controllers))
	for _, c := range r.controllers {
		open = append(open, c)
	}
	r.mu.Unlock()

	if len(open) == 0 {
		return 0, nil
	}

	var (
		changedMu sync.Mutex
		changed   int
		failedMu  sync.Mutex
		failed    []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.RefreshConcurrency)
	for _, c := range open {
		g.Go(func() error {
			report, err := r.cfg.Source.MatchReport(gctx, c.MatchID())
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn().Err(err).Int64("match_id", c.MatchID()).Msg("Failed to refresh match")
				failedMu.Lock()
				failed = append(failed, fmt.Errorf("refresh match %d: %w", c.MatchID(), err))
				failedMu.Unlock()
				return nil
			}
			if c.Reconcile(gctx, report) {
				changedMu.Lock()
				changed++
				changedMu.Unlock()
			}
			if c.Phase().Terminal() && !c.Snapshot().Pending {
				r.Close(c.MatchID())
				logger.Info().Int64("match_id", c.MatchID()).Msg("Closed finished match")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return changed, err
	}
	return changed, errors.Join(failed...)
}
