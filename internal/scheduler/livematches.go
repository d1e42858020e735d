package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	liveMatchRefreshJob     = "live_match_refresh"
	liveMatchRefreshTimeout = 30 * time.Second
)

// MatchRefresher reconciles every open match against the backend.
type MatchRefresher interface {
	Refresh(ctx context.Context) (int, error)
}

// LiveMatchRefreshJob polls the backend for open matches on cronExpr.
func LiveMatchRefreshJob(refresher MatchRefresher, cronExpr string) (Job, error) {
	if refresher == nil {
		return Job{}, errors.New("live match refresh requires a refresher")
	}
	return Job{
		Name:    liveMatchRefreshJob,
		Cron:    cronExpr,
		Timeout: liveMatchRefreshTimeout,
		Run: func(ctx context.Context) error {
			_, err := refreshLiveMatches(ctx, refresher)
			return err
		},
	}, nil
}

func RegisterLiveMatchRefresh(refresher MatchRefresher, cronExpr string) error {
	job, err := LiveMatchRefreshJob(refresher, cronExpr)
	if err != nil {
		return err
	}
	return Schedule(job)
}

// refreshLiveMatches returns the number of matches that changed. Some may
// have changed even when err is set.
func refreshLiveMatches(ctx context.Context, refresher MatchRefresher) (int, error) {
	changed, err := refresher.Refresh(ctx)
	if changed > 0 {
		log.Ctx(ctx).Info().Int("changed", changed).Msg("Adopted backend phase changes")
	}
	return changed, err
}
