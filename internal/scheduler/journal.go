package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	journalPruneJob     = "journal_prune"
	journalPruneTimeout = 2 * time.Minute
)

// JournalPruner removes phase events older than a retention window.
type JournalPruner interface {
	Prune(ctx context.Context, retention time.Duration, now time.Time) (int64, error)
}

// JournalPruneJob removes expired phase events on cronExpr.
func JournalPruneJob(pruner JournalPruner, retention time.Duration, cronExpr string) (Job, error) {
	if pruner == nil {
		return Job{}, errors.New("journal prune requires a pruner")
	}
	if retention <= 0 {
		return Job{}, errors.New("journal retention must be positive")
	}
	return Job{
		Name:    journalPruneJob,
		Cron:    cronExpr,
		Timeout: journalPruneTimeout,
		Run: func(ctx context.Context) error {
			_, err := pruneJournal(ctx, pruner, retention, time.Now().UTC())
			return err
		},
	}, nil
}

func RegisterJournalPrune(pruner JournalPruner, retention time.Duration, cronExpr string) error {
	job, err := JournalPruneJob(pruner, retention, cronExpr)
	if err != nil {
		return err
	}
	return Schedule(job)
}

func pruneJournal(ctx context.Context, pruner JournalPruner, retention time.Duration, now time.Time) (int64, error) {
	removed, err := pruner.Prune(ctx, retention, now)
	if err != nil {
		return 0, fmt.Errorf("prune phase events older than %s: %w", retention, err)
	}
	log.Ctx(ctx).Info().Int64("removed", removed).Dur("retention", retention).Msg("Pruned phase events")
	return removed, nil
}
