// Package scheduler runs the background jobs that keep open matches in
// step with the backend and keep the phase journal bounded.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const defaultJobTimeout = time.Minute

var (
	ErrNotInitialized = errors.New("scheduler not initialized")
	ErrEmptyJobName   = errors.New("job name is required")
	ErrEmptyCronExpr  = errors.New("cron expression is required")
	ErrNilRun         = errors.New("job run function is required")
	ErrDuplicateJob   = errors.New("job already registered")
)

var (
	service     *Service
	serviceOnce sync.Once
	serviceErr  error
)

// Job is one cron-driven task. Run gets a context bounded by Timeout that
// carries a logger tagged with the job name.
type Job struct {
	Name    string
	Cron    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Service wraps a gocron scheduler. A job name can only be registered once.
type Service struct {
	scheduler gocron.Scheduler

	mu   sync.Mutex
	jobs map[string]gocron.Job

	stopOnce sync.Once
	stopErr  error
}

// New builds a scheduler that has not been started.
func New() (*Service, error) {
	sched, err := gocron.NewScheduler(
		gocron.WithGlobalJobOptions(
			gocron.WithEventListeners(
				gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, jobName string, recoverData any) {
					log.Error().
						Str("job_id", jobID.String()).
						Str("job_name", jobName).
						Interface("panic", recoverData).
						Msg("Scheduler job panicked")
				}),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Service{scheduler: sched, jobs: make(map[string]gocron.Job)}, nil
}

// Init creates the process-wide scheduler used by the Register helpers.
func Init() error {
	serviceOnce.Do(func() {
		service, serviceErr = New()
		if serviceErr == nil {
			log.Info().Msg("Scheduler initialized")
		}
	})
	return serviceErr
}

func instance() (*Service, error) {
	if service == nil && serviceErr == nil {
		return nil, ErrNotInitialized
	}
	return service, serviceErr
}

func Start() error {
	svc, err := instance()
	if err != nil {
		return err
	}
	svc.Start()
	return nil
}

func Stop() error {
	svc, err := instance()
	if err != nil {
		return err
	}
	return svc.Stop()
}

// Schedule registers job on the process-wide scheduler.
func Schedule(job Job) error {
	svc, err := instance()
	if err != nil {
		return err
	}
	return svc.Schedule(job)
}

func (s *Service) Start() {
	if s == nil {
		log.Error().Msg("Scheduler start requested before initialization")
		return
	}
	log.Info().Strs("jobs", s.Jobs()).Msg("Scheduler starting")
	s.scheduler.Start()
}

// Stop waits for running jobs and prevents new ones.
func (s *Service) Stop() error {
	if s == nil {
		return ErrNotInitialized
	}
	s.stopOnce.Do(func() {
		log.Info().Msg("Scheduler stopping")
		s.stopErr = s.scheduler.Shutdown()
	})
	return s.stopErr
}

// Jobs lists registered job names in order.
func (s *Service) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Schedule validates and registers job. Six-field expressions carry a
// leading seconds field. A run that is still going when the next tick
// fires pushes that tick back instead of overlapping.
func (s *Service) Schedule(job Job) error {
	if s == nil {
		return ErrNotInitialized
	}
	job.Name = strings.TrimSpace(job.Name)
	job.Cron = strings.TrimSpace(job.Cron)
	switch {
	case job.Name == "":
		return ErrEmptyJobName
	case job.Cron == "":
		return ErrEmptyCronExpr
	case job.Run == nil:
		return ErrNilRun
	}
	if job.Timeout <= 0 {
		job.Timeout = defaultJobTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
	}

	withSeconds := len(strings.Fields(job.Cron)) == 6
	registered, err := s.scheduler.NewJob(
		gocron.CronJob(job.Cron, withSeconds),
		gocron.NewTask(func() { runJob(context.Background(), job) }),
		gocron.WithName(job.Name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("register job %s: %w", job.Name, err)
	}
	s.jobs[job.Name] = registered
	log.Info().Str("job_name", job.Name).Str("cron", job.Cron).Dur("timeout", job.Timeout).Msg("Scheduler job registered")
	return nil
}

// runJob is the single path every tick goes through.
func runJob(parent context.Context, job Job) error {
	logger := log.With().
		Str("component", "scheduler").
		Str("job_name", job.Name).
		Logger()

	ctx, cancel := context.WithTimeout(parent, job.Timeout)
	defer cancel()
	ctx = logger.WithContext(ctx)

	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		logger.Error().Err(err).Dur("timeout", job.Timeout).Dur("duration", elapsed).Msg("Scheduler job timed out")
	case err != nil:
		logger.Warn().Err(err).Dur("duration", elapsed).Msg("Scheduler job failed")
	default:
		logger.Debug().Dur("duration", elapsed).Msg("Scheduler job finished")
	}
	return err
}
