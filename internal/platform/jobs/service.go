package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
)

const (
	JobSubscriptionExpiry = "subscription_expiry"
	JobIdempotencyCleanup = "idempotency_cleanup"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunStore keeps the job_runs bookkeeping.
type RunStore interface {
	StartRun(ctx context.Context, jobType string) (string, error)
	FinishRun(ctx context.Context, runID, status string, details []byte) error
}

type Observer interface {
	ObserveJob(job, status string)
}

type Expirer interface {
	ExpireLapsed(ctx context.Context, now time.Time) ([]string, error)
}

// Purger drops cached authorization state that may still describe an
// organization as active.
type Purger interface {
	Purge()
}

// KeyPurger deletes idempotency keys created before a cutoff.
type KeyPurger interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Func func(ctx context.Context) (any, error)

type Service struct {
	runs     RunStore
	observer Observer
	cron     *cron.Cron
	now      func() time.Time

	mu      sync.Mutex
	running map[string]bool
}

func New(runs RunStore, observer Observer) *Service {
	return &Service{
		runs:     runs,
		observer: observer,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		now:      time.Now,
		running:  map[string]bool{},
	}
}

// Schedule registers fn under a cron spec. Overlapping runs of the same job
// are skipped.
func (s *Service) Schedule(ctx context.Context, spec, jobType string, fn Func) error {
	_, err := s.cron.AddFunc(spec, func() {
		if _, err := s.RunNow(ctx, jobType, fn); err != nil {
			slog.Warn("scheduled job failed", "jobType", jobType, "err", err)
		}
	})
	return err
}

// ScheduleExpirySweep moves organizations past their subscription expiry to
// the expired status.
func (s *Service) ScheduleExpirySweep(ctx context.Context, spec string, orgs Expirer, cache Purger) error {
	if spec == "" {
		return nil
	}
	return s.Schedule(ctx, spec, JobSubscriptionExpiry, ExpirySweep(orgs, cache, s.now))
}

// ExpirySweep expires lapsed organizations and, when any changed, purges
// cache. cache may be nil.
func ExpirySweep(orgs Expirer, cache Purger, now func() time.Time) Func {
	return func(ctx context.Context) (any, error) {
		slugs, err := orgs.ExpireLapsed(ctx, now())
		if len(slugs) > 0 {
			slog.Info("organizations expired", "count", len(slugs), "slugs", slugs)
			if cache != nil {
				cache.Purge()
			}
		}
		return map[string]any{"expired": slugs}, err
	}
}

// ScheduleIdempotencyCleanup drops idempotency keys older than ttl on the
// same schedule as the expiry sweep.
func (s *Service) ScheduleIdempotencyCleanup(ctx context.Context, spec string, keys KeyPurger, ttl time.Duration) error {
	if spec == "" {
		return nil
	}
	return s.Schedule(ctx, spec, JobIdempotencyCleanup, IdempotencyCleanup(keys, ttl, s.now))
}

func IdempotencyCleanup(keys KeyPurger, ttl time.Duration, now func() time.Time) Func {
	return func(ctx context.Context) (any, error) {
		deleted, err := keys.DeleteBefore(ctx, now().Add(-ttl))
		return map[string]any{"deleted": deleted}, err
	}
}

func (s *Service) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish or ctx to end.
func (s *Service) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, fn Func) (any, error) {
	s.mu.Lock()
	if s.running[jobType] {
		s.mu.Unlock()
		slog.Info("job already running, skipping", "jobType", jobType)
		return nil, nil
	}
	s.running[jobType] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, jobType)
		s.mu.Unlock()
	}()

	runID := ""
	if s.runs != nil {
		id, err := s.runs.StartRun(ctx, jobType)
		if err != nil {
			slog.Warn("job run insert failed", "jobType", jobType, "err", err)
		}
		runID = id
	}

	details, err := fn(ctx)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
	}
	if s.observer != nil {
		s.observer.ObserveJob(jobType, status)
	}

	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if updErr := s.runs.FinishRun(ctx, runID, status, detailsJSON); updErr != nil {
			slog.Warn("job run update failed", "jobType", jobType, "err", updErr)
		}
	}
	return details, err
}

type PGRunStore struct {
	DB *pgxpool.Pool
}

func NewPGRunStore(db *pgxpool.Pool) *PGRunStore {
	return &PGRunStore{DB: db}
}

func (p *PGRunStore) StartRun(ctx context.Context, jobType string) (string, error) {
	var id string
	err := p.DB.QueryRow(ctx, `
    INSERT INTO job_runs (job_type, status)
    VALUES ($1, $2)
    RETURNING id
  `, jobType, StatusRunning).Scan(&id)
	return id, err
}

func (p *PGRunStore) FinishRun(ctx context.Context, runID, status string, details []byte) error {
	_, err := p.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id = $3
  `, status, details, runID)
	return err
}
