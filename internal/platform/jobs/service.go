package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"nomina/internal/domain/payroll"
	"nomina/internal/domain/period"
	"nomina/internal/domain/retention"
	"nomina/internal/platform/metrics"
	"nomina/internal/platform/querier"
)

const (
	JobGhostSweep = "payroll_ghost_sweep"
	JobRetention  = "retention_purge"
)

// Purger drops expired operational rows.
type Purger interface {
	Purge(ctx context.Context) (retention.Result, error)
}

// RunLog persists one row per job run. A nil RunLog skips bookkeeping.
type RunLog interface {
	Start(ctx context.Context, orgID, jobType string) (string, error)
	Finish(ctx context.Context, runID, status string, details json.RawMessage) error
}

type Config struct {
	SweepInterval     time.Duration
	StaleAfter        time.Duration
	RetentionInterval time.Duration
}

type Service struct {
	store   payroll.StoreAPI
	runs    RunLog
	purger  Purger
	metrics *metrics.Collector
	cfg     Config
	now     func() time.Time
	queue   chan job
}

type job struct {
	Type  string
	OrgID string
	Run   func(context.Context) (any, error)
}

func New(store payroll.StoreAPI, runs RunLog, collector *metrics.Collector, cfg Config) *Service {
	return &Service{
		store:   store,
		runs:    runs,
		metrics: collector,
		cfg:     cfg,
		now:     time.Now,
		queue:   make(chan job, 128),
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithPurger enables the retention job. Without one it never runs.
func (s *Service) WithPurger(p Purger) *Service {
	s.purger = p
	return s
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	if s.cfg.SweepInterval > 0 {
		go s.schedule(ctx, s.cfg.SweepInterval, JobGhostSweep, func(ctx context.Context) (any, error) {
			return s.SweepGhosts(ctx)
		})
	}
	if s.purger != nil && s.cfg.RetentionInterval > 0 {
		go s.schedule(ctx, s.cfg.RetentionInterval, JobRetention, func(ctx context.Context) (any, error) {
			return s.purger.Purge(ctx)
		})
	}
}

func (s *Service) Enqueue(jobType, orgID string, run func(context.Context) (any, error)) {
	select {
	case s.queue <- job{Type: jobType, OrgID: orgID, Run: run}:
	default:
		slog.Warn("job queue full", "jobType", jobType, "organizationId", orgID)
	}
}

func (s *Service) RunNow(ctx context.Context, jobType, orgID string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, OrgID: orgID, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "organizationId", j.OrgID, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if s.runs != nil {
		id, err := s.runs.Start(ctx, j.OrgID, j.Type)
		if err != nil {
			slog.Warn("job run insert failed", "err", err)
		}
		runID = id
	}

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	if runID != "" {
		detailsJSON, marshalErr := json.Marshal(details)
		if marshalErr != nil {
			slog.Warn("job details marshal failed", "err", marshalErr)
			detailsJSON = []byte("{}")
		}
		if updErr := s.runs.Finish(ctx, runID, status, detailsJSON); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}

func (s *Service) schedule(ctx context.Context, interval time.Duration, jobType string, run func(context.Context) (any, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(jobType, "", run)
		}
	}
}

type SweepResult struct {
	Archived []string `json:"archived"`
	Flagged  []string `json:"flagged"`
}

// SweepGhosts archives stale drafts that never got a record. Stale drafts
// that do hold records are only reported; someone may still close them.
func (s *Service) SweepGhosts(ctx context.Context) (SweepResult, error) {
	now := s.now().UTC()
	candidates, err := s.store.ListGhostCandidates(ctx, now.Add(-s.cfg.StaleAfter))
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Archived: []string{}, Flagged: []string{}}
	for _, c := range candidates {
		if !period.IsGhost(c.Period, c.EmployeeCount, c.LastActivity, now, s.cfg.StaleAfter) {
			continue
		}
		if c.EmployeeCount > 0 {
			slog.WarnContext(ctx, "stale draft period", "organizationId", c.Period.OrganizationID, "periodId", c.Period.ID,
				"employees", c.EmployeeCount, "lastActivity", c.LastActivity)
			result.Flagged = append(result.Flagged, c.Period.ID)
			continue
		}
		if err := s.store.ArchivePeriod(ctx, c.Period.OrganizationID, c.Period.ID, now); err != nil {
			// Lost a race with a run or close; the period is live again.
			slog.WarnContext(ctx, "ghost archive skipped", "periodId", c.Period.ID, "err", err)
			continue
		}
		result.Archived = append(result.Archived, c.Period.ID)
	}
	if s.metrics != nil {
		s.metrics.GhostArchived(len(result.Archived))
	}
	if len(result.Archived) > 0 {
		slog.InfoContext(ctx, "ghost periods archived", "count", len(result.Archived))
	}
	return result, nil
}

// PGRunLog writes job_runs rows.
type PGRunLog struct {
	DB querier.Querier
}

func (l PGRunLog) Start(ctx context.Context, orgID, jobType string) (string, error) {
	var runID string
	err := l.DB.QueryRow(ctx, `
    INSERT INTO job_runs (organization_id, job_type, status)
    VALUES (NULLIF($1, ''),$2,$3)
    RETURNING id
  `, orgID, jobType, "running").Scan(&runID)
	return runID, err
}

func (l PGRunLog) Finish(ctx context.Context, runID, status string, details json.RawMessage) error {
	_, err := l.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id = $3
  `, status, []byte(details), runID)
	return err
}
