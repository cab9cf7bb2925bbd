// Package retention purges operational rows that outlive their use.
// Payroll periods, records and audit events are never purged here.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"nomina/internal/platform/querier"
)

const (
	CategoryIdempotencyKeys = "idempotency_keys"
	CategoryJobRuns         = "job_runs"
)

// Policy maps a category to how long its rows are kept. Categories with a
// non-positive duration are left alone.
type Policy map[string]time.Duration

type Result struct {
	Purged map[string]int64 `json:"purged"`
}

// Apply deletes the category's rows older than cutoff.
func Apply(ctx context.Context, db querier.Querier, category string, cutoff time.Time) (int64, error) {
	switch category {
	case CategoryIdempotencyKeys:
		tag, err := db.Exec(ctx, `
      DELETE FROM idempotency_keys
      WHERE created_at < $1
    `, cutoff)
		return tag.RowsAffected(), err
	case CategoryJobRuns:
		tag, err := db.Exec(ctx, `
      DELETE FROM job_runs
      WHERE completed_at IS NOT NULL AND completed_at < $1
    `, cutoff)
		return tag.RowsAffected(), err
	default:
		return 0, fmt.Errorf("unknown retention category %q", category)
	}
}

type Service struct {
	db     querier.Querier
	policy Policy
	now    func() time.Time
}

func New(db querier.Querier, policy Policy) *Service {
	return &Service{db: db, policy: policy, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Purge applies every category of the policy. A failing category does not
// stop the others.
func (s *Service) Purge(ctx context.Context) (Result, error) {
	now := s.now().UTC()
	categories := make([]string, 0, len(s.policy))
	for category := range s.policy {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	result := Result{Purged: map[string]int64{}}
	var errs []error
	for _, category := range categories {
		keep := s.policy[category]
		if keep <= 0 {
			continue
		}
		n, err := Apply(ctx, s.db, category, now.Add(-keep))
		result.Purged[category] = n
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", category, err))
			continue
		}
		if n > 0 {
			slog.InfoContext(ctx, "retention purge", "category", category, "rows", n)
		}
	}
	return result, errors.Join(errs...)
}
