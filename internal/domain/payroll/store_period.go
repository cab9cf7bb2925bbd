package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"nomina/internal/domain/period"
	"nomina/internal/platform/querier"
)

const periodColumns = `id, organization_id, start_date, end_date, period_type, state,
    gross_total, deductions_total, net_total, employee_count, version,
    created_at, updated_at, closed_at, archived_at`

func scanPeriod(row pgx.Row) (period.Period, error) {
	var p period.Period
	err := row.Scan(&p.ID, &p.OrganizationID, &p.StartDate, &p.EndDate, &p.Type, &p.State,
		&p.Totals.Gross, &p.Totals.Deductions, &p.Totals.Net, &p.EmployeeCount, &p.Version,
		&p.CreatedAt, &p.UpdatedAt, &p.ClosedAt, &p.ArchivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return period.Period{}, ErrPeriodNotFound
	}
	return p, err
}

// CreatePeriod inserts p unless a live period of the same organization
// overlaps its date range. The organization's advisory lock serializes
// concurrent creators so the check and insert cannot interleave.
func (s *Store) CreatePeriod(ctx context.Context, p period.Period) (period.Period, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	var created period.Period
	err := querier.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, p.OrganizationID); err != nil {
			return err
		}
		var overlapping int
		if err := tx.QueryRow(ctx, `
      SELECT COUNT(1)
      FROM payroll_periods
      WHERE organization_id = $1
        AND archived_at IS NULL
        AND start_date <= $3
        AND end_date >= $2
    `, p.OrganizationID, p.StartDate, p.EndDate).Scan(&overlapping); err != nil {
			return err
		}
		if overlapping > 0 {
			return period.ErrOverlappingPeriod
		}
		row := tx.QueryRow(ctx, `
      INSERT INTO payroll_periods (id, organization_id, start_date, end_date, period_type, state,
        gross_total, deductions_total, net_total, employee_count, version, created_at, updated_at)
      VALUES ($1,$2,$3,$4,$5,$6,0,0,0,0,1,$7,$7)
      RETURNING `+periodColumns,
			p.ID, p.OrganizationID, p.StartDate, p.EndDate, p.Type, period.StateDraft, p.CreatedAt)
		var err error
		created, err = scanPeriod(row)
		return err
	})
	if err != nil {
		return period.Period{}, err
	}
	return created, nil
}

func (s *Store) GetPeriod(ctx context.Context, orgID, periodID string) (period.Period, error) {
	return scanPeriod(s.DB.QueryRow(ctx, `
    SELECT `+periodColumns+`
    FROM payroll_periods
    WHERE organization_id = $1 AND id = $2
  `, orgID, periodID))
}

// ClosePeriod writes totals and the closed state in one statement that only
// matches while the period is still in expected at expectedVersion.
func (s *Store) ClosePeriod(ctx context.Context, orgID, periodID string, expected period.State, expectedVersion int64, totals period.Totals, employeeCount int, closedAt time.Time) (period.Period, error) {
	p, err := scanPeriod(s.DB.QueryRow(ctx, `
    UPDATE payroll_periods
    SET state = $5, gross_total = $6, deductions_total = $7, net_total = $8,
        employee_count = $9, version = version + 1, closed_at = $10, updated_at = $10
    WHERE organization_id = $1 AND id = $2 AND state = $3 AND version = $4
    RETURNING `+periodColumns,
		orgID, periodID, expected, expectedVersion, period.StateClosed,
		totals.Gross, totals.Deductions, totals.Net, employeeCount, closedAt))
	if errors.Is(err, ErrPeriodNotFound) {
		return period.Period{}, ErrVersionConflict
	}
	return p, err
}

// ReopenPeriod moves a closed period to reopened, appends the reopen trail
// row and unfreezes the period's records, all in one transaction.
func (s *Store) ReopenPeriod(ctx context.Context, event period.ReopenEvent, expectedVersion int64) (period.Period, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	var reopened period.Period
	err := querier.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		reopened, err = scanPeriod(tx.QueryRow(ctx, `
      UPDATE payroll_periods
      SET state = $4, version = version + 1, updated_at = $5
      WHERE organization_id = $1 AND id = $2 AND state = $6 AND version = $3
      RETURNING `+periodColumns,
			event.OrganizationID, event.PeriodID, expectedVersion, period.StateReopened, event.CreatedAt, period.StateClosed))
		if errors.Is(err, ErrPeriodNotFound) {
			return ErrVersionConflict
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
      INSERT INTO payroll_period_reopens (id, organization_id, period_id, actor_id, justification, created_at)
      VALUES ($1,$2,$3,$4,$5,$6)
    `, event.ID, event.OrganizationID, event.PeriodID, event.ActorID, event.Justification, event.CreatedAt); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
      UPDATE payroll_records
      SET finalized = false, finalized_at = NULL
      WHERE organization_id = $1 AND period_id = $2
    `, event.OrganizationID, event.PeriodID)
		return err
	})
	if err != nil {
		return period.Period{}, err
	}
	return reopened, nil
}

// RestorePeriod overwrites every column with the snapshot's values.
func (s *Store) RestorePeriod(ctx context.Context, snapshot period.Period) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE payroll_periods
    SET start_date = $3, end_date = $4, period_type = $5, state = $6,
        gross_total = $7, deductions_total = $8, net_total = $9, employee_count = $10,
        version = $11, created_at = $12, updated_at = $13, closed_at = $14, archived_at = $15
    WHERE organization_id = $1 AND id = $2
  `, snapshot.OrganizationID, snapshot.ID, snapshot.StartDate, snapshot.EndDate, snapshot.Type, snapshot.State,
		snapshot.Totals.Gross, snapshot.Totals.Deductions, snapshot.Totals.Net, snapshot.EmployeeCount,
		snapshot.Version, snapshot.CreatedAt, snapshot.UpdatedAt, snapshot.ClosedAt, snapshot.ArchivedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

func (s *Store) ListGhostCandidates(ctx context.Context, createdBefore time.Time) ([]GhostCandidate, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT p.id, p.organization_id, p.start_date, p.end_date, p.period_type, p.state,
           p.gross_total, p.deductions_total, p.net_total, p.employee_count, p.version,
           p.created_at, p.updated_at, p.closed_at, p.archived_at,
           COUNT(r.employee_id), COALESCE(MAX(r.updated_at), p.updated_at)
    FROM payroll_periods p
    LEFT JOIN payroll_records r ON r.period_id = p.id
    WHERE p.state = $1 AND p.archived_at IS NULL AND p.created_at < $2
    GROUP BY p.id
    ORDER BY p.created_at
  `, period.StateDraft, createdBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []GhostCandidate
	for rows.Next() {
		var c GhostCandidate
		p := &c.Period
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.StartDate, &p.EndDate, &p.Type, &p.State,
			&p.Totals.Gross, &p.Totals.Deductions, &p.Totals.Net, &p.EmployeeCount, &p.Version,
			&p.CreatedAt, &p.UpdatedAt, &p.ClosedAt, &p.ArchivedAt,
			&c.EmployeeCount, &c.LastActivity); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// ArchivePeriod stamps archived_at on a draft; archived periods no longer
// block creation of overlapping periods.
func (s *Store) ArchivePeriod(ctx context.Context, orgID, periodID string, at time.Time) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE payroll_periods
    SET archived_at = $3, version = version + 1, updated_at = $3
    WHERE organization_id = $1 AND id = $2 AND state = $4 AND archived_at IS NULL
  `, orgID, periodID, at, period.StateDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("archive period %s: %w", periodID, ErrVersionConflict)
	}
	return nil
}
