package payroll

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"nomina/internal/platform/querier"
)

const adjustmentColumns = `id, organization_id, period_id, employee_id, kind, COALESCE(subtype, ''),
    hours, days, amount, constitutive, COALESCE(description, ''), updated_at`

func scanAdjustments(rows pgx.Rows) ([]Adjustment, error) {
	defer rows.Close()
	var adjustments []Adjustment
	for rows.Next() {
		var adj Adjustment
		if err := rows.Scan(&adj.ID, &adj.OrganizationID, &adj.PeriodID, &adj.EmployeeID, &adj.Kind, &adj.Subtype,
			&adj.Hours, &adj.Days, &adj.Amount, &adj.Constitutive, &adj.Description, &adj.UpdatedAt); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments, rows.Err()
}

// ListAdjustments returns the period's adjustments; an empty employeeID
// lists every employee's.
func (s *Store) ListAdjustments(ctx context.Context, orgID, periodID, employeeID string) ([]Adjustment, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+adjustmentColumns+`
    FROM payroll_adjustments
    WHERE organization_id = $1 AND period_id = $2 AND ($3 = '' OR employee_id::text = $3)
    ORDER BY employee_id, updated_at, id
  `, orgID, periodID, employeeID)
	if err != nil {
		return nil, err
	}
	return scanAdjustments(rows)
}

func insertAdjustment(ctx context.Context, db querier.Querier, adj Adjustment) (Adjustment, error) {
	if adj.ID == "" {
		adj.ID = uuid.NewString()
	}
	_, err := db.Exec(ctx, `
    INSERT INTO payroll_adjustments (id, organization_id, period_id, employee_id, kind, subtype,
      hours, days, amount, constitutive, description, updated_at)
    VALUES ($1,$2,$3,$4,$5,NULLIF($6, ''),$7,$8,$9,$10,NULLIF($11, ''),$12)
  `, adj.ID, adj.OrganizationID, adj.PeriodID, adj.EmployeeID, adj.Kind, adj.Subtype,
		adj.Hours, adj.Days, adj.Amount, adj.Constitutive, adj.Description, adj.UpdatedAt)
	return adj, err
}

func (s *Store) CreateAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error) {
	return insertAdjustment(ctx, s.DB, adj)
}

// ReplaceAdjustmentSets swaps several employees' adjustment sets in one
// transaction. Every set is locked, in employee order, and compared with
// its expected stamp before anything is deleted; when any set moved the
// transaction is rolled back and a *StaleAdjustmentsError names them all.
func (s *Store) ReplaceAdjustmentSets(ctx context.Context, orgID, periodID string, sets []AdjustmentSet) error {
	ordered := slices.Clone(sets)
	slices.SortFunc(ordered, func(a, b AdjustmentSet) int { return strings.Compare(a.EmployeeID, b.EmployeeID) })

	return querier.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		// The period row serializes replacements whose sets are still empty.
		var locked string
		if err := tx.QueryRow(ctx, `
      SELECT id FROM payroll_periods
      WHERE organization_id = $1 AND id = $2
      FOR UPDATE
    `, orgID, periodID).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPeriodNotFound
			}
			return err
		}

		var stale []string
		for _, set := range ordered {
			rows, err := tx.Query(ctx, `
        SELECT `+adjustmentColumns+`
        FROM payroll_adjustments
        WHERE organization_id = $1 AND period_id = $2 AND employee_id = $3
        FOR UPDATE
      `, orgID, periodID, set.EmployeeID)
			if err != nil {
				return err
			}
			current, err := scanAdjustments(rows)
			if err != nil {
				return err
			}
			if !LatestUpdate(current).Equal(set.ExpectedUpdatedAt) {
				stale = append(stale, set.EmployeeID)
			}
		}
		if len(stale) > 0 {
			return &StaleAdjustmentsError{EmployeeIDs: stale}
		}

		for _, set := range ordered {
			if _, err := tx.Exec(ctx, `
        DELETE FROM payroll_adjustments
        WHERE organization_id = $1 AND period_id = $2 AND employee_id = $3
      `, orgID, periodID, set.EmployeeID); err != nil {
				return err
			}
			for _, adj := range set.Adjustments {
				adj.OrganizationID, adj.PeriodID, adj.EmployeeID = orgID, periodID, set.EmployeeID
				if _, err := insertAdjustment(ctx, tx, adj); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
