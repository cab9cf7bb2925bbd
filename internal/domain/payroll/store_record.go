package payroll

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"nomina/internal/platform/querier"
)

const upsertRecordSQL = `
    INSERT INTO payroll_records (organization_id, period_id, employee_id, base_salary, worked_days,
      gross, deductions, net, breakdown, status, issues, finalized, finalized_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
    ON CONFLICT (period_id, employee_id) DO UPDATE
    SET base_salary = EXCLUDED.base_salary,
        worked_days = EXCLUDED.worked_days,
        gross = EXCLUDED.gross,
        deductions = EXCLUDED.deductions,
        net = EXCLUDED.net,
        breakdown = EXCLUDED.breakdown,
        status = EXCLUDED.status,
        issues = EXCLUDED.issues,
        finalized = EXCLUDED.finalized,
        finalized_at = EXCLUDED.finalized_at,
        updated_at = EXCLUDED.updated_at
    WHERE payroll_records.finalized = false`

func recordArgs(record Record) ([]any, error) {
	breakdownJSON, err := json.Marshal(record.Breakdown)
	if err != nil {
		return nil, err
	}
	issuesJSON, err := json.Marshal(record.Issues)
	if err != nil {
		return nil, err
	}
	return []any{
		record.OrganizationID, record.PeriodID, record.EmployeeID, record.BaseSalary, record.WorkedDays,
		record.Gross(), record.Deductions(), record.Net(), breakdownJSON, record.Status, issuesJSON,
		record.Finalized, record.FinalizedAt, record.UpdatedAt,
	}, nil
}

// UpsertRecord keeps one live row per (period, employee). Finalized rows are
// left untouched and reported with ErrRecordFinalized.
func (s *Store) UpsertRecord(ctx context.Context, record Record) error {
	args, err := recordArgs(record)
	if err != nil {
		return err
	}
	tag, err := s.DB.Exec(ctx, upsertRecordSQL, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordFinalized
	}
	return nil
}

func (s *Store) ListRecords(ctx context.Context, orgID, periodID string) ([]Record, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT organization_id, period_id, employee_id, base_salary, worked_days,
           breakdown, status, issues, finalized, finalized_at, updated_at
    FROM payroll_records
    WHERE organization_id = $1 AND period_id = $2
    ORDER BY employee_id
  `, orgID, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var record Record
		var breakdownJSON, issuesJSON []byte
		if err := rows.Scan(&record.OrganizationID, &record.PeriodID, &record.EmployeeID, &record.BaseSalary,
			&record.WorkedDays, &breakdownJSON, &record.Status, &issuesJSON, &record.Finalized,
			&record.FinalizedAt, &record.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(breakdownJSON, &record.Breakdown); err != nil {
			return nil, fmt.Errorf("decode breakdown of %s: %w", record.EmployeeID, err)
		}
		if len(issuesJSON) > 0 {
			if err := json.Unmarshal(issuesJSON, &record.Issues); err != nil {
				return nil, fmt.Errorf("decode issues of %s: %w", record.EmployeeID, err)
			}
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// FinalizeRecords freezes exactly the given employees' records; fewer
// matching rows than requested is an error so the caller can roll back.
func (s *Store) FinalizeRecords(ctx context.Context, orgID, periodID string, employeeIDs []string, at time.Time) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE payroll_records
    SET finalized = true, finalized_at = $4, updated_at = $4
    WHERE organization_id = $1 AND period_id = $2 AND employee_id::text = ANY($3::text[])
  `, orgID, periodID, employeeIDs, at)
	if err != nil {
		return err
	}
	if int(tag.RowsAffected()) != len(employeeIDs) {
		return fmt.Errorf("finalized %d of %d records: %w", tag.RowsAffected(), len(employeeIDs), ErrRecordNotFound)
	}
	return nil
}

// RestoreRecords replaces the period's records with records verbatim.
func (s *Store) RestoreRecords(ctx context.Context, orgID, periodID string, records []Record) error {
	return querier.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
      DELETE FROM payroll_records
      WHERE organization_id = $1 AND period_id = $2
    `, orgID, periodID); err != nil {
			return err
		}
		for _, record := range records {
			args, err := recordArgs(record)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, upsertRecordSQL, args...); err != nil {
				return err
			}
		}
		return nil
	})
}
