package benefits

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"nomina/internal/platform/querier"
)

const calculationColumns = `id, organization_id, employee_id, kind, period_start, period_end,
    amount, monthly_salary, monthly_subsidy, days, rate, computed_at`

func scanCalculation(row pgx.Row) (Calculation, error) {
	var c Calculation
	err := row.Scan(&c.ID, &c.OrganizationID, &c.EmployeeID, &c.Kind, &c.PeriodStart, &c.PeriodEnd,
		&c.Amount, &c.MonthlySalary, &c.MonthlySubsidy, &c.Days, &c.Rate, &c.ComputedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Calculation{}, ErrCalculationNotFound
	}
	return c, err
}

const insertCalculationSQL = `
    INSERT INTO social_benefit_calculations (id, organization_id, employee_id, kind, period_start, period_end,
      amount, monthly_salary, monthly_subsidy, days, rate, computed_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

func calculationArgs(calc Calculation) []any {
	return []any{calc.ID, calc.OrganizationID, calc.EmployeeID, calc.Kind, calc.PeriodStart, calc.PeriodEnd,
		calc.Amount, calc.MonthlySalary, calc.MonthlySubsidy, calc.Days, calc.Rate, calc.ComputedAt}
}

// UpsertCalculation stores calc, replacing any row with the same
// (employee, kind, period_start, period_end).
func (s *Store) UpsertCalculation(ctx context.Context, calc Calculation) (Calculation, error) {
	if calc.ID == "" {
		calc.ID = uuid.NewString()
	}
	return scanCalculation(s.DB.QueryRow(ctx, insertCalculationSQL+`
    ON CONFLICT (employee_id, kind, period_start, period_end) DO UPDATE
    SET amount = EXCLUDED.amount,
        monthly_salary = EXCLUDED.monthly_salary,
        monthly_subsidy = EXCLUDED.monthly_subsidy,
        days = EXCLUDED.days,
        rate = EXCLUDED.rate,
        computed_at = EXCLUDED.computed_at
    RETURNING `+calculationColumns, calculationArgs(calc)...))
}

func (s *Store) GetCalculation(ctx context.Context, orgID, employeeID string, kind Kind, start, end time.Time) (Calculation, error) {
	return scanCalculation(s.DB.QueryRow(ctx, `
    SELECT `+calculationColumns+`
    FROM social_benefit_calculations
    WHERE organization_id = $1 AND employee_id = $2 AND kind = $3
      AND period_start = $4 AND period_end = $5
  `, orgID, employeeID, kind, start, end))
}

func (s *Store) ListCalculations(ctx context.Context, orgID string, employeeIDs []string, start, end time.Time) ([]Calculation, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+calculationColumns+`
    FROM social_benefit_calculations
    WHERE organization_id = $1 AND employee_id::text = ANY($2::text[])
      AND period_start = $3 AND period_end = $4
    ORDER BY employee_id, kind
  `, orgID, employeeIDs, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Calculation
	for rows.Next() {
		c, err := scanCalculation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ReplaceCalculations(ctx context.Context, orgID string, employeeIDs []string, start, end time.Time, calcs []Calculation) error {
	return querier.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
      DELETE FROM social_benefit_calculations
      WHERE organization_id = $1 AND employee_id::text = ANY($2::text[])
        AND period_start = $3 AND period_end = $4
    `, orgID, employeeIDs, start, end); err != nil {
			return err
		}
		for _, calc := range calcs {
			if _, err := tx.Exec(ctx, insertCalculationSQL, calculationArgs(calc)...); err != nil {
				return err
			}
		}
		return nil
	})
}
