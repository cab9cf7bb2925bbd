package payroll

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

const employeeColumns = `id, organization_id, first_name, last_name, base_salary,
    COALESCE(contract_type, ''), COALESCE(health_insurer, ''), COALESCE(pension_fund, ''),
    COALESCE(risk_insurer, ''), COALESCE(bank_name, ''), bank_account_enc, status`

func (s *Store) scanEmployee(row pgx.Row) (Employee, error) {
	var employee Employee
	var bankAccount []byte
	err := row.Scan(&employee.ID, &employee.OrganizationID, &employee.FirstName, &employee.LastName,
		&employee.BaseSalary, &employee.ContractType, &employee.HealthInsurer, &employee.PensionFund,
		&employee.RiskInsurer, &employee.BankName, &bankAccount, &employee.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, ErrEmployeeNotFound
	}
	if err != nil {
		return Employee{}, err
	}
	if len(bankAccount) > 0 {
		if s.Crypto == nil {
			employee.BankAccount = string(bankAccount)
			return employee, nil
		}
		plain, err := s.Crypto.DecryptString(bankAccount)
		if err != nil {
			return Employee{}, err
		}
		employee.BankAccount = plain
	}
	return employee, nil
}

func (s *Store) sealBankAccount(account string) ([]byte, error) {
	if account == "" {
		return nil, nil
	}
	if s.Crypto == nil {
		return []byte(account), nil
	}
	return s.Crypto.EncryptString(account)
}

func (s *Store) GetEmployee(ctx context.Context, orgID, employeeID string) (Employee, error) {
	return s.scanEmployee(s.DB.QueryRow(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE organization_id = $1 AND id = $2
  `, orgID, employeeID))
}

func (s *Store) ListActiveEmployees(ctx context.Context, orgID string) ([]Employee, error) {
	return s.ListEmployees(ctx, orgID, EmployeeStatusActive)
}

// ListEmployees lists the organization's employees; an empty status lists
// all of them.
func (s *Store) ListEmployees(ctx context.Context, orgID, status string) ([]Employee, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE organization_id = $1 AND ($2 = '' OR status = $2)
    ORDER BY id
  `, orgID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []Employee
	for rows.Next() {
		employee, err := s.scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, employee)
	}
	return employees, rows.Err()
}

func (s *Store) CreateEmployee(ctx context.Context, e Employee) (Employee, error) {
	bankEnc, err := s.sealBankAccount(e.BankAccount)
	if err != nil {
		return Employee{}, err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO employees (id, organization_id, first_name, last_name, base_salary, contract_type,
      health_insurer, pension_fund, risk_insurer, bank_name, bank_account_enc, status)
    VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),NULLIF($7,''),NULLIF($8,''),NULLIF($9,''),NULLIF($10,''),$11,$12)
  `, e.ID, e.OrganizationID, e.FirstName, e.LastName, e.BaseSalary, e.ContractType,
		e.HealthInsurer, e.PensionFund, e.RiskInsurer, e.BankName, bankEnc, e.Status)
	if err != nil {
		return Employee{}, err
	}
	return e, nil
}

func (s *Store) UpdateEmployee(ctx context.Context, e Employee) (Employee, error) {
	bankEnc, err := s.sealBankAccount(e.BankAccount)
	if err != nil {
		return Employee{}, err
	}
	cmd, err := s.DB.Exec(ctx, `
    UPDATE employees
    SET first_name = $1,
        last_name = $2,
        base_salary = $3,
        contract_type = NULLIF($4, ''),
        health_insurer = NULLIF($5, ''),
        pension_fund = NULLIF($6, ''),
        risk_insurer = NULLIF($7, ''),
        bank_name = NULLIF($8, ''),
        bank_account_enc = $9,
        status = $10
    WHERE organization_id = $11 AND id = $12
  `, e.FirstName, e.LastName, e.BaseSalary, e.ContractType, e.HealthInsurer, e.PensionFund,
		e.RiskInsurer, e.BankName, bankEnc, e.Status, e.OrganizationID, e.ID)
	if err != nil {
		return Employee{}, err
	}
	if cmd.RowsAffected() == 0 {
		return Employee{}, ErrEmployeeNotFound
	}
	return e, nil
}
