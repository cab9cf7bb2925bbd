package reports

import (
	"encoding/csv"
	"io"
	"strconv"

	"nomina/internal/domain/payroll"
)

var registerHeader = []string{
	"employee_id", "status", "finalized", "worked_days", "base_salary",
	"regular_pay", "overtime_pay", "bonuses", "transport_subsidy", "gross_pay",
	"ibc", "health_deduction", "pension_deduction", "other_deductions", "total_deductions", "net_pay",
	"employer_contributions", "total_payroll_cost",
}

// WriteRegister writes one CSV row per record. Amounts carry two decimals.
func WriteRegister(w io.Writer, records []payroll.Record) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(registerHeader); err != nil {
		return err
	}
	for _, rec := range records {
		b := rec.Breakdown
		row := []string{
			rec.EmployeeID,
			string(rec.Status),
			strconv.FormatBool(rec.Finalized),
			strconv.Itoa(rec.WorkedDays),
			rec.BaseSalary.StringFixed(2),
			b.RegularPay.StringFixed(2),
			b.OvertimePay.StringFixed(2),
			b.Bonuses.StringFixed(2),
			b.TransportSubsidy.StringFixed(2),
			b.GrossPay.StringFixed(2),
			b.IBC.StringFixed(2),
			b.HealthDeduction.StringFixed(2),
			b.PensionDeduction.StringFixed(2),
			b.OtherDeductions.StringFixed(2),
			b.TotalDeductions.StringFixed(2),
			b.NetPay.StringFixed(2),
			b.EmployerContributions.StringFixed(2),
			b.TotalPayrollCost.StringFixed(2),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
