package reports

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"nomina/internal/domain/employee"
	"nomina/internal/domain/payroll"
	"nomina/internal/domain/period"
)

type payslipLine struct {
	label  string
	amount decimal.Decimal
}

// RenderPayslip writes an A4 payslip. Records that are not finalized yet
// are stamped as drafts.
func RenderPayslip(w io.Writer, p period.Period, emp payroll.Employee, rec payroll.Record) error {
	b := rec.Breakdown
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Payslip "+emp.ID+" "+p.StartDate.Format("2006-01-02"), true)
	pdf.AddPage()

	title := "Payslip"
	if !rec.Finalized {
		title = "Payslip (draft)"
	}
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, title)
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, tr(fmt.Sprintf("Employee: %s %s (%s)", emp.FirstName, emp.LastName, emp.ID)))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Period: %s to %s (%s)", p.StartDate.Format("2006-01-02"), p.EndDate.Format("2006-01-02"), p.Type))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Worked days: %d of %d", b.WorkedDays, b.DailyDivisor))
	pdf.Ln(10)

	section := func(name string, rows []payslipLine) {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, name)
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 11)
		for _, row := range rows {
			pdf.CellFormat(110, 7, tr(row.label), "", 0, "L", false, 0, "")
			pdf.CellFormat(50, 7, row.amount.StringFixed(2), "", 1, "R", false, 0, "")
		}
		pdf.Ln(3)
	}

	section("Earnings", []payslipLine{
		{"Regular pay", b.RegularPay},
		{"Overtime and surcharges", b.OvertimePay},
		{"Bonuses", b.Bonuses},
		{"Transport subsidy", b.TransportSubsidy},
		{"Gross pay", b.GrossPay},
	})
	section("Deductions", []payslipLine{
		{"Health", b.HealthDeduction},
		{"Pension", b.PensionDeduction},
		{"Other", b.OtherDeductions},
		{"Total deductions", b.TotalDeductions},
	})

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(110, 9, "Net pay", "T", 0, "L", false, 0, "")
	pdf.CellFormat(50, 9, b.NetPay.StringFixed(2), "T", 1, "R", false, 0, "")

	if emp.BankName != "" {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "", 9)
		pdf.Cell(0, 6, tr("Paid to: "+emp.BankName+" "+employee.Masked(emp).BankAccount))
	}

	return pdf.Output(w)
}
