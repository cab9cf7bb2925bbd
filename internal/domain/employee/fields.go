package employee

import (
	"strings"

	"nomina/internal/domain/auth"
	"nomina/internal/domain/payroll"
)

// Masked keeps only the last four characters of the bank account.
func Masked(e payroll.Employee) payroll.Employee {
	account := e.BankAccount
	if len(account) > 4 {
		e.BankAccount = strings.Repeat("*", len(account)-4) + account[len(account)-4:]
	}
	return e
}

// FilterSensitiveFields trims bank details to what the caller may see.
// Controllers see the full account, writers a masked one, readers none.
func FilterSensitiveFields(e payroll.Employee, user auth.UserContext) payroll.Employee {
	switch {
	case user.Can(auth.PermPayrollClose):
		return e
	case user.Can(auth.PermPayrollWrite):
		return Masked(e)
	default:
		e.BankName = ""
		e.BankAccount = ""
		return e
	}
}
