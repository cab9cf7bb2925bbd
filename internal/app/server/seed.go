package server

import (
	"github.com/shopspring/decimal"

	"nomina/internal/domain/payroll"
	"nomina/internal/domain/payroll/memstore"
)

// DemoOrganizationID owns the employees seeded into in-memory runs.
const DemoOrganizationID = "demo-org"

// seedDemo loads a small workforce so a database-less run can exercise the
// payroll lifecycle end to end.
func seedDemo(store *memstore.Memory) {
	demo := []payroll.Employee{
		{ID: "demo-emp-1", FirstName: "Ana", LastName: "Rojas", BaseSalary: decimal.NewFromInt(1_300_000), ContractType: "indefinite"},
		{ID: "demo-emp-2", FirstName: "Luis", LastName: "Mejia", BaseSalary: decimal.NewFromInt(2_400_000), ContractType: "indefinite"},
		{ID: "demo-emp-3", FirstName: "Sara", LastName: "Cano", BaseSalary: decimal.NewFromInt(5_800_000), ContractType: "fixed_term"},
	}
	for _, e := range demo {
		e.OrganizationID = DemoOrganizationID
		store.PutEmployee(e)
	}
}
