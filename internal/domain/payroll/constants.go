package payroll

const (
	RecordStatusValid   RecordStatus = "valid"
	RecordStatusInvalid RecordStatus = "invalid"

	WarningOvertimeLimit     = "overtime_exceeds_weekly_limit"
	WarningNegativeNet       = "negative_net"
	WarningSubsidyIneligible = "transport_subsidy_not_applicable"

	EmployeeStatusActive = "active"

	// DefaultWorkers bounds concurrent calculations in a batch run.
	DefaultWorkers = 8
)
