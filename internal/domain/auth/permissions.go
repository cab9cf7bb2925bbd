package auth

const (
	RoleViewer     = "viewer"
	RoleAnalyst    = "payroll_analyst"
	RoleController = "payroll_controller"
)

const (
	PermPayrollRead    = "payroll.read"
	PermPayrollWrite   = "payroll.write"
	PermPayrollRun     = "payroll.run"
	PermPayrollClose   = "payroll.close"
	PermPayrollReopen  = "payroll.reopen"
	PermBenefitsAccrue = "benefits.accrue"
	PermAuditRead      = "audit.read"
)

var DefaultPermissions = []string{
	PermPayrollRead,
	PermPayrollWrite,
	PermPayrollRun,
	PermPayrollClose,
	PermPayrollReopen,
	PermBenefitsAccrue,
	PermAuditRead,
}

var RolePermissions = map[string][]string{
	RoleViewer: {
		PermPayrollRead,
	},
	RoleAnalyst: {
		PermPayrollRead,
		PermPayrollWrite,
		PermPayrollRun,
		PermBenefitsAccrue,
	},
	RoleController: {
		PermPayrollRead,
		PermPayrollWrite,
		PermPayrollRun,
		PermPayrollClose,
		PermPayrollReopen,
		PermBenefitsAccrue,
		PermAuditRead,
	},
}

// Allowed reports whether the role grants permission, either by the role
// table or through an explicit grant carried in the token.
func Allowed(role string, grants []string, permission string) bool {
	for _, perm := range RolePermissions[role] {
		if perm == permission {
			return true
		}
	}
	for _, perm := range grants {
		if perm == permission {
			return true
		}
	}
	return false
}
