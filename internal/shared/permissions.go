package shared

// Permission names follow `domain:action`.
const (
	PermMatterRead   = "mm:read"
	PermMatterCreate = "mm:create"
	PermMatterUpdate = "mm:update"
	PermMatterDelete = "mm:delete"

	PermTimesheetRead    = "ts:read"
	PermTimesheetCreate  = "ts:create"
	PermTimesheetApprove = "ts:approve"

	PermLeaveRead    = "lv:read"
	PermLeaveCreate  = "lv:create"
	PermLeaveApprove = "lv:approve"

	PermClientRead   = "crm:read"
	PermClientCreate = "crm:create"
	PermClientUpdate = "crm:update"

	PermInvoiceRead   = "inv:read"
	PermInvoiceCreate = "inv:create"
	PermInvoiceUpdate = "inv:update"

	PermHRRead   = "hr:read"
	PermHRUpdate = "hr:update"

	PermUsersRead   = "usr:read"
	PermUsersUpdate = "usr:update"

	PermRBACRead   = "rbac:read"
	PermRBACCreate = "rbac:create"
	PermRBACUpdate = "rbac:update"

	PermAuditRead = "aud:read"

	PermAzureRead = "az:read"
)

// PermissionCatalog lists every built-in permission with a description.
func PermissionCatalog() map[string]string {
	return map[string]string{
		PermMatterRead:       "View matters",
		PermMatterCreate:     "Open new matters",
		PermMatterUpdate:     "Edit matters",
		PermMatterDelete:     "Archive matters",
		PermTimesheetRead:    "View timesheets",
		PermTimesheetCreate:  "Record time entries",
		PermTimesheetApprove: "Approve time entries",
		PermLeaveRead:        "View leave requests",
		PermLeaveCreate:      "Request leave",
		PermLeaveApprove:     "Approve leave requests",
		PermClientRead:       "View clients",
		PermClientCreate:     "Create clients",
		PermClientUpdate:     "Edit clients",
		PermInvoiceRead:      "View invoices",
		PermInvoiceCreate:    "Raise invoices",
		PermInvoiceUpdate:    "Edit invoices",
		PermHRRead:           "View HR records",
		PermHRUpdate:         "Edit HR records",
		PermUsersRead:        "View users",
		PermUsersUpdate:      "Manage users",
		PermRBACRead:         "View roles and permissions",
		PermRBACCreate:       "Create permissions",
		PermRBACUpdate:       "Change role permissions",
		PermAuditRead:        "View the audit trail",
		PermAzureRead:        "View Azure integration widgets",
	}
}
