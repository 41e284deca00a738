package shared

// Permission codes checked by route guards.
const (
	PermUsersManage      = "users.manage"
	PermRolesManage      = "roles.manage"
	PermPermissionsView  = "permissions.view"
	PermPackagesManage   = "packages.manage"
	PermQuotationsManage = "quotations.manage"
	PermAuditView        = "audit.view"
	PermJobsView         = "jobs.view"
	PermProposalsPublish = "proposals.publish"
)

// Permission categories used when seeding the catalogue.
const (
	CategoryAdministration = "administration"
	CategorySales          = "sales"
	CategoryOperations     = "operations"
)

// PermissionSpec describes a catalogue entry.
type PermissionSpec struct {
	Code        string
	Category    string
	DisplayName string
}

// CoreScopes lists every permission known to the platform.
func CoreScopes() []PermissionSpec {
	return []PermissionSpec{
		{Code: PermUsersManage, Category: CategoryAdministration, DisplayName: "Users"},
		{Code: PermRolesManage, Category: CategoryAdministration, DisplayName: "Roles"},
		{Code: PermPermissionsView, Category: CategoryAdministration, DisplayName: "Permission catalogue"},
		{Code: PermAuditView, Category: CategoryAdministration, DisplayName: "Audit log"},
		{Code: PermPackagesManage, Category: CategorySales, DisplayName: "Package snapshots"},
		{Code: PermQuotationsManage, Category: CategorySales, DisplayName: "Quotations"},
		{Code: PermProposalsPublish, Category: CategorySales, DisplayName: "Public proposals"},
		{Code: PermJobsView, Category: CategoryOperations, DisplayName: "Background jobs"},
	}
}
