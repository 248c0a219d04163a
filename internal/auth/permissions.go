package auth

import "slices"

// Permission is a named capability checked by the API.
type Permission string

const (
	PermStateRead     Permission = "state:read"
	PermDeviceOperate Permission = "device:operate"
	PermRulesManage   Permission = "rules:manage"
	PermAuditRead     Permission = "audit:read"
)

// rolePermissions is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer:   {PermStateRead},
	RoleOperator: {PermStateRead, PermDeviceOperate, PermAuditRead},
	RoleAdmin:    {PermStateRead, PermDeviceOperate, PermRulesManage, PermAuditRead},
}

// HasPermission reports whether role grants perm. Unknown roles have none.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// PermissionsForRole returns a copy of the permissions granted to role, or
// nil for an unknown role.
func PermissionsForRole(role Role) []Permission {
	return slices.Clone(rolePermissions[role])
}
