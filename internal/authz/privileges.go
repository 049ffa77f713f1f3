package authz

// Privilege name constants. Seeded by ops/migrations/seeds; a role grants a
// subset of these through role_privileges.
const (
	PrivListRequests     = "list_requests"      // view pending/approved/rejected requests
	PrivUpdateRequests   = "update_requests"    // approve/reject/revoke requests
	PrivListActiveUsers  = "list_active_users"  // view active users
	PrivListRevokedUsers = "list_revoked_users" // view revoked users
	PrivAddUsers         = "add_users"          // direct user creation
	PrivRevokeUser       = "revoke_user"        // revoke a user's access
	PrivReactivateUser   = "reactivate_user"    // restore a revoked user
	PrivAssignBranch     = "assign_branch"      // change a user's/request's branch
	PrivAssignRole       = "assign_role"        // change a user's/request's role
)

// Role names with built-in meaning.
const (
	// RoleSystemAdministrator operates company-wide and bypasses the
	// privilege table entirely.
	RoleSystemAdministrator = "System Administrator"

	// RoleSystemUser is the default role attached to new permission
	// requests when the target branch defines it.
	RoleSystemUser = "System user"
)

// Privilege is a named atomic capability a role may grant.
type Privilege struct {
	ID          string `json:"privilege_id"`
	Name        string `json:"privilege_name"`
	Description string `json:"description,omitempty"`
}

// BuiltinPrivileges is the full catalog; Ensure-style seeding keeps the
// privileges table in sync with it.
var BuiltinPrivileges = []Privilege{
	{Name: PrivListRequests, Description: "List permission requests"},
	{Name: PrivUpdateRequests, Description: "Approve, reject or revoke permission requests"},
	{Name: PrivListActiveUsers, Description: "List active users"},
	{Name: PrivListRevokedUsers, Description: "List revoked users"},
	{Name: PrivAddUsers, Description: "Add users directly"},
	{Name: PrivRevokeUser, Description: "Revoke user access"},
	{Name: PrivReactivateUser, Description: "Reactivate revoked users"},
	{Name: PrivAssignBranch, Description: "Assign users to a branch"},
	{Name: PrivAssignRole, Description: "Assign roles to users"},
}
