package audit

import (
	"time"

	"github.com/assettrack/assettrack/internal/shared"
)

// Action tags written to the trail.
const (
	ActionBootstrapAdmin        = "bootstrap_admin"
	ActionLogin                 = "login"
	ActionCreateUser            = "create_user"
	ActionRemoveUser            = "remove_user"
	ActionToggleUserStatus      = "toggle_user_status"
	ActionUpdateRolePermissions = "update_role_permissions"
	ActionRegisterDevice        = "register_device"
	ActionUpdateDevice          = "update_device"
	ActionToggleDeviceStatus    = "toggle_device_status"
	ActionIssueDevice           = "issue_device"
	ActionReturnDevice          = "return_device"
	ActionOpsScan               = "ops_scan"
	ActionClearAudit            = "clear_audit"
)

// Entry is one immutable audit record.
type Entry struct {
	ID        int64     `json:"id"`
	UserID    *int64    `json:"userId"`
	Role      string    `json:"role"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewEntry builds an entry attributed to the principal.
func NewEntry(actor shared.Principal, action, details string) Entry {
	entry := Entry{Role: actor.Role, Action: action, Details: details}
	if actor.UserID != 0 {
		id := actor.UserID
		entry.UserID = &id
	}
	return entry
}

// Filters narrows an audit listing.
type Filters struct {
	Action string
	UserID int64
	Limit  int
	Offset int
}
