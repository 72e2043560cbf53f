package rbac

// Capability ties a UI component to the permission that enables it.
type Capability struct {
	Component  string     `json:"component"`
	Permission Permission `json:"permission"`
}

var capabilities = []Capability{
	{Component: "nav.register", Permission: PermDevicesRegister},
	{Component: "form.device.edit", Permission: PermDevicesRegister},
	{Component: "button.device.status", Permission: PermDevicesStatus},
	{Component: "form.issue.personal", Permission: PermIssuingPersonal},
	{Component: "form.issue.shared", Permission: PermIssuingShared},
	{Component: "form.issue.bulk", Permission: PermIssuingBulk},
	{Component: "form.return", Permission: PermReturns},
	{Component: "page.locations", Permission: PermLocationsList},
	{Component: "form.ops.scan", Permission: PermOpsScan},
	{Component: "page.users", Permission: PermUsersManage},
	{Component: "page.roles", Permission: PermRolesManage},
	{Component: "page.audit", Permission: PermAuditView},
	{Component: "button.audit.clear", Permission: PermAuditClear},
}

// Capabilities returns the component descriptor table.
func Capabilities() []Capability {
	out := make([]Capability, len(capabilities))
	copy(out, capabilities)
	return out
}

// Evaluate maps every described component to whether set enables it.
func Evaluate(descriptors []Capability, set Set) map[string]bool {
	out := make(map[string]bool, len(descriptors))
	for _, c := range descriptors {
		out[c.Component] = set.Has(c.Permission)
	}
	return out
}
