package permission

// Permission names checked by the cartes client.
const (
	CartesRead    = "cartes.read"
	CartesCreate  = "cartes.create"
	CartesUpdate  = "cartes.update"
	CartesDelete  = "cartes.delete"
	CartesImport  = "cartes.import"
	CartesExport  = "cartes.export"
	StatsRead     = "stats.read"
	StatsRefresh  = "stats.refresh"
	UsersManage   = "users.manage"
	ProfileUpdate = "profile.update"
)

// Role names as sent by the backend.
const (
	RoleAdministrator = "Administrateur"
	RoleSupervisor    = "Superviseur"
	RoleChief         = "Chef"
	RoleOperator      = "Operateur"
)

// All lists every permission in registration order.
var All = []string{
	CartesRead,
	CartesCreate,
	CartesUpdate,
	CartesDelete,
	CartesImport,
	CartesExport,
	StatsRead,
	StatsRefresh,
	UsersManage,
	ProfileUpdate,
}

// DefaultRoles is the role table of the inventory. Administrateur is the wildcard.
var DefaultRoles = map[string][]string{
	RoleSupervisor: {
		CartesRead, CartesCreate, CartesUpdate, CartesDelete,
		CartesImport, CartesExport, StatsRead, StatsRefresh, ProfileUpdate,
	},
	RoleChief: {
		CartesRead, CartesCreate, CartesUpdate, CartesImport, CartesExport,
		StatsRead, StatsRefresh, ProfileUpdate,
	},
	RoleOperator: {
		CartesRead, CartesUpdate, StatsRead, ProfileUpdate,
	},
}

// NewPolicy registers permissions and roles, then freezes both. Roles not listed in
// roles and not equal to wildcardRole hold nothing.
func NewPolicy(permissions []string, roles map[string][]string, wildcardRole string) (*RoleManager, error) {
	registry := NewRegistry(wildcardRole != "")
	for _, name := range permissions {
		if _, err := registry.Register(name); err != nil {
			return nil, err
		}
	}
	registry.Freeze()

	rm := NewRoleManager(registry)
	if wildcardRole != "" {
		if err := rm.RegisterWildcard(wildcardRole); err != nil {
			return nil, err
		}
	}
	for role, perms := range roles {
		if err := rm.RegisterRole(role, perms); err != nil {
			return nil, err
		}
	}
	rm.Freeze()
	return rm, nil
}

// DefaultPolicy returns the frozen cartes role table.
func DefaultPolicy() *RoleManager {
	rm, err := NewPolicy(All, DefaultRoles, RoleAdministrator)
	if err != nil {
		panic("permission: invalid default policy: " + err.Error())
	}
	return rm
}
