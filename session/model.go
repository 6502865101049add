package session

// Role is the account role assigned by the remote API.
type Role string

const (
	// RoleAdministrator holds every permission.
	RoleAdministrator Role = "Administrateur"
	// RoleSupervisor supervises several agencies.
	RoleSupervisor Role = "Superviseur"
	// RoleChief manages a single site team.
	RoleChief Role = "Chef"
	// RoleOperator handles day-to-day withdrawals.
	RoleOperator Role = "Operateur"
)

// Roles lists every role known to the client, in decreasing order of privilege.
var Roles = []Role{RoleAdministrator, RoleSupervisor, RoleChief, RoleOperator}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// User is the account record returned by the authentication endpoints. Field tags
// follow the remote API's JSON naming.
type User struct {
	ID       int    `json:"id"`
	FullName string `json:"NomComplet"`
	Username string `json:"NomUtilisateur"`
	Email    string `json:"Email"`
	Agency   string `json:"Agence"`
	Role     Role   `json:"Role"`
}

// Clone returns a copy of u, or nil when u is nil.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	return &out
}

// Credentials is the token/user pair held by the [Store].
type Credentials struct {
	Token string
	User  *User
}

// Session is the authenticated state owned by the Client. ExpiresIn is the lifetime
// in seconds reported by the API at issue time; zero means unknown.
type Session struct {
	Token     string
	User      *User
	ExpiresIn int
}
