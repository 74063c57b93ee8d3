package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

// IsKnownRole reports whether role may be placed in an issued token.
func IsKnownRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}
