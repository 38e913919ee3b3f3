package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleUser    = "user"
	RoleSupport = "support"
	RoleAdmin   = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

// Valid reports whether role is one the API issues tokens for.
func Valid(role string) bool {
	switch role {
	case RoleUser, RoleSupport, RoleAdmin:
		return true
	}
	return false
}
